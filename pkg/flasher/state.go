package flasher

import "fmt"

// State is a state of the flash sequencer.
type State int

// States
const (
	Idle State = iota
	ConfiguringGpio
	EnteringBootloader
	HandshakeAtLowBaud
	LoadingDownloadAgent
	SwitchingToHighBaud
	SelectingSegment
	HandshakeAtHighBaud
	TransferringImage
	ReleasingGpio
	Terminal
)

var stateNames = [...]string{
	Idle:                 "idle",
	ConfiguringGpio:      "configuring-gpio",
	EnteringBootloader:   "entering-bootloader",
	HandshakeAtLowBaud:   "handshake-low-baud",
	LoadingDownloadAgent: "loading-download-agent",
	SwitchingToHighBaud:  "switching-high-baud",
	SelectingSegment:     "selecting-segment",
	HandshakeAtHighBaud:  "handshake-high-baud",
	TransferringImage:    "transferring-image",
	ReleasingGpio:        "releasing-gpio",
	Terminal:             "terminal",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateCallback is called on every state transition. seg is empty outside
// of the per segment states.
type StateCallback func(state State, seg Segment)
