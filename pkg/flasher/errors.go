package flasher

import (
	"errors"
	"fmt"
)

// ErrHandshakeTimeout indicates the bootloader never synchronized.
var ErrHandshakeTimeout = errors.New("handshake timeout")

// Outcome is the tagged result of a segment, ordered by severity.
type Outcome int

// Outcomes
const (
	OK Outcome = iota
	Skipped
	HandshakeTimeout
	TransferFailure
	HardwareFault
	Canceled
)

var outcomeNames = map[Outcome]string{
	OK:               "ok",
	Skipped:          "skipped",
	HandshakeTimeout: "handshake-timeout",
	TransferFailure:  "transfer-failure",
	HardwareFault:    "hardware-fault",
	Canceled:         "canceled",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ExitCode is the process exit status reporting the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case OK:
		return 0
	case HandshakeTimeout:
		return 2
	case TransferFailure:
		return 3
	case HardwareFault:
		return 4
	case Skipped:
		return 5
	case Canceled:
		return 6
	}
	return 1
}

// PhaseError is the failure of a segment in a specific phase.
type PhaseError struct {
	Segment string
	Phase   State
	Outcome Outcome
	Err     error
}

// Error implements error.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", e.Segment, e.Phase, e.Outcome, e.Err)
}

// Unwrap returns the underlying error.
func (e *PhaseError) Unwrap() error {
	return e.Err
}
