package flasher

import (
	"time"

	"github.com/golang/glog"
)

// EnterBootloader forces the target into its ROM bootloader: the bootstrap
// line is asserted while the target is held in reset for settle, so it is
// sampled when reset is released.
func (s *Session) EnterBootloader(settle time.Duration) error {
	s.BootloaderEntries++
	glog.V(1).Infof("entering bootloader (%d)", s.BootloaderEntries)
	if err := s.Pins.SelectBootstrapMode(true); err != nil {
		return err
	}
	if err := s.Pins.EnterReset(); err != nil {
		return err
	}
	s.Clock.Sleep(settle)
	return s.Pins.ExitReset()
}
