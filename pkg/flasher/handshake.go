package flasher

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// SyncChar is sent by the bootloader when it is ready for an XMODEM transfer.
const SyncChar = 'C'

// Strategy selects when a handshake attempt is restarted.
type Strategy int

// Strategies
const (
	// StrategySilence restarts when the attempt timed out and the last read
	// returned nothing, tolerating noise on the line. A line that never goes
	// quiet restarts after twice the attempt timeout.
	StrategySilence Strategy = iota
	// StrategyNoise flushes the input after every read and restarts when
	// the attempt timed out or too many noise bytes were seen.
	StrategyNoise
)

func (s Strategy) String() string {
	switch s {
	case StrategySilence:
		return "silence"
	case StrategyNoise:
		return "noise"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy parses a Strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "silence", "":
		return StrategySilence, nil
	case "noise":
		return StrategyNoise, nil
	}
	return StrategySilence, fmt.Errorf("unknown handshake strategy %q", name)
}

// Handshake waits for the bootloader sync characters.
type Handshake struct {
	Strategy Strategy
	// Threshold is the number of sync characters required.
	Threshold int
	// Timeout of one attempt.
	Timeout time.Duration
	// ReadTimeout is the deadline of a single byte read.
	ReadTimeout time.Duration
	// MaxRetries is the session wide restart ceiling.
	MaxRetries int
	// MaxNoise is the noise bytes tolerated by StrategyNoise.
	MaxNoise int
	// Restart brings the bootloader back for a new attempt. When nil, the
	// attempt fails once Timeout elapsed, whatever the line carries.
	Restart func() error
}

// Verify polls the channel until Threshold sync characters are seen.
// It returns ErrHandshakeTimeout once the session restart count exceeds
// MaxRetries. The count is checked on every iteration and is never reset,
// so restarts spent on earlier segments count against later ones.
func (h *Handshake) Verify(ctx context.Context, s *Session) error {
	s.resetAttempt()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, ok, err := s.Channel.ReadByteTimeout(h.ReadTimeout)
		if err != nil {
			return err
		}
		if h.Strategy == StrategyNoise {
			if err := s.Channel.FlushInput(); err != nil {
				return err
			}
		}
		if ok {
			switch {
			case b == SyncChar:
				s.SyncCount++
				glog.V(2).Infof("sync %d", s.SyncCount)
			case b != 0:
				s.ErrorCount++
				glog.V(2).Infof("noise 0x%02x (%d)", b, s.ErrorCount)
			}
		}
		if s.SyncCount >= h.Threshold {
			return nil
		}
		if h.shouldRestart(s, ok) {
			if h.Restart == nil {
				return fmt.Errorf("%w: no sync within %v", ErrHandshakeTimeout, h.Timeout)
			}
			if err := s.restart(h.Restart); err != nil {
				return err
			}
		}
		if h.Restart != nil && s.RetryCount > h.MaxRetries {
			glog.Warningf("handshake aborted after %d restarts", s.RetryCount)
			return fmt.Errorf("%w: %d restarts", ErrHandshakeTimeout, s.RetryCount)
		}
	}
}

func (h *Handshake) shouldRestart(s *Session, received bool) bool {
	elapsed := s.Elapsed()
	timedOut := elapsed > h.Timeout
	switch {
	case h.Restart == nil:
		return timedOut
	case h.Strategy == StrategyNoise:
		return timedOut || s.ErrorCount > h.MaxNoise
	}
	return (timedOut && !received) || elapsed > 2*h.Timeout
}
