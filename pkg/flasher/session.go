package flasher

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mtkflash/pkg/uart"
)

// Pins drives the target control lines. gpio.Control implements it.
type Pins interface {
	Configure() error
	EnterReset() error
	ExitReset() error
	SelectBootstrapMode(on bool) error
	Release() error
}

// Clock provides time to the state machine.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Session is the mutable state of one provisioning run.
// It owns the serial channel and the pins for its whole lifetime.
type Session struct {
	Channel *uart.Channel
	Pins    Pins
	Clock   Clock

	// SyncCount counts sync characters seen in the current attempt.
	SyncCount int
	// ErrorCount counts other non-zero bytes seen in the current attempt.
	ErrorCount int
	// RetryCount counts handshake restarts over the whole session.
	RetryCount int
	// StartTime is when the current handshake attempt started.
	StartTime time.Time
	// BootloaderEntries counts bootloader entry sequences.
	BootloaderEntries int
}

// NewSession creates a Session. A nil clock means SystemClock.
func NewSession(ch *uart.Channel, pins Pins, clock Clock) *Session {
	if clock == nil {
		clock = SystemClock
	}
	return &Session{Channel: ch, Pins: pins, Clock: clock}
}

// Elapsed returns the time since the current attempt started.
func (s *Session) Elapsed() time.Duration {
	return s.Clock.Now().Sub(s.StartTime)
}

// Close closes the channel.
func (s *Session) Close() error {
	return s.Channel.Close()
}

func (s *Session) resetAttempt() {
	s.SyncCount, s.ErrorCount = 0, 0
	s.StartTime = s.Clock.Now()
}

func (s *Session) restart(fn func() error) error {
	s.RetryCount++
	s.resetAttempt()
	glog.Warningf("handshake restart %d", s.RetryCount)
	return fn()
}
