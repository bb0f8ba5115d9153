// Package gpio drives the reset and bootstrap-select lines of the target.
package gpio

import (
	"github.com/golang/glog"
	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"
)

// Pin is the subset of periph.io gpio.PinOut used here.
type Pin interface {
	Name() string
	Out(gpio.Level) error
}

// Line is a digital output with an active polarity.
type Line struct {
	Pin       Pin
	ActiveLow bool
}

func (l *Line) level(active bool) gpio.Level {
	return gpio.Level(active != l.ActiveLow)
}

// Activate drives the line to its active level.
func (l *Line) Activate() error {
	return errors.Annotatef(l.Pin.Out(l.level(true)), "activate %s", l.Pin.Name())
}

// Deactivate drives the line to its inactive level.
func (l *Line) Deactivate() error {
	return errors.Annotatef(l.Pin.Out(l.level(false)), "deactivate %s", l.Pin.Name())
}

// Configure makes the pin a push-pull output at the initial state.
func (l *Line) Configure(active bool) error {
	glog.V(2).Infof("configure %s as output, active-low=%v, active=%v", l.Pin.Name(), l.ActiveLow, active)
	if active {
		return l.Activate()
	}
	return l.Deactivate()
}

// Control owns the two target control lines.
// The reset line is active when the target runs: deactivating it holds the
// target in reset.
type Control struct {
	Bootstrap *Line
	Reset     *Line
}

// NewControl creates a Control from two pins.
func NewControl(bootstrap, reset *Line) *Control {
	return &Control{Bootstrap: bootstrap, Reset: reset}
}

// Configure sets both lines as outputs. It must be called once before use.
func (c *Control) Configure() error {
	if err := c.Reset.Configure(true); err != nil {
		return err
	}
	return c.Bootstrap.Configure(true)
}

// EnterReset holds the target in reset.
func (c *Control) EnterReset() error {
	return c.Reset.Deactivate()
}

// ExitReset releases the target from reset.
func (c *Control) ExitReset() error {
	return c.Reset.Activate()
}

// SelectBootstrapMode drives the bootstrap-select line.
func (c *Control) SelectBootstrapMode(on bool) error {
	if on {
		return c.Bootstrap.Activate()
	}
	return c.Bootstrap.Deactivate()
}

// Release deasserts the bootstrap line so the next reset boots the
// application.
func (c *Control) Release() error {
	return c.SelectBootstrapMode(false)
}
