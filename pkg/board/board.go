// Package board builds the flasher hardware from a Config.
package board

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/juju/errors"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/robotalks/mtkflash/pkg/flasher"
	fx "github.com/robotalks/mtkflash/pkg/framework"
	"github.com/robotalks/mtkflash/pkg/gpio"
	"github.com/robotalks/mtkflash/pkg/transfer"
	"github.com/robotalks/mtkflash/pkg/uart"
)

// Hardware hooks, replaced in tests.
var (
	hostInit = func() error {
		_, err := host.Init()
		return err
	}
	pinByName = func(name string) gpio.Pin {
		if pin := gpioreg.ByName(name); pin != nil {
			return pin
		}
		return nil
	}
	portOpener uart.Opener = OpenPort
)

// Board is the hardware of one flashing run.
type Board struct {
	Config  *flasher.Config
	HostID  string
	Control *gpio.Control
	Channel *uart.Channel
	Sender  *transfer.Command
	Session *flasher.Session

	// CapturePath is the raw capture file, empty when disabled.
	CapturePath string
	capture     *os.File
}

// OpenPort opens the serial device in 8N1 mode.
func OpenPort(path string, baud int) (uart.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return port, nil
}

// MachineID retrieves the unique ID identifying the machine, or the host
// name when the machine ID is unavailable.
func MachineID() string {
	id, err := machineid.ID()
	if err == nil && id != "" {
		return id
	}
	glog.Warningf("machine id unavailable: %v", err)
	if id, err = os.Hostname(); err == nil && id != "" {
		return id
	}
	return "unknown"
}

// Open initializes the host drivers and builds the Board.
func Open(conf *flasher.Config) (*Board, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := hostInit(); err != nil {
		return nil, errors.Annotate(err, "host init")
	}
	reset := pinByName(conf.ResetPin)
	if reset == nil {
		return nil, errors.NotFoundf("reset pin %s", conf.ResetPin)
	}
	bootstrap := pinByName(conf.BootstrapPin)
	if bootstrap == nil {
		return nil, errors.NotFoundf("bootstrap pin %s", conf.BootstrapPin)
	}

	b := &Board{
		Config: conf,
		HostID: MachineID(),
		Control: gpio.NewControl(
			&gpio.Line{Pin: bootstrap, ActiveLow: conf.BootstrapActiveLow},
			&gpio.Line{Pin: reset, ActiveLow: conf.ResetActiveLow},
		),
		Channel: uart.NewChannel(conf.Device, portOpener),
		Sender:  transfer.NewCommand(conf.TransferCommand, conf.TransferArgList()...),
	}
	b.Sender.Timeout = conf.TransferTimeout
	if conf.CaptureDir != "" {
		if err := b.openCapture(conf.CaptureDir, time.Now()); err != nil {
			return nil, err
		}
	}
	b.Session = flasher.NewSession(b.Channel, b.Control, nil)
	glog.Infof("board %s: %s reset=%s bootstrap=%s", b.HostID, conf.Device, reset.Name(), bootstrap.Name())
	return b, nil
}

// MustOpen opens the Board and fails on error.
func MustOpen(conf *flasher.Config) *Board {
	b, err := Open(conf)
	if err != nil {
		log.Fatalln(err)
	}
	return b
}

// CaptureName is the capture file name of a run started at t.
func CaptureName(hostID string, t time.Time) string {
	return fmt.Sprintf("mtkflash-%s-%d.cap", hostID, t.Unix())
}

func (b *Board) openCapture(dir string, t time.Time) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Annotatef(err, "capture dir")
	}
	fn := filepath.Join(dir, CaptureName(b.HostID, t))
	f, err := os.Create(fn)
	if err != nil {
		return errors.Annotatef(err, "capture file")
	}
	b.capture, b.CapturePath = f, fn
	b.Channel.Capture = f
	glog.Infof("capturing serial traffic to %s", fn)
	return nil
}

// NewFlasher creates the Flasher over the Board.
func (b *Board) NewFlasher(opts ...flasher.Option) (*flasher.Flasher, error) {
	return flasher.New(b.Config, b.Session, b.Sender, opts...)
}

// Close closes the channel and the capture file.
func (b *Board) Close() error {
	var errs fx.AggregatedError
	errs.Add(b.Channel.Close())
	if b.capture != nil {
		errs.Add(b.capture.Close())
		b.capture = nil
		b.Channel.Capture = nil
	}
	return errs.Aggregate()
}
