package uart

import (
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// Port is the raw serial port primitive. go.bug.st/serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
	ResetInputBuffer() error
	Drain() error
}

// Opener opens the device at path with the given baud rate.
type Opener func(path string, baud int) (Port, error)

// Channel is the serial channel to the target.
type Channel struct {
	// Path is the device path, e.g. /dev/ttyHS0.
	Path string
	// Capture receives a raw copy of all bytes read and written (optional).
	Capture io.Writer

	opener  Opener
	port    Port
	baud    int
	timeout time.Duration
	opens   int
	closes  int

	// a Stream reads and writes from two goroutines
	captureLock sync.Mutex
}

// NewChannel creates an unopened Channel.
func NewChannel(path string, opener Opener) *Channel {
	return &Channel{Path: path, opener: opener}
}

// Open (re)opens the port at baud. A held port is closed first.
func (c *Channel) Open(baud int) error {
	if err := c.Close(); err != nil {
		glog.Warningf("close %s before reopen: %v", c.Path, err)
	}
	port, err := c.opener(c.Path, baud)
	if err != nil {
		return errors.Annotatef(err, "open %s at %d", c.Path, baud)
	}
	c.port, c.baud, c.timeout = port, baud, -1
	c.opens++
	glog.V(2).Infof("opened %s at %d baud", c.Path, baud)
	return nil
}

// Close closes the port if open. Closing an unopened channel is a no-op.
func (c *Channel) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port, c.baud = nil, 0
	c.closes++
	return errors.Trace(err)
}

// IsOpen indicates a port is held.
func (c *Channel) IsOpen() bool {
	return c.port != nil
}

// DevicePath implements transfer.Device.
func (c *Channel) DevicePath() string {
	return c.Path
}

// Baud returns the current baud rate, 0 when unopened.
func (c *Channel) Baud() int {
	return c.baud
}

// Opens returns how many times a port was opened.
func (c *Channel) Opens() int {
	return c.opens
}

// Closes returns how many times a port was closed.
func (c *Channel) Closes() int {
	return c.closes
}

func (c *Channel) setReadTimeout(timeout time.Duration) error {
	if timeout == c.timeout {
		return nil
	}
	if err := c.port.SetReadTimeout(timeout); err != nil {
		return errors.Annotatef(err, "set read timeout on %s", c.Path)
	}
	c.timeout = timeout
	return nil
}

// ReadByteTimeout reads a single byte waiting at most timeout.
// ok is false when nothing arrived before the deadline.
func (c *Channel) ReadByteTimeout(timeout time.Duration) (b byte, ok bool, err error) {
	if c.port == nil {
		return 0, false, ErrNotOpen
	}
	if err = c.setReadTimeout(timeout); err != nil {
		return 0, false, err
	}
	var buf [1]byte
	n, err := c.port.Read(buf[:])
	if err != nil {
		return 0, false, errors.Annotatef(err, "read %s", c.Path)
	}
	if n == 0 {
		return 0, false, nil
	}
	c.capture(buf[:n])
	return buf[0], true, nil
}

// WriteString writes s to the port.
func (c *Channel) WriteString(s string) error {
	if c.port == nil {
		return ErrNotOpen
	}
	if _, err := io.WriteString(c.port, s); err != nil {
		return errors.Annotatef(err, "write %s", c.Path)
	}
	c.capture([]byte(s))
	return nil
}

// FlushInput discards received but unread bytes.
func (c *Channel) FlushInput() error {
	if c.port == nil {
		return ErrNotOpen
	}
	return errors.Annotatef(c.port.ResetInputBuffer(), "flush input %s", c.Path)
}

// FlushOutput waits until all written bytes are transmitted.
func (c *Channel) FlushOutput() error {
	if c.port == nil {
		return ErrNotOpen
	}
	return errors.Annotatef(c.port.Drain(), "drain %s", c.Path)
}

// Flush drains the output and then discards stale input.
func (c *Channel) Flush() error {
	if err := c.FlushOutput(); err != nil {
		return err
	}
	return c.FlushInput()
}

// Stream exposes the held port for bulk transfers. Reads return no data
// after readTimeout, so a reader can notice the end of the transfer. The
// stream is valid until the channel is reopened or closed.
func (c *Channel) Stream(readTimeout time.Duration) (io.ReadWriter, error) {
	if c.port == nil {
		return nil, ErrNotOpen
	}
	if err := c.setReadTimeout(readTimeout); err != nil {
		return nil, err
	}
	return &stream{ch: c, port: c.port}, nil
}

type stream struct {
	ch   *Channel
	port Port
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	s.ch.capture(p[:n])
	return n, err
}

func (s *stream) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	s.ch.capture(p[:n])
	return n, err
}

func (c *Channel) capture(p []byte) {
	if len(p) == 0 {
		return
	}
	c.captureLock.Lock()
	defer c.captureLock.Unlock()
	if c.Capture == nil {
		return
	}
	if _, err := c.Capture.Write(p); err != nil {
		glog.Warningf("capture disabled: %v", err)
		c.Capture = nil
	}
}
