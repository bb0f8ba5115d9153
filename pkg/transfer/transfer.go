// Package transfer sends image files to the target bootloader.
//
// The XMODEM framing, retransmission and checksums are not implemented here:
// the Command sender runs an external XMODEM program (lrzsz sx by default)
// and bridges its stdin/stdout to the port the channel already holds, so
// the tty is never opened twice.
package transfer

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// Device is the serial device an image is sent over.
type Device interface {
	DevicePath() string
	Baud() int
	// Stream gives access to the open port. Reads return no data after
	// readTimeout.
	Stream(readTimeout time.Duration) (io.ReadWriter, error)
}

// Sender sends a file over a device.
type Sender interface {
	Send(ctx context.Context, dev Device, path string) error
}

// Func is the func form of Sender.
type Func func(ctx context.Context, dev Device, path string) error

// Send implements Sender.
func (f Func) Send(ctx context.Context, dev Device, path string) error {
	return f(ctx, dev, path)
}

// Defaults of Command.
const (
	DefaultTimeout = 5 * time.Minute
	DefaultPoll    = 50 * time.Millisecond
)

// Command sends files by running an external XMODEM sender whose
// stdin/stdout are bridged to the device.
type Command struct {
	// Program is the sender executable, e.g. "sx".
	Program string
	// Args are passed before the file name.
	Args    []string
	Timeout time.Duration
	// Poll is the device read deadline, it bounds how long the bridge
	// lingers after the sender exits.
	Poll time.Duration
}

// NewCommand creates a Command sender.
func NewCommand(program string, args ...string) *Command {
	return &Command{Program: program, Args: args, Timeout: DefaultTimeout, Poll: DefaultPoll}
}

// Send implements Sender.
func (c *Command) Send(ctx context.Context, dev Device, path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Annotatef(err, "image %s", path)
	}
	poll := c.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	rw, err := dev.Stream(poll)
	if err != nil {
		return errors.Annotatef(err, "transfer over %s", dev.DevicePath())
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), c.Args...), path)
	cmd := exec.CommandContext(ctx, c.Program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Trace(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Trace(err)
	}

	start := time.Now()
	glog.V(1).Infof("%s %v (%s at %d baud)", c.Program, args, dev.DevicePath(), dev.Baud())
	if err := cmd.Start(); err != nil {
		return errors.Annotatef(err, "start %s", c.Program)
	}
	done := make(chan struct{})
	inErrCh := make(chan error, 1)
	go func() {
		inErrCh <- forward(done, stdin, rw)
	}()
	// stdout reaches EOF when the sender exits
	_, outErr := io.Copy(rw, stdout)
	if outErr != nil {
		cancel()
	}
	err = cmd.Wait()
	close(done)
	inErr := <-inErrCh

	if stderr.Len() > 0 {
		glog.V(1).Infof("%s: %s", c.Program, stderr.String())
	}
	switch {
	case err != nil && ctx.Err() == context.DeadlineExceeded:
		return errors.Errorf("send %s: timed out after %v", path, timeout)
	case outErr != nil:
		return errors.Annotatef(outErr, "send %s: write %s", path, dev.DevicePath())
	case inErr != nil:
		return errors.Annotatef(inErr, "send %s: read %s", path, dev.DevicePath())
	case err != nil:
		return errors.Annotatef(err, "send %s", path)
	}
	glog.V(1).Infof("sent %s in %v", path, time.Since(start))
	return nil
}

// forward copies device input to the sender until done is closed. Writes
// fail once the sender exits or closes its input, which only ends the
// forwarding: the exit status decides the transfer.
func forward(done <-chan struct{}, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 1024)
	writable := true
	for {
		select {
		case <-done:
			return nil
		default:
		}
		n, err := src.Read(buf)
		if n > 0 && writable {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				glog.V(2).Infof("sender input closed: %v", werr)
				writable = false
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
