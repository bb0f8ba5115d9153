package flasher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mtkflash/pkg/transfer"
	"github.com/robotalks/mtkflash/pkg/uart"
)

type simClock struct {
	now time.Time
}

func newSimClock() *simClock {
	return &simClock{now: time.Unix(1600000000, 0)}
}

func (c *simClock) Now() time.Time        { return c.now }
func (c *simClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// emitFunc decides what the target sends on the next read of p.
// ok == false means the line stays silent for the whole read timeout.
type emitFunc func(p *simPort) (b byte, ok bool)

func cooperative(p *simPort) (byte, bool) { return SyncChar, true }

func silent(p *simPort) (byte, bool) { return 0, false }

func garbage(p *simPort) (byte, bool) { return 0xfe, true }

type simTarget struct {
	t        *testing.T
	clock    *simClock
	start    time.Time
	emit     emitFunc
	byteTime time.Duration
	ports    []*simPort
	events   []string
}

func newSimTarget(t *testing.T, emit emitFunc) *simTarget {
	clock := newSimClock()
	return &simTarget{
		t:        t,
		clock:    clock,
		start:    clock.Now(),
		emit:     emit,
		byteTime: 10 * time.Millisecond,
	}
}

func (s *simTarget) record(format string, args ...interface{}) {
	s.events = append(s.events, fmt.Sprintf(format, args...))
}

func (s *simTarget) open(path string, baud int) (uart.Port, error) {
	for n, p := range s.ports {
		require.Truef(s.t, p.closed, "port %d still open when opening a new one", n)
	}
	p := &simPort{target: s, baud: baud, openedAt: s.clock.Now()}
	s.ports = append(s.ports, p)
	s.record("open:%d", baud)
	return p, nil
}

func (s *simTarget) elapsed() time.Duration {
	return s.clock.Now().Sub(s.start)
}

// filter returns the events with one of the prefixes.
func (s *simTarget) filter(prefixes ...string) []string {
	var res []string
	for _, ev := range s.events {
		for _, prefix := range prefixes {
			if len(ev) >= len(prefix) && ev[:len(prefix)] == prefix {
				res = append(res, ev)
				break
			}
		}
	}
	return res
}

type simPort struct {
	target   *simTarget
	baud     int
	openedAt time.Time
	timeout  time.Duration
	reads    int
	resets   int
	written  bytes.Buffer
	closed   bool
}

func (p *simPort) Read(b []byte) (int, error) {
	if p.closed {
		return 0, errors.New("read on closed port")
	}
	p.reads++
	c, ok := p.target.emit(p)
	if !ok {
		p.target.clock.Sleep(p.timeout)
		return 0, nil
	}
	p.target.clock.Sleep(p.target.byteTime)
	b[0] = c
	return 1, nil
}

func (p *simPort) Write(b []byte) (int, error) {
	if p.closed {
		return 0, errors.New("write on closed port")
	}
	p.target.record("write:%q", string(b))
	return p.written.Write(b)
}

func (p *simPort) Close() error {
	p.closed = true
	return nil
}

func (p *simPort) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return nil
}

func (p *simPort) ResetInputBuffer() error {
	p.resets++
	p.target.record("flush-input")
	return nil
}

func (p *simPort) Drain() error { return nil }

type simPins struct {
	target    *simTarget
	bootstrap bool
	inReset   bool
	failOn    string
	failAfter int
	calls     map[string]int
}

func newSimPins(target *simTarget) *simPins {
	return &simPins{target: target, calls: make(map[string]int)}
}

func (p *simPins) call(name string) error {
	p.calls[name]++
	if p.failOn == name && p.calls[name] > p.failAfter {
		return fmt.Errorf("%s: pin failure", name)
	}
	return nil
}

func (p *simPins) Configure() error {
	p.target.record("gpio:configure")
	return p.call("configure")
}

func (p *simPins) EnterReset() error {
	if err := p.call("enter-reset"); err != nil {
		return err
	}
	p.inReset = true
	return nil
}

func (p *simPins) ExitReset() error {
	if err := p.call("exit-reset"); err != nil {
		return err
	}
	if p.inReset && p.bootstrap {
		p.target.record("bootloader")
	}
	p.inReset = false
	return nil
}

func (p *simPins) SelectBootstrapMode(on bool) error {
	if err := p.call("bootstrap"); err != nil {
		return err
	}
	p.bootstrap = on
	return nil
}

func (p *simPins) Release() error {
	p.target.record("gpio:release")
	if err := p.call("release"); err != nil {
		return err
	}
	p.bootstrap = false
	return nil
}

type simSender struct {
	target *simTarget
	fail   map[string]error
	hook   func(path string)
}

func (s *simSender) Send(ctx context.Context, dev transfer.Device, path string) error {
	name := filepath.Base(path)
	s.target.record("send:%s@%d", name, dev.Baud())
	if s.hook != nil {
		s.hook(path)
	}
	if err := s.fail[name]; err != nil {
		return err
	}
	return nil
}

type flasherTestEnv struct {
	target *simTarget
	pins   *simPins
	sender *simSender
	conf   *Config
	sess   *Session
}

func newFlasherTestEnv(t *testing.T, emit emitFunc) *flasherTestEnv {
	target := newSimTarget(t, emit)
	env := &flasherTestEnv{
		target: target,
		pins:   newSimPins(target),
		sender: &simSender{target: target, fail: make(map[string]error)},
		conf:   NewConfig(),
	}
	env.conf.Device = "/dev/ttySIM"
	env.conf.ImageDir = "/images"
	env.sess = NewSession(uart.NewChannel(env.conf.Device, target.open), env.pins, target.clock)
	return env
}

func (e *flasherTestEnv) newFlasher(t *testing.T, opts ...Option) *Flasher {
	f, err := New(e.conf, e.sess, e.sender, opts...)
	require.NoError(t, err)
	return f
}

// newHandshake creates the low baud handshake with an open channel.
func (e *flasherTestEnv) newHandshake(t *testing.T, strategy Strategy) *Handshake {
	require.NoError(t, e.sess.Channel.Open(e.conf.BaudRate))
	return &Handshake{
		Strategy:    strategy,
		Threshold:   2,
		Timeout:     3 * time.Second,
		ReadTimeout: 100 * time.Millisecond,
		MaxRetries:  3,
		MaxNoise:    3,
		Restart: func() error {
			if err := e.sess.EnterBootloader(time.Second); err != nil {
				return err
			}
			return e.sess.Channel.Open(e.conf.BaudRate)
		},
	}
}
