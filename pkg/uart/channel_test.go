package uart

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testPort struct {
	input    []byte
	written  bytes.Buffer
	timeouts []time.Duration
	resets   int
	drains   int
	closed   bool
}

func (p *testPort) Read(b []byte) (int, error) {
	if len(p.input) == 0 {
		return 0, nil
	}
	n := copy(b, p.input)
	p.input = p.input[n:]
	return n, nil
}

func (p *testPort) Write(b []byte) (int, error) { return p.written.Write(b) }

func (p *testPort) Close() error {
	p.closed = true
	return nil
}

func (p *testPort) SetReadTimeout(d time.Duration) error {
	p.timeouts = append(p.timeouts, d)
	return nil
}

func (p *testPort) ResetInputBuffer() error {
	p.resets++
	p.input = nil
	return nil
}

func (p *testPort) Drain() error {
	p.drains++
	return nil
}

type testOpener struct {
	ports []*testPort
	bauds []int
	input []byte
	err   error
}

func (o *testOpener) open(path string, baud int) (Port, error) {
	if o.err != nil {
		return nil, o.err
	}
	p := &testPort{input: append([]byte(nil), o.input...)}
	o.ports = append(o.ports, p)
	o.bauds = append(o.bauds, baud)
	return p, nil
}

func TestReopenClosesFirst(t *testing.T) {
	o := &testOpener{}
	c := NewChannel("/dev/ttyTEST", o.open)
	require.False(t, c.IsOpen())
	require.NoError(t, c.Close())
	require.Equal(t, 0, c.Closes())

	for _, baud := range []int{115200, 115200, 921600} {
		require.NoError(t, c.Open(baud))
		require.True(t, c.Opens()-c.Closes() <= 1)
		require.Equal(t, baud, c.Baud())
	}
	require.Len(t, o.ports, 3)
	require.True(t, o.ports[0].closed)
	require.True(t, o.ports[1].closed)
	require.False(t, o.ports[2].closed)
	require.Equal(t, []int{115200, 115200, 921600}, o.bauds)

	require.NoError(t, c.Close())
	require.Equal(t, c.Opens(), c.Closes())
	require.Equal(t, 0, c.Baud())
}

func TestOpenError(t *testing.T) {
	o := &testOpener{err: errors.New("no such device")}
	c := NewChannel("/dev/ttyTEST", o.open)
	err := c.Open(115200)
	require.Error(t, err)
	require.Contains(t, err.Error(), "/dev/ttyTEST")
	require.False(t, c.IsOpen())
}

func TestNotOpen(t *testing.T) {
	c := NewChannel("/dev/ttyTEST", (&testOpener{}).open)
	_, _, err := c.ReadByteTimeout(time.Millisecond)
	require.Equal(t, ErrNotOpen, err)
	require.Equal(t, ErrNotOpen, c.WriteString("1\r"))
	require.Equal(t, ErrNotOpen, c.FlushInput())
	require.Equal(t, ErrNotOpen, c.FlushOutput())
}

func TestReadByteTimeout(t *testing.T) {
	o := &testOpener{input: []byte("CC")}
	c := NewChannel("/dev/ttyTEST", o.open)
	require.NoError(t, c.Open(115200))

	for i := 0; i < 2; i++ {
		b, ok, err := c.ReadByteTimeout(100 * time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, byte('C'), b)
	}
	_, ok, err := c.ReadByteTimeout(100 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	// the deadline is only pushed to the port when it changes
	require.Equal(t, []time.Duration{100 * time.Millisecond}, o.ports[0].timeouts)

	_, _, err = c.ReadByteTimeout(0)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 0}, o.ports[0].timeouts)
}

func TestWriteAndFlush(t *testing.T) {
	o := &testOpener{input: []byte("junk")}
	c := NewChannel("/dev/ttyTEST", o.open)
	require.NoError(t, c.Open(115200))
	require.NoError(t, c.WriteString("3\r"))
	require.NoError(t, c.Flush())
	p := o.ports[0]
	require.Equal(t, "3\r", p.written.String())
	require.Equal(t, 1, p.drains)
	require.Equal(t, 1, p.resets)
	_, ok, err := c.ReadByteTimeout(time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

type failWriter struct{ calls int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, errors.New("disk full")
}

func TestCapture(t *testing.T) {
	o := &testOpener{input: []byte("C")}
	c := NewChannel("/dev/ttyTEST", o.open)
	var capture bytes.Buffer
	c.Capture = &capture
	require.NoError(t, c.Open(115200))
	_, _, err := c.ReadByteTimeout(time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, c.WriteString("1\r"))
	require.Equal(t, "C1\r", capture.String())

	w := &failWriter{}
	c.Capture = w
	require.NoError(t, c.WriteString("C\r"))
	require.NoError(t, c.WriteString("C\r"))
	require.Equal(t, 1, w.calls)
	require.Nil(t, c.Capture)
}

func TestStream(t *testing.T) {
	o := &testOpener{input: []byte{0x06}}
	c := NewChannel("/dev/ttyTEST", o.open)
	var capture bytes.Buffer
	c.Capture = &capture

	_, err := c.Stream(time.Second)
	require.Equal(t, ErrNotOpen, err)

	require.NoError(t, c.Open(921600))
	rw, err := c.Stream(time.Second)
	require.NoError(t, err)
	n, err := rw.Write([]byte{0x01, 0x01, 0xfe})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	buf := make([]byte, 8)
	n, err = rw.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x06}, buf[:n])
	n, err = rw.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	p := o.ports[0]
	require.Equal(t, []byte{0x01, 0x01, 0xfe}, p.written.Bytes())
	require.Equal(t, []time.Duration{time.Second}, p.timeouts)
	require.Equal(t, []byte{0x01, 0x01, 0xfe, 0x06}, capture.Bytes())
	// the stream uses the held port, nothing is opened again
	require.Equal(t, 1, c.Opens())

	// the byte reads push their own deadline again
	_, _, err = c.ReadByteTimeout(100 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{time.Second, 100 * time.Millisecond}, p.timeouts)
}
