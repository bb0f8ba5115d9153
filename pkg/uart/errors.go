package uart

import "errors"

var (
	// ErrNotOpen indicates an operation on a channel without an open port.
	ErrNotOpen = errors.New("channel not open")
)
