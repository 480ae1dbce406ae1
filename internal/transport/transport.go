// Package transport delivers translated low-level instructions to a game
// client. One transport instance exists per client; concurrent writers to
// the same transport are not supported.
package transport

import (
	"errors"
)

// ErrUnavailable is returned when the underlying driver or file is not
// ready to accept instructions. The caller decides whether this is fatal
// for the run.
var ErrUnavailable = errors.New("transport unavailable")

// Transport delivers one instruction at a time to a client. Flush
// guarantees buffered instructions are visible to the consumer before it
// returns.
type Transport interface {
	Send(payload string) error
	Flush() error
	Close() error
	Ready() bool
}

// Clearer is implemented by transports that can drop stale instructions
// before a run starts.
type Clearer interface {
	Clear() error
}
