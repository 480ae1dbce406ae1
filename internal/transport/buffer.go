package transport

import (
	"sync"
	"time"
)

func timeNow() time.Time { return time.Now() }

// BufferedTransport records instructions in memory. Used by dry-run
// clients and tests; it has no external effects.
type BufferedTransport struct {
	mu       sync.Mutex
	payloads []string
	closed   bool
}

// NewBufferedTransport returns an empty in-memory transport.
func NewBufferedTransport() *BufferedTransport {
	return &BufferedTransport{}
}

func (t *BufferedTransport) Send(payload string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrUnavailable
	}
	t.payloads = append(t.payloads, payload)
	return nil
}

func (t *BufferedTransport) Flush() error { return nil }

func (t *BufferedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *BufferedTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Clear drops all recorded instructions.
func (t *BufferedTransport) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.payloads = t.payloads[:0]
	return nil
}

// Payloads returns a copy of everything sent so far.
func (t *BufferedTransport) Payloads() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.payloads))
	copy(out, t.payloads)
	return out
}
