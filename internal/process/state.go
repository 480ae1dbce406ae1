// Package process manages the external processes a test run depends on:
// the SA-MP server and the Wine game clients, plus a dummy client for
// dry runs. Controllers share one lifecycle state machine and guarantee
// that no process outlives its controller on any exit path.
package process

import (
	"fmt"
	"sync"
)

// State is a controller lifecycle phase.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// guard serializes lifecycle transitions. Start/Stop racing from two
// goroutines (retry paths, cleanup paths) must see a consistent phase.
type guard struct {
	mu    sync.Mutex
	state State
}

// State returns the current phase.
func (g *guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// begin moves to Starting if the controller is stopped. It reports false
// when another caller already started (or is starting) the process, which
// makes Start idempotent.
func (g *guard) begin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateStopped && g.state != StateFailed {
		return false
	}
	g.state = StateStarting
	return true
}

func (g *guard) set(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

// end moves to Stopped and reports whether this caller performed the
// transition. The loser of a concurrent Stop race gets false and must not
// touch the process again.
func (g *guard) end() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateStopped {
		return false
	}
	g.state = StateStopped
	return true
}
