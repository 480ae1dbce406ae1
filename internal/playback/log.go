package playback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/autorp/autorp/internal/scenario"
)

// Event is one executed action with the payloads it produced on the wire.
// Error is set for recoverable failures (missed wait_for, failed screenshot)
// that did not stop playback.
type Event struct {
	Action   scenario.Action `json:"action"`
	Payloads []string        `json:"payloads"`
	At       time.Time       `json:"at"`
	Error    string          `json:"error,omitempty"`
}

// Log is the ordered record of one script execution. It is append-only
// during the run and frozen by the Runner when the run finishes.
type Log struct {
	Subject string  `json:"subject"`
	Events  []Event `json:"events"`

	mu     sync.Mutex
	frozen bool
}

// NewLog starts an empty log for the named subject, typically
// "<client>:<scenario>" or "setup:<client>".
func NewLog(subject string) *Log {
	return &Log{Subject: subject}
}

func (l *Log) append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return
	}
	l.Events = append(l.Events, ev)
}

func (l *Log) freeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
}

// Commands flattens every payload sent, in send order.
func (l *Log) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.Events {
		out = append(out, ev.Payloads...)
	}
	return out
}

// Duration is the wall time between the first and last recorded event.
func (l *Log) Duration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Events) < 2 {
		return 0
	}
	return l.Events[len(l.Events)-1].At.Sub(l.Events[0].At)
}

// Failures returns the events that carried a recoverable error.
func (l *Log) Failures() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.Events {
		if ev.Error != "" {
			out = append(out, ev)
		}
	}
	return out
}

// WriteJSONL persists the log as one JSON event per line, creating parent
// directories as needed.
func (l *Log) WriteJSONL(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("playback: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("playback: open log file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.Events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("playback: encode event: %w", err)
		}
	}
	return nil
}
