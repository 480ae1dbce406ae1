package logmon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is the fallback cadence when fsnotify is unavailable, and
// the safety net under it when it is (network filesystems drop events).
const pollInterval = 100 * time.Millisecond

// maxFragments caps how many matching lines a result retains.
const maxFragments = 20

// Monitor tails one log file. The mark offset is the only shared state;
// every Watch call owns a private cursor seeded from it, so concurrent
// expectations against the same file never contend.
type Monitor struct {
	path string

	mu   sync.Mutex
	mark int64
}

// NewMonitor returns a monitor for the given log path. The file does not
// need to exist yet; it is typically created by the server process.
func NewMonitor(path string) *Monitor {
	return &Monitor{path: path}
}

// Path returns the monitored file location.
func (m *Monitor) Path() string { return m.path }

// Mark fast-forwards the monitor to the current end of file. Called at
// run-attempt begin so only lines appended during the attempt are
// eligible matches.
func (m *Monitor) Mark() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, err := os.Stat(m.path); err == nil {
		m.mark = info.Size()
	} else {
		m.mark = 0
	}
}

func (m *Monitor) markOffset() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mark
}

// cursor is a private read position over the tail stream. The trailing
// partial line is deferred until its newline arrives.
type cursor struct {
	offset  int64
	partial string
}

// readNew returns complete lines appended since the cursor position.
// Truncation (offset beyond file size) resets the cursor to the start of
// the file, mirroring log rotation by the server.
func (m *Monitor) readNew(c *cursor) ([]string, error) {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logmon: open %s: %w", m.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("logmon: stat %s: %w", m.path, err)
	}
	if info.Size() < c.offset {
		c.offset = 0
		c.partial = ""
	}
	if info.Size() == c.offset {
		return nil, nil
	}

	if _, err := f.Seek(c.offset, 0); err != nil {
		return nil, fmt.Errorf("logmon: seek %s: %w", m.path, err)
	}
	buf := make([]byte, info.Size()-c.offset)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return nil, nil
	}
	c.offset += int64(n)

	chunk := c.partial + string(buf[:n])
	segments := strings.Split(chunk, "\n")
	c.partial = segments[len(segments)-1]
	return segments[:len(segments)-1], nil
}

// Snapshot returns everything appended since the last Mark as one string.
// Used for server-log excerpts and client-log exports.
func (m *Monitor) Snapshot() (string, error) {
	c := &cursor{offset: m.markOffset()}
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("logmon: open %s: %w", m.path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("logmon: stat %s: %w", m.path, err)
	}
	if info.Size() <= c.offset {
		return "", nil
	}
	if _, err := f.Seek(c.offset, 0); err != nil {
		return "", fmt.Errorf("logmon: seek %s: %w", m.path, err)
	}
	buf := make([]byte, info.Size()-c.offset)
	n, _ := f.Read(buf)
	return string(buf[:n]), nil
}

// Watch blocks until the expectation accumulates its required occurrence
// count or its timeout fires, whichever comes first. The timeout clock
// starts when Watch is called. The partial count is reported either way.
func (m *Monitor) Watch(ctx context.Context, exp Expectation) (MatchResult, error) {
	match, err := exp.Compile()
	if err != nil {
		return MatchResult{Expectation: exp}, err
	}

	result := MatchResult{Expectation: exp}
	required := exp.Required()
	c := &cursor{offset: m.markOffset()}

	deadline := time.NewTimer(exp.EffectiveTimeout())
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// fsnotify wakes the loop early when the file (or its directory,
	// while the file does not exist yet) changes. Polling remains the
	// correctness backstop.
	var events chan fsnotify.Event
	if watcher, werr := fsnotify.NewWatcher(); werr == nil {
		defer watcher.Close()
		if watcher.Add(m.path) != nil {
			_ = watcher.Add(filepath.Dir(m.path))
		}
		events = make(chan fsnotify.Event, 16)
		go func() {
			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					select {
					case events <- ev:
					default:
					}
				case _, ok := <-watcher.Errors:
					if !ok {
						return
					}
				}
			}
		}()
	}

	scan := func() (bool, error) {
		lines, rerr := m.readNew(c)
		if rerr != nil {
			return false, rerr
		}
		for _, line := range lines {
			if !match(line) {
				continue
			}
			now := time.Now()
			if result.Count == 0 {
				result.FirstAt = now
			}
			result.LastAt = now
			result.Count++
			if len(result.Fragments) < maxFragments {
				result.Fragments = append(result.Fragments, line)
			}
			if result.Count >= required {
				return true, nil
			}
		}
		return false, nil
	}

	if done, err := scan(); err != nil {
		return result, err
	} else if done {
		result.Matched = true
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-deadline.C:
			return result, nil
		case <-ticker.C:
		case <-events:
		}
		done, err := scan()
		if err != nil {
			return result, err
		}
		if done {
			result.Matched = true
			return result, nil
		}
	}
}

// WaitFor blocks until a single line matching the expectation appears or
// the given timeout elapses. Backs the wait_for scenario action; the
// clock starts when the action begins executing.
func (m *Monitor) WaitFor(ctx context.Context, phrase string, timeout time.Duration) (bool, error) {
	exp := Expectation{Pattern: phrase, Timeout: timeout}
	res, err := m.Watch(ctx, exp)
	if err != nil {
		return false, err
	}
	return res.Matched, nil
}

// ClientMonitor is a named monitor over one of a client's log files.
type ClientMonitor struct {
	Client string
	Name   string
	*Monitor
}

// NewClientMonitor wraps a log path with its owning client and log name.
func NewClientMonitor(client, name, path string) *ClientMonitor {
	return &ClientMonitor{Client: client, Name: name, Monitor: NewMonitor(path)}
}
