package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileTransport appends newline-delimited instructions to a command file
// the game client polls. The consumer truncates the file as it drains it.
type FileTransport struct {
	path      string
	separator string

	mu     sync.Mutex
	closed bool
}

// NewFileTransport creates the command file (and parent directories) if
// missing so the client has something to poll from the start.
func NewFileTransport(path string) (*FileTransport, error) {
	return NewFileTransportSep(path, "\n")
}

// NewFileTransportSep uses a custom instruction separator.
func NewFileTransportSep(path, separator string) (*FileTransport, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transport: create command dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("transport: create command file: %w", err)
		}
	}
	if separator == "" {
		separator = "\n"
	}
	return &FileTransport{path: path, separator: separator}, nil
}

// Path returns the command file location.
func (t *FileTransport) Path() string { return t.path }

// Send appends one encoded instruction followed by the separator.
func (t *FileTransport) Send(payload string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport: send on closed file transport: %w", ErrUnavailable)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("transport: open command file: %w", ErrUnavailable)
	}
	defer f.Close()
	if _, err := f.WriteString(payload + t.separator); err != nil {
		return fmt.Errorf("transport: write command: %w", err)
	}
	return nil
}

// Flush syncs the file timestamp so pollers relying on mtime wake up.
func (t *FileTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	now := timeNow()
	if err := os.Chtimes(t.path, now, now); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: touch command file: %w", err)
	}
	return nil
}

// Clear truncates the command file so stale instructions from a previous
// run are never replayed.
func (t *FileTransport) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := os.WriteFile(t.path, nil, 0o644); err != nil {
		return fmt.Errorf("transport: clear command file: %w", err)
	}
	return nil
}

// Close marks the transport unusable. The command file is left in place
// for post-run inspection.
func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Ready reports whether the command file is writable.
func (t *FileTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	_, err := os.Stat(t.path)
	return err == nil
}
