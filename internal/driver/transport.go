package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autorp/autorp/internal/transport"
)

// Transport forwards command-file protocol payloads to an input Driver
// instead of a polled file: chat lines and slash commands are typed into
// the focused window, injection tokens map to driver calls. Screenshot
// payloads report the captured file path through OnArtifact so the
// playback log can record it.
type Transport struct {
	Driver        Driver
	ScreenshotDir string
	OnArtifact    func(path string)

	closed bool
}

// NewTransport wraps an input driver in the Transport interface.
func NewTransport(d Driver, screenshotDir string) *Transport {
	return &Transport{Driver: d, ScreenshotDir: screenshotDir}
}

func (t *Transport) Send(payload string) error {
	if t.closed || !t.Driver.Ready() {
		return fmt.Errorf("driver transport: %w", transport.ErrUnavailable)
	}

	switch {
	case payload == transport.TokenFocus:
		return t.Driver.FocusWindow("")
	case strings.HasPrefix(payload, transport.TokenFocus+":"):
		return t.Driver.FocusWindow(payload[len(transport.TokenFocus)+1:])
	case strings.HasPrefix(payload, transport.TokenType+":"):
		return t.Driver.TypeText(payload[len(transport.TokenType)+1:])
	case strings.HasPrefix(payload, transport.TokenKey+":"):
		parts := strings.SplitN(payload, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("driver transport: malformed key payload %q", payload)
		}
		return t.Driver.KeyEvent(parts[1], parts[2])
	case strings.HasPrefix(payload, transport.TokenMouseClick+":"):
		parts := strings.SplitN(payload, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("driver transport: malformed mouse click payload %q", payload)
		}
		return t.Driver.MouseClick(parts[1], parts[2])
	case strings.HasPrefix(payload, transport.TokenMouseScroll+":"):
		parts := strings.SplitN(payload, ":", 4)
		if len(parts) < 3 {
			return fmt.Errorf("driver transport: malformed mouse scroll payload %q", payload)
		}
		steps, _ := strconv.Atoi(parts[2])
		return t.Driver.MouseScroll(parts[1], steps)
	case strings.HasPrefix(payload, transport.TokenMouse+":"):
		parts := strings.SplitN(payload, ":", 5)
		if len(parts) != 5 {
			return fmt.Errorf("driver transport: malformed mouse payload %q", payload)
		}
		x, _ := strconv.ParseFloat(parts[2], 64)
		y, _ := strconv.ParseFloat(parts[3], 64)
		duration, _ := strconv.ParseFloat(parts[4], 64)
		return t.Driver.MouseMove(x, y, parts[1], duration)
	case strings.HasPrefix(payload, transport.TokenScreenshot+":"):
		parts := strings.SplitN(payload, ":", 3)
		name := "capture"
		dir := t.ScreenshotDir
		if len(parts) > 1 && parts[1] != "" {
			name = parts[1]
		}
		if len(parts) > 2 && parts[2] != "" {
			dir = parts[2]
		}
		path, err := t.Driver.Screenshot(name, dir)
		if err != nil {
			return err
		}
		if t.OnArtifact != nil {
			t.OnArtifact(path)
		}
		return nil
	case strings.HasPrefix(payload, transport.TokenChat):
		return t.typeLine(payload[len(transport.TokenChat):])
	case strings.HasPrefix(payload, "/"):
		return t.typeLine(payload)
	default:
		// WAIT/WAITFOR/CONFIG/OPTION/TELEPORT are runner- or
		// server-side concerns; nothing to inject.
		return nil
	}
}

// typeLine opens chat, types the line, and submits it.
func (t *Transport) typeLine(text string) error {
	if err := t.Driver.KeyEvent("t", "press"); err != nil {
		return err
	}
	if err := t.Driver.TypeText(text); err != nil {
		return err
	}
	return t.Driver.KeyEvent("Return", "press")
}

func (t *Transport) Flush() error { return nil }

func (t *Transport) Close() error {
	t.closed = true
	return nil
}

func (t *Transport) Ready() bool {
	return !t.closed && t.Driver.Ready()
}
