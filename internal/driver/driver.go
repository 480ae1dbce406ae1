// Package driver wraps the input-injection tooling (xdotool window focus,
// key and mouse events, screenshot capture) used to steer a real game
// client window.
package driver

// Driver is the injection capability a DriverTransport forwards to.
type Driver interface {
	FocusWindow(title string) error
	TypeText(text string) error
	KeyEvent(key, state string) error
	MouseMove(x, y float64, mode string, duration float64) error
	MouseClick(button, state string) error
	MouseScroll(direction string, steps int) error
	// Screenshot captures the window and returns the written file path.
	Screenshot(name, dir string) (string, error)
	Ready() bool
}
