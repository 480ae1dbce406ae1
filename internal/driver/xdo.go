package driver

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// XdoDriver drives a client window through xdotool. In dry-run mode it
// records the commands it would execute without spawning anything, which
// is what the test clients use.
type XdoDriver struct {
	WindowTitle string
	XdoBinary   string
	CaptureBin  string
	DryRun      bool

	mu       sync.Mutex
	recorded [][]string
}

// NewXdoDriver returns a driver targeting the given window title.
func NewXdoDriver(windowTitle string, dryRun bool) *XdoDriver {
	return &XdoDriver{
		WindowTitle: windowTitle,
		XdoBinary:   "xdotool",
		CaptureBin:  "import",
		DryRun:      dryRun,
	}
}

// Recorded returns the invocations captured so far (dry-run and real).
func (d *XdoDriver) Recorded() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]string, len(d.recorded))
	copy(out, d.recorded)
	return out
}

func (d *XdoDriver) invoke(args ...string) (string, error) {
	command := append([]string{d.XdoBinary}, args...)
	d.mu.Lock()
	d.recorded = append(d.recorded, command)
	d.mu.Unlock()
	if d.DryRun {
		return "0x1", nil
	}
	out, err := exec.Command(command[0], command[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("driver: %s %s: %w", d.XdoBinary, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *XdoDriver) searchWindow(title string) (string, error) {
	if title == "" {
		title = d.WindowTitle
	}
	out, err := d.invoke("search", "--name", title)
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("driver: window %q not found", title)
	}
	return lines[0], nil
}

func (d *XdoDriver) FocusWindow(title string) error {
	id, err := d.searchWindow(title)
	if err != nil {
		return err
	}
	if _, err := d.invoke("windowactivate", "--sync", id); err != nil {
		return err
	}
	_, err = d.invoke("windowraise", id)
	return err
}

func (d *XdoDriver) TypeText(text string) error {
	if text == "" {
		return nil
	}
	_, err := d.invoke("type", "--delay", "25", text)
	return err
}

func (d *XdoDriver) KeyEvent(key, state string) error {
	key = strings.ToLower(key)
	switch state {
	case "down", "hold":
		_, err := d.invoke("keydown", key)
		return err
	case "up", "release":
		_, err := d.invoke("keyup", key)
		return err
	default:
		_, err := d.invoke("key", key)
		return err
	}
}

func (d *XdoDriver) MouseMove(x, y float64, mode string, duration float64) error {
	if mode == "relative" {
		_, err := d.invoke("mousemove_relative", "--", itoa(x), itoa(y))
		return err
	}
	args := []string{"mousemove", "--sync", itoa(x), itoa(y)}
	if duration > 0 {
		args = append(args, "--delay", strconv.Itoa(int(duration*1000)))
	}
	_, err := d.invoke(args...)
	return err
}

func (d *XdoDriver) MouseClick(button, state string) error {
	target := mouseButton(button)
	switch state {
	case "down", "hold":
		_, err := d.invoke("mousedown", target)
		return err
	case "up", "release":
		_, err := d.invoke("mouseup", target)
		return err
	case "double":
		_, err := d.invoke("click", "--repeat", "2", target)
		return err
	default:
		_, err := d.invoke("click", target)
		return err
	}
}

func (d *XdoDriver) MouseScroll(direction string, steps int) error {
	// xdotool maps wheel up/down to buttons 4/5.
	button := "5"
	if strings.EqualFold(direction, "up") {
		button = "4"
	}
	if steps < 1 {
		steps = 1
	}
	_, err := d.invoke("click", "--repeat", strconv.Itoa(steps), button)
	return err
}

func (d *XdoDriver) Screenshot(name, dir string) (string, error) {
	if name == "" {
		name = "capture"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", name, time.Now().UnixMilli()))
	command := []string{d.CaptureBin, "-window", "root", path}
	d.mu.Lock()
	d.recorded = append(d.recorded, command)
	d.mu.Unlock()
	if d.DryRun {
		return path, nil
	}
	if out, err := exec.Command(command[0], command[1:]...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("driver: screenshot %s: %v: %s", name, err, strings.TrimSpace(string(out)))
	}
	return path, nil
}

// Ready reports whether the xdotool binary is resolvable (always true in
// dry-run mode).
func (d *XdoDriver) Ready() bool {
	if d.DryRun {
		return true
	}
	_, err := exec.LookPath(d.XdoBinary)
	return err == nil
}

func mouseButton(button string) string {
	switch strings.ToLower(button) {
	case "left":
		return "1"
	case "middle":
		return "2"
	case "right":
		return "3"
	default:
		return button
	}
}

func itoa(f float64) string {
	return strconv.Itoa(int(f))
}
