package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/autorp/autorp/internal/driver"
	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/playback"
	"github.com/autorp/autorp/internal/scenario"
	"github.com/autorp/autorp/internal/transport"
)

// LogFile names one extra client log to monitor, relative to the GTA
// directory unless absolute.
type LogFile struct {
	Name string
	Path string
}

// WineClientOptions configures a Wine-launched SA-MP client.
type WineClientOptions struct {
	Name         string
	GTADirectory string

	// Launcher defaults to samp.exe inside the GTA directory.
	Launcher   string
	WineBinary string

	// CommandFile defaults to bot_commands.txt inside the GTA directory.
	CommandFile string

	DryRun   bool
	ExtraEnv map[string]string

	ConnectDelay           time.Duration
	ResetCommandsOnConnect bool
	FocusWindow            bool
	WindowTitle            string

	// ChatlogPath defaults to SAMP/chatlog.txt inside the GTA directory.
	ChatlogPath string
	LogFiles    []LogFile

	Setup    []scenario.Action
	Teardown []scenario.Action
}

// WineClient launches the SA-MP client through Wine and feeds it commands
// via the polled command file. The client mod consumes the file and acts
// in-game; chat output lands in chatlog.txt which backs wait_for actions
// and client log expectations.
type WineClient struct {
	opts WineClientOptions

	guard
	cmd    *exec.Cmd
	exited chan error

	transport *transport.FileTransport
	runner    *playback.Runner
	input     *driver.XdoDriver
	monitors  []*logmon.ClientMonitor

	shotMu      sync.Mutex
	screenshots []string

	Logs    []*playback.Log
	AuxLogs []*playback.Log
}

// NewWineClient validates the options and prepares transport and monitors.
// No process is spawned until Connect.
func NewWineClient(opts WineClientOptions) (*WineClient, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("process: wine client requires a name")
	}
	if opts.GTADirectory == "" {
		return nil, fmt.Errorf("process: wine client %s requires a GTA directory", opts.Name)
	}
	if opts.Launcher == "" {
		opts.Launcher = "samp.exe"
	}
	if opts.WineBinary == "" {
		opts.WineBinary = "wine"
	}
	if opts.CommandFile == "" {
		opts.CommandFile = filepath.Join(opts.GTADirectory, "bot_commands.txt")
	}
	if opts.WindowTitle == "" {
		opts.WindowTitle = "San Andreas Multiplayer"
	}
	if opts.ChatlogPath == "" {
		opts.ChatlogPath = filepath.Join(opts.GTADirectory, "SAMP", "chatlog.txt")
	}

	ft, err := transport.NewFileTransport(opts.CommandFile)
	if err != nil {
		return nil, fmt.Errorf("process: wine client %s: %w", opts.Name, err)
	}

	c := &WineClient{opts: opts, transport: ft}
	c.runner = playback.NewRunner(ft)
	if opts.FocusWindow {
		c.input = driver.NewXdoDriver(opts.WindowTitle, opts.DryRun)
	}

	if err := c.buildMonitors(); err != nil {
		return nil, err
	}
	// wait_for resolves against the chatlog tail.
	for _, m := range c.monitors {
		if m.Name == "chatlog" {
			c.runner.Waiter = m.Monitor
			break
		}
	}
	c.runner.OnEvent = c.recordArtifacts
	return c, nil
}

func (c *WineClient) buildMonitors() error {
	entries := append([]LogFile{}, c.opts.LogFiles...)
	hasChatlog := false
	for _, e := range entries {
		if e.Name == "chatlog" {
			hasChatlog = true
		}
	}
	if !hasChatlog {
		entries = append(entries, LogFile{Name: "chatlog", Path: c.opts.ChatlogPath})
	}
	for _, e := range entries {
		path := e.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.opts.GTADirectory, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("process: wine client %s: log dir for %s: %w", c.opts.Name, e.Name, err)
		}
		c.monitors = append(c.monitors, logmon.NewClientMonitor(c.opts.Name, e.Name, path))
	}
	return nil
}

// recordArtifacts tracks the screenshot files the client-side mod is
// expected to write, so the run report can list them.
func (c *WineClient) recordArtifacts(ev playback.Event) {
	for _, payload := range ev.Payloads {
		if !strings.HasPrefix(payload, transport.TokenScreenshot+":") {
			continue
		}
		parts := strings.SplitN(payload, ":", 3)
		name := "capture"
		if len(parts) > 1 && parts[1] != "" {
			name = parts[1]
		}
		path := name + ".png"
		if len(parts) > 2 && parts[2] != "" {
			path = filepath.Join(parts[2], path)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.opts.GTADirectory, path)
		}
		c.shotMu.Lock()
		c.screenshots = append(c.screenshots, path)
		c.shotMu.Unlock()
	}
}

func (c *WineClient) Name() string { return c.opts.Name }

// Connect clears stale commands, launches the client through Wine, waits
// the configured delay, and focuses the game window when requested. In
// dry-run mode no process is spawned.
func (c *WineClient) Connect(ctx context.Context, serverAddress string) error {
	if !c.begin() {
		return nil
	}

	if c.opts.ResetCommandsOnConnect {
		if err := c.transport.Clear(); err != nil {
			c.set(StateStopped)
			return err
		}
	}

	if !c.opts.DryRun {
		if err := c.launch(serverAddress); err != nil {
			c.set(StateStopped)
			return err
		}
	}
	if err := sleepFor(ctx, c.opts.ConnectDelay); err != nil {
		c.set(StateFailed)
		c.teardown()
		c.set(StateStopped)
		return err
	}
	if c.input != nil {
		if err := c.input.FocusWindow(""); err != nil && !c.opts.DryRun {
			c.set(StateFailed)
			c.teardown()
			c.set(StateStopped)
			return fmt.Errorf("process: wine client %s: focus: %w", c.opts.Name, err)
		}
	}
	c.set(StateReady)
	return nil
}

func (c *WineClient) launch(serverAddress string) error {
	launcher := c.opts.Launcher
	if !filepath.IsAbs(launcher) {
		launcher = filepath.Join(c.opts.GTADirectory, launcher)
	}
	if _, err := os.Stat(launcher); err != nil {
		return fmt.Errorf("process: wine client %s: launcher %s: %w", c.opts.Name, launcher, err)
	}

	cmd := exec.Command(c.opts.WineBinary, launcher, serverAddress)
	cmd.Dir = c.opts.GTADirectory
	cmd.Env = os.Environ()
	for k, v := range c.opts.ExtraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("process: wine client %s: launch: %w", c.opts.Name, err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	c.mu.Lock()
	c.cmd, c.exited = cmd, exited
	c.mu.Unlock()
	return nil
}

// RunScript plays the actions framed by the client's setup and teardown
// scripts.
func (c *WineClient) RunScript(ctx context.Context, subject string, actions []scenario.Action) (*playback.Log, error) {
	log, err := runFramed(ctx, c.runner, c.opts.Name, subject, c.opts.Setup, actions, c.opts.Teardown, &c.AuxLogs)
	if log != nil {
		c.Logs = append(c.Logs, log)
	}
	return log, err
}

// Disconnect stops the Wine process, escalating after the grace window.
// Safe under concurrent calls from racing cleanup paths.
func (c *WineClient) Disconnect() error {
	if !c.end() {
		return nil
	}
	return c.teardown()
}

func (c *WineClient) teardown() error {
	c.mu.Lock()
	cmd, exited := c.cmd, c.exited
	c.cmd, c.exited = nil, nil
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(defaultStopGrace):
		killTree(cmd.Process.Pid)
		<-exited
	}
	return nil
}

func (c *WineClient) Monitors() []*logmon.ClientMonitor { return c.monitors }

func (c *WineClient) Screenshots() []string {
	c.shotMu.Lock()
	defer c.shotMu.Unlock()
	out := make([]string, len(c.screenshots))
	copy(out, c.screenshots)
	return out
}

// CommandFile exposes the polled command file path for exports.
func (c *WineClient) CommandFile() string { return c.transport.Path() }
