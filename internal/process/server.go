package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/autorp/autorp/internal/logmon"
)

var (
	// ErrStartupTimeout means the readiness phrase never appeared in the
	// server log within the startup window.
	ErrStartupTimeout = fmt.Errorf("process: startup timeout")
	// ErrProcessExitedEarly means the process died before signalling
	// readiness.
	ErrProcessExitedEarly = fmt.Errorf("process: exited before ready")
)

const (
	defaultStartupPhrase  = "Started server on"
	defaultStartupTimeout = 20 * time.Second
	defaultStopGrace      = 5 * time.Second
	defaultPort           = 7777
)

// ServerController manages one local SA-MP server instance. Readiness is
// observed through the server log rather than the process state because
// the binary forks and keeps running long before it accepts players.
type ServerController struct {
	PackageDir     string
	Executable     string
	StartupPhrase  string
	StartupTimeout time.Duration
	StopGrace      time.Duration

	guard
	cmd     *exec.Cmd
	exited  chan error
	monitor *logmon.Monitor
}

// NewServerController targets the server package directory containing the
// binary, server.cfg and server_log.txt.
func NewServerController(packageDir string) *ServerController {
	return &ServerController{
		PackageDir:     packageDir,
		Executable:     "samp-server",
		StartupPhrase:  defaultStartupPhrase,
		StartupTimeout: defaultStartupTimeout,
		StopGrace:      defaultStopGrace,
	}
}

// LogPath is the server log file inside the package directory.
func (c *ServerController) LogPath() string {
	return filepath.Join(c.PackageDir, "server_log.txt")
}

// Monitor returns the log monitor for the current (or most recent) start.
// Nil until the first Start.
func (c *ServerController) Monitor() *logmon.Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor
}

// Address reads the listen port from server.cfg, falling back to the
// stock default when the file or the entry is missing or malformed.
func (c *ServerController) Address() string {
	port := defaultPort
	data, err := os.ReadFile(filepath.Join(c.PackageDir, "server.cfg"))
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(strings.ToLower(line), "port ") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if p, err := strconv.Atoi(fields[1]); err == nil {
					port = p
				}
			}
			break
		}
	}
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// Start launches the server and blocks until the startup phrase appears in
// server_log.txt. On failure the half-started process is torn down before
// returning. A second Start while running is a no-op.
func (c *ServerController) Start(ctx context.Context) error {
	if !c.begin() {
		return nil
	}

	binary := c.Executable
	if !filepath.IsAbs(binary) {
		binary = filepath.Join(c.PackageDir, binary)
	}
	if _, err := os.Stat(binary); err != nil {
		c.set(StateStopped)
		return fmt.Errorf("process: server binary %s: %w", binary, err)
	}

	cmd := exec.Command(binary)
	cmd.Dir = c.PackageDir
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		c.set(StateStopped)
		return fmt.Errorf("process: start server: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	monitor := logmon.NewMonitor(c.LogPath())
	c.mu.Lock()
	c.cmd, c.exited, c.monitor = cmd, exited, monitor
	c.mu.Unlock()

	if err := c.awaitReady(ctx, monitor, exited); err != nil {
		c.set(StateFailed)
		c.teardown()
		c.set(StateStopped)
		return err
	}
	c.set(StateReady)
	return nil
}

func (c *ServerController) awaitReady(ctx context.Context, monitor *logmon.Monitor, exited chan error) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type readiness struct {
		ok  bool
		err error
	}
	ready := make(chan readiness, 1)
	go func() {
		ok, err := monitor.WaitFor(waitCtx, c.StartupPhrase, c.StartupTimeout)
		ready <- readiness{ok, err}
	}()

	select {
	case err := <-exited:
		// Put the exit status back for Stop.
		exited <- err
		return fmt.Errorf("%w: %v", ErrProcessExitedEarly, err)
	case r := <-ready:
		if r.err != nil {
			return fmt.Errorf("process: await readiness: %w", r.err)
		}
		if !r.ok {
			return fmt.Errorf("%w: %q not seen within %s", ErrStartupTimeout, c.StartupPhrase, c.StartupTimeout)
		}
		return nil
	}
}

// Stop terminates the server gracefully, escalating to SIGKILL (including
// Wine-style descendants) if it lingers past the grace window. Safe to
// call repeatedly and from concurrent cleanup paths.
func (c *ServerController) Stop() error {
	if !c.end() {
		return nil
	}
	return c.teardown()
}

func (c *ServerController) teardown() error {
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
		return nil
	case <-time.After(c.StopGrace):
		killTree(cmd.Process.Pid)
		<-exited
		return nil
	}
}

// Running starts the server, runs fn, and always stops the server before
// returning, even on panic in fn.
func (c *ServerController) Running(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()
	return fn(ctx)
}
