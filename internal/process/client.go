package process

import (
	"context"
	"time"

	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/playback"
	"github.com/autorp/autorp/internal/scenario"
	"github.com/autorp/autorp/internal/transport"
)

// Client is the orchestrator's view of one controllable game client. Each
// client exclusively owns its transport; two runs never share one.
type Client interface {
	Name() string

	// Connect brings the client to a connected state against the given
	// server address. Idempotent.
	Connect(ctx context.Context, serverAddress string) error

	// RunScript plays the flattened actions for the named subject,
	// framed by the client's setup and teardown scripts.
	RunScript(ctx context.Context, subject string, actions []scenario.Action) (*playback.Log, error)

	// Disconnect tears the client down. Idempotent; never leaves a
	// process running.
	Disconnect() error

	// Monitors lists the client log tails (chatlog plus extras).
	Monitors() []*logmon.ClientMonitor

	// Screenshots lists artifact paths captured so far.
	Screenshots() []string
}

// setupSubject and teardownSubject frame a client's auxiliary scripts in
// logs and failure reports.
func setupSubject(client string) string    { return "setup:" + client }
func teardownSubject(client string) string { return "teardown:" + client }

// runFramed executes setup, the main script, then teardown through one
// runner. Setup failure aborts the main script; teardown failure is
// reported but does not override a successful main result.
func runFramed(ctx context.Context, r *playback.Runner, client, subject string,
	setup, main, teardown []scenario.Action, aux *[]*playback.Log) (*playback.Log, error) {

	if len(setup) > 0 {
		log, err := r.Run(ctx, setupSubject(client), setup)
		*aux = append(*aux, log)
		if err != nil {
			return nil, err
		}
	}
	mainLog, mainErr := r.Run(ctx, subject, main)
	if len(teardown) > 0 {
		log, err := r.Run(ctx, teardownSubject(client), teardown)
		*aux = append(*aux, log)
		if mainErr == nil {
			mainErr = err
		}
	}
	return mainLog, mainErr
}

// DummyClient satisfies the Client contract without any external process:
// instant readiness, commands recorded to a buffer. Used by dry runs and
// tests.
type DummyClient struct {
	name      string
	runner    *playback.Runner
	transport *transport.BufferedTransport

	ConnectedTo string
	Logs        []*playback.Log
	AuxLogs     []*playback.Log

	Setup    []scenario.Action
	Teardown []scenario.Action

	monitors []*logmon.ClientMonitor
}

// NewDummyClient records payloads in memory under the given name.
func NewDummyClient(name string) *DummyClient {
	buf := transport.NewBufferedTransport()
	return &DummyClient{name: name, runner: playback.NewRunner(buf), transport: buf}
}

// AttachMonitor registers an extra client log tail, letting tests exercise
// client-log expectations without a real game installation.
func (c *DummyClient) AttachMonitor(m *logmon.ClientMonitor) {
	c.monitors = append(c.monitors, m)
	if c.runner.Waiter == nil {
		c.runner.Waiter = m.Monitor
	}
}

func (c *DummyClient) Name() string { return c.name }

func (c *DummyClient) Connect(_ context.Context, serverAddress string) error {
	c.ConnectedTo = serverAddress
	return nil
}

func (c *DummyClient) RunScript(ctx context.Context, subject string, actions []scenario.Action) (*playback.Log, error) {
	log, err := runFramed(ctx, c.runner, c.name, subject, c.Setup, actions, c.Teardown, &c.AuxLogs)
	if log != nil {
		c.Logs = append(c.Logs, log)
	}
	return log, err
}

func (c *DummyClient) Disconnect() error {
	c.ConnectedTo = ""
	return nil
}

func (c *DummyClient) Monitors() []*logmon.ClientMonitor { return c.monitors }

func (c *DummyClient) Screenshots() []string { return nil }

// Sent returns every payload delivered so far.
func (c *DummyClient) Sent() []string { return c.transport.Payloads() }

// sleepFor is a cancellable sleep shared by client connect delays.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
