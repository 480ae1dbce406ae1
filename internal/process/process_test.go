package process

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/autorp/autorp/internal/scenario"
)

// actions builds a flattened action list from JSON step objects.
func actions(steps ...string) []scenario.Action {
	out := make([]scenario.Action, 0, len(steps))
	for _, raw := range steps {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			panic(err)
		}
		kind, _ := m["type"].(string)
		delete(m, "type")
		out = append(out, scenario.Action{Kind: kind, Params: m})
	}
	return out
}

func writeServerScript(t *testing.T, dir, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, "samp-server"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T, body string) *ServerController {
	t.Helper()
	dir := t.TempDir()
	writeServerScript(t, dir, body)
	c := NewServerController(dir)
	c.StartupTimeout = 3 * time.Second
	c.StopGrace = 500 * time.Millisecond
	return c
}

func TestServerStartBecomesReadyOnStartupPhrase(t *testing.T) {
	c := newTestServer(t, `echo "Started server on port: 7777, version: 0.3.7" >> server_log.txt
sleep 30`)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != StateReady {
		t.Errorf("state = %v, want ready", got)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("state after stop = %v, want stopped", got)
	}
}

func TestServerStartFailsOnEarlyExit(t *testing.T) {
	c := newTestServer(t, `exit 3`)
	err := c.Start(context.Background())
	if !errors.Is(err, ErrProcessExitedEarly) {
		t.Fatalf("expected ErrProcessExitedEarly, got %v", err)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("state = %v, want stopped after failed start", got)
	}
}

func TestServerStartTimesOutWithoutPhrase(t *testing.T) {
	c := newTestServer(t, `sleep 30`)
	c.StartupTimeout = 300 * time.Millisecond

	err := c.Start(context.Background())
	if !errors.Is(err, ErrStartupTimeout) {
		t.Fatalf("expected ErrStartupTimeout, got %v", err)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("half-started process must be torn down, state = %v", got)
	}
}

func TestServerStartMissingBinary(t *testing.T) {
	c := NewServerController(t.TempDir())
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("state = %v, want stopped", got)
	}
}

func TestServerStopBeforeStartIsNoop(t *testing.T) {
	c := NewServerController(t.TempDir())
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestServerConcurrentStopsRace(t *testing.T) {
	c := newTestServer(t, `echo "Started server on port: 7777" >> server_log.txt
sleep 30`)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Stop(); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := c.State(); got != StateStopped {
		t.Errorf("state = %v, want stopped", got)
	}
}

func TestServerStartIsIdempotentWhileRunning(t *testing.T) {
	c := newTestServer(t, `echo "Started server on port: 7777" >> server_log.txt
sleep 30`)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start must be a no-op, got %v", err)
	}
}

func TestServerAddressFromConfig(t *testing.T) {
	dir := t.TempDir()
	c := NewServerController(dir)

	if got := c.Address(); got != "127.0.0.1:7777" {
		t.Errorf("default address = %q", got)
	}

	cfg := "echo 1\nPort 8888\nmaxplayers 50\n"
	if err := os.WriteFile(filepath.Join(dir, "server.cfg"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := c.Address(); got != "127.0.0.1:8888" {
		t.Errorf("address = %q, want 127.0.0.1:8888", got)
	}

	bad := "port banana\n"
	if err := os.WriteFile(filepath.Join(dir, "server.cfg"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := c.Address(); got != "127.0.0.1:7777" {
		t.Errorf("malformed port should fall back, got %q", got)
	}
}

func TestServerRunningStopsOnReturn(t *testing.T) {
	c := newTestServer(t, `echo "Started server on port: 7777" >> server_log.txt
sleep 30`)

	err := c.Running(context.Background(), func(context.Context) error {
		if got := c.State(); got != StateReady {
			t.Errorf("state inside Running = %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("state after Running = %v, want stopped", got)
	}
}

func TestDummyClientFramesScriptWithSetupAndTeardown(t *testing.T) {
	c := NewDummyClient("bot1")
	c.Setup = actions(`{"type":"command","command":"/login hunter2"}`)
	c.Teardown = actions(`{"type":"command","command":"/quit"}`)

	if err := c.Connect(context.Background(), "127.0.0.1:7777"); err != nil {
		t.Fatal(err)
	}
	if c.ConnectedTo != "127.0.0.1:7777" {
		t.Errorf("connected to %q", c.ConnectedTo)
	}

	log, err := c.RunScript(context.Background(), "bot1:patrol",
		actions(`{"type":"chat","message":"On patrol"}`))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"/login hunter2", "CHAT On patrol", "/quit"}
	if got := c.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
	if got := log.Commands(); !reflect.DeepEqual(got, []string{"CHAT On patrol"}) {
		t.Errorf("main log must exclude setup/teardown: %v", got)
	}
	if len(c.AuxLogs) != 2 {
		t.Errorf("aux logs = %d, want setup+teardown", len(c.AuxLogs))
	}
	if c.AuxLogs[0].Subject != "setup:bot1" || c.AuxLogs[1].Subject != "teardown:bot1" {
		t.Errorf("aux subjects = %s, %s", c.AuxLogs[0].Subject, c.AuxLogs[1].Subject)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if c.ConnectedTo != "" {
		t.Error("disconnect must clear the address")
	}
}

func TestWineClientDryRunLifecycle(t *testing.T) {
	gta := t.TempDir()
	c, err := NewWineClient(WineClientOptions{
		Name:                   "bot1",
		GTADirectory:           gta,
		DryRun:                 true,
		ResetCommandsOnConnect: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := c.CommandFile(); got != filepath.Join(gta, "bot_commands.txt") {
		t.Errorf("command file = %q", got)
	}

	mons := c.Monitors()
	if len(mons) != 1 || mons[0].Name != "chatlog" {
		t.Fatalf("monitors = %+v, want default chatlog", mons)
	}
	if mons[0].Path() != filepath.Join(gta, "SAMP", "chatlog.txt") {
		t.Errorf("chatlog path = %q", mons[0].Path())
	}

	if err := c.Connect(context.Background(), "127.0.0.1:7777"); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != StateReady {
		t.Errorf("state = %v, want ready", got)
	}

	log, err := c.RunScript(context.Background(), "bot1:shots", actions(
		`{"type":"chat","message":"hi"}`,
		`{"type":"screenshot","name":"lobby"}`,
	))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(log.Events); got != 2 {
		t.Fatalf("events = %d", got)
	}

	shots := c.Screenshots()
	if len(shots) != 1 || shots[0] != filepath.Join(gta, "lobby.png") {
		t.Errorf("screenshots = %v", shots)
	}

	data, err := os.ReadFile(c.CommandFile())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "CHAT hi\nSCREENSHOT:lobby\n" {
		t.Errorf("command file content = %q", data)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
}

func TestWineClientWaitForBackedByChatlog(t *testing.T) {
	gta := t.TempDir()
	c, err := NewWineClient(WineClientOptions{Name: "bot1", GTADirectory: gta, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background(), "127.0.0.1:7777"); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	chatlog := c.Monitors()[0].Path()
	go func() {
		time.Sleep(150 * time.Millisecond)
		f, _ := os.OpenFile(chatlog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		f.WriteString("Connected to Awesome RP\n")
		f.Close()
	}()

	start := time.Now()
	log, err := c.RunScript(context.Background(), "bot1:join", actions(
		`{"type":"wait_for","phrase":"Connected","timeout":5.0}`,
	))
	if err != nil {
		t.Fatal(err)
	}
	if log.Events[0].Error != "" {
		t.Errorf("wait_for should have matched: %+v", log.Events[0])
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("wait_for took %v", elapsed)
	}
}
