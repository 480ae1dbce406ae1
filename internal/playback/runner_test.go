package playback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/autorp/autorp/internal/scenario"
	"github.com/autorp/autorp/internal/transport"
)

type stubWaiter struct {
	ok   bool
	err  error
	seen []string
}

func (w *stubWaiter) WaitFor(_ context.Context, phrase string, _ time.Duration) (bool, error) {
	w.seen = append(w.seen, phrase)
	return w.ok, w.err
}

func TestRunnerExecutesInOrder(t *testing.T) {
	buf := transport.NewBufferedTransport()
	r := NewRunner(buf)

	log, err := r.Run(context.Background(), "bot1:patrol", []scenario.Action{
		{Kind: scenario.KindChat, Params: map[string]any{"message": "Start"}},
		{Kind: scenario.KindKeypress, Params: map[string]any{"key": "f"}},
		{Kind: scenario.KindCommand, Params: map[string]any{"command": "/finish"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"CHAT Start", "KEY:F:down", "KEY:F:up", "/finish"}
	if got := buf.Payloads(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
	if got := log.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("log commands = %v, want %v", got, want)
	}
	if len(log.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(log.Events))
	}
	for i := 1; i < len(log.Events); i++ {
		if log.Events[i].At.Before(log.Events[i-1].At) {
			t.Errorf("event %d timestamp went backwards", i)
		}
	}
}

func TestRunnerWaitHonoursCancellation(t *testing.T) {
	buf := transport.NewBufferedTransport()
	r := NewRunner(buf)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	log, err := r.Run(ctx, "bot1:idle", []scenario.Action{
		{Kind: scenario.KindWait, Params: map[string]any{"seconds": 30.0}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("wait ignored cancellation, took %v", elapsed)
	}
	if len(log.Events) != 0 {
		t.Errorf("aborted wait must not be recorded as completed: %v", log.Events)
	}
}

func TestRunnerWaitForTimeoutRecordedNotFatal(t *testing.T) {
	buf := transport.NewBufferedTransport()
	r := NewRunner(buf)
	r.Waiter = &stubWaiter{ok: false}

	log, err := r.Run(context.Background(), "bot1:login", []scenario.Action{
		{Kind: scenario.KindWaitFor, Params: map[string]any{"phrase": "Connected", "timeout": 0.1}},
		{Kind: scenario.KindChat, Params: map[string]any{"message": "still here"}},
	})
	if err != nil {
		t.Fatalf("non-fatal wait_for must not stop playback: %v", err)
	}
	if len(log.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(log.Events))
	}
	if log.Events[0].Error == "" || !strings.Contains(log.Events[0].Error, "Connected") {
		t.Errorf("missed condition not recorded: %+v", log.Events[0])
	}
	if failures := log.Failures(); len(failures) != 1 {
		t.Errorf("failures = %v", failures)
	}
}

func TestRunnerWaitForFatalStopsPlayback(t *testing.T) {
	buf := transport.NewBufferedTransport()
	r := NewRunner(buf)
	r.Waiter = &stubWaiter{ok: false}

	_, err := r.Run(context.Background(), "bot1:login", []scenario.Action{
		{Kind: scenario.KindWaitFor, Params: map[string]any{"phrase": "Connected", "timeout": 0.1, "fatal": true}},
		{Kind: scenario.KindChat, Params: map[string]any{"message": "unreachable"}},
	})
	if err == nil {
		t.Fatal("fatal wait_for timeout must fail the run")
	}
	if got := buf.Payloads(); len(got) != 1 {
		t.Errorf("playback continued past fatal wait_for: %v", got)
	}
}

func TestRunnerConfigAdjustsPacing(t *testing.T) {
	buf := transport.NewBufferedTransport()
	r := NewRunner(buf)

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := r.Run(context.Background(), "bot1:cfg", []scenario.Action{
		{Kind: scenario.KindConfig, Params: map[string]any{"name": "send_interval", "value": "0.5"}},
		{Kind: scenario.KindChat, Params: map[string]any{"message": "a"}},
		{Kind: scenario.KindChat, Params: map[string]any{"message": "b"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}
	if !reflect.DeepEqual(slept, want) {
		t.Errorf("pacing sleeps = %v, want %v", slept, want)
	}
	if payloads := buf.Payloads(); payloads[0] != "CONFIG:send_interval=0.5" {
		t.Errorf("config payload not forwarded: %v", payloads)
	}
}

type screenshotFailTransport struct {
	*transport.BufferedTransport
}

func (s *screenshotFailTransport) Send(payload string) error {
	if strings.HasPrefix(payload, "SCREENSHOT:") {
		return errors.New("capture tool missing")
	}
	return s.BufferedTransport.Send(payload)
}

func TestRunnerScreenshotFailureRecordedNotFatal(t *testing.T) {
	tr := &screenshotFailTransport{transport.NewBufferedTransport()}
	r := NewRunner(tr)

	log, err := r.Run(context.Background(), "bot1:shots", []scenario.Action{
		{Kind: scenario.KindScreenshot, Params: map[string]any{"name": "before"}},
		{Kind: scenario.KindChat, Params: map[string]any{"message": "after shot"}},
	})
	if err != nil {
		t.Fatalf("screenshot failure must not stop playback: %v", err)
	}
	if log.Events[0].Error == "" {
		t.Error("screenshot failure not recorded")
	}
	if got := tr.Payloads(); len(got) != 1 || got[0] != "CHAT after shot" {
		t.Errorf("payloads = %v", got)
	}
}

func TestRunnerTransportErrorIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.txt")
	ft, err := transport.NewFileTransport(path)
	if err != nil {
		t.Fatal(err)
	}
	ft.Close()

	r := NewRunner(ft)
	_, err = r.Run(context.Background(), "bot1:dead", []scenario.Action{
		{Kind: scenario.KindChat, Params: map[string]any{"message": "hello"}},
	})
	if !errors.Is(err, transport.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLogWriteJSONL(t *testing.T) {
	buf := transport.NewBufferedTransport()
	r := NewRunner(buf)

	log, err := r.Run(context.Background(), "bot1:export", []scenario.Action{
		{Kind: scenario.KindChat, Params: map[string]any{"message": "one"}},
		{Kind: scenario.KindCommand, Params: map[string]any{"command": "/two"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "runs", "export.jsonl")
	if err := log.WriteJSONL(path); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("jsonl lines = %d, want 2", lines)
	}
}
