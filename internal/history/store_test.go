package history

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/autorp/autorp/internal/orchestrator"
	"github.com/autorp/autorp/internal/report"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleReport(script string, statuses ...orchestrator.Status) *report.Report {
	var results []orchestrator.RunResult
	for i, st := range statuses {
		results = append(results, orchestrator.RunResult{
			ID:       script + "-" + string(rune('a'+i)),
			Script:   script,
			Slug:     "slug_" + script,
			Attempt:  i + 1,
			Status:   st,
			Duration: time.Duration(i+1) * time.Second,
		})
	}
	return report.Build(results)
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := openStore(t)

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want on", fk)
	}

	var busy int
	if err := s.db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if busy != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", busy)
	}
}

func TestSaveAndGetSuite(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rep := sampleReport("a", orchestrator.StatusFailed, orchestrator.StatusPassed)
	id, err := s.SaveSuite(ctx, rep)
	if err != nil {
		t.Fatalf("SaveSuite: %v", err)
	}
	if id == "" {
		t.Fatal("empty suite id")
	}

	loaded, err := s.GetSuite(ctx, id)
	if err != nil {
		t.Fatalf("GetSuite: %v", err)
	}
	if len(loaded.Runs) != 2 {
		t.Fatalf("loaded runs = %d, want 2", len(loaded.Runs))
	}
	if loaded.Summary.TotalRuns != 2 || loaded.Summary.SuccessfulRuns != 1 {
		t.Fatalf("loaded summary = %+v", loaded.Summary.SuiteStats)
	}
}

func TestGetSuiteMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.GetSuite(context.Background(), "no-such-suite")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListSuitesNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := sampleReport("a", orchestrator.StatusPassed)
	first.GeneratedAt = time.Now().Add(-time.Hour)
	second := sampleReport("b", orchestrator.StatusPassed, orchestrator.StatusPassed)
	second.GeneratedAt = time.Now()

	if _, err := s.SaveSuite(ctx, first); err != nil {
		t.Fatal(err)
	}
	newest, err := s.SaveSuite(ctx, second)
	if err != nil {
		t.Fatal(err)
	}

	suites, err := s.ListSuites(ctx, 10)
	if err != nil {
		t.Fatalf("ListSuites: %v", err)
	}
	if len(suites) != 2 {
		t.Fatalf("suites = %d, want 2", len(suites))
	}
	if suites[0].ID != newest {
		t.Fatalf("newest suite first, got %s", suites[0].ID)
	}
	if suites[0].TotalRuns != 2 {
		t.Fatalf("newest total runs = %d", suites[0].TotalRuns)
	}
}

func TestScenarioHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.SaveSuite(ctx, sampleReport("a", orchestrator.StatusFailed, orchestrator.StatusPassed)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveSuite(ctx, sampleReport("b", orchestrator.StatusPassed)); err != nil {
		t.Fatal(err)
	}

	runs, err := s.ScenarioHistory(ctx, "slug_a", 10)
	if err != nil {
		t.Fatalf("ScenarioHistory: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Slug != "slug_a" {
			t.Fatalf("unexpected slug %q", r.Slug)
		}
	}
	if runs[0].Attempt != 1 || runs[1].Attempt != 2 {
		t.Fatalf("attempt order = %d, %d", runs[0].Attempt, runs[1].Attempt)
	}
}
