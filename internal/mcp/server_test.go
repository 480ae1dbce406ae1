package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const worldDoc = `
bot_scenarios:
  - name: Patrol
    tags: [smoke]
    steps:
      - type: chat
        message: on duty
      - "report"
  - name: Idle
    tags: [slow]
    steps:
      - "afk"
bot_automation:
  clients:
    - name: bot1
      type: dummy
  runs:
    - scenario: Patrol
    - scenario: Idle
`

func newTestServer(t *testing.T, doc string) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.yml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(Config{WorldPath: path})
}

func TestScenariosTool(t *testing.T) {
	s := newTestServer(t, worldDoc)

	_, out, err := s.handleScenarios(context.Background(), &mcpsdk.CallToolRequest{}, ScenariosInput{})
	if err != nil {
		t.Fatalf("handleScenarios: %v", err)
	}
	if len(out.Scenarios) != 2 {
		t.Fatalf("scenarios = %d, want 2", len(out.Scenarios))
	}
	if out.Scenarios[0].Name != "Patrol" || out.Scenarios[0].Slug != "patrol" {
		t.Fatalf("first scenario = %+v", out.Scenarios[0])
	}
	if out.Scenarios[0].Steps != 2 {
		t.Fatalf("step count = %d", out.Scenarios[0].Steps)
	}
}

func TestScenariosToolFiltersByTag(t *testing.T) {
	s := newTestServer(t, worldDoc)

	_, out, err := s.handleScenarios(context.Background(), &mcpsdk.CallToolRequest{}, ScenariosInput{Tag: "slow"})
	if err != nil {
		t.Fatalf("handleScenarios: %v", err)
	}
	if len(out.Scenarios) != 1 || out.Scenarios[0].Name != "Idle" {
		t.Fatalf("scenarios = %+v", out.Scenarios)
	}
}

func TestRunTool(t *testing.T) {
	s := newTestServer(t, worldDoc)

	result, out, err := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, RunInput{})
	if err != nil {
		t.Fatalf("handleRun: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success result")
	}
	if !out.Passed || out.TotalRuns != 2 || out.Successful != 2 {
		t.Fatalf("run output = %+v", out)
	}
	if len(out.Runs) != 2 {
		t.Fatalf("run lines = %d", len(out.Runs))
	}
}

func TestRunToolFilter(t *testing.T) {
	s := newTestServer(t, worldDoc)

	_, out, err := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, RunInput{Only: []string{"smoke"}})
	if err != nil {
		t.Fatalf("handleRun: %v", err)
	}
	if out.TotalRuns != 1 || out.Runs[0].Script != "Patrol" {
		t.Fatalf("run output = %+v", out)
	}
}

func TestRunToolConfigError(t *testing.T) {
	s := newTestServer(t, `
bot_automation:
  runs:
    - scenario: missing
`)
	result, out, err := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, RunInput{})
	if err != nil {
		t.Fatalf("handleRun: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(out.ConfigError, "unknown scenario") {
		t.Fatalf("config error = %q", out.ConfigError)
	}
}

func TestReportToolAfterRun(t *testing.T) {
	s := newTestServer(t, worldDoc)

	if _, _, err := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, RunInput{}); err != nil {
		t.Fatalf("handleRun: %v", err)
	}
	_, out, err := s.handleReport(context.Background(), &mcpsdk.CallToolRequest{}, ReportInput{})
	if err != nil {
		t.Fatalf("handleReport: %v", err)
	}
	if out.TotalRuns != 2 || out.Successful != 2 {
		t.Fatalf("report output = %+v", out)
	}
	if !strings.Contains(out.Text, "2 of 2 runs passed") {
		t.Fatalf("report text:\n%s", out.Text)
	}
}

func TestReportToolWithoutRun(t *testing.T) {
	s := newTestServer(t, worldDoc)
	_, _, err := s.handleReport(context.Background(), &mcpsdk.CallToolRequest{}, ReportInput{})
	if err == nil {
		t.Fatal("expected error before any run")
	}
}
