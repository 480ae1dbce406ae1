// Package report turns a finished suite into its durable artifacts: the
// JSON report document and the human-readable console summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/orchestrator"
)

// Run is one attempt as it appears in the report. Durations are seconds.
type Run struct {
	ID        string   `json:"id"`
	Script    string   `json:"script"`
	Slug      string   `json:"slug"`
	Tags      []string `json:"tags,omitempty"`
	Iteration int      `json:"iteration"`
	Attempt   int      `json:"attempt"`
	Retried   bool     `json:"retried,omitempty"`

	Status   string  `json:"status"`
	Duration float64 `json:"duration"`

	Clients            []ClientRun                          `json:"clients,omitempty"`
	LogExpectations    []Expectation                        `json:"log_expectations,omitempty"`
	ClientExpectations []ClientExpectation                  `json:"client_expectations,omitempty"`
	Assertions         []orchestrator.AssertionResult       `json:"assertions,omitempty"`
	Failures           []orchestrator.Failure               `json:"failures,omitempty"`
	ServerLogPath      string                               `json:"server_log_path,omitempty"`
	ServerLogExcerpt   string                               `json:"server_log_excerpt,omitempty"`
	Exports            []orchestrator.ClientLogExportResult `json:"client_log_exports,omitempty"`
}

// ClientRun condenses one client's playback inside a run.
type ClientRun struct {
	Name        string   `json:"name"`
	Actions     int      `json:"actions"`
	Commands    int      `json:"commands"`
	Duration    float64  `json:"duration"`
	PlaybackLog string   `json:"playback_log,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Expectation is one watched server-log condition's outcome.
type Expectation struct {
	Pattern   string  `json:"pattern"`
	MatchType string  `json:"match_type,omitempty"`
	Required  int     `json:"required"`
	Count     int     `json:"count"`
	Matched   bool    `json:"matched"`
	Timeout   float64 `json:"timeout"`
}

// ClientExpectation scopes an expectation outcome to a client log.
type ClientExpectation struct {
	Client string `json:"client"`
	Log    string `json:"log"`
	Expectation
}

// Summary carries the suite aggregates and the per-dimension breakdowns.
type Summary struct {
	orchestrator.SuiteStats

	PerScenario map[string]orchestrator.GroupStats  `json:"per_scenario,omitempty"`
	PerClient   map[string]orchestrator.ClientStats `json:"per_client,omitempty"`
	PerTag      map[string]orchestrator.GroupStats  `json:"per_tag,omitempty"`
}

// Report is the full suite document written to disk after a run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Runs        []Run     `json:"runs"`
	Summary     Summary   `json:"summary"`
}

// Build assembles the report from raw suite results.
func Build(results []orchestrator.RunResult) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Runs:        make([]Run, 0, len(results)),
		Summary: Summary{
			SuiteStats:  orchestrator.Summarize(results),
			PerScenario: orchestrator.SummarizePerScript(results),
			PerClient:   orchestrator.SummarizePerClient(results),
			PerTag:      orchestrator.SummarizePerTag(results),
		},
	}
	for _, res := range results {
		r.Runs = append(r.Runs, buildRun(res))
	}
	if len(r.Summary.PerScenario) == 0 {
		r.Summary.PerScenario = nil
	}
	if len(r.Summary.PerClient) == 0 {
		r.Summary.PerClient = nil
	}
	if len(r.Summary.PerTag) == 0 {
		r.Summary.PerTag = nil
	}
	return r
}

func buildRun(res orchestrator.RunResult) Run {
	run := Run{
		ID:               res.ID,
		Script:           res.Script,
		Slug:             res.Slug,
		Tags:             res.Tags,
		Iteration:        res.Iteration,
		Attempt:          res.Attempt,
		Retried:          res.Retried(),
		Status:           string(res.Status),
		Duration:         res.Duration.Seconds(),
		Assertions:       res.Assertions,
		Failures:         res.Failures,
		ServerLogPath:    res.ServerLogPath,
		ServerLogExcerpt: res.ServerLogExcerpt,
		Exports:          res.ClientLogExports,
	}
	for _, cr := range res.ClientResults {
		c := ClientRun{
			Name:        cr.Client,
			PlaybackLog: cr.PlaybackLogPath,
			Screenshots: cr.Screenshots,
			Error:       cr.Error,
		}
		if cr.Log != nil {
			c.Actions = len(cr.Log.Events)
			c.Commands = len(cr.Log.Commands())
			c.Duration = cr.Log.Duration().Seconds()
		}
		run.Clients = append(run.Clients, c)
	}
	for _, m := range res.LogExpectations {
		run.LogExpectations = append(run.LogExpectations, expectation(m))
	}
	for _, ce := range res.ClientLogExpectations {
		run.ClientExpectations = append(run.ClientExpectations, ClientExpectation{
			Client:      ce.Client,
			Log:         ce.Log,
			Expectation: expectation(ce.Result),
		})
	}
	return run
}

func expectation(m logmon.MatchResult) Expectation {
	return Expectation{
		Pattern:   m.Expectation.Pattern,
		MatchType: m.Expectation.MatchType,
		Required:  m.Expectation.Required(),
		Count:     m.Count,
		Matched:   m.Matched,
		Timeout:   m.Expectation.EffectiveTimeout().Seconds(),
	}
}

// JSON renders the report document.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// WriteJSON saves the report, creating parent directories as needed.
func (r *Report) WriteJSON(path string) error {
	data, err := r.JSON()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
