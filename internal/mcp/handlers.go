package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autorp/autorp/internal/config"
	"github.com/autorp/autorp/internal/history"
	"github.com/autorp/autorp/internal/report"
	"github.com/autorp/autorp/internal/scenario"
	"github.com/autorp/autorp/internal/suite"
)

// ScenariosInput defines parameters for the autorp_scenarios tool.
type ScenariosInput struct {
	Tag string `json:"tag,omitempty" jsonschema:"only scenarios carrying this tag"`
}

// ScenarioInfo is one scenario's listing entry.
type ScenarioInfo struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description,omitempty"`
	Steps       int      `json:"steps"`
	Tags        []string `json:"tags,omitempty"`
}

// ScenariosOutput lists the scenario library.
type ScenariosOutput struct {
	Scenarios []ScenarioInfo `json:"scenarios"`
}

// RunInput defines parameters for the autorp_run tool.
type RunInput struct {
	Only []string          `json:"only,omitempty" jsonschema:"scenario names, slugs, or tags to include"`
	Skip []string          `json:"skip,omitempty" jsonschema:"scenario names, slugs, or tags to exclude"`
	Vars map[string]string `json:"vars,omitempty" jsonschema:"variable overrides applied to every scenario"`
}

// RunLine condenses one attempt for the tool response.
type RunLine struct {
	Script    string  `json:"script"`
	Iteration int     `json:"iteration"`
	Attempt   int     `json:"attempt"`
	Status    string  `json:"status"`
	Duration  float64 `json:"duration"`
}

// RunOutput summarizes a finished suite.
type RunOutput struct {
	Passed      bool      `json:"passed"`
	TotalRuns   int       `json:"total_runs"`
	Successful  int       `json:"successful_runs"`
	Failed      int       `json:"failed_runs"`
	Aborted     int       `json:"aborted_runs"`
	Skipped     int       `json:"skipped_runs"`
	SuiteID     string    `json:"suite_id,omitempty"`
	Runs        []RunLine `json:"runs"`
	ConfigError string    `json:"config_error,omitempty"`
}

// ReportInput defines parameters for the autorp_report tool.
type ReportInput struct {
	SuiteID string `json:"suite_id,omitempty" jsonschema:"stored suite to summarize; omit for the most recent in-process run"`
}

// ReportOutput carries the rendered summary plus headline numbers.
type ReportOutput struct {
	Text       string `json:"text"`
	TotalRuns  int    `json:"total_runs"`
	Successful int    `json:"successful_runs"`
	Failed     int    `json:"failed_runs"`
}

func (s *Server) handleScenarios(ctx context.Context, req *mcpsdk.CallToolRequest, input ScenariosInput) (*mcpsdk.CallToolResult, ScenariosOutput, error) {
	world, err := config.Load(s.cfg.WorldPath)
	if err != nil {
		return nil, ScenariosOutput{}, err
	}
	plan, err := config.BuildPlan(world, nil, nil)
	if err != nil {
		return nil, ScenariosOutput{}, err
	}

	out := ScenariosOutput{}
	for _, sc := range plan.Scenarios() {
		if input.Tag != "" && !hasTag(sc, input.Tag) {
			continue
		}
		out.Scenarios = append(out.Scenarios, ScenarioInfo{
			Name:        sc.Name,
			Slug:        scenario.Slug(sc.Name),
			Description: sc.Description,
			Steps:       len(sc.Steps),
			Tags:        sc.Tags,
		})
	}
	return nil, out, nil
}

func (s *Server) handleRun(ctx context.Context, req *mcpsdk.CallToolRequest, input RunInput) (*mcpsdk.CallToolResult, RunOutput, error) {
	outcome, err := suite.Execute(ctx, suite.Options{
		WorldPath:     s.cfg.WorldPath,
		PackageDir:    s.cfg.PackageDir,
		ServerAddress: s.cfg.ServerAddress,
		HistoryDB:     s.cfg.HistoryDB,
		DryRun:        s.cfg.DryRun,
		Only:          input.Only,
		Skip:          input.Skip,
		Vars:          input.Vars,
	})
	if err != nil {
		if config.IsConfigError(err) {
			return &mcpsdk.CallToolResult{IsError: true}, RunOutput{ConfigError: err.Error()}, nil
		}
		return nil, RunOutput{}, err
	}

	s.setLastReport(outcome.Report)

	stats := outcome.Report.Summary
	out := RunOutput{
		Passed:     outcome.Passed(),
		TotalRuns:  stats.TotalRuns,
		Successful: stats.SuccessfulRuns,
		Failed:     stats.FailedRuns,
		Aborted:    stats.AbortedRuns,
		Skipped:    stats.SkippedRuns,
		SuiteID:    outcome.SuiteID,
	}
	for _, r := range outcome.Report.Runs {
		out.Runs = append(out.Runs, RunLine{
			Script:    r.Script,
			Iteration: r.Iteration,
			Attempt:   r.Attempt,
			Status:    r.Status,
			Duration:  r.Duration,
		})
	}
	if !out.Passed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleReport(ctx context.Context, req *mcpsdk.CallToolRequest, input ReportInput) (*mcpsdk.CallToolResult, ReportOutput, error) {
	rep := s.getLastReport()
	if input.SuiteID != "" {
		if s.cfg.HistoryDB == "" {
			return nil, ReportOutput{}, fmt.Errorf("no history database configured")
		}
		store, err := history.Open(s.cfg.HistoryDB)
		if err != nil {
			return nil, ReportOutput{}, err
		}
		defer store.Close()
		rep, err = store.GetSuite(ctx, input.SuiteID)
		if err != nil {
			return nil, ReportOutput{}, err
		}
	}
	if rep == nil {
		return nil, ReportOutput{}, fmt.Errorf("no suite has been run yet")
	}

	return nil, ReportOutput{
		Text:       report.FormatText(rep),
		TotalRuns:  rep.Summary.TotalRuns,
		Successful: rep.Summary.SuccessfulRuns,
		Failed:     rep.Summary.FailedRuns,
	}, nil
}

func hasTag(s *scenario.Scenario, tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
