// Package suite wires a world file into a full execution: clients,
// server lifecycle, orchestration, and the final report. The CLI and the
// MCP server both drive suites through it.
package suite

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/autorp/autorp/internal/config"
	"github.com/autorp/autorp/internal/history"
	"github.com/autorp/autorp/internal/orchestrator"
	"github.com/autorp/autorp/internal/process"
	"github.com/autorp/autorp/internal/report"
	"github.com/autorp/autorp/internal/scenario"
)

// Options select what to run and where artifacts land.
type Options struct {
	// WorldPath is the automation document. Required.
	WorldPath string

	// ScenarioPaths are extra scenario files to register alongside the
	// inline ones.
	ScenarioPaths []string

	// PackageDir holds the server installation. Leave empty together
	// with ServerAddress to run without any server process.
	PackageDir string

	// ServerAddress targets an already-running server instead of
	// managing a local one.
	ServerAddress string

	// ScriptsDir receives the expanded scenario JSON files.
	ScriptsDir string

	Only []string
	Skip []string
	Vars map[string]string

	// DryRun forces every wine client into dry-run mode.
	DryRun bool

	// Overrides applied on top of each run's own configuration.
	Retries     *int
	GracePeriod *time.Duration
	FailFast    *bool
	RunTimeout  *time.Duration

	RecordPlaybackDir string
	ServerLogDir      string
	ClientLogDir      string

	// HistoryDB, when set, stores the finished suite for later review.
	HistoryDB string
}

// Outcome bundles everything a caller needs after a suite finishes.
type Outcome struct {
	Results []orchestrator.RunResult
	Report  *report.Report

	// SuiteID is set when the suite was stored in the history database.
	SuiteID string
}

// Passed reports whether every executed run succeeded.
func (o *Outcome) Passed() bool {
	s := o.Report.Summary
	return s.FailedRuns == 0 && s.AbortedRuns == 0
}

// Execute runs the whole suite described by opts. Configuration problems
// surface as config errors before any process is started.
func Execute(ctx context.Context, opts Options) (*Outcome, error) {
	world, err := config.Load(opts.WorldPath)
	if err != nil {
		return nil, err
	}

	extra := make([]*scenario.Scenario, 0, len(opts.ScenarioPaths))
	for _, path := range opts.ScenarioPaths {
		s, err := scenario.Load(path)
		if err != nil {
			return nil, err
		}
		extra = append(extra, s)
	}

	plan, err := config.BuildPlan(world, extra, opts.Vars)
	if err != nil {
		return nil, err
	}

	contexts, err := plan.Contexts()
	if err != nil {
		return nil, err
	}
	contexts = orchestrator.Filter(applyOverrides(contexts, opts), opts.Only, opts.Skip)

	clients, err := plan.Clients(config.ClientOptions{DryRun: opts.DryRun})
	if err != nil {
		return nil, err
	}

	var server *process.ServerController
	if opts.ServerAddress == "" && opts.PackageDir != "" {
		server = process.NewServerController(opts.PackageDir)
	}

	orch := orchestrator.New(clients, server, opts.ScriptsDir)
	orch.ServerAddress = opts.ServerAddress

	if opts.ScriptsDir != "" {
		for _, s := range plan.Scenarios() {
			if _, err := orch.RegisterScript(s); err != nil {
				return nil, err
			}
		}
	}

	var results []orchestrator.RunResult
	run := func(ctx context.Context) error {
		results = orch.RunSuite(ctx, contexts)
		return nil
	}
	if server != nil {
		if err := server.Running(ctx, run); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	} else {
		_ = run(ctx)
	}

	outcome := &Outcome{Results: results, Report: report.Build(results)}

	if opts.HistoryDB != "" {
		store, err := history.Open(opts.HistoryDB)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		id, err := store.SaveSuite(ctx, outcome.Report)
		if err != nil {
			return nil, err
		}
		outcome.SuiteID = id
	}

	return outcome, nil
}

// applyOverrides folds CLI-level settings into every context and fills in
// default export locations.
func applyOverrides(contexts []orchestrator.RunContext, opts Options) []orchestrator.RunContext {
	out := make([]orchestrator.RunContext, len(contexts))
	for i, rc := range contexts {
		if opts.Retries != nil {
			rc.MaxRetries = *opts.Retries
		}
		if opts.GracePeriod != nil {
			rc.GracePeriod = *opts.GracePeriod
		}
		if opts.FailFast != nil {
			rc.FailFast = *opts.FailFast
		}
		if opts.RunTimeout != nil {
			rc.RunTimeout = *opts.RunTimeout
		}
		if opts.RecordPlaybackDir != "" {
			rc.RecordPlaybackDir = opts.RecordPlaybackDir
		}
		if opts.ServerLogDir != "" && rc.CaptureServerLog && rc.ServerLogExport == "" {
			rc.ServerLogExport = filepath.Join(opts.ServerLogDir, rc.Slug()+"_server.log")
		}
		if opts.ClientLogDir != "" {
			for j, exp := range rc.ClientLogExports {
				if exp.TargetPath == "" {
					name := fmt.Sprintf("%s_%s_%s.log", rc.Slug(), exp.Client, exp.LogName())
					rc.ClientLogExports[j].TargetPath = filepath.Join(opts.ClientLogDir, name)
				}
			}
		}
		out[i] = rc
	}
	return out
}
