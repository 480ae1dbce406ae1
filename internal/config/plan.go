package config

import (
	"fmt"

	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/orchestrator"
	"github.com/autorp/autorp/internal/process"
	"github.com/autorp/autorp/internal/scenario"
)

var knownAssertions = map[string]bool{
	orchestrator.AssertTotalDuration:   true,
	orchestrator.AssertCommandCount:    true,
	orchestrator.AssertRequireLog:      true,
	orchestrator.AssertScreenshotCount: true,
	orchestrator.AssertActionCount:     true,
}

var knownClientTypes = map[string]bool{
	"":      true, // defaults to wine
	"wine":  true,
	"dummy": true,
}

// Plan is a validated world plus the variable environment the suite will
// run under. Building a plan performs every structural check up front;
// a plan that exists can be executed.
type Plan struct {
	world     *World
	scenarios map[string]*scenario.Scenario
	order     []*scenario.Scenario
	macros    map[string]scenario.Macro
	vars      map[string]string
}

// BuildPlan validates the world and merges the variable layers. Overrides
// (typically CLI --var flags) win over automation variables, which win
// over bot_variables. Extra scenarios loaded from disk can be supplied
// alongside the inline ones; name collisions are rejected.
func BuildPlan(w *World, extra []*scenario.Scenario, overrides map[string]string) (*Plan, error) {
	p := &Plan{
		world:     w,
		scenarios: make(map[string]*scenario.Scenario),
		macros:    make(map[string]scenario.Macro),
		vars:      make(map[string]string),
	}

	for i := range w.BotScenarios {
		s := &w.BotScenarios[i]
		if s.Name == "" {
			return nil, errorf("bot_scenarios[%d]: scenario without a name", i)
		}
		if _, dup := p.scenarios[s.Name]; dup {
			return nil, errorf("duplicate scenario %q", s.Name)
		}
		p.scenarios[s.Name] = s
		p.order = append(p.order, s)
	}
	for _, s := range extra {
		if _, dup := p.scenarios[s.Name]; dup {
			return nil, errorf("duplicate scenario %q", s.Name)
		}
		p.scenarios[s.Name] = s
		p.order = append(p.order, s)
	}

	for _, m := range w.BotMacros {
		if _, dup := p.macros[m.Name]; dup {
			return nil, errorf("duplicate macro %q", m.Name)
		}
		p.macros[m.Name] = m
	}

	for k, v := range w.BotVariables {
		p.vars[k] = v
	}
	for k, v := range w.BotAutomation.Variables {
		p.vars[k] = v
	}
	for k, v := range overrides {
		p.vars[k] = v
	}

	if err := p.validateClients(); err != nil {
		return nil, err
	}
	if err := p.validateRuns(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) validateClients() error {
	seen := make(map[string]bool)
	for i, c := range p.world.BotAutomation.Clients {
		if c.Name == "" {
			return errorf("clients[%d]: client without a name", i)
		}
		if seen[c.Name] {
			return errorf("duplicate client %q", c.Name)
		}
		seen[c.Name] = true
		if !knownClientTypes[c.Type] {
			return errorf("client %q: unknown type %q", c.Name, c.Type)
		}
		if clientType(c) == "wine" && c.GTADirectory == "" {
			return errorf("client %q: wine client requires gta_directory", c.Name)
		}
		for j, lf := range c.LogFiles {
			if lf.Name == "" || lf.Path == "" {
				return errorf("client %q: log_files[%d] needs both name and path", c.Name, j)
			}
		}
	}
	return nil
}

func (p *Plan) validateRuns() error {
	clients := make(map[string]bool)
	for _, c := range p.world.BotAutomation.Clients {
		clients[c.Name] = true
	}

	for i, r := range p.world.BotAutomation.Runs {
		at := fmt.Sprintf("runs[%d]", i)
		if r.Scenario == "" {
			return errorf("%s: missing scenario reference", at)
		}
		if _, ok := p.scenarios[r.Scenario]; !ok {
			return errorf("%s: unknown scenario %q", at, r.Scenario)
		}
		for _, name := range r.Clients {
			if !clients[name] {
				return errorf("%s: unknown client %q", at, name)
			}
		}
		if r.Iterations < 0 || r.Retries < 0 {
			return errorf("%s: iterations and retries must not be negative", at)
		}
		if r.Interval < 0 || r.GracePeriod < 0 || r.WaitBefore < 0 || r.RunTimeout < 0 {
			return errorf("%s: durations must not be negative", at)
		}
		for j, e := range r.ExpectServerLogs {
			if e.Timeout < 0 {
				return errorf("%s: expect_server_logs[%d]: timeout must not be negative", at, j)
			}
			if err := e.expectation().Validate(); err != nil {
				return errorf("%s: expect_server_logs[%d]: %w", at, j, err)
			}
		}
		for j, e := range r.ExpectClientLogs {
			if e.Client == "" {
				return errorf("%s: expect_client_logs[%d]: missing client", at, j)
			}
			if !clients[e.Client] {
				return errorf("%s: expect_client_logs[%d]: unknown client %q", at, j, e.Client)
			}
			if e.Timeout < 0 {
				return errorf("%s: expect_client_logs[%d]: timeout must not be negative", at, j)
			}
			if err := e.expectation().Validate(); err != nil {
				return errorf("%s: expect_client_logs[%d]: %w", at, j, err)
			}
		}
		for j, a := range r.Assertions {
			if !knownAssertions[a.Type] {
				return errorf("%s: assertions[%d]: unknown assertion type %q", at, j, a.Type)
			}
			if a.Client != "" && !clients[a.Client] {
				return errorf("%s: assertions[%d]: unknown client %q", at, j, a.Client)
			}
		}
		for j, e := range r.ExportClientLogs {
			if e.Client == "" {
				return errorf("%s: export_client_logs[%d]: missing client", at, j)
			}
			if !clients[e.Client] {
				return errorf("%s: export_client_logs[%d]: unknown client %q", at, j, e.Client)
			}
		}
	}
	return nil
}

// Scenario returns one scenario by name.
func (p *Plan) Scenario(name string) (*scenario.Scenario, bool) {
	s, ok := p.scenarios[name]
	return s, ok
}

// Scenarios returns the scenario library in its declared order, inline
// ones first.
func (p *Plan) Scenarios() []*scenario.Scenario {
	return append([]*scenario.Scenario{}, p.order...)
}

// Variables returns the merged variable environment.
func (p *Plan) Variables() map[string]string {
	out := make(map[string]string, len(p.vars))
	for k, v := range p.vars {
		out[k] = v
	}
	return out
}

// Contexts expands every configured run into an executable RunContext.
// Macro references and {{variable}} tokens are resolved here, up front,
// so an expansion failure surfaces as a configuration error before the
// server is started.
func (p *Plan) Contexts() ([]orchestrator.RunContext, error) {
	var out []orchestrator.RunContext
	for i, r := range p.world.BotAutomation.Runs {
		s := p.scenarios[r.Scenario]
		script, err := scenario.Expand(s, scenario.ExpandOptions{
			Macros:  p.macros,
			Globals: p.vars,
		})
		if err != nil {
			return nil, errorf("runs[%d]: expand scenario %q: %w", i, r.Scenario, err)
		}

		rc := orchestrator.RunContext{
			Name:             s.Name,
			Script:           script,
			Tags:             append(append([]string{}, s.Tags...), r.Tags...),
			Clients:          r.Clients,
			Iterations:       r.Iterations,
			Interval:         seconds(r.Interval),
			WaitBefore:       seconds(r.WaitBefore),
			Assertions:       r.Assertions,
			MaxRetries:       r.Retries,
			GracePeriod:      seconds(r.GracePeriod),
			FailFast:         r.FailFast,
			Enabled:          r.enabled(),
			RunTimeout:       seconds(r.RunTimeout),
			CaptureServerLog: r.CollectServerLog || r.ServerLogExport != "",
			ServerLogExport:  r.ServerLogExport,
			ClientLogExports: r.ExportClientLogs,
		}
		for _, e := range r.ExpectServerLogs {
			rc.ExpectServerLogs = append(rc.ExpectServerLogs, e.expectation())
		}
		for _, e := range r.ExpectClientLogs {
			rc.ExpectClientLogs = append(rc.ExpectClientLogs, orchestrator.ClientLogExpectation{
				Client:      e.Client,
				Log:         e.Log,
				Expectation: e.expectation(),
			})
		}
		out = append(out, rc)
	}
	return out, nil
}

// ClientOptions tweak how the fleet is materialized.
type ClientOptions struct {
	// DryRun forces every wine client into dry-run mode regardless of
	// its own setting.
	DryRun bool
}

// Clients materializes the configured fleet. Setup and teardown steps go
// through the same macro and variable expansion as scenario bodies.
func (p *Plan) Clients(opts ClientOptions) ([]process.Client, error) {
	var out []process.Client
	for _, c := range p.world.BotAutomation.Clients {
		setup, err := p.expandSteps(c.SetupSteps)
		if err != nil {
			return nil, errorf("client %q: setup_steps: %w", c.Name, err)
		}
		teardown, err := p.expandSteps(c.TeardownSteps)
		if err != nil {
			return nil, errorf("client %q: teardown_steps: %w", c.Name, err)
		}

		switch clientType(c) {
		case "dummy":
			dc := process.NewDummyClient(c.Name)
			dc.Setup = setup
			dc.Teardown = teardown
			for _, lf := range c.LogFiles {
				dc.AttachMonitor(logmon.NewClientMonitor(c.Name, lf.Name, lf.Path))
			}
			out = append(out, dc)
		case "wine":
			logFiles := make([]process.LogFile, 0, len(c.LogFiles))
			for _, lf := range c.LogFiles {
				logFiles = append(logFiles, process.LogFile{Name: lf.Name, Path: lf.Path})
			}
			wc, err := process.NewWineClient(process.WineClientOptions{
				Name:                   c.Name,
				GTADirectory:           c.GTADirectory,
				Launcher:               c.Launcher,
				WineBinary:             c.WineBinary,
				CommandFile:            c.CommandFile,
				DryRun:                 c.DryRun || opts.DryRun,
				ExtraEnv:               c.Environment,
				ConnectDelay:           seconds(c.ConnectDelay),
				ResetCommandsOnConnect: c.ResetCommandsOnConnect == nil || *c.ResetCommandsOnConnect,
				FocusWindow:            c.FocusWindow,
				WindowTitle:            c.WindowTitle,
				ChatlogPath:            c.ChatlogPath,
				LogFiles:               logFiles,
				Setup:                  setup,
				Teardown:               teardown,
			})
			if err != nil {
				return nil, errorf("client %q: %w", c.Name, err)
			}
			out = append(out, wc)
		}
	}
	return out, nil
}

// expandSteps flattens a bare step list through the shared macro and
// variable environment.
func (p *Plan) expandSteps(steps []scenario.Step) ([]scenario.Action, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	return scenario.Expand(&scenario.Scenario{Steps: steps}, scenario.ExpandOptions{
		Macros:  p.macros,
		Globals: p.vars,
	})
}

func clientType(c ClientConfig) string {
	if c.Type == "" {
		return "wine"
	}
	return c.Type
}
