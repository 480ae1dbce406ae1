// Package config loads the automation world file: the scenario library,
// shared macros and variables, the client fleet, and the configured runs.
// Everything is validated eagerly so a broken file is rejected before any
// server or client process is started.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/orchestrator"
	"github.com/autorp/autorp/internal/scenario"
)

// Error marks a defect in the automation file itself, as opposed to a
// runtime failure. The CLI maps it to exit code 78 (EX_CONFIG).
type Error struct {
	Err error
}

func (e *Error) Error() string { return "config: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func errorf(format string, args ...any) error {
	return &Error{Err: fmt.Errorf(format, args...)}
}

// IsConfigError reports whether err originated in configuration handling.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// World is the full automation document. Scenario files may also live on
// disk and be registered separately; bot_scenarios holds the inline ones.
type World struct {
	BotScenarios  []scenario.Scenario `yaml:"bot_scenarios"`
	BotMacros     []scenario.Macro    `yaml:"bot_macros"`
	BotVariables  map[string]string   `yaml:"bot_variables"`
	BotAutomation Automation          `yaml:"bot_automation"`
}

// Automation groups the run-time half of the world: the client fleet and
// the configured runs, plus automation-scoped variable overrides.
type Automation struct {
	Variables map[string]string `yaml:"variables"`
	Clients   []ClientConfig    `yaml:"clients"`
	Runs      []RunConfig       `yaml:"runs"`
}

// ClientConfig declares one game client. Type selects the backing
// implementation: "wine" launches the real client, "dummy" records the
// command stream in memory.
type ClientConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	GTADirectory string `yaml:"gta_directory"`
	Launcher     string `yaml:"launcher"`
	WineBinary   string `yaml:"wine_binary"`
	CommandFile  string `yaml:"command_file"`

	DryRun      bool              `yaml:"dry_run"`
	Environment map[string]string `yaml:"environment"`

	ConnectDelay           float64 `yaml:"connect_delay"`
	ResetCommandsOnConnect *bool   `yaml:"reset_commands_on_connect"`
	FocusWindow            bool    `yaml:"focus_window"`
	WindowTitle            string  `yaml:"window_title"`

	ChatlogPath string          `yaml:"chatlog_path"`
	LogFiles    []LogFileConfig `yaml:"log_files"`

	SetupSteps    []scenario.Step `yaml:"setup_steps"`
	TeardownSteps []scenario.Step `yaml:"teardown_steps"`
}

// LogFileConfig names one extra log to monitor for a client.
type LogFileConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// ExpectationConfig is the on-disk form of a log expectation. Timeout is
// in seconds, matching every other duration field in the file.
type ExpectationConfig struct {
	Pattern       string  `yaml:"pattern"`
	MatchType     string  `yaml:"match_type"`
	Occurrences   int     `yaml:"occurrences"`
	Timeout       float64 `yaml:"timeout"`
	CaseSensitive bool    `yaml:"case_sensitive"`
	Description   string  `yaml:"description"`
}

func (e ExpectationConfig) expectation() logmon.Expectation {
	return logmon.Expectation{
		Pattern:       e.Pattern,
		MatchType:     e.MatchType,
		Occurrences:   e.Occurrences,
		Timeout:       seconds(e.Timeout),
		CaseSensitive: e.CaseSensitive,
		Description:   e.Description,
	}
}

// ClientExpectationConfig scopes an expectation to one client's named log.
type ClientExpectationConfig struct {
	Client            string `yaml:"client"`
	Log               string `yaml:"log"`
	ExpectationConfig `yaml:",inline"`
}

// RunConfig is one configured run of a scenario against the fleet.
type RunConfig struct {
	Scenario string   `yaml:"scenario"`
	Clients  []string `yaml:"clients"`

	ExpectServerLogs []ExpectationConfig       `yaml:"expect_server_logs"`
	ExpectClientLogs []ClientExpectationConfig `yaml:"expect_client_logs"`

	Iterations int     `yaml:"iterations"`
	Interval   float64 `yaml:"interval"`
	WaitBefore float64 `yaml:"wait_before"`

	Assertions []orchestrator.Assertion `yaml:"assertions"`
	Tags       []string                 `yaml:"tags"`

	Retries     int     `yaml:"retries"`
	GracePeriod float64 `yaml:"grace_period"`
	FailFast    bool    `yaml:"fail_fast"`
	Enabled     *bool   `yaml:"enabled"`
	RunTimeout  float64 `yaml:"run_timeout"`

	CollectServerLog bool                           `yaml:"collect_server_log"`
	ServerLogExport  string                         `yaml:"server_log_export"`
	ExportClientLogs []orchestrator.ClientLogExport `yaml:"export_client_logs"`
}

func (r RunConfig) enabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Parse decodes a world document. Files are YAML; JSON parses as a YAML
// subset through the same decoder.
func Parse(data []byte) (*World, error) {
	var w World
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, errorf("parse world: %w", err)
	}
	return &w, nil
}

// Load reads and parses a world file.
func Load(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorf("read world %s: %w", path, err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, errorf("world %s: %w", path, err)
	}
	return w, nil
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
