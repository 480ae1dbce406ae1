// Package orchestrator schedules scenario runs across a server and a set
// of game clients: concurrent playback, log expectations, assertions,
// retries, and suite-level aggregation.
package orchestrator

import (
	"time"

	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/scenario"
)

// Assertion kinds evaluated against a finished run.
const (
	AssertTotalDuration   = "total_duration"
	AssertCommandCount    = "command_count"
	AssertRequireLog      = "require_log"
	AssertScreenshotCount = "screenshot_count"
	AssertActionCount     = "action_count"
)

// Assertion is one declarative check on a run's outcome. Min/Max bound
// counts; MaxSeconds bounds total_duration. Client scopes the check to one
// client where that makes sense, otherwise it aggregates over all.
type Assertion struct {
	Type        string   `yaml:"type" json:"type"`
	Client      string   `yaml:"client,omitempty" json:"client,omitempty"`
	ActionKind  string   `yaml:"action,omitempty" json:"action,omitempty"`
	Min         *int     `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *int     `yaml:"max,omitempty" json:"max,omitempty"`
	MaxSeconds  *float64 `yaml:"max_seconds,omitempty" json:"max_seconds,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// ClientLogExpectation binds a log expectation to one client's named log.
type ClientLogExpectation struct {
	Client             string `yaml:"client" json:"client"`
	Log                string `yaml:"log,omitempty" json:"log,omitempty"`
	logmon.Expectation `yaml:",inline"`
}

// LogName returns the targeted log, defaulting to the chatlog.
func (e ClientLogExpectation) LogName() string {
	if e.Log == "" {
		return "chatlog"
	}
	return e.Log
}

// ClientLogExport asks for one client log's new content to be saved after
// the run. Without a target path the content is kept in the result.
type ClientLogExport struct {
	Client         string `yaml:"client" json:"client"`
	Log            string `yaml:"log,omitempty" json:"log,omitempty"`
	TargetPath     string `yaml:"target_path,omitempty" json:"target_path,omitempty"`
	IncludeFullLog bool   `yaml:"include_full_log,omitempty" json:"include_full_log,omitempty"`
}

// LogName returns the targeted log, defaulting to the chatlog.
func (e ClientLogExport) LogName() string {
	if e.Log == "" {
		return "chatlog"
	}
	return e.Log
}

// RunContext is everything needed to execute one configured run:
// the flattened scenario, which clients play it, what to expect in the
// logs, and the retry policy.
type RunContext struct {
	Name   string
	Script []scenario.Action
	Tags   []string

	// Clients restricts playback to the named clients; empty means all
	// registered clients.
	Clients []string

	Iterations int
	// Interval pauses between iterations of the same run.
	Interval   time.Duration
	WaitBefore time.Duration

	ExpectServerLogs []logmon.Expectation
	ExpectClientLogs []ClientLogExpectation
	Assertions       []Assertion

	MaxRetries  int
	GracePeriod time.Duration
	FailFast    bool
	Enabled     bool
	RunTimeout  time.Duration

	RecordPlaybackDir string
	CaptureServerLog  bool
	ServerLogExport   string
	ClientLogExports  []ClientLogExport
}

// Slug is the filesystem-safe identifier for this run's scenario.
func (rc RunContext) Slug() string {
	return scenario.Slug(rc.Name)
}

// Tokens returns the lowercase identifiers a filter can match: the name,
// its slug, and every tag.
func (rc RunContext) Tokens() map[string]bool {
	tokens := make(map[string]bool)
	if rc.Name != "" {
		tokens[normalizeToken(rc.Name)] = true
		tokens[rc.Slug()] = true
	}
	for _, tag := range rc.Tags {
		if tag != "" {
			tokens[normalizeToken(tag)] = true
		}
	}
	return tokens
}

// iterations never drops below one even for unset contexts.
func (rc RunContext) iterations() int {
	if rc.Iterations < 1 {
		return 1
	}
	return rc.Iterations
}
