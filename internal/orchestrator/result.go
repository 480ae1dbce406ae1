package orchestrator

import (
	"time"

	"github.com/autorp/autorp/internal/logmon"
	"github.com/autorp/autorp/internal/playback"
)

// Status of one run attempt.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
	StatusSkipped Status = "skipped"
)

// Failure categories, used for suite-level breakdowns.
const (
	CategoryClient    = "client"
	CategoryServerLog = "server_log"
	CategoryClientLog = "client_log"
	CategoryAssertion = "assertion"
	CategoryAborted   = "aborted"
)

// Failure is one categorized problem inside a run attempt.
type Failure struct {
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// AssertionResult records one evaluated assertion.
type AssertionResult struct {
	Name        string         `json:"name"`
	Passed      bool           `json:"passed"`
	Actual      float64        `json:"actual"`
	Expected    map[string]any `json:"expected"`
	Message     string         `json:"message,omitempty"`
	Description string         `json:"description,omitempty"`
}

// ClientExpectationResult is a client-log expectation outcome.
type ClientExpectationResult struct {
	Client string             `json:"client"`
	Log    string             `json:"log"`
	Result logmon.MatchResult `json:"result"`
}

// ClientLogExportResult is one saved (or inlined) client log.
type ClientLogExportResult struct {
	Client  string `json:"client"`
	Log     string `json:"log"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
}

// ClientResult is one client's contribution to a run attempt.
type ClientResult struct {
	Client          string        `json:"client"`
	Log             *playback.Log `json:"log,omitempty"`
	PlaybackLogPath string        `json:"playback_log,omitempty"`
	Screenshots     []string      `json:"screenshots,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// RunResult is the complete record of one run attempt. Retried runs yield
// one RunResult per attempt; the last attempt carries the final status.
type RunResult struct {
	ID        string   `json:"id"`
	Script    string   `json:"script"`
	Slug      string   `json:"slug"`
	Tags      []string `json:"tags,omitempty"`
	Iteration int      `json:"iteration"`
	Attempt   int      `json:"attempt"`

	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`

	ClientResults         []ClientResult            `json:"clients"`
	LogExpectations       []logmon.MatchResult      `json:"log_expectations,omitempty"`
	ClientLogExpectations []ClientExpectationResult `json:"client_expectations,omitempty"`
	Assertions            []AssertionResult         `json:"assertions,omitempty"`
	Failures              []Failure                 `json:"failures,omitempty"`

	ServerLogPath    string                  `json:"server_log_path,omitempty"`
	ServerLogExcerpt string                  `json:"server_log_excerpt,omitempty"`
	ClientLogExports []ClientLogExportResult `json:"client_log_exports,omitempty"`
}

// Passed reports whether the attempt succeeded.
func (r RunResult) Passed() bool { return r.Status == StatusPassed }

// Retried reports whether this result came from a retry attempt.
func (r RunResult) Retried() bool { return r.Attempt > 1 }

func (r *RunResult) fail(category, subject, message string) {
	r.Failures = append(r.Failures, Failure{Category: category, Subject: subject, Message: message})
}
