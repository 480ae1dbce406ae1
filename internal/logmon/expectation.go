// Package logmon tails growing log files and resolves pattern
// expectations against the appended content. Matching is incremental:
// bytes consumed before a monitor's mark are never re-scanned, so stale
// content from an earlier attempt cannot satisfy an expectation.
package logmon

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Match types accepted by Expectation.
const (
	MatchSubstring = "substring"
	MatchRegex     = "regex"
)

// ErrInvalidPattern reports a regex expectation that fails to compile.
// Raised eagerly during validation, before any process is started.
var ErrInvalidPattern = errors.New("invalid pattern")

// Expectation is a required pattern/occurrence condition on a log stream.
type Expectation struct {
	Pattern       string        `yaml:"pattern"`
	MatchType     string        `yaml:"match_type"`
	Occurrences   int           `yaml:"occurrences"`
	Timeout       time.Duration `yaml:"timeout"`
	CaseSensitive bool          `yaml:"case_sensitive"`
	Description   string        `yaml:"description"`
}

// matcher is a compiled expectation predicate.
type matcher func(line string) bool

// Compile validates the expectation and returns its line predicate.
// Substring matching is case-insensitive unless CaseSensitive is set;
// regex patterns are compiled exactly once, here.
func (e Expectation) Compile() (matcher, error) {
	switch e.MatchType {
	case "", MatchSubstring:
		needle := e.Pattern
		if e.CaseSensitive {
			return func(line string) bool {
				return strings.Contains(line, needle)
			}, nil
		}
		lowered := strings.ToLower(needle)
		return func(line string) bool {
			return strings.Contains(strings.ToLower(line), lowered)
		}, nil
	case MatchRegex:
		pattern := e.Pattern
		if !e.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, e.Pattern, err)
		}
		return re.MatchString, nil
	default:
		return nil, fmt.Errorf("%w: unsupported match type %q", ErrInvalidPattern, e.MatchType)
	}
}

// Validate checks structural invariants (occurrences, timeout, pattern).
func (e Expectation) Validate() error {
	if e.Pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if e.Occurrences < 0 {
		return fmt.Errorf("expectation %q: occurrences must be >= 1", e.Pattern)
	}
	_, err := e.Compile()
	return err
}

// Required normalizes the occurrence count (config omission means 1).
func (e Expectation) Required() int {
	if e.Occurrences < 1 {
		return 1
	}
	return e.Occurrences
}

// EffectiveTimeout normalizes the watch deadline.
func (e Expectation) EffectiveTimeout() time.Duration {
	if e.Timeout <= 0 {
		return 10 * time.Second
	}
	return e.Timeout
}

// MatchResult is the outcome of watching one expectation. On timeout the
// partial count is still reported.
type MatchResult struct {
	Expectation Expectation `json:"expectation"`
	Matched     bool        `json:"matched"`
	Count       int         `json:"count"`
	FirstAt     time.Time   `json:"first_at,omitempty"`
	LastAt      time.Time   `json:"last_at,omitempty"`
	Fragments   []string    `json:"fragments,omitempty"`
}
