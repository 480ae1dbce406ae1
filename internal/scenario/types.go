// Package scenario holds the typed bot-scenario model: ordered steps,
// reusable macros, and {{variable}} bindings, plus the expander that
// flattens a scenario into the action sequence clients play back.
package scenario

import (
	"fmt"
	"strings"
)

// Known step kinds. Anything else is rejected at expansion time.
const (
	KindCommand     = "command"
	KindChat        = "chat"
	KindWait        = "wait"
	KindWaitFor     = "wait_for"
	KindTeleport    = "teleport"
	KindKeypress    = "keypress"
	KindKey         = "key"
	KindKeySequence = "key_sequence"
	KindKeyCombo    = "key_combo"
	KindTypeText    = "type_text"
	KindMouseMove   = "mouse_move"
	KindMouseClick  = "mouse_click"
	KindMouseScroll = "mouse_scroll"
	KindMouseDrag   = "mouse_drag"
	KindFocusWindow = "focus_window"
	KindScreenshot  = "screenshot"
	KindOption      = "option"
	KindConfig      = "config"
	KindMacro       = "macro"
)

var knownKinds = map[string]bool{
	KindCommand:     true,
	KindChat:        true,
	KindWait:        true,
	KindWaitFor:     true,
	KindTeleport:    true,
	KindKeypress:    true,
	KindKey:         true,
	KindKeySequence: true,
	KindKeyCombo:    true,
	KindTypeText:    true,
	KindMouseMove:   true,
	KindMouseClick:  true,
	KindMouseScroll: true,
	KindMouseDrag:   true,
	KindFocusWindow: true,
	KindScreenshot:  true,
	KindOption:      true,
	KindConfig:      true,
	KindMacro:       true,
}

// Step is one raw instruction as it appears in a scenario file.
// Params carries the kind-specific fields verbatim.
type Step struct {
	Kind   string
	Params map[string]any
}

// Macro is a reusable named step group. Parameters referenced in the body
// must be supplied at the call site or through Defaults.
type Macro struct {
	Name     string
	Params   []string
	Defaults map[string]string
	Steps    []Step
}

// Scenario is a named ordered sequence of steps with optional local macros
// and variable defaults. Immutable after expansion.
type Scenario struct {
	Name        string
	Description string
	Steps       []Step
	Macros      map[string]Macro
	Variables   map[string]string
	Tags        []string
}

// Action is one flattened, fully substituted instruction ready for the
// translator. Produced by Expand; consumed once.
type Action struct {
	Kind   string
	Params map[string]any
}

// String returns a short human-readable form for logs and failures.
func (a Action) String() string {
	if len(a.Params) == 0 {
		return a.Kind
	}
	parts := make([]string, 0, len(a.Params))
	for k, v := range a.Params {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return a.Kind + "{" + strings.Join(parts, " ") + "}"
}

// Str returns the named param as a string, or fallback when absent.
func (a Action) Str(key, fallback string) string {
	v, ok := a.Params[key]
	if !ok || v == nil {
		return fallback
	}
	return fmt.Sprintf("%v", v)
}

// Float returns the named param as a float64, or fallback when absent or
// not numeric.
func (a Action) Float(key string, fallback float64) float64 {
	v, ok := a.Params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f
		}
	}
	return fallback
}

// Int returns the named param as an int, or fallback.
func (a Action) Int(key string, fallback int) int {
	v, ok := a.Params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var i int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &i); err == nil {
			return i
		}
	}
	return fallback
}

// Bool returns the named param as a bool, or fallback.
func (a Action) Bool(key string, fallback bool) bool {
	v, ok := a.Params[key]
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return fallback
}

// Strings returns the named param as a string slice. Scalar values yield a
// single-element slice; absent params yield nil.
func (a Action) Strings(key string) []string {
	v, ok := a.Params[key]
	if !ok || v == nil {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", s)}
	}
}
