package orchestrator

import (
	"fmt"

	"github.com/autorp/autorp/internal/playback"
)

// evaluateAssertions checks every configured assertion against the
// attempt's collected results. Unknown assertion types fail loudly rather
// than passing silently.
func evaluateAssertions(rc RunContext, result *RunResult) []AssertionResult {
	if len(rc.Assertions) == 0 {
		return nil
	}
	out := make([]AssertionResult, 0, len(rc.Assertions))
	for _, a := range rc.Assertions {
		out = append(out, evaluateAssertion(a, result))
	}
	return out
}

func evaluateAssertion(a Assertion, result *RunResult) AssertionResult {
	res := AssertionResult{
		Name:        assertionName(a),
		Expected:    map[string]any{},
		Description: a.Description,
	}

	switch a.Type {
	case AssertTotalDuration:
		actual := result.Duration.Seconds()
		res.Actual = actual
		res.Passed = true
		if a.MaxSeconds != nil {
			res.Expected["max_seconds"] = *a.MaxSeconds
			if actual > *a.MaxSeconds {
				res.Passed = false
				res.Message = fmt.Sprintf("run took %.2fs, limit %.2fs", actual, *a.MaxSeconds)
			}
		}

	case AssertCommandCount:
		count := 0
		for _, cr := range clientScope(a.Client, result) {
			if cr.Log != nil {
				count += len(cr.Log.Commands())
			}
		}
		res.Actual = float64(count)
		res.Passed, res.Message = checkBounds(count, a.Min, a.Max, res.Expected, "commands")

	case AssertRequireLog:
		scope := clientScope(a.Client, result)
		res.Expected["client"] = a.Client
		if len(scope) == 0 {
			res.Message = fmt.Sprintf("client %q not part of this run", a.Client)
			break
		}
		res.Passed = true
		for _, cr := range scope {
			if cr.Log == nil || len(cr.Log.Events) == 0 {
				res.Passed = false
				res.Message = fmt.Sprintf("client %s produced no playback log", cr.Client)
				break
			}
		}
		if res.Passed {
			res.Actual = 1
		}

	case AssertScreenshotCount:
		count := 0
		for _, cr := range clientScope(a.Client, result) {
			count += len(cr.Screenshots)
		}
		res.Actual = float64(count)
		res.Passed, res.Message = checkBounds(count, a.Min, a.Max, res.Expected, "screenshots")

	case AssertActionCount:
		count := 0
		for _, cr := range clientScope(a.Client, result) {
			if cr.Log == nil {
				continue
			}
			count += countActions(cr.Log, a.ActionKind)
		}
		if a.ActionKind != "" {
			res.Expected["action"] = a.ActionKind
		}
		res.Actual = float64(count)
		res.Passed, res.Message = checkBounds(count, a.Min, a.Max, res.Expected, "actions")

	default:
		res.Message = fmt.Sprintf("unknown assertion type %q", a.Type)
	}
	return res
}

func assertionName(a Assertion) string {
	if a.Client != "" {
		return a.Type + ":" + a.Client
	}
	return a.Type
}

// clientScope returns the client results an assertion applies to: one
// named client, or all of them.
func clientScope(client string, result *RunResult) []ClientResult {
	if client == "" {
		return result.ClientResults
	}
	for _, cr := range result.ClientResults {
		if cr.Client == client {
			return []ClientResult{cr}
		}
	}
	return nil
}

func countActions(log *playback.Log, kind string) int {
	if kind == "" {
		return len(log.Events)
	}
	n := 0
	for _, ev := range log.Events {
		if ev.Action.Kind == kind {
			n++
		}
	}
	return n
}

func checkBounds(actual int, min, max *int, expected map[string]any, unit string) (bool, string) {
	if min != nil {
		expected["min"] = *min
		if actual < *min {
			return false, fmt.Sprintf("%d %s, expected at least %d", actual, unit, *min)
		}
	}
	if max != nil {
		expected["max"] = *max
		if actual > *max {
			return false, fmt.Sprintf("%d %s, expected at most %d", actual, unit, *max)
		}
	}
	return true, ""
}
