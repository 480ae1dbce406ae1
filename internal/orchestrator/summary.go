package orchestrator

import (
	"sort"

	"github.com/autorp/autorp/internal/scenario"
)

// SuiteStats aggregates a whole suite's results. Durations are seconds;
// nil means no executed run contributed a value.
type SuiteStats struct {
	TotalRuns      int `json:"total_runs"`
	SuccessfulRuns int `json:"successful_runs"`
	FailedRuns     int `json:"failed_runs"`
	AbortedRuns    int `json:"aborted_runs"`
	SkippedRuns    int `json:"skipped_runs"`

	SuccessRate *float64 `json:"success_rate,omitempty"`

	TotalDuration    float64  `json:"total_duration"`
	AverageDuration  *float64 `json:"average_duration,omitempty"`
	MedianDuration   *float64 `json:"median_duration,omitempty"`
	P90Duration      *float64 `json:"p90_duration,omitempty"`
	ShortestDuration *float64 `json:"shortest_duration,omitempty"`
	LongestDuration  *float64 `json:"longest_duration,omitempty"`

	AssertionFailures            int `json:"assertion_failures"`
	LogExpectationFailures       int `json:"log_expectation_failures"`
	ClientLogExpectationFailures int `json:"client_log_expectation_failures"`

	FailureCategories map[string]int `json:"failure_categories,omitempty"`

	ActionHistogram    map[string]int `json:"action_histogram,omitempty"`
	TotalWaitSeconds   float64        `json:"total_wait_seconds"`
	AverageWaitSeconds *float64       `json:"average_wait_seconds,omitempty"`
	ScreenshotCount    int            `json:"screenshot_count"`
}

// GroupStats aggregates results sharing a script or a tag.
type GroupStats struct {
	TotalRuns      int `json:"total_runs"`
	SuccessfulRuns int `json:"successful_runs"`
	FailedRuns     int `json:"failed_runs"`

	Retries        int    `json:"retries"`
	FlakySuccesses int    `json:"flaky_successes"`
	LastStatus     Status `json:"last_status"`

	AverageDuration *float64 `json:"average_duration,omitempty"`
	MedianDuration  *float64 `json:"median_duration,omitempty"`
	P90Duration     *float64 `json:"p90_duration,omitempty"`

	FailureCategories map[string]int `json:"failure_categories,omitempty"`

	// ScenarioCounts is only populated for per-tag groups.
	ScenarioCounts map[string]int `json:"scenario_counts,omitempty"`
}

// ClientStats aggregates one client's contribution across the suite.
type ClientStats struct {
	TotalRuns      int    `json:"total_runs"`
	SuccessfulRuns int    `json:"successful_runs"`
	LastStatus     Status `json:"last_status"`
	RunsWithLogs   int    `json:"runs_with_logs"`

	TotalCommands   int      `json:"total_commands"`
	AverageCommands *float64 `json:"average_commands,omitempty"`
	MedianCommands  *float64 `json:"median_commands,omitempty"`

	TotalLogDuration   float64  `json:"total_log_duration"`
	AverageLogDuration *float64 `json:"average_log_duration,omitempty"`
	MedianLogDuration  *float64 `json:"median_log_duration,omitempty"`
}

// executed filters out skipped placeholders: they never ran, so they do
// not contribute to rates or durations.
func executed(results []RunResult) []RunResult {
	out := make([]RunResult, 0, len(results))
	for _, r := range results {
		if r.Status != StatusSkipped {
			out = append(out, r)
		}
	}
	return out
}

// Summarize computes suite-level statistics over every attempt.
func Summarize(results []RunResult) SuiteStats {
	stats := SuiteStats{
		FailureCategories: map[string]int{},
		ActionHistogram:   map[string]int{},
	}

	var durations []float64
	var waits int
	for _, r := range results {
		if r.Status == StatusSkipped {
			stats.SkippedRuns++
			continue
		}
		stats.TotalRuns++
		switch r.Status {
		case StatusPassed:
			stats.SuccessfulRuns++
		case StatusAborted:
			stats.AbortedRuns++
		default:
			stats.FailedRuns++
		}

		seconds := r.Duration.Seconds()
		durations = append(durations, seconds)
		stats.TotalDuration += seconds

		for _, f := range r.Failures {
			stats.FailureCategories[f.Category]++
			switch f.Category {
			case CategoryAssertion:
				stats.AssertionFailures++
			case CategoryServerLog:
				stats.LogExpectationFailures++
			case CategoryClientLog:
				stats.ClientLogExpectationFailures++
			}
		}

		for _, cr := range r.ClientResults {
			stats.ScreenshotCount += len(cr.Screenshots)
			if cr.Log == nil {
				continue
			}
			for _, ev := range cr.Log.Events {
				stats.ActionHistogram[ev.Action.Kind]++
				if ev.Action.Kind == scenario.KindWait {
					waits++
					stats.TotalWaitSeconds += ev.Action.Float("seconds", ev.Action.Float("delay", 0))
				}
			}
		}
	}

	if stats.TotalRuns > 0 {
		rate := float64(stats.SuccessfulRuns) / float64(stats.TotalRuns)
		stats.SuccessRate = &rate
		stats.AverageDuration = mean(durations)
		stats.MedianDuration = percentile(durations, 0.5)
		stats.P90Duration = percentile(durations, 0.9)
		stats.ShortestDuration = minOf(durations)
		stats.LongestDuration = maxOf(durations)
	}
	if waits > 0 {
		avg := stats.TotalWaitSeconds / float64(waits)
		stats.AverageWaitSeconds = &avg
	}
	if len(stats.FailureCategories) == 0 {
		stats.FailureCategories = nil
	}
	if len(stats.ActionHistogram) == 0 {
		stats.ActionHistogram = nil
	}
	return stats
}

// SummarizePerScript groups executed attempts by scenario name.
func SummarizePerScript(results []RunResult) map[string]GroupStats {
	groups := make(map[string][]RunResult)
	var order []string
	for _, r := range executed(results) {
		if _, seen := groups[r.Script]; !seen {
			order = append(order, r.Script)
		}
		groups[r.Script] = append(groups[r.Script], r)
	}

	out := make(map[string]GroupStats, len(order))
	for _, name := range order {
		out[name] = groupStats(groups[name], false)
	}
	return out
}

// SummarizePerTag groups executed attempts by tag. A run with several tags
// contributes to each of them.
func SummarizePerTag(results []RunResult) map[string]GroupStats {
	groups := make(map[string][]RunResult)
	for _, r := range executed(results) {
		for _, tag := range r.Tags {
			groups[tag] = append(groups[tag], r)
		}
	}
	out := make(map[string]GroupStats, len(groups))
	for tag, rs := range groups {
		out[tag] = groupStats(rs, true)
	}
	return out
}

func groupStats(results []RunResult, withScenarios bool) GroupStats {
	g := GroupStats{FailureCategories: map[string]int{}}
	if withScenarios {
		g.ScenarioCounts = map[string]int{}
	}
	var durations []float64
	for _, r := range results {
		g.TotalRuns++
		if r.Passed() {
			g.SuccessfulRuns++
			if r.Retried() {
				g.FlakySuccesses++
			}
		} else {
			g.FailedRuns++
		}
		if r.Retried() {
			g.Retries++
		}
		g.LastStatus = r.Status
		durations = append(durations, r.Duration.Seconds())
		for _, f := range r.Failures {
			g.FailureCategories[f.Category]++
		}
		if withScenarios {
			g.ScenarioCounts[r.Script]++
		}
	}
	g.AverageDuration = mean(durations)
	g.MedianDuration = percentile(durations, 0.5)
	g.P90Duration = percentile(durations, 0.9)
	if len(g.FailureCategories) == 0 {
		g.FailureCategories = nil
	}
	return g
}

// SummarizePerClient aggregates playback activity per client.
func SummarizePerClient(results []RunResult) map[string]ClientStats {
	type acc struct {
		stats        ClientStats
		commands     []float64
		logDurations []float64
	}
	accs := make(map[string]*acc)
	for _, r := range executed(results) {
		for _, cr := range r.ClientResults {
			a, ok := accs[cr.Client]
			if !ok {
				a = &acc{}
				accs[cr.Client] = a
			}
			a.stats.TotalRuns++
			if r.Passed() {
				a.stats.SuccessfulRuns++
			}
			a.stats.LastStatus = r.Status
			if cr.Log == nil {
				continue
			}
			a.stats.RunsWithLogs++
			n := len(cr.Log.Commands())
			a.stats.TotalCommands += n
			a.commands = append(a.commands, float64(n))
			seconds := cr.Log.Duration().Seconds()
			a.stats.TotalLogDuration += seconds
			a.logDurations = append(a.logDurations, seconds)
		}
	}

	out := make(map[string]ClientStats, len(accs))
	for name, a := range accs {
		a.stats.AverageCommands = mean(a.commands)
		a.stats.MedianCommands = percentile(a.commands, 0.5)
		a.stats.AverageLogDuration = mean(a.logDurations)
		a.stats.MedianLogDuration = percentile(a.logDurations, 0.5)
		out[name] = a.stats
	}
	return out
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}

// percentile uses nearest-rank on a sorted copy.
func percentile(values []float64, p float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	return &v
}

func minOf(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return &m
}

func maxOf(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return &m
}
