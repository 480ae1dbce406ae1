package report

import (
	"fmt"
	"sort"
	"strings"
)

// FormatText renders the suite outcome as human-readable console text.
func FormatText(r *Report) string {
	var b strings.Builder

	for _, run := range r.Runs {
		label := strings.ToUpper(run.Status)
		fmt.Fprintf(&b, "  %-7s %s", label, run.Script)
		if run.Iteration > 0 || run.Attempt > 1 {
			fmt.Fprintf(&b, " (iteration %d, attempt %d)", run.Iteration+1, run.Attempt)
		}
		fmt.Fprintf(&b, "  %.2fs\n", run.Duration)

		for _, f := range run.Failures {
			subject := f.Subject
			if subject != "" {
				subject += ": "
			}
			fmt.Fprintf(&b, "    %-10s %s%s\n", f.Category, subject, f.Message)
		}
		for _, a := range run.Assertions {
			if !a.Passed {
				fmt.Fprintf(&b, "    assertion  %s: %s\n", a.Name, a.Message)
			}
		}
	}

	s := r.Summary
	fmt.Fprintf(&b, "\n%d of %d runs passed", s.SuccessfulRuns, s.TotalRuns)
	if s.SuccessRate != nil {
		fmt.Fprintf(&b, " (%.1f%%)", *s.SuccessRate*100)
	}
	fmt.Fprintf(&b, " in %.2fs.", s.TotalDuration)
	if s.AbortedRuns > 0 {
		fmt.Fprintf(&b, " %d aborted.", s.AbortedRuns)
	}
	if s.SkippedRuns > 0 {
		fmt.Fprintf(&b, " %d skipped.", s.SkippedRuns)
	}
	b.WriteString("\n")

	if s.AverageDuration != nil && s.MedianDuration != nil && s.P90Duration != nil {
		fmt.Fprintf(&b, "Durations: avg %.2fs, median %.2fs, p90 %.2fs\n",
			*s.AverageDuration, *s.MedianDuration, *s.P90Duration)
	}
	if len(s.FailureCategories) > 0 {
		b.WriteString("Failures by category:")
		for _, cat := range sortedKeys(s.FailureCategories) {
			fmt.Fprintf(&b, " %s=%d", cat, s.FailureCategories[cat])
		}
		b.WriteString("\n")
	}

	if len(s.PerScenario) > 0 {
		b.WriteString("\nPer scenario:\n")
		for _, name := range sortedKeys(s.PerScenario) {
			g := s.PerScenario[name]
			fmt.Fprintf(&b, "  %-30s %d/%d passed", name, g.SuccessfulRuns, g.TotalRuns)
			if g.Retries > 0 {
				fmt.Fprintf(&b, ", %d retried", g.Retries)
			}
			if g.FlakySuccesses > 0 {
				fmt.Fprintf(&b, ", %d flaky", g.FlakySuccesses)
			}
			b.WriteString("\n")
		}
	}

	if len(s.PerClient) > 0 {
		b.WriteString("\nPer client:\n")
		for _, name := range sortedKeys(s.PerClient) {
			c := s.PerClient[name]
			fmt.Fprintf(&b, "  %-30s %d runs, %d commands", name, c.TotalRuns, c.TotalCommands)
			if c.AverageCommands != nil {
				fmt.Fprintf(&b, " (avg %.1f)", *c.AverageCommands)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// FormatJSON renders the report document as an indented JSON string.
func FormatJSON(r *Report) (string, error) {
	data, err := r.JSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
