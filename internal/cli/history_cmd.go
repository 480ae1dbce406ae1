package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autorp/autorp/internal/history"
	"github.com/autorp/autorp/internal/report"
)

var (
	historyDB    string
	historyLimit int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.PersistentFlags().StringVar(&historyDB, "db", "autorp_history.db", "Path to the history database")
	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 20, "Maximum entries to show")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyScenarioCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored suite results",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored suites, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyDB)
		if err != nil {
			return err
		}
		defer store.Close()

		suites, err := store.ListSuites(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		for _, s := range suites {
			fmt.Printf("  %s  %s  %d/%d passed\n",
				s.ID, s.StartedAt.Format("2006-01-02 15:04:05"),
				s.SuccessfulRuns, s.TotalRuns)
		}
		fmt.Printf("\n%d suites.\n", len(suites))
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <suite-id>",
	Short: "Render one stored suite as text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyDB)
		if err != nil {
			return err
		}
		defer store.Close()

		rep, err := store.GetSuite(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(report.FormatText(rep))
		return nil
	},
}

var historyScenarioCmd = &cobra.Command{
	Use:   "scenario <slug>",
	Short: "Show the recent attempts of one scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyDB)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ScenarioHistory(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Printf("  %-7s  %s  iteration %d attempt %d  %.2fs\n",
				r.Status, r.Script, r.Iteration+1, r.Attempt, r.Duration)
		}
		fmt.Printf("\n%d attempts.\n", len(runs))
		return nil
	},
}
