package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/autorp/autorp/internal/config"
	"github.com/autorp/autorp/internal/report"
	"github.com/autorp/autorp/internal/suite"
)

var (
	runWorld         string
	runScenarioFiles []string
	runPackageDir    string
	runServerAddress string
	runScriptsDir    string
	runOnly          []string
	runSkip          []string
	runVars          []string
	runRetries       int
	runGracePeriod   time.Duration
	runFailFast      bool
	runDryRun        bool
	runTimeout       time.Duration
	runRecordDir     string
	runServerLogDir  string
	runClientLogDir  string
	runReportJSON    string
	runHistoryDB     string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runWorld, "world", "world.yml", "Path to the automation world file")
	runCmd.Flags().StringArrayVar(&runScenarioFiles, "scenario", nil, "Extra scenario file to register (repeatable)")
	runCmd.Flags().StringVar(&runPackageDir, "package-dir", "", "Server package directory to manage")
	runCmd.Flags().StringVar(&runServerAddress, "server-address", "", "Address of an already-running server (skips server management)")
	runCmd.Flags().StringVar(&runScriptsDir, "scripts-dir", "", "Directory receiving expanded scenario JSON files")
	runCmd.Flags().StringSliceVar(&runOnly, "only", nil, "Run only scenarios matching these names, slugs, or tags")
	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil, "Skip scenarios matching these names, slugs, or tags")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Variable override as name=value (repeatable)")
	runCmd.Flags().IntVar(&runRetries, "retries", -1, "Override per-run retry count")
	runCmd.Flags().DurationVar(&runGracePeriod, "grace-period", -1, "Override the pause between retry attempts")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Abort the suite after the first run that exhausts its retries")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Do not launch wine clients; record commands only")
	runCmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "Override the per-attempt timeout")
	runCmd.Flags().StringVar(&runRecordDir, "record-playback-dir", "", "Directory receiving per-client playback JSONL logs")
	runCmd.Flags().StringVar(&runServerLogDir, "server-log-dir", "", "Directory receiving exported server logs")
	runCmd.Flags().StringVar(&runClientLogDir, "client-log-dir", "", "Directory receiving exported client logs")
	runCmd.Flags().StringVar(&runReportJSON, "report-json", "", "Write the JSON report to this path")
	runCmd.Flags().StringVar(&runHistoryDB, "history-db", "", "SQLite database recording suite history")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured automation suite",
	Long:  "Starts the server package, connects the configured clients, plays every enabled scenario, and reports per-run results.\nExit code 0 when every run passes, 1 on failures, 78 on configuration errors.",
	RunE:  runSuite,
}

func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, expected name=value", pair)
		}
		out[name] = value
	}
	return out, nil
}

func runSuite(cmd *cobra.Command, args []string) error {
	vars, err := parseVars(runVars)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitConfig)
	}

	opts := suite.Options{
		WorldPath:         runWorld,
		ScenarioPaths:     runScenarioFiles,
		PackageDir:        runPackageDir,
		ServerAddress:     runServerAddress,
		ScriptsDir:        runScriptsDir,
		Only:              runOnly,
		Skip:              runSkip,
		Vars:              vars,
		DryRun:            runDryRun,
		RecordPlaybackDir: runRecordDir,
		ServerLogDir:      runServerLogDir,
		ClientLogDir:      runClientLogDir,
		HistoryDB:         runHistoryDB,
	}
	if cmd.Flags().Changed("retries") {
		opts.Retries = &runRetries
	}
	if cmd.Flags().Changed("grace-period") {
		opts.GracePeriod = &runGracePeriod
	}
	if cmd.Flags().Changed("fail-fast") {
		opts.FailFast = &runFailFast
	}
	if cmd.Flags().Changed("run-timeout") {
		opts.RunTimeout = &runTimeout
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping suite...")
		cancel()
	}()

	outcome, err := suite.Execute(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		if config.IsConfigError(err) {
			os.Exit(exitConfig)
		}
		os.Exit(exitFailure)
	}

	fmt.Print(report.FormatText(outcome.Report))
	if outcome.SuiteID != "" {
		fmt.Printf("Suite stored as %s\n", outcome.SuiteID)
	}

	if runReportJSON != "" {
		if err := outcome.Report.WriteJSON(runReportJSON); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(exitFailure)
		}
		fmt.Printf("Report written to %s\n", runReportJSON)
	}

	if !outcome.Passed() {
		os.Exit(exitFailure)
	}
	return nil
}
