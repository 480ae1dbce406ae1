// Package cli wires the autorp commands: running automation suites,
// inspecting scenarios, rendering reports, and browsing history.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes. exitConfig follows the BSD EX_CONFIG convention.
const (
	exitFailure = 1
	exitConfig  = 78
)

var rootCmd = &cobra.Command{
	Use:   "autorp",
	Short: "Scenario-driven bot automation for SA-MP servers",
	Long:  "Drives scripted game clients against a server package, watches the logs for expected output, and reports pass/fail per scenario.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitFailure)
	}
}
