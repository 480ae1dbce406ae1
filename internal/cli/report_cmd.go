package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autorp/autorp/internal/report"
)

var reportAsJSON bool

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().BoolVar(&reportAsJSON, "json", false, "Re-emit the report as JSON instead of text")
}

var reportCmd = &cobra.Command{
	Use:   "report <report.json>",
	Short: "Render a stored JSON report as text",
	Args:  cobra.ExactArgs(1),
	RunE:  renderReport,
}

func renderReport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}

	if reportAsJSON {
		out, err := report.FormatJSON(&rep)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(report.FormatText(&rep))
	return nil
}
