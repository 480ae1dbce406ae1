package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	autorpmcp "github.com/autorp/autorp/internal/mcp"
)

var (
	mcpWorld         string
	mcpPackageDir    string
	mcpServerAddress string
	mcpHistoryDB     string
	mcpDryRun        bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpWorld, "world", "world.yml", "Path to the automation world file")
	mcpCmd.Flags().StringVar(&mcpPackageDir, "package-dir", "", "Server package directory to manage")
	mcpCmd.Flags().StringVar(&mcpServerAddress, "server-address", "", "Address of an already-running server")
	mcpCmd.Flags().StringVar(&mcpHistoryDB, "history-db", "", "SQLite database recording suite history")
	mcpCmd.Flags().BoolVar(&mcpDryRun, "dry-run", false, "Force wine clients into dry-run mode")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server for agent integration",
	Long:  "Runs autorp as an MCP (Model Context Protocol) server over stdio.\nExposes tools: scenarios, run, report.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv := autorpmcp.New(autorpmcp.Config{
		WorldPath:     mcpWorld,
		PackageDir:    mcpPackageDir,
		ServerAddress: mcpServerAddress,
		HistoryDB:     mcpHistoryDB,
		DryRun:        mcpDryRun,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	return srv.Run(ctx)
}
