// Package mcp exposes the automation suite over the Model Context
// Protocol: listing scenarios, running suites, and querying history.
package mcp

import (
	"context"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autorp/autorp/internal/report"
)

// Config holds MCP server configuration.
type Config struct {
	// WorldPath is the automation document served to every tool call.
	WorldPath string

	// PackageDir holds the server installation, when one is managed.
	PackageDir string

	// ServerAddress targets an already-running server instead.
	ServerAddress string

	// HistoryDB persists finished suites, when set.
	HistoryDB string

	// DryRun forces wine clients into dry-run mode for every run.
	DryRun bool
}

// Server wraps the MCP SDK server around suite execution.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       Config

	mu         sync.Mutex
	lastReport *report.Report
}

// New creates the MCP server and registers the tools.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "autorp",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autorp_scenarios",
		Description: "List the scenarios defined in the automation world file, with their tags and step counts.",
	}, s.handleScenarios)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autorp_run",
		Description: "Run the configured automation suite. Optional filters select scenarios by name, slug, or tag.",
	}, s.handleRun)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autorp_report",
		Description: "Summarize the most recent suite run, or a stored suite from the history database.",
	}, s.handleReport)
}

func (s *Server) setLastReport(r *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReport = r
}

func (s *Server) getLastReport() *report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}
