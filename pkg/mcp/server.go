package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sinteflow/sinte/internal/runner"
)

// SinteServerDeps holds the dependencies for creating a SinteServer.
type SinteServerDeps struct {
	Runner  *runner.Runner
	Logger  *slog.Logger
	Version string
}

// SinteServer wraps an MCP server with chain tool handlers.
type SinteServer struct {
	runner    *runner.Runner
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewSinteServer creates a new SinteServer with all tools registered.
func NewSinteServer(deps SinteServerDeps) *SinteServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &SinteServer{
		runner: deps.Runner,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"sinte",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithInstructions("Sinte runs declarative chains of steps. Use sinte.list to see the loaded chains and their input schemas, sinte.run to run one, sinte.validate to check a chain document before saving it, and sinte.diagram to draw a chain."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport on stdin/stdout and blocks until ctx is
// cancelled or stdin closes.
func (s *SinteServer) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO is Serve over arbitrary streams.
func (s *SinteServer) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *SinteServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *SinteServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: listTool(), Handler: s.handleList},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func listTool() mcp.Tool {
	return mcp.NewTool("sinte.list",
		mcp.WithDescription("List the loaded chains with their descriptions and input schemas"),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("sinte.run",
		mcp.WithDescription("Run a loaded chain and return its context and results"),
		mcp.WithString("chain", mcp.Required(), mcp.Description("Name of the chain to run")),
		mcp.WithObject("input", mcp.Description("Chain input, checked against the chain's input schema")),
		mcp.WithObject("auth", mcp.Description("Per-step credentials keyed by step id; each step only sees its own entry")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("sinte.validate",
		mcp.WithDescription("Validate a chain document without running it"),
		mcp.WithString("definition", mcp.Required(), mcp.Description("Chain document as YAML or JSON text")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("sinte.diagram",
		mcp.WithDescription("Draw a chain. Returns ASCII art, Mermaid flowchart syntax, or a base64-encoded PNG image"),
		mcp.WithString("chain", mcp.Description("Name of a loaded chain")),
		mcp.WithString("definition", mcp.Description("Chain document as YAML or JSON text, used when chain is not set")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
		mcp.WithBoolean("include_status", mcp.Description("Overlay the outcome of the chain's last run (loaded chains only)")),
	)
}
