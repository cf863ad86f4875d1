package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/sinteflow/sinte/internal/runner"
	"github.com/sinteflow/sinte/pkg/schema"
)

// RunNotifier pushes the outcome of every finished run to all connected
// clients as a notifications/message log entry. Delivery is best-effort: a
// client whose channel is full misses the message.
type RunNotifier struct {
	mcpServer *server.MCPServer
}

// NewRunNotifier creates a notifier that broadcasts through mcpServer.
func NewRunNotifier(mcpServer *server.MCPServer) *RunNotifier {
	return &RunNotifier{mcpServer: mcpServer}
}

// RunFinished implements runner.Observer.
func (n *RunNotifier) RunFinished(_ context.Context, rec runner.RunRecord) {
	n.mcpServer.SendNotificationToAllClients("notifications/message", runPayload(rec))
}

// runPayload builds the notification params for rec.
func runPayload(rec runner.RunRecord) map[string]any {
	data := map[string]any{
		"chain":       rec.Chain,
		"run_id":      rec.RunID,
		"started_at":  rec.StartedAt,
		"duration_ms": rec.Duration.Milliseconds(),
		"status":      "success",
	}
	level := "info"
	if rec.Err != nil {
		level = "error"
		data["status"] = "error"
		data["code"] = schema.ErrorCode(rec.Err)
		data["error"] = rec.Err.Error()
	}
	return map[string]any{
		"level":  level,
		"logger": "sinte.runs",
		"data":   data,
	}
}

var _ runner.Observer = (*RunNotifier)(nil)
