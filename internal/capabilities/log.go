package capabilities

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sinteflow/sinte/internal/sandbox"
)

// LogName is the global under which handlers see the log capability.
const LogName = "log"

// Log writes handler messages to an slog.Logger. Arguments are joined with
// spaces, the way a console print would show them.
type Log struct {
	logger *slog.Logger
}

// NewLog creates the log capability. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return LogName }

func (l *Log) Call(ctx context.Context, args []any) (any, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			parts[i] = "nil"
			continue
		}
		parts[i] = fmt.Sprint(a)
	}
	l.logger.InfoContext(ctx, strings.Join(parts, " "), slog.String("source", "handler"))
	return nil, nil
}

var _ sandbox.Capability = (*Log)(nil)
