// Package capabilities provides the host functions handler sandboxes may call.
package capabilities

import (
	"log/slog"

	"github.com/sinteflow/sinte/internal/sandbox"
)

// Default returns the standard capability list: log and httpRequest.
func Default(logger *slog.Logger, httpCfg HTTPConfig) []sandbox.Capability {
	return []sandbox.Capability{
		NewLog(logger),
		NewHTTPRequest(httpCfg),
	}
}
