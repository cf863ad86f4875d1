package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/sinteflow/sinte/internal/diagram"
	"github.com/sinteflow/sinte/internal/engine"
	"github.com/sinteflow/sinte/pkg/schema"
)

// handleList returns the loaded chains.
func (s *SinteServer) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"chains": s.runner.Chains()})
}

// handleRun runs a loaded chain.
func (s *SinteServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("chain")
	if err != nil {
		return mcp.NewToolResultError("chain is required"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)

	auth, err := parseAuth(req.GetArguments()["auth"])
	if err != nil {
		return errorResult(err), nil
	}

	res, err := s.runner.Run(ctx, name, input, auth)
	if err != nil {
		s.logger.WarnContext(ctx, "chain run failed",
			"chain", name, "code", schema.ErrorCode(err), "error", err.Error())
		return errorResult(err), nil
	}
	return marshalResult(res)
}

// validateResponse is the payload of sinte.validate.
type validateResponse struct {
	Valid    bool                     `json:"valid"`
	Name     string                   `json:"name,omitempty"`
	Steps    int                      `json:"steps"`
	Errors   []schema.ValidationIssue `json:"errors"`
	Warnings []schema.ValidationIssue `json:"warnings"`
}

// handleValidate validates a chain document without running it.
func (s *SinteServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("definition")
	if err != nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	def, result := s.runner.Validate(strings.NewReader(text))
	resp := validateResponse{
		Valid:    result.Valid(),
		Errors:   nonNil(result.Errors),
		Warnings: nonNil(result.Warnings),
	}
	if def != nil {
		resp.Name = def.Name
		resp.Steps = len(def.Steps)
	}
	return marshalResult(resp)
}

// handleDiagram draws a loaded chain or an inline chain document.
func (s *SinteServer) handleDiagram(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	name := req.GetString("chain", "")
	text := req.GetString("definition", "")
	if name == "" && text == "" {
		return mcp.NewToolResultError("one of chain or definition is required"), nil
	}

	var (
		def      *schema.Definition
		statuses map[string]string
	)
	if name != "" {
		def, err = s.runner.Definition(name)
		if err != nil {
			return errorResult(err), nil
		}
		if req.GetBool("include_status", false) {
			if rec, ok := s.runner.LastRun(name); ok {
				statuses = diagram.RunStatuses(def.Steps, rec.Result, rec.Err)
			}
		}
	} else {
		var result *schema.ValidationResult
		def, result = s.runner.Validate(strings.NewReader(text))
		if def == nil {
			return errorResult(result.ToError()), nil
		}
	}

	model := diagram.Build(def.Name, def.Steps, statuses)

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(context.Background(), model, diagram.FormatPNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultImage("diagram of "+model.Title, base64.StdEncoding.EncodeToString(png), "image/png"), nil
	}
}

// --- Helpers ---

// parseAuth converts the auth argument into an AuthMap. Every entry must be
// an object.
func parseAuth(v any) (engine.AuthMap, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "auth must be an object keyed by step id")
	}
	auth := make(engine.AuthMap, len(raw))
	for stepID, entry := range raw {
		m, err := cast.ToStringMapE(entry)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "auth entry %q must be an object", stepID)
		}
		auth[stepID] = m
	}
	return auth, nil
}

// errorResult renders err as a JSON tool error carrying its code.
func errorResult(err error) *mcp.CallToolResult {
	var se *schema.SinteError
	if !errors.As(err, &se) {
		se = schema.NewError(schema.ErrCodeExecution, err.Error())
	}
	data, mErr := json.Marshal(se)
	if mErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

func nonNil(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}
