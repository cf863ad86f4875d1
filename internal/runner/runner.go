// Package runner runs named chains from a catalog. It is the one place the
// CLI, the MCP server and the cron scheduler go through to start a run.
package runner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sinteflow/sinte/internal/engine"
	"github.com/sinteflow/sinte/internal/integrations"
	"github.com/sinteflow/sinte/internal/loader"
	"github.com/sinteflow/sinte/internal/logging"
	"github.com/sinteflow/sinte/internal/validation"
	"github.com/sinteflow/sinte/pkg/schema"
)

// Deps holds the collaborators shared by every run.
type Deps struct {
	Resolver  integrations.Resolver
	Scripts   engine.ScriptExecutor
	Validator *validation.Validator
	Logger    *slog.Logger
}

// ChainInfo describes a catalog entry.
type ChainInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Path        string         `json:"path,omitempty"`
	Steps       int            `json:"steps"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	Warnings    int            `json:"warnings,omitempty"`
}

// RunRecord is the outcome of one run of a catalog chain.
type RunRecord struct {
	Chain     string
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Result    *engine.Result
	Err       error
}

// Observer is told about every finished catalog run.
type Observer interface {
	RunFinished(ctx context.Context, rec RunRecord)
}

// Runner runs chains from a catalog.
type Runner struct {
	catalog   *loader.Catalog
	resolver  integrations.Resolver
	scripts   engine.ScriptExecutor
	validator *validation.Validator
	logger    *slog.Logger

	mu        sync.RWMutex
	lastRuns  map[string]RunRecord
	observers []Observer
}

// New creates a Runner. A nil catalog is treated as empty.
func New(catalog *loader.Catalog, deps Deps) *Runner {
	if catalog == nil {
		catalog = loader.NewCatalog()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		catalog:   catalog,
		resolver:  deps.Resolver,
		scripts:   deps.Scripts,
		validator: deps.Validator,
		logger:    logger,
		lastRuns:  make(map[string]RunRecord),
	}
}

// AddObserver registers o for every run finished after the call.
func (r *Runner) AddObserver(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Definition returns the catalog definition of the named chain.
func (r *Runner) Definition(name string) (*schema.Definition, error) {
	entry, err := r.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return entry.Definition, nil
}

// LastRun returns the most recent finished run of the named chain.
func (r *Runner) LastRun(name string) (RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.lastRuns[name]
	return rec, ok
}

// Chains lists the catalog, sorted by name.
func (r *Runner) Chains() []ChainInfo {
	names := r.catalog.Names()
	out := make([]ChainInfo, 0, len(names))
	for _, name := range names {
		entry, err := r.catalog.Get(name)
		if err != nil {
			continue
		}
		out = append(out, ChainInfo{
			Name:        name,
			Description: entry.Definition.Description,
			Path:        entry.Path,
			Steps:       len(entry.Definition.Steps),
			InputSchema: entry.Definition.InputSchema,
			Warnings:    len(entry.Warnings),
		})
	}
	return out
}

// Run runs the named chain and records the outcome as its last run.
func (r *Runner) Run(ctx context.Context, name string, input map[string]any, auth engine.AuthMap) (*engine.Result, error) {
	entry, err := r.catalog.Get(name)
	if err != nil {
		return nil, err
	}

	runID := logging.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}

	start := time.Now()
	res, err := r.RunDefinition(ctx, entry.Definition, input, auth)
	r.finish(ctx, RunRecord{
		Chain:     name,
		RunID:     runID,
		StartedAt: start,
		Duration:  time.Since(start),
		Result:    res,
		Err:       err,
	})
	return res, err
}

func (r *Runner) finish(ctx context.Context, rec RunRecord) {
	r.mu.Lock()
	r.lastRuns[rec.Chain] = rec
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	for _, o := range observers {
		o.RunFinished(ctx, rec)
	}
}

// RunChain runs the named chain with no credentials and discards the
// result. It lets the scheduler fire catalog chains.
func (r *Runner) RunChain(ctx context.Context, name string, input map[string]any) error {
	_, err := r.Run(ctx, name, input, nil)
	return err
}

// RunDefinition checks input against def's input schema and runs def.
func (r *Runner) RunDefinition(ctx context.Context, def *schema.Definition, input map[string]any, auth engine.AuthMap) (*engine.Result, error) {
	if input == nil {
		input = map[string]any{}
	}
	if r.validator != nil {
		if err := r.validator.ValidateInput(input, def.InputSchema); err != nil {
			return nil, err
		}
	}
	eng := engine.New(def.Steps, r.resolver, r.scripts, engine.WithLogger(r.logger))
	return eng.Run(ctx, input, auth)
}

// Validate decodes a chain document from src and runs the full validation
// pipeline on it. Decode failures are reported as a single error issue.
func (r *Runner) Validate(src io.Reader) (*schema.Definition, *schema.ValidationResult) {
	doc, err := loader.Decode(src)
	if err != nil {
		result := &schema.ValidationResult{}
		result.AddError("/", "", schema.ErrorCode(err), err.Error())
		return nil, result
	}
	return r.validator.ValidateDocument(doc)
}
