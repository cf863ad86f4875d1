package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sinteflow/sinte/internal/capabilities"
	"github.com/sinteflow/sinte/internal/expressions"
	"github.com/sinteflow/sinte/internal/integrations"
	"github.com/sinteflow/sinte/internal/loader"
	"github.com/sinteflow/sinte/internal/logging"
	"github.com/sinteflow/sinte/internal/runner"
	"github.com/sinteflow/sinte/internal/script"
	"github.com/sinteflow/sinte/internal/validation"
)

// app holds the collaborators every command shares.
type app struct {
	cfg       Config
	logger    *slog.Logger
	resolver  integrations.Chained
	handlers  *integrations.DirResolver
	scripts   *script.Executor
	validator *validation.Validator
	loader    *loader.Loader
}

// newApp wires the engine stack from cfg. Logs go to logw.
func newApp(cfg Config, logw io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logw, level)

	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	httpCfg, err := cfg.HTTP()
	if err != nil {
		return nil, err
	}

	exprs, err := expressions.NewRegistry(cfg.TemplateLang)
	if err != nil {
		return nil, err
	}
	scripts := script.NewExecutor(exprs, script.Config{
		Limits:       limits,
		Capabilities: capabilities.Default(logger, httpCfg),
	})

	builtins, err := integrations.Builtins()
	if err != nil {
		return nil, fmt.Errorf("load builtin handlers: %w", err)
	}
	handlers := integrations.NewDirResolver(cfg.HandlersDir)
	resolver := integrations.Chain(builtins, handlers)

	v, err := validation.New(
		validation.WithHandlers(resolver),
		validation.WithLanguages(exprs.Languages()...),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		handlers:  handlers,
		scripts:   scripts,
		validator: v,
		loader:    loader.New(v),
	}, nil
}

// newRunner builds a runner over cat.
func (a *app) newRunner(cat *loader.Catalog) *runner.Runner {
	return runner.New(cat, runner.Deps{
		Resolver:  a.resolver,
		Scripts:   a.scripts,
		Validator: a.validator,
		Logger:    a.logger,
	})
}

// loadCatalog loads the chains directory. Files that fail to load are
// logged and left out.
func (a *app) loadCatalog() (*loader.Catalog, error) {
	cat, err := a.loader.LoadDir(a.cfg.ChainsDir)
	if cat == nil {
		return nil, err
	}
	if err != nil {
		a.logger.Warn("some chains failed to load", slog.String("dir", a.cfg.ChainsDir), slog.String("error", err.Error()))
	}
	return cat, nil
}

// catalogFor returns a catalog holding the chain named by ref. A ref naming
// an existing file is loaded on its own; anything else is looked up by name
// in the chains directory.
func (a *app) catalogFor(ref string) (*loader.Catalog, string, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		entry, err := a.loader.LoadFile(ref)
		if err != nil {
			return nil, "", err
		}
		for _, w := range entry.Warnings {
			a.logger.Warn("chain warning", slog.String("chain", entry.Name()), slog.String("issue", w.String()))
		}
		cat := loader.NewCatalog()
		if err := cat.Add(entry); err != nil {
			return nil, "", err
		}
		return cat, entry.Name(), nil
	}

	cat, err := a.loadCatalog()
	if err != nil {
		return nil, "", err
	}
	return cat, ref, nil
}
