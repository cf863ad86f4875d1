package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sinteflow/sinte/internal/loader"
	"github.com/sinteflow/sinte/internal/scheduler"
	sintemcp "github.com/sinteflow/sinte/pkg/mcp"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chains directory over MCP on stdio and fire scheduled runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := o.app

			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}
			r := a.newRunner(cat)

			srv := sintemcp.NewSinteServer(sintemcp.SinteServerDeps{
				Runner:  r,
				Logger:  a.logger,
				Version: version,
			})
			r.AddObserver(sintemcp.NewRunNotifier(srv.MCPServer()))

			jobs, err := scheduler.LoadJobsFile(filepath.Join(a.cfg.ChainsDir, loader.SchedulesFile))
			if err != nil {
				return err
			}
			for _, job := range jobs {
				if _, err := cat.Get(job.Chain); err != nil {
					return fmt.Errorf("schedule %q: %w", job.Name, err)
				}
			}

			sched, err := scheduler.New(jobs, r, a.logger)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := sched.Stop(); err != nil {
					a.logger.Warn("scheduler stop", slog.String("error", err.Error()))
				}
			}()

			a.logger.Info("serving",
				slog.Int("chains", cat.Len()),
				slog.Int("jobs", len(jobs)),
				slog.String("chains_dir", a.cfg.ChainsDir))
			return srv.ServeIO(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
