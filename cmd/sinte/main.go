package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sinteflow/sinte/internal/engine"
	"github.com/sinteflow/sinte/internal/integrations"
	"github.com/sinteflow/sinte/pkg/schema"
)

func main() {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(settingsPath(), os.Getenv)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// rootOptions carries the persistent flags and the app built from them.
type rootOptions struct {
	settingsPath string
	getenv       func(string) string

	logLevel    string
	handlersDir string
	chainsDir   string

	app *app
}

// setup resolves the configuration and wires the app. Flags win over
// everything loadConfig reads.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(o.settingsPath, o.getenv)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("handlers") {
		cfg.HandlersDir = o.handlersDir
	}
	if flags.Changed("chains") {
		cfg.ChainsDir = o.chainsDir
	}

	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	o.app = a
	return nil
}

func newRootCmd(settingsPath string, getenv func(string) string) *cobra.Command {
	o := &rootOptions{settingsPath: settingsPath, getenv: getenv}

	root := &cobra.Command{
		Use:               "sinte",
		Short:             "Declarative chain execution engine",
		Long:              "sinte runs chains of steps declared in YAML or JSON. Steps call Lua handlers or the built-in loop and condition constructs.",
		SilenceUsage:      true,
		PersistentPreRunE: o.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&o.handlersDir, "handlers", "", "handler directory (<provider>/<action>.lua)")
	pf.StringVar(&o.chainsDir, "chains", "", "chains directory")

	root.AddCommand(
		newRunCmd(o),
		newValidateCmd(o),
		newListCmd(o),
		newHandlersCmd(o),
		newDiagramCmd(o),
		newServeCmd(o),
		newVersionCmd(),
	)
	return root
}

// --- run ---

func newRunCmd(o *rootOptions) *cobra.Command {
	var inputFlag, authFlag string

	cmd := &cobra.Command{
		Use:   "run <chain>",
		Short: "Run a chain file, or a chain from the chains directory by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseObjectFlag("input", inputFlag)
			if err != nil {
				return err
			}
			rawAuth, err := parseObjectFlag("auth", authFlag)
			if err != nil {
				return err
			}
			auth, err := toAuthMap(rawAuth)
			if err != nil {
				return err
			}

			cat, name, err := o.app.catalogFor(args[0])
			if err != nil {
				return err
			}
			res, err := o.app.newRunner(cat).Run(cmd.Context(), name, input, auth)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&inputFlag, "input", "", "chain input as a JSON or YAML object, or @file")
	cmd.Flags().StringVar(&authFlag, "auth", "", "per-step credentials keyed by step id, as JSON or YAML, or @file")
	return cmd
}

// parseObjectFlag decodes a flag holding an object inline or, with a leading
// @, in a file. YAML is a superset of JSON, so both are accepted.
func parseObjectFlag(name, value string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}
	data := []byte(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
	}

	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("--%s: must be an object: %w", name, err)
	}
	return out, nil
}

func toAuthMap(raw map[string]any) (engine.AuthMap, error) {
	if raw == nil {
		return nil, nil
	}
	auth := make(engine.AuthMap, len(raw))
	for stepID, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("--auth: entry %q must be an object", stepID)
		}
		auth[stepID] = m
	}
	return auth, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- validate ---

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <chain-file>...",
		Short: "Validate chain files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			r := o.app.newRunner(nil)

			invalid := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				def, result := r.Validate(f)
				f.Close()

				for _, w := range result.Warnings {
					fmt.Fprintf(out, "  ⚠ %s\n", w)
				}
				if !result.Valid() {
					invalid++
					fmt.Fprintf(out, "✗ %s: %d error(s)\n", path, len(result.Errors))
					for i, e := range result.Errors {
						fmt.Fprintf(out, "  %d. %s\n", i+1, e)
					}
					continue
				}
				fmt.Fprintf(out, "✓ %s is valid (%d steps)\n", path, len(def.Steps))
			}

			if invalid > 0 {
				return schema.NewErrorf(schema.ErrCodeValidation, "%d of %d chain file(s) invalid", invalid, len(args))
			}
			return nil
		},
	}
}

// --- list ---

func newListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the chains in the chains directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := o.app.loadCatalog()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTEPS\tDESCRIPTION")
			for _, c := range o.app.newRunner(cat).Chains() {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Name, c.Steps, c.Description)
			}
			return tw.Flush()
		},
	}
}

// --- handlers ---

func newHandlersCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List the built-in handlers and those in the handler directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HANDLER\tSOURCE")

			builtins, err := integrations.Builtins()
			if err != nil {
				return err
			}
			for _, h := range builtins.List() {
				fmt.Fprintf(tw, "%s/%s\tbuiltin\n", h.Provider, h.Action)
			}

			onDisk, err := o.app.handlers.List()
			if err != nil {
				return err
			}
			for _, h := range onDisk {
				fmt.Fprintf(tw, "%s/%s\t%s\n", h.Provider, h.Action, o.app.handlers.Root())
			}
			return tw.Flush()
		},
	}
}

// --- version ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}
