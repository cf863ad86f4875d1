package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sinteflow/sinte/internal/diagram"
)

func newDiagramCmd(o *rootOptions) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "diagram <chain>",
		Short: "Draw a chain file, or a chain from the chains directory",
		Long: "Draw a chain as ascii or mermaid text, or render it with graphviz as png, svg or dot.\n" +
			"Binary formats need --output unless stdout is redirected.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, name, err := o.app.catalogFor(args[0])
			if err != nil {
				return err
			}
			def, err := o.app.newRunner(cat).Definition(name)
			if err != nil {
				return err
			}
			model := diagram.Build(def.Name, def.Steps, nil)

			var data []byte
			switch format {
			case "ascii":
				data = []byte(diagram.RenderASCII(model))
			case "mermaid":
				data = []byte(diagram.RenderMermaid(model))
			case "png", "svg", "dot":
				data, err = diagram.RenderImage(cmd.Context(), model, diagram.ImageFormat(format))
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q: want ascii, mermaid, png, svg or dot", format)
			}

			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "ascii", "ascii, mermaid, png, svg or dot")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
