package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGraphCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph <schema-file>",
		Short: "Export the refresher dependency graph of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, schema, err := loadSchema(args[0], opts.loaderOptions(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			graph := schema.Graph()
			out := cmd.OutOrStdout()

			switch format {
			case "dot":
				_, err = fmt.Fprint(out, graph.DOT())
			case "mermaid":
				_, err = fmt.Fprint(out, graph.Mermaid())
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				err = enc.Encode(map[string]any{
					"nodes": graph.Nodes(),
					"edges": graph.Edges(),
					"order": graph.TopoOrder(),
				})
			default:
				return fmt.Errorf("unsupported graph format %q", format)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "dot", "graph format: dot, mermaid or json")
	return cmd
}
