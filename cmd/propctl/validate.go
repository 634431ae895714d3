package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	props "github.com/goliatone/go-props"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a YAML property schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.checkFormat("table", "json"); err != nil {
				return err
			}
			doc, schema, err := loadSchema(args[0], opts.loaderOptions(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if err := doc.Compile(); err != nil {
				return fmt.Errorf("schema file %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if opts.outputFormat == "json" {
				summary := struct {
					Piece   string `json:"piece"`
					Version string `json:"version"`
					Fields  int    `json:"fields"`
					Digest  string `json:"digest"`
				}{
					Piece:   schema.Name(),
					Version: doc.Ref().Version,
					Fields:  len(schema.Keys()),
					Digest:  schema.Digest(),
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			fmt.Fprintf(out, "%s Schema %q (version %s) is valid: %d fields, %s.\n",
				styles.ok.Render("✓"), schema.Name(), doc.Ref().Version, len(schema.Keys()), describeKinds(schema))
			fmt.Fprintf(out, "%s\n", styles.muted.Render("digest "+schema.Digest()))
			return nil
		},
	}
}

func describeKinds(schema *props.Schema) string {
	counts := map[props.Kind]int{}
	for _, key := range schema.Keys() {
		spec, _ := schema.Spec(key)
		counts[spec.Kind]++
	}
	return fmt.Sprintf("%d static, %d dynamic, %d nested",
		counts[props.KindStatic], counts[props.KindDynamic], counts[props.KindNestedDynamic])
}
