package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	props "github.com/goliatone/go-props"
	"github.com/goliatone/go-props/pkg/loader"
)

type rootOptions struct {
	outputFormat string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "propctl",
		Short:         "propctl inspects and resolves piece property schemas",
		Long:          "Validate YAML property schemas, export their refresher graph and run resolution sessions against them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "table", "output format: table, json or openapi")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log resolver activity to stderr")

	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newGraphCmd(opts))
	root.AddCommand(newResolveCmd(opts))
	return root
}

func (o *rootOptions) loaderOptions(stderr io.Writer) []loader.Option {
	if !o.verbose {
		return nil
	}
	return []loader.Option{loader.WithLogger(o.logger(stderr))}
}

func (o *rootOptions) logger(stderr io.Writer) props.Logger {
	handler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return props.SlogLogger(slog.New(handler))
}

func (o *rootOptions) checkFormat(allowed ...string) error {
	for _, format := range allowed {
		if o.outputFormat == format {
			return nil
		}
	}
	return fmt.Errorf("unsupported output format %q", o.outputFormat)
}

func loadSchema(path string, opts []loader.Option) (*loader.Document, *props.Schema, error) {
	doc, err := loader.Load(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	schema, err := doc.Schema()
	if err != nil {
		return nil, nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return doc, schema, nil
}
