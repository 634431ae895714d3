package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	props "github.com/goliatone/go-props"
	"github.com/goliatone/go-props/pkg/loader"
	"github.com/goliatone/go-props/schema/openapi"
)

type resolveOptions struct {
	values  []string
	sets    []string
	auth    string
	noAuth  bool
	trace   bool
	timeout time.Duration
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	ro := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <schema-file>",
		Short: "Open a session for a schema, apply values and print the resolved fields",
		Long: "Open a resolution session with the document's initial values layered under any --values files, apply every --set in order " +
			"and print the settled view. Values are parsed as JSON when possible and as plain strings otherwise.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts, ro, args[0])
		},
	}
	cmd.Flags().StringArrayVar(&ro.values, "values", nil, "YAML values file layered over the document values, repeatable; later files win")
	cmd.Flags().StringArrayVar(&ro.sets, "set", nil, "field assignment key=value, repeatable")
	cmd.Flags().StringVar(&ro.auth, "auth", "", "auth value, overrides the document's auth")
	cmd.Flags().BoolVar(&ro.noAuth, "no-auth", false, "clear the document's auth")
	cmd.Flags().BoolVar(&ro.trace, "trace", false, "print the provenance of the last pass")
	cmd.Flags().DurationVar(&ro.timeout, "timeout", 0, "resolver timeout, overrides the document's session config")
	return cmd
}

func runResolve(cmd *cobra.Command, opts *rootOptions, ro *resolveOptions, path string) error {
	if err := opts.checkFormat("table", "json", "openapi"); err != nil {
		return err
	}
	assignments, err := parseAssignments(ro.sets)
	if err != nil {
		return err
	}
	doc, schema, err := loadSchema(path, opts.loaderOptions(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	overrides := make([]map[string]any, len(ro.values))
	for i, path := range ro.values {
		values, err := loader.LoadValues(path)
		if err != nil {
			return err
		}
		overrides[len(ro.values)-1-i] = values
	}
	initial := doc.Snapshot(overrides...)
	origins := doc.Origins(overrides...)
	for i := range overrides {
		origins = relabelOrigins(origins, fmt.Sprintf("override[%d]", i), ro.values[len(ro.values)-1-i])
	}
	for _, a := range assignments {
		origins[a.key] = "--set"
	}
	switch {
	case ro.noAuth:
		initial = initial.WithAuth(nil)
	case ro.auth != "":
		initial = initial.WithAuth(parseValue(ro.auth))
	}
	sessionOpts := doc.SessionOptions()
	if ro.timeout > 0 {
		sessionOpts = append(sessionOpts, props.WithResolverTimeout(ro.timeout))
	}
	if opts.verbose {
		sessionOpts = append(sessionOpts, props.WithLogger(opts.logger(cmd.ErrOrStderr())))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	session, view, err := props.Open(ctx, schema, initial, sessionOpts...)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, a := range assignments {
		view, err = session.SetValue(ctx, a.key, a.value)
		if err != nil {
			return fmt.Errorf("set %s: %w", a.key, err)
		}
	}

	out := cmd.OutOrStdout()
	switch opts.outputFormat {
	case "json":
		payload := map[string]any{"view": view}
		if ro.trace {
			payload["trace"] = session.LastTrace()
			payload["origins"] = origins
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case "openapi":
		data, err := openapi.NewGenerator(
			openapi.WithInfo("", doc.Ref().Version),
			openapi.WithSharedOptions(),
			openapi.WithSessionMetadata(),
		).Marshal(view)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	default:
		if err := printView(out, view); err != nil {
			return err
		}
		if ro.trace {
			if err := printTrace(out, session.LastTrace()); err != nil {
				return err
			}
			return printOrigins(out, origins)
		}
		return nil
	}
}

type assignment struct {
	key   string
	value any
}

func parseAssignments(raw []string) ([]assignment, error) {
	out := make([]assignment, 0, len(raw))
	for _, entry := range raw {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", entry)
		}
		out = append(out, assignment{key: key, value: parseValue(value)})
	}
	return out, nil
}

// parseValue decodes JSON literals and falls back to the raw string.
func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func printView(out io.Writer, view props.View) error {
	fmt.Fprintf(out, "%s %s\n", styles.header.Render(view.Schema),
		styles.muted.Render(fmt.Sprintf("session %s, generation %d", view.SessionID, view.Generation)))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tKIND\tVALUE\tOPTIONS\tSTATUS")
	for _, state := range view.States() {
		key := state.Key
		if state.Required {
			key += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", key, state.Kind, formatValue(state), formatOptions(state), statusCell(state.Status))
	}
	return w.Flush()
}

func printTrace(out io.Writer, trace props.PassTrace) error {
	fmt.Fprintf(out, "\n%s %s\n", styles.header.Render("trace"),
		styles.muted.Render(fmt.Sprintf("%s, generation %d, %s", trace.Trigger, trace.Generation, trace.Duration.Round(time.Microsecond))))
	if len(trace.Dirty) > 0 {
		fmt.Fprintf(out, "dirty:    %s\n", strings.Join(trace.Dirty, ", "))
	}
	if len(trace.Pruned) > 0 {
		fmt.Fprintf(out, "pruned:   %s\n", strings.Join(trace.Pruned, ", "))
	}
	if len(trace.Expanded) > 0 {
		fmt.Fprintf(out, "expanded: %s\n", strings.Join(trace.Expanded, ", "))
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tDURATION\tERROR\tOUTCOME")
	for _, step := range trace.Steps {
		errText := "-"
		if step.Error != "" {
			errText = step.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", step.Key, step.Duration.Round(time.Microsecond), errText, outcomeCell(step.Outcome))
	}
	return w.Flush()
}

func formatValue(state props.FieldState) string {
	if !state.HasValue {
		return "-"
	}
	data, err := json.Marshal(state.Value)
	if err != nil {
		return fmt.Sprint(state.Value)
	}
	return truncate(string(data), 32)
}

func formatOptions(state props.FieldState) string {
	switch {
	case state.Options == nil:
		if len(state.Children) > 0 {
			return fmt.Sprintf("%d children", len(state.Children))
		}
		return "-"
	case state.Options.Disabled:
		return truncate(state.Options.Placeholder, 40)
	case state.Kind == props.KindNestedDynamic:
		return fmt.Sprintf("%d children", len(state.Children))
	}
	labels := make([]string, 0, len(state.Options.Options))
	for _, option := range state.Options.Options {
		labels = append(labels, option.Label)
	}
	return truncate(strings.Join(labels, ", "), 40)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func relabelOrigins(origins map[string]string, from, to string) map[string]string {
	for key, name := range origins {
		if name == from {
			origins[key] = to
		}
	}
	return origins
}

// printOrigins lists the layer that supplied each value.
func printOrigins(out io.Writer, origins map[string]string) error {
	if len(origins) == 0 {
		return nil
	}
	keys := make([]string, 0, len(origins))
	for key := range origins {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "\n%s\n", styles.header.Render("values"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSOURCE")
	for _, key := range keys {
		fmt.Fprintf(w, "%s\t%s\n", key, origins[key])
	}
	return w.Flush()
}
