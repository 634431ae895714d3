package loader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	props "github.com/goliatone/go-props"
	"github.com/goliatone/go-props/pkg/loader"
	"github.com/goliatone/go-props/pkg/registry"
)

func TestLoadTablesDocument(t *testing.T) {
	path := filepath.Join("testdata", "tables.yaml")
	doc, err := loader.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	id, err := doc.Ref().Identifier()
	if err != nil {
		t.Fatalf("identifier: %v", err)
	}
	if id != "tables@1" {
		t.Fatalf("expected tables@1, got %s", id)
	}
	if doc.Path() != path {
		t.Fatalf("expected path %s, got %s", path, doc.Path())
	}
	if doc.Session.ResolverTimeout != 2*time.Second {
		t.Fatalf("expected 2s resolver timeout, got %s", doc.Session.ResolverTimeout)
	}
	if doc.Session.MaxConcurrency != 4 {
		t.Fatalf("expected max concurrency 4, got %d", doc.Session.MaxConcurrency)
	}
	if len(doc.Properties) != 4 {
		t.Fatalf("expected 4 properties, got %d", len(doc.Properties))
	}
	if doc.Properties[2].Kind != props.KindNestedDynamic {
		t.Fatalf("expected fields to be nested, got %q", doc.Properties[2].Kind)
	}

	snapshot := doc.Snapshot()
	if value, _ := snapshot.Value("connection"); value != "primary" {
		t.Fatalf("expected connection value primary, got %v", value)
	}
	if !snapshot.Present(props.AuthKey) {
		t.Fatalf("expected auth from document")
	}
}

func TestDocumentSessionResolvesTables(t *testing.T) {
	ctx := context.Background()
	doc, err := loader.Load(filepath.Join("testdata", "tables.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	schema, err := doc.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if got := schema.Keys(); !reflect.DeepEqual(got, []string{"connection", "table", "fields", "sort"}) {
		t.Fatalf("unexpected keys %v", got)
	}

	session, view, err := props.Open(ctx, schema, doc.Snapshot(), doc.SessionOptions()...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer session.Close()

	table := view.Options("table")
	if table == nil || table.Disabled {
		t.Fatalf("expected enabled table options, got %+v", table)
	}
	want := []props.Option{{Label: "Users", Value: "users"}, {Label: "Orders", Value: "orders"}}
	if !reflect.DeepEqual(table.Options, want) {
		t.Fatalf("unexpected table options %+v", table.Options)
	}

	fields, _ := view.Field("fields")
	if !fields.Disabled() {
		t.Fatalf("expected fields disabled until a table is selected, got %+v", fields)
	}
	if fields.Placeholder() != "Please select Table first" {
		t.Fatalf("unexpected placeholder %q", fields.Placeholder())
	}

	sortOptions := view.Options("sort")
	if sortOptions == nil || len(sortOptions.Options) != 2 {
		t.Fatalf("expected static sort options, got %+v", sortOptions)
	}

	view, err = session.SetValue(ctx, "table", "orders")
	if err != nil {
		t.Fatalf("set table: %v", err)
	}
	fields, _ = view.Field("fields")
	if fields.Status != props.StatusResolved {
		t.Fatalf("expected fields resolved, got %s (%s)", fields.Status, fields.Error)
	}
	if !reflect.DeepEqual(fields.Children, []string{"fields.id", "fields.total", "fields.status"}) {
		t.Fatalf("unexpected children %v", fields.Children)
	}
	total, ok := view.Field("fields.total")
	if !ok || total.DisplayName != "TOTAL" || total.Parent != "fields" {
		t.Fatalf("unexpected child state %+v", total)
	}

	view, err = session.SetValue(ctx, "table", "users")
	if err != nil {
		t.Fatalf("set table: %v", err)
	}
	if _, ok := view.Field("fields.total"); ok {
		t.Fatalf("expected orders columns pruned")
	}
	fields, _ = view.Field("fields")
	if !reflect.DeepEqual(fields.Children, []string{"fields.id", "fields.email"}) {
		t.Fatalf("unexpected children %v", fields.Children)
	}
}

func TestDocumentExpressionsCompile(t *testing.T) {
	doc, err := loader.Load(filepath.Join("testdata", "tables.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := doc.Compile(); err != nil {
		t.Fatalf("compile tables expressions: %v", err)
	}

	broken, err := loader.Parse([]byte(`
piece: broken
properties:
  - key: table
    kind: dynamic
    expr: 'map(args.tables, {"label": #.label})'
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = broken.Compile()
	if err == nil {
		t.Fatalf("expected compile error for bare map literal predicate")
	}
	if !props.IsCompileError(err) || !strings.Contains(err.Error(), `property "table"`) {
		t.Fatalf("expected compile error naming the property, got %v", err)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "empty", yaml: "", wantErr: "empty document"},
		{name: "unknown key", yaml: "piece: x\nbogus: 1\nproperties:\n  - key: a\n", wantErr: "bogus"},
		{name: "missing piece", yaml: "properties:\n  - key: a\n", wantErr: "piece"},
		{name: "no properties", yaml: "piece: x\n", wantErr: "at least one property"},
		{name: "negative concurrency", yaml: "piece: x\nsession:\n  max_concurrency: -1\nproperties:\n  - key: a\n", wantErr: "max_concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSchemaReportsDescriptorErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(error) bool
		wantErr string
	}{
		{
			name:    "unknown engine",
			yaml:    "piece: x\nengine: lua\nproperties:\n  - key: a\n",
			check:   func(err error) bool { return errors.Is(err, props.ErrEngineUnavailable) },
			wantErr: "ErrEngineUnavailable",
		},
		{
			name: "dynamic without expr",
			yaml: "piece: x\nproperties:\n  - key: a\n    kind: dynamic\n",
			check: func(err error) bool {
				var invalid *props.InvalidSpecError
				return errors.As(err, &invalid) && invalid.Key == "a"
			},
			wantErr: "InvalidSpecError",
		},
		{
			name: "cycle",
			yaml: "piece: x\nproperties:\n  - key: a\n    expr: b\n    refreshers: [b]\n  - key: b\n    expr: a\n    refreshers: [a]\n",
			check: func(err error) bool {
				var cyclic *props.CyclicDependencyError
				return errors.As(err, &cyclic)
			},
			wantErr: "CyclicDependencyError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := loader.Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, err = doc.Schema()
			if err == nil || !tt.check(err) {
				t.Fatalf("expected %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDocumentUsesFunctionRegistry(t *testing.T) {
	var seen []any
	functions := props.NewFunctionRegistry().MustRegister("listBases", func(ctx context.Context, args ...any) (any, error) {
		seen = append(seen, args...)
		return []any{"base-a", "base-b"}, nil
	})

	doc, err := loader.Parse([]byte(`
piece: airtable
properties:
  - key: base
    kind: dynamic
    refreshers: [auth]
    expr: 'listbases(auth.token)'
auth:
  token: t-1
`), loader.WithFunctionRegistry(functions))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	schema, err := doc.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	session, view, err := props.Open(context.Background(), schema, doc.Snapshot())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer session.Close()

	options := view.Options("base")
	if options == nil || len(options.Options) != 2 || options.Options[0].Value != "base-a" {
		t.Fatalf("unexpected base options %+v", options)
	}
	if !reflect.DeepEqual(seen, []any{"t-1"}) {
		t.Fatalf("expected function to receive the token, got %v", seen)
	}
}

func TestLoadDir(t *testing.T) {
	docs, err := loader.LoadDir(filepath.Join("testdata", "pieces"))
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, id := range []string{"crm@2", "mail@0"} {
		if _, ok := docs[id]; !ok {
			t.Fatalf("expected document %s, got %v", id, keys(docs))
		}
	}

	mail, err := docs["mail@0"].Schema()
	if err != nil {
		t.Fatalf("mail schema: %v", err)
	}
	if mail.AuthRequired() {
		t.Fatalf("expected auth to be optional for mail")
	}
	session, view, err := props.Open(context.Background(), mail, docs["mail@0"].Snapshot())
	if err != nil {
		t.Fatalf("open mail: %v", err)
	}
	defer session.Close()
	folder := view.Options("folder")
	if folder == nil || folder.Disabled || len(folder.Options) != 1 {
		t.Fatalf("expected inbox only without auth, got %+v", folder)
	}
}

func TestLoadDirRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	body := []byte("piece: crm\nversion: \"1\"\nproperties:\n  - key: a\n")
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	_, err := loader.LoadDir(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate schema") {
		t.Fatalf("expected duplicate schema error, got %v", err)
	}
}

func TestRegisterLoadedDocuments(t *testing.T) {
	ctx := context.Background()
	docs, err := loader.LoadDir(filepath.Join("testdata", "pieces"))
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	reg := registry.Registry{Store: registry.NewMemoryStore()}
	for id, doc := range docs {
		schema, err := doc.Schema()
		if err != nil {
			t.Fatalf("%s schema: %v", id, err)
		}
		if _, err := reg.Register(ctx, doc.Ref(), schema, registry.Meta{}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	session, view, err := reg.Open(ctx, registry.Ref{Piece: "crm", Version: "2"}, props.NewSnapshot(nil).WithAuth("key"))
	if err != nil {
		t.Fatalf("open crm: %v", err)
	}
	defer session.Close()
	pipeline := view.Options("pipeline")
	if pipeline == nil || len(pipeline.Options) != 2 {
		t.Fatalf("unexpected pipeline options %+v", pipeline)
	}
}

func keys(docs map[string]*loader.Document) []string {
	out := make([]string, 0, len(docs))
	for id := range docs {
		out = append(out, id)
	}
	return out
}

func TestSnapshotLayersValueFiles(t *testing.T) {
	doc, err := loader.Parse([]byte(`
piece: tables
properties:
  - key: table
  - key: filter
values:
  table: users
  filter:
    status: any
    limit: 10
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	saved, err := loader.LoadValues(filepath.Join("testdata", "orders_values.yaml"))
	if err != nil {
		t.Fatalf("load values: %v", err)
	}

	snapshot := doc.Snapshot(map[string]any{"table": "invoices"}, saved)
	if value, _ := snapshot.Value("table"); value != "invoices" {
		t.Fatalf("expected strongest override to win, got %v", value)
	}
	filter, _ := snapshot.Value("filter")
	want := map[string]any{"status": "open", "limit": 10}
	if !reflect.DeepEqual(filter, want) {
		t.Fatalf("expected merged filter %v, got %v", want, filter)
	}
	if value, _ := doc.Snapshot().Value("table"); value != "users" {
		t.Fatalf("expected document value without overrides, got %v", value)
	}

	origins := doc.Origins(map[string]any{"table": "invoices"}, saved)
	wantOrigins := map[string]string{"table": "override[0]", "filter": "override[1]"}
	for key, name := range wantOrigins {
		if origins[key] != name {
			t.Fatalf("expected %s from %s, got %v", key, name, origins)
		}
	}
}

func TestLoadValuesMissingFile(t *testing.T) {
	if _, err := loader.LoadValues(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing values file")
	}
}
