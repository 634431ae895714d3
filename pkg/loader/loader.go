package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	props "github.com/goliatone/go-props"
	"github.com/goliatone/go-props/internal/layering"
	"github.com/goliatone/go-props/pkg/registry"
)

// Document is a declarative piece schema: expression backed properties plus
// optional fixtures, session tunables and initial values for local runs.
type Document struct {
	Piece        string             `yaml:"piece"`
	Version      string             `yaml:"version"`
	Engine       string             `yaml:"engine"`
	AuthRequired *bool              `yaml:"auth_required"`
	Fixtures     map[string]any     `yaml:"fixtures"`
	Session      props.Config       `yaml:"session"`
	Properties   []props.Descriptor `yaml:"properties"`
	Values       map[string]any     `yaml:"values"`
	Auth         any                `yaml:"auth"`

	path string
	cfg  config
}

// Option configures how documents become schemas.
type Option func(*config)

type config struct {
	registry *props.FunctionRegistry
	cache    props.ProgramCache
	logger   props.Logger
}

// WithFunctionRegistry exposes piece functions to the document expressions.
func WithFunctionRegistry(registry *props.FunctionRegistry) Option {
	return func(cfg *config) {
		cfg.registry = registry
	}
}

// WithProgramCache shares compiled programs across documents.
func WithProgramCache(cache props.ProgramCache) Option {
	return func(cfg *config) {
		cfg.cache = cache
	}
}

// WithLogger records expression evaluations.
func WithLogger(logger props.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// Load reads and parses a single YAML schema document.
func Load(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	doc, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	doc.path = path
	return doc, nil
}

// Parse decodes a YAML schema document. Unknown keys are rejected.
func Parse(data []byte, opts ...Option) (*Document, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty document")
		}
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&doc.cfg)
		}
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadDir reads every YAML document below dir, keyed by piece@version.
func LoadDir(dir string, opts ...Option) (map[string]*Document, error) {
	docs := make(map[string]*Document)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		doc, err := Load(path, opts...)
		if err != nil {
			return err
		}
		id, err := doc.Ref().Identifier()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if prior, exists := docs[id]; exists {
			return fmt.Errorf("duplicate schema %q in %s and %s", id, prior.path, path)
		}
		docs[id] = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading schemas from %s: %w", dir, err)
	}
	return docs, nil
}

func (d *Document) validate() error {
	if strings.TrimSpace(d.Piece) == "" {
		return fmt.Errorf("missing required field 'piece'")
	}
	if len(d.Properties) == 0 {
		return fmt.Errorf("must declare at least one property")
	}
	if err := d.Session.Validate(); err != nil {
		return err
	}
	return nil
}

// Ref returns the registry reference of the document. Version defaults to
// "0".
func (d *Document) Ref() registry.Ref {
	version := strings.TrimSpace(d.Version)
	if version == "" {
		version = "0"
	}
	return registry.Ref{Piece: strings.TrimSpace(d.Piece), Version: version}
}

// Path returns the file the document was loaded from, if any.
func (d *Document) Path() string {
	return d.path
}

// Evaluator builds the expression evaluator named by engine (default expr).
func (d *Document) Evaluator() (props.Evaluator, error) {
	cache := d.cfg.cache
	if cache == nil {
		cache = props.NewProgramCache()
	}
	return props.NewEvaluator(d.Engine, cache, d.cfg.registry)
}

// Compile type checks every property expression with the document engine and
// reports the first one that does not compile.
func (d *Document) Compile() error {
	evaluator, err := d.Evaluator()
	if err != nil {
		return err
	}
	for _, property := range d.Properties {
		if property.Expr == "" {
			continue
		}
		if _, err := evaluator.Compile(property.Expr); err != nil {
			return fmt.Errorf("piece %q property %q: %w", d.Piece, property.Key, err)
		}
	}
	return nil
}

// Schema compiles the document into a validated schema. Fixtures are bound as
// `args` in every expression.
func (d *Document) Schema() (*props.Schema, error) {
	evaluator, err := d.Evaluator()
	if err != nil {
		return nil, err
	}
	exprOpts := []props.ExpressionOption{props.WithExpressionArgs(d.Fixtures)}
	if d.cfg.logger != nil {
		exprOpts = append(exprOpts, props.WithExpressionLogger(d.cfg.logger))
	}
	specs, err := props.Specs(d.Properties, evaluator, exprOpts...)
	if err != nil {
		return nil, fmt.Errorf("piece %q: %w", d.Piece, err)
	}
	var schemaOpts []props.SchemaOption
	if d.AuthRequired != nil {
		schemaOpts = append(schemaOpts, props.WithAuthRequired(*d.AuthRequired))
	}
	return props.NewSchema(d.Piece, specs, schemaOpts...)
}

// Snapshot returns the initial values and auth declared by the document.
// overrides are layered over the document values, strongest first; nested
// maps merge key by key.
func (d *Document) Snapshot(overrides ...map[string]any) props.Snapshot {
	return props.NewSnapshot(layering.Merge(d.layers(overrides)...)).WithAuth(d.Auth)
}

// Origins names, for each top-level value of Snapshot(overrides...), the
// layer that supplied it: "override[i]" or "document".
func (d *Document) Origins(overrides ...map[string]any) map[string]string {
	return layering.Origins(d.layers(overrides)...)
}

func (d *Document) layers(overrides []map[string]any) []layering.Layer {
	layers := make([]layering.Layer, 0, len(overrides)+1)
	for i, values := range overrides {
		layers = append(layers, layering.Layer{Name: fmt.Sprintf("override[%d]", i), Values: values})
	}
	return append(layers, layering.Layer{Name: "document", Values: d.Values})
}

// LoadValues reads a YAML mapping of field values, such as a saved form.
func LoadValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading values file %s: %w", path, err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("values file %s: %w", path, err)
	}
	return values, nil
}

// SessionOptions returns the session configuration declared by the document.
func (d *Document) SessionOptions() []props.SessionOption {
	return []props.SessionOption{props.WithConfig(d.Session)}
}
