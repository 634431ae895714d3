package props

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Schema is the immutable, validated declaration of a piece's properties.
// Construction builds the dependency graph once and rejects cycles.
type Schema struct {
	name  string
	specs map[string]PropertySpec
	keys  []string
	graph *Graph
	cfg   schemaConfig
}

// SchemaOption configures schema construction.
type SchemaOption func(*schemaConfig)

type schemaConfig struct {
	authRequired bool
}

// WithAuthRequired controls whether a missing auth value short-circuits the
// fields that declare the auth refresher. Defaults to true.
func WithAuthRequired(required bool) SchemaOption {
	return func(cfg *schemaConfig) {
		cfg.authRequired = required
	}
}

// NewSchema validates specs and builds the dependency graph. Refreshers must
// name declared keys or AuthKey; cycles fail with *CyclicDependencyError.
func NewSchema(name string, specs []PropertySpec, opts ...SchemaOption) (*Schema, error) {
	cfg := schemaConfig{authRequired: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &Schema{
		name:  name,
		specs: make(map[string]PropertySpec, len(specs)),
		keys:  make([]string, 0, len(specs)),
		graph: newGraph(),
		cfg:   cfg,
	}
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, fmt.Errorf("props: schema %q: %w", name, err)
		}
		if _, dup := s.specs[spec.Key]; dup {
			return nil, fmt.Errorf("props: schema %q: %w", name, &DuplicateKeyError{Key: spec.Key})
		}
		s.specs[spec.Key] = spec.clone()
		s.keys = append(s.keys, spec.Key)
	}

	nodes := make(map[string]*graphNode, len(s.keys))
	for _, key := range s.keys {
		spec := s.specs[key]
		node := &graphNode{key: key, local: key, kind: spec.Kind}
		for _, ref := range spec.Refreshers {
			if ref != AuthKey {
				if _, ok := s.specs[ref]; !ok {
					return nil, fmt.Errorf("props: schema %q: %w", name, &UnknownRefresherError{Key: key, Refresher: ref})
				}
			}
			node.refs = append(node.refs, ref)
			node.deps = append(node.deps, ref)
		}
		nodes[key] = node
	}
	if cycle := detectCycle(nodes, s.keys); cycle != nil {
		return nil, &CyclicDependencyError{Schema: name, Cycle: cycle}
	}
	for _, key := range s.keys {
		s.graph.insert(nodes[key])
	}
	for _, key := range s.keys {
		s.graph.link(nodes[key])
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(name string, specs []PropertySpec, opts ...SchemaOption) *Schema {
	s, err := NewSchema(name, specs, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string {
	return s.name
}

// Keys returns the top-level keys in declaration order.
func (s *Schema) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Spec returns the declared spec for key.
func (s *Schema) Spec(key string) (PropertySpec, bool) {
	spec, ok := s.specs[key]
	if !ok {
		return PropertySpec{}, false
	}
	return spec.clone(), true
}

// AuthRequired reports whether missing auth short-circuits dependents.
func (s *Schema) AuthRequired() bool {
	return s.cfg.authRequired
}

// Graph returns a copy of the base dependency graph.
func (s *Schema) Graph() *Graph {
	return s.graph.clone()
}

// Digest fingerprints the structural declaration (keys, kinds, refreshers,
// required flags). Resolver identity is not part of the digest.
func (s *Schema) Digest() string {
	type entry struct {
		Key        string   `json:"key"`
		Kind       Kind     `json:"kind"`
		Required   bool     `json:"required"`
		Refreshers []string `json:"refreshers,omitempty"`
	}
	payload := struct {
		Name         string  `json:"name"`
		AuthRequired bool    `json:"auth_required"`
		Fields       []entry `json:"fields"`
	}{Name: s.name, AuthRequired: s.cfg.authRequired}
	for _, key := range s.keys {
		spec := s.specs[key]
		payload.Fields = append(payload.Fields, entry{
			Key:        spec.Key,
			Kind:       spec.Kind,
			Required:   spec.Required,
			Refreshers: spec.Refreshers,
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateSpec(spec PropertySpec) error {
	if err := validateKey(spec.Key); err != nil {
		return err
	}
	if !spec.Kind.Valid() {
		return &InvalidSpecError{Key: spec.Key, Reason: fmt.Sprintf("unknown kind %q", spec.Kind)}
	}
	switch spec.Kind {
	case KindStatic:
		if spec.Resolver != nil {
			return &InvalidSpecError{Key: spec.Key, Reason: "static fields take no resolver"}
		}
		if len(spec.Refreshers) > 0 {
			return &InvalidSpecError{Key: spec.Key, Reason: "static fields take no refreshers"}
		}
	default:
		if spec.Resolver == nil {
			return &InvalidSpecError{Key: spec.Key, Reason: fmt.Sprintf("%s fields require a resolver", spec.Kind)}
		}
	}
	seen := make(map[string]struct{}, len(spec.Refreshers))
	for _, ref := range spec.Refreshers {
		if strings.TrimSpace(ref) == "" {
			return &InvalidSpecError{Key: spec.Key, Reason: "empty refresher"}
		}
		if _, dup := seen[ref]; dup {
			return &InvalidSpecError{Key: spec.Key, Reason: fmt.Sprintf("duplicate refresher %q", ref)}
		}
		seen[ref] = struct{}{}
	}
	return nil
}
