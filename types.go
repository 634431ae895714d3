package props

import (
	"context"
	"strings"
)

// AuthKey is the sentinel refresher naming the auth slot of a schema.
const AuthKey = "auth"

// Kind tags how a property obtains its shape.
type Kind string

const (
	// KindStatic fields have a fixed shape and no resolution work.
	KindStatic Kind = "static"
	// KindDynamic fields compute their options from refresher values.
	KindDynamic Kind = "dynamic"
	// KindNestedDynamic fields compute a whole sub-schema from refresher values.
	KindNestedDynamic Kind = "nested_dynamic"

	kindAuth Kind = "auth"
)

// Valid reports whether k is one of the declarable kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStatic, KindDynamic, KindNestedDynamic:
		return true
	default:
		return false
	}
}

func (k Kind) resolvable() bool {
	return k == KindDynamic || k == KindNestedDynamic
}

// Option is a single selectable entry of a dynamic field.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// ResolvedOptions is the canonical output every dynamic resolution normalizes
// into.
type ResolvedOptions struct {
	Disabled    bool     `json:"disabled"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []Option `json:"options"`
}

func (o ResolvedOptions) clone() ResolvedOptions {
	out := o
	if o.Options != nil {
		out.Options = append([]Option{}, o.Options...)
	}
	return out
}

func disabledOptions(placeholder string) ResolvedOptions {
	return ResolvedOptions{
		Disabled:    true,
		Placeholder: placeholder,
		Options:     []Option{},
	}
}

// PropertySpec declares one field of a piece schema.
type PropertySpec struct {
	Key         string
	Kind        Kind
	DisplayName string
	Description string
	Required    bool
	Refreshers  []string
	Default     any
	Resolver    Resolver
}

// PropertyOption configures a PropertySpec on construction.
type PropertyOption func(*PropertySpec)

// Static declares a fixed-shape field.
func Static(key string, opts ...PropertyOption) PropertySpec {
	return newSpec(key, KindStatic, nil, opts)
}

// Dynamic declares a field whose options are computed by resolver.
func Dynamic(key string, resolver Resolver, opts ...PropertyOption) PropertySpec {
	return newSpec(key, KindDynamic, resolver, opts)
}

// NestedDynamic declares a field whose sub-schema is computed by resolver.
func NestedDynamic(key string, resolver Resolver, opts ...PropertyOption) PropertySpec {
	return newSpec(key, KindNestedDynamic, resolver, opts)
}

func newSpec(key string, kind Kind, resolver Resolver, opts []PropertyOption) PropertySpec {
	spec := PropertySpec{
		Key:      key,
		Kind:     kind,
		Resolver: resolver,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&spec)
		}
	}
	return spec
}

// WithRefreshers declares the keys (or AuthKey) the field depends on.
func WithRefreshers(keys ...string) PropertyOption {
	return func(spec *PropertySpec) {
		spec.Refreshers = append(spec.Refreshers, keys...)
	}
}

// Required marks the field as required.
func Required() PropertyOption {
	return func(spec *PropertySpec) {
		spec.Required = true
	}
}

// WithDisplayName sets the label shown by renderers and placeholders.
func WithDisplayName(name string) PropertyOption {
	return func(spec *PropertySpec) {
		spec.DisplayName = name
	}
}

// WithDescription sets the help text of the field.
func WithDescription(description string) PropertyOption {
	return func(spec *PropertySpec) {
		spec.Description = description
	}
}

// WithDefault sets the value used when the snapshot carries none.
func WithDefault(value any) PropertyOption {
	return func(spec *PropertySpec) {
		spec.Default = value
	}
}

func (s PropertySpec) clone() PropertySpec {
	out := s
	if s.Refreshers != nil {
		out.Refreshers = append([]string{}, s.Refreshers...)
	}
	return out
}

func (s PropertySpec) label() string {
	if name := strings.TrimSpace(s.DisplayName); name != "" {
		return name
	}
	return s.Key
}

// Resolver computes the options (Dynamic) or sub-schema (NestedDynamic) of a
// field. Implementations receive only the refresher values they declared and
// must honour ctx cancellation.
type Resolver interface {
	Resolve(ctx context.Context, in Input) (any, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, in Input) (any, error)

// Resolve implements Resolver.
func (fn ResolverFunc) Resolve(ctx context.Context, in Input) (any, error) {
	return fn(ctx, in)
}

// OptionsFunc adapts a typed dynamic resolver.
func OptionsFunc(fn func(ctx context.Context, in Input) (ResolvedOptions, error)) Resolver {
	return ResolverFunc(func(ctx context.Context, in Input) (any, error) {
		return fn(ctx, in)
	})
}

// PropertiesFunc adapts a typed nested resolver. Map keys are the child keys
// relative to the parent field.
func PropertiesFunc(fn func(ctx context.Context, in Input) (map[string]PropertySpec, error)) Resolver {
	return ResolverFunc(func(ctx context.Context, in Input) (any, error) {
		return fn(ctx, in)
	})
}

// StaticOptions returns a resolver that always yields options.
func StaticOptions(options ...Option) Resolver {
	return ResolverFunc(func(context.Context, Input) (any, error) {
		return ResolvedOptions{Options: append([]Option{}, options...)}, nil
	})
}
