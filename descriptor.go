package props

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-props/internal/hydrate"
)

// Descriptor is the serializable declaration of a property. Loaders and
// nested resolvers that return plain maps use it; Spec turns it into a
// PropertySpec backed by an expression or constant options.
type Descriptor struct {
	Key         string   `json:"key" yaml:"key"`
	Kind        Kind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Refreshers  []string `json:"refreshers,omitempty" yaml:"refreshers,omitempty"`
	Default     any      `json:"default,omitempty" yaml:"default,omitempty"`
	Options     []Option `json:"options,omitempty" yaml:"options,omitempty"`
	Expr        string   `json:"expr,omitempty" yaml:"expr,omitempty"`
}

func (d Descriptor) kind() Kind {
	if d.Kind != "" {
		return d.Kind
	}
	if d.Expr != "" || len(d.Options) > 0 {
		return KindDynamic
	}
	return KindStatic
}

// Spec converts d into a PropertySpec. Expression backed fields use
// evaluator, which may be nil when no descriptor carries an expression.
func (d Descriptor) Spec(evaluator Evaluator, opts ...ExpressionOption) (PropertySpec, error) {
	spec := PropertySpec{
		Key:         strings.TrimSpace(d.Key),
		Kind:        d.kind(),
		DisplayName: d.DisplayName,
		Description: d.Description,
		Required:    d.Required,
		Refreshers:  append([]string(nil), d.Refreshers...),
		Default:     d.Default,
	}
	switch spec.Kind {
	case KindStatic:
		if d.Expr != "" {
			return PropertySpec{}, &InvalidSpecError{Key: spec.Key, Reason: "static fields take no expression"}
		}
	case KindDynamic:
		switch {
		case d.Expr != "":
			if evaluator == nil {
				return PropertySpec{}, &InvalidSpecError{Key: spec.Key, Reason: "expression requires an evaluator"}
			}
			spec.Resolver = Expression(evaluator, d.Expr, opts...)
		case len(d.Options) > 0:
			spec.Resolver = StaticOptions(d.Options...)
		default:
			return PropertySpec{}, &InvalidSpecError{Key: spec.Key, Reason: "dynamic fields need expr or options"}
		}
	case KindNestedDynamic:
		if d.Expr == "" {
			return PropertySpec{}, &InvalidSpecError{Key: spec.Key, Reason: "nested fields need expr"}
		}
		if evaluator == nil {
			return PropertySpec{}, &InvalidSpecError{Key: spec.Key, Reason: "expression requires an evaluator"}
		}
		spec.Resolver = Expression(evaluator, d.Expr, opts...)
	default:
		return PropertySpec{}, &InvalidSpecError{Key: spec.Key, Reason: fmt.Sprintf("unknown kind %q", d.Kind)}
	}
	return spec, nil
}

// Specs converts descriptors in order.
func Specs(descriptors []Descriptor, evaluator Evaluator, opts ...ExpressionOption) ([]PropertySpec, error) {
	specs := make([]PropertySpec, 0, len(descriptors))
	for _, d := range descriptors {
		spec, err := d.Spec(evaluator, opts...)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// DecodeDescriptor converts a loosely typed map into a Descriptor. fallbackKey
// is used when the payload carries no key.
func DecodeDescriptor(fallbackKey string, payload map[string]any) (Descriptor, error) {
	return descriptorDecoder().Decode(hydrate.Context{Field: fallbackKey, Source: "descriptor"}, payload)
}

// DecodeDescriptors converts payloads in order. fallbackKeys, when given,
// supplies the key for the payload at the same index; failures name the
// offending index.
func DecodeDescriptors(payloads []map[string]any, fallbackKeys []string) ([]Descriptor, error) {
	return descriptorDecoder().DecodeList(hydrate.Context{Source: "descriptor"}, payloads, fallbackKeys)
}

func descriptorDecoder() *hydrate.Decoder[Descriptor] {
	return hydrate.NewDecoder[Descriptor](
		hydrate.WithDisallowUnknownFields[Descriptor](),
		hydrate.WithPreHook[Descriptor](func(ctx hydrate.Context, in map[string]any) (map[string]any, error) {
			if _, ok := in["key"]; !ok && ctx.Field != "" {
				in["key"] = ctx.Field
			}
			return in, nil
		}),
		hydrate.WithPostHook[Descriptor](func(ctx hydrate.Context, d *Descriptor) error {
			if strings.TrimSpace(d.Key) == "" {
				return fmt.Errorf("descriptor from %s has no key", ctx.Source)
			}
			return nil
		}),
	)
}
