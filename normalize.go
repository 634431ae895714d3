package props

import (
	"errors"
	"fmt"
	"sort"
)

// normalizeOptions coerces a dynamic resolver result into ResolvedOptions.
// Accepted shapes: ResolvedOptions, []Option, []string, []any of scalars or
// {label, value} maps, and maps carrying disabled/placeholder/options keys.
func normalizeOptions(key string, result any) (ResolvedOptions, error) {
	malformed := func(err error) error {
		return &MalformedResultError{Key: key, Kind: KindDynamic, Got: fmt.Sprintf("%T", result), Err: err}
	}
	switch v := result.(type) {
	case nil:
		return ResolvedOptions{Options: []Option{}}, nil
	case ResolvedOptions:
		return ensureOptions(v.clone()), nil
	case *ResolvedOptions:
		if v == nil {
			return ResolvedOptions{Options: []Option{}}, nil
		}
		return ensureOptions(v.clone()), nil
	case []Option:
		return ResolvedOptions{Options: append([]Option{}, v...)}, nil
	case []string:
		options := make([]Option, 0, len(v))
		for _, s := range v {
			options = append(options, Option{Label: s, Value: s})
		}
		return ResolvedOptions{Options: options}, nil
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		options, err := optionList(items)
		if err != nil {
			return ResolvedOptions{}, malformed(err)
		}
		return ResolvedOptions{Options: options}, nil
	case []any:
		options, err := optionList(v)
		if err != nil {
			return ResolvedOptions{}, malformed(err)
		}
		return ResolvedOptions{Options: options}, nil
	case map[string]any:
		raw, ok := v["options"]
		if !ok {
			return ResolvedOptions{}, malformed(errors.New("map result needs an options key"))
		}
		inner, err := normalizeOptions(key, raw)
		if err != nil {
			return ResolvedOptions{}, err
		}
		if disabled, ok := v["disabled"].(bool); ok {
			inner.Disabled = disabled
		}
		if placeholder, ok := v["placeholder"].(string); ok {
			inner.Placeholder = placeholder
		}
		return inner, nil
	default:
		return ResolvedOptions{}, malformed(nil)
	}
}

func ensureOptions(o ResolvedOptions) ResolvedOptions {
	if o.Options == nil {
		o.Options = []Option{}
	}
	return o
}

func optionList(items []any) ([]Option, error) {
	options := make([]Option, 0, len(items))
	for i, item := range items {
		option, ok := optionFrom(item)
		if !ok {
			return nil, fmt.Errorf("option %d has unsupported shape %T", i, item)
		}
		options = append(options, option)
	}
	return options, nil
}

func optionFrom(item any) (Option, bool) {
	switch v := item.(type) {
	case Option:
		return v, true
	case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return Option{Label: fmt.Sprint(v), Value: v}, true
	case map[string]any:
		label, hasLabel := v["label"]
		value, hasValue := v["value"]
		switch {
		case hasLabel && hasValue:
			return Option{Label: fmt.Sprint(label), Value: value}, true
		case hasLabel:
			return Option{Label: fmt.Sprint(label), Value: label}, true
		case hasValue:
			return Option{Label: fmt.Sprint(value), Value: value}, true
		}
	}
	return Option{}, false
}

// evaluatorSource is implemented by resolvers that can build expression
// backed children from descriptor maps.
type evaluatorSource interface {
	expressionEvaluator() (Evaluator, []ExpressionOption)
}

// normalizeChildren coerces a nested resolver result into child specs keyed by
// their local names. Typed maps are ordered by key; slices keep their order.
func normalizeChildren(key string, result any, source Resolver) ([]PropertySpec, error) {
	malformed := func(err error) error {
		return &MalformedResultError{Key: key, Kind: KindNestedDynamic, Got: fmt.Sprintf("%T", result), Err: err}
	}
	switch v := result.(type) {
	case nil:
		return nil, nil
	case map[string]PropertySpec:
		out := make([]PropertySpec, 0, len(v))
		for _, name := range sortedKeys(v) {
			spec := v[name].clone()
			spec.Key = name
			out = append(out, spec)
		}
		return out, nil
	case map[string]*PropertySpec:
		out := make([]PropertySpec, 0, len(v))
		for _, name := range sortedKeys(v) {
			if v[name] == nil {
				return nil, malformed(fmt.Errorf("child %q is nil", name))
			}
			spec := v[name].clone()
			spec.Key = name
			out = append(out, spec)
		}
		return out, nil
	case []PropertySpec:
		out := make([]PropertySpec, len(v))
		for i := range v {
			out[i] = v[i].clone()
		}
		return out, nil
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return childrenFromDescriptors(items, nil, source, malformed)
	case []any:
		return childrenFromDescriptors(v, nil, source, malformed)
	case map[string]any:
		names := sortedKeys(v)
		items := make([]any, len(names))
		for i, name := range names {
			items[i] = v[name]
		}
		return childrenFromDescriptors(items, names, source, malformed)
	default:
		return nil, malformed(nil)
	}
}

func childrenFromDescriptors(items []any, names []string, source Resolver, malformed func(error) error) ([]PropertySpec, error) {
	var evaluator Evaluator
	var exprOpts []ExpressionOption
	if src, ok := source.(evaluatorSource); ok {
		evaluator, exprOpts = src.expressionEvaluator()
	}
	payloads := make([]map[string]any, len(items))
	for i, item := range items {
		payload, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(fmt.Errorf("child %d has unsupported shape %T", i, item))
		}
		payloads[i] = payload
	}
	descriptors, err := DecodeDescriptors(payloads, names)
	if err != nil {
		return nil, malformed(err)
	}
	out := make([]PropertySpec, 0, len(descriptors))
	for _, descriptor := range descriptors {
		spec, err := descriptor.Spec(evaluator, exprOpts...)
		if err != nil {
			return nil, malformed(err)
		}
		out = append(out, spec)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
