package openapi

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	props "github.com/goliatone/go-props"
)

type schemaNode struct {
	Type        string
	Title       string
	Description string
	Properties  map[string]*schemaNode
	Required    []string
	Enum        []any
	Default     any
	// Key is the field key the node was built from; the root has none.
	Key     string
	Options []any
	formgen map[string]string
}

func newObjectNode() *schemaNode {
	return &schemaNode{
		Type:       "object",
		Properties: map[string]*schemaNode{},
	}
}

func (n *schemaNode) fieldset() bool {
	return n.Type == "object" && n.Properties != nil
}

// baseMap renders the scalar keywords of n. Properties and x-options are
// rendered by the document builder, which decides on component references.
func (n *schemaNode) baseMap() map[string]any {
	result := map[string]any{}
	if n.Type != "" {
		result["type"] = n.Type
	}
	if n.Title != "" {
		result["title"] = n.Title
	}
	if n.Description != "" {
		result["description"] = n.Description
	}
	if n.Default != nil {
		result["default"] = n.Default
	}
	if len(n.Enum) > 0 {
		result["enum"] = n.Enum
	}
	if len(n.Required) > 0 {
		names := append([]string{}, n.Required...)
		sort.Strings(names)
		result["required"] = names
	}
	if len(n.formgen) > 0 {
		result["x-formgen"] = orderedStringMap(n.formgen)
	}
	return result
}

func (n *schemaNode) ensureFormgen() map[string]string {
	if n.formgen == nil {
		n.formgen = map[string]string{}
	}
	return n.formgen
}

// walk visits n and every descendant, parents first.
func (n *schemaNode) walk(fn func(*schemaNode)) {
	fn(n)
	for _, name := range sortedNames(n.Properties) {
		n.Properties[name].walk(fn)
	}
}

// buildViewNode turns the top-level fields of view into an object schema.
// Nested fields become object properties keyed by their local child names.
func buildViewNode(view props.View) (*schemaNode, error) {
	root := newObjectNode()
	for _, state := range view.States() {
		if state.Parent != "" {
			continue
		}
		if err := attachField(root, view, state); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func attachField(parent *schemaNode, view props.View, state props.FieldState) error {
	node, err := fieldNode(view, state)
	if err != nil {
		return err
	}
	name := localName(state)
	if _, exists := parent.Properties[name]; exists {
		return fmt.Errorf("openapi: duplicate property %q", state.Key)
	}
	parent.Properties[name] = node
	if state.Required {
		parent.Required = append(parent.Required, name)
	}
	return nil
}

func fieldNode(view props.View, state props.FieldState) (*schemaNode, error) {
	var node *schemaNode
	switch state.Kind {
	case props.KindNestedDynamic:
		node = newObjectNode()
		for _, child := range state.Children {
			childState, ok := view.Field(child)
			if !ok {
				return nil, fmt.Errorf("openapi: field %q lists unknown child %q", state.Key, child)
			}
			if err := attachField(node, view, childState); err != nil {
				return nil, err
			}
		}
	case props.KindDynamic:
		node = optionsNode(state.Options)
		if state.HasValue {
			node.Default = state.Value
		}
	default:
		node = &schemaNode{Type: jsonType(state.Value)}
		if state.HasValue {
			node.Default = state.Value
		}
	}
	node.Key = state.Key
	node.Title = state.DisplayName
	node.Description = state.Description
	applyFormgen(node, state)
	return node, nil
}

func optionsNode(options *props.ResolvedOptions) *schemaNode {
	node := &schemaNode{Type: "string"}
	if options == nil || len(options.Options) == 0 {
		return node
	}
	node.Type = ""
	listed := make([]any, 0, len(options.Options))
	for i, option := range options.Options {
		node.Enum = append(node.Enum, option.Value)
		listed = append(listed, map[string]any{"label": option.Label, "value": option.Value})
		kind := jsonType(option.Value)
		switch {
		case i == 0:
			node.Type = kind
		case node.Type != kind:
			node.Type = ""
		}
	}
	node.Options = listed
	return node
}

func applyFormgen(node *schemaNode, state props.FieldState) {
	formgen := node.ensureFormgen()
	switch state.Kind {
	case props.KindNestedDynamic:
		formgen["widget"] = "fieldset"
	case props.KindDynamic:
		formgen["widget"] = "select"
	default:
		formgen["widget"] = "input"
	}
	if state.Parent != "" {
		formgen["key"] = state.Key
	}
	if state.Kind != props.KindStatic {
		formgen["status"] = string(state.Status)
	}
	if state.Disabled() {
		formgen["disabled"] = "true"
	}
	if placeholder := state.Placeholder(); placeholder != "" {
		formgen["placeholder"] = placeholder
	}
	if state.ErrorKind != props.ErrorKindNone {
		formgen["error"] = string(state.ErrorKind)
	}
}

func localName(state props.FieldState) string {
	if state.Parent == "" {
		return state.Key
	}
	return strings.TrimPrefix(state.Key, state.Parent+".")
}

func jsonType(value any) string {
	if value == nil {
		return "string"
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

func sortedNames[V any](values map[string]V) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func orderedStringMap(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for _, key := range sortedNames(values) {
		out[key] = values[key]
	}
	return out
}
