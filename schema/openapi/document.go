package openapi

import (
	"fmt"
	"strings"

	props "github.com/goliatone/go-props"
)

const (
	contentType    = "application/json"
	fallbackTitle  = "Piece Properties"
	optionsSuffix  = "_options"
	sessionExtKey  = "x-props"
	optionsExtKey  = "x-options"
	optionsListKey = "options"
)

type documentBuilder struct {
	config     generatorConfig
	components *components
	// optionUses counts fields per resolved option list, by digest.
	optionUses map[string]int
}

func newDocumentBuilder(config generatorConfig) *documentBuilder {
	return &documentBuilder{
		config:     config,
		components: newComponents(),
		optionUses: map[string]int{},
	}
}

func (b *documentBuilder) build(view props.View, root *schemaNode) (map[string]any, error) {
	if !strings.HasPrefix(b.config.path, "/") {
		return nil, fmt.Errorf("openapi: operation path %q must start with /", b.config.path)
	}
	if b.config.sharedOptions {
		if err := b.countOptionLists(root); err != nil {
			return nil, err
		}
	}

	body, err := b.render(root)
	if err != nil {
		return nil, err
	}
	if b.config.rootComponent != "" {
		ref, err := b.components.add(b.config.rootComponent, body)
		if err != nil {
			return nil, err
		}
		body = map[string]any{"$ref": ref}
	}

	document := map[string]any{
		"openapi": b.config.openAPIVersion,
		"info":    b.info(view),
		"paths": map[string]any{
			b.config.path: map[string]any{
				b.config.method: b.operation(view, body),
			},
		},
	}
	if components := b.components.document(); components != nil {
		document["components"] = components
	}
	if b.config.sessionMetadata {
		document[sessionExtKey] = map[string]any{
			"session":    view.SessionID,
			"generation": view.Generation,
			"order":      append([]string{}, view.Order...),
			"settled":    view.Settled(),
		}
	}
	return document, nil
}

func (b *documentBuilder) info(view props.View) map[string]any {
	title := b.config.title
	if title == "" {
		title = view.Schema
	}
	if title == "" {
		title = fallbackTitle
	}
	info := map[string]any{"title": title, "version": b.config.version}
	if b.config.description != "" {
		info["description"] = b.config.description
	}
	return info
}

func (b *documentBuilder) operation(view props.View, body map[string]any) map[string]any {
	id := b.config.operationID
	if id == "" {
		id = componentName(view.Schema) + ".submit"
	}
	return map[string]any{
		"operationId": id,
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				contentType: map[string]any{"schema": body},
			},
		},
		"responses": map[string]any{
			"204": map[string]any{"description": "Accepted"},
			"422": map[string]any{"description": "Field values rejected"},
		},
	}
}

// render converts node into a schema object. Nested fieldsets become
// components when a root component is configured.
func (b *documentBuilder) render(node *schemaNode) (map[string]any, error) {
	result := node.baseMap()

	if node.fieldset() {
		properties := make(map[string]any, len(node.Properties))
		for _, name := range sortedNames(node.Properties) {
			child := node.Properties[name]
			rendered, err := b.render(child)
			if err != nil {
				return nil, err
			}
			if b.config.rootComponent != "" && child.fieldset() {
				ref, err := b.components.add(b.config.rootComponent+"_"+child.Key, rendered)
				if err != nil {
					return nil, err
				}
				rendered = map[string]any{"$ref": ref}
			}
			properties[name] = rendered
		}
		result["properties"] = properties
	}

	if len(node.Options) > 0 {
		options, err := b.renderOptions(node)
		if err != nil {
			return nil, err
		}
		result[optionsExtKey] = options
	}
	return result, nil
}

func (b *documentBuilder) renderOptions(node *schemaNode) (any, error) {
	if !b.config.sharedOptions {
		return node.Options, nil
	}
	hash, err := digest(node.Options)
	if err != nil {
		return nil, err
	}
	if b.optionUses[hash] < 2 {
		return node.Options, nil
	}
	ref, err := b.components.add(node.Key+optionsSuffix, map[string]any{
		"type":         "object",
		optionsListKey: node.Options,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"$ref": ref}, nil
}

func (b *documentBuilder) countOptionLists(root *schemaNode) error {
	var err error
	root.walk(func(node *schemaNode) {
		if err != nil || len(node.Options) == 0 {
			return
		}
		var hash string
		if hash, err = digest(node.Options); err == nil {
			b.optionUses[hash]++
		}
	})
	return err
}
