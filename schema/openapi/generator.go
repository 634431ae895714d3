package openapi

import (
	"encoding/json"

	props "github.com/goliatone/go-props"
)

// Generator exports resolved views as OpenAPI request body schemas that form
// generators can render.
type Generator struct {
	config generatorConfig
}

// NewGenerator constructs a Generator.
func NewGenerator(opts ...GeneratorOption) *Generator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Generator{config: cfg}
}

// Generate builds the OpenAPI document for view. Dynamic fields carry their
// resolved options as enum values, disabled fields keep their placeholder in
// x-formgen and nested fields become objects of their current children.
func (g *Generator) Generate(view props.View) (map[string]any, error) {
	root, err := buildViewNode(view)
	if err != nil {
		return nil, err
	}
	return newDocumentBuilder(g.config).build(view, root)
}

// Marshal renders the document for view as indented JSON.
func (g *Generator) Marshal(view props.View) ([]byte, error) {
	document, err := g.Generate(view)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(document, "", "  ")
}

// Generate is a shortcut for NewGenerator(opts...).Generate(view).
func Generate(view props.View, opts ...GeneratorOption) (map[string]any, error) {
	return NewGenerator(opts...).Generate(view)
}
