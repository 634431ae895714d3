package openapi

import "strings"

type generatorConfig struct {
	openAPIVersion  string
	title           string
	version         string
	description     string
	path            string
	method          string
	operationID     string
	rootComponent   string
	sharedOptions   bool
	sessionMetadata bool
}

func defaultGeneratorConfig() generatorConfig {
	return generatorConfig{
		openAPIVersion: "3.0.3",
		version:        "1.0.0",
		path:           "/props",
		method:         "post",
	}
}

// GeneratorOption configures the OpenAPI generator.
type GeneratorOption func(*generatorConfig)

// WithOpenAPIVersion overrides the OpenAPI version string (default 3.0.3).
func WithOpenAPIVersion(version string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if version = strings.TrimSpace(version); version != "" {
			cfg.openAPIVersion = version
		}
	}
}

// WithInfo sets the info block. The title defaults to the schema name of the
// exported view and the version to 1.0.0; empty strings keep those defaults.
func WithInfo(title, version string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if title = strings.TrimSpace(title); title != "" {
			cfg.title = title
		}
		if version = strings.TrimSpace(version); version != "" {
			cfg.version = version
		}
	}
}

// WithDescription sets info.description.
func WithDescription(description string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.description = strings.TrimSpace(description)
	}
}

// WithOperation sets the path and method the form is submitted to. The
// operationId defaults to "<schema>.submit".
func WithOperation(path, method string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if path = strings.TrimSpace(path); path != "" {
			cfg.path = path
		}
		if method = strings.ToLower(strings.TrimSpace(method)); method != "" {
			cfg.method = method
		}
	}
}

// WithOperationID overrides the generated operationId.
func WithOperationID(id string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.operationID = strings.TrimSpace(id)
	}
}

// WithRootComponent publishes the form under components.schemas[name] and
// references it from the request body. Nested fieldsets become components of
// their own, named "<name>_<field>".
func WithRootComponent(name string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.rootComponent = strings.TrimSpace(name)
	}
}

// WithSharedOptions publishes option lists resolved identically for more than
// one field as a single component referenced from each x-options entry.
func WithSharedOptions() GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.sharedOptions = true
	}
}

// WithSessionMetadata adds an x-props extension carrying the session id,
// generation, field order and settled flag of the exported view.
func WithSessionMetadata() GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.sessionMetadata = true
	}
}
