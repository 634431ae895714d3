package props

// DefaultJSMaxCallStackSize bounds recursion inside JavaScript resolvers.
const DefaultJSMaxCallStackSize = 1024

type jsEvaluatorConfig struct {
	cache        ProgramCache
	registry     *FunctionRegistry
	maxCallStack int
	strict       bool
	globals      map[string]any
}

// JSEvaluatorOption configures the JS evaluator.
type JSEvaluatorOption func(*jsEvaluatorConfig)

// JSWithProgramCache shares compiled programs across evaluations.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry exposes registry functions to scripts, both by name
// and through call(name, ...args).
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

// JSWithMaxCallStackSize overrides DefaultJSMaxCallStackSize. Values below one
// are ignored.
func JSWithMaxCallStackSize(size int) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		if size > 0 {
			cfg.maxCallStack = size
		}
	}
}

// JSWithStrictMode compiles resolver scripts in strict mode.
func JSWithStrictMode() JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.strict = true
	}
}

// JSWithGlobals binds constants into every script run, e.g. shared lookup
// tables. Input bindings of the same name win.
func JSWithGlobals(globals map[string]any) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		if len(globals) == 0 {
			return
		}
		if cfg.globals == nil {
			cfg.globals = make(map[string]any, len(globals))
		}
		for name, value := range globals {
			cfg.globals[name] = value
		}
	}
}

func applyJSEvaluatorOptions(opts []JSEvaluatorOption) jsEvaluatorConfig {
	cfg := jsEvaluatorConfig{maxCallStack: DefaultJSMaxCallStackSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
