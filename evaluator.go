package props

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Engine names accepted by NewEvaluator.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// ErrEngineUnavailable is returned by NewEvaluator for engines that were not
// compiled into the binary.
var ErrEngineUnavailable = errors.New("props: evaluator engine unavailable")

// EvalContext carries the inputs an expression sees when it runs.
type EvalContext struct {
	Context  context.Context
	Field    string
	Values   map[string]any
	Auth     any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx EvalContext) withDefaults() EvalContext {
	if ctx.Context == nil {
		ctx.Context = context.Background()
	}
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Values == nil {
		ctx.Values = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	if ctx.Now == nil {
		return time.Now()
	}
	return *ctx.Now
}

func (ctx EvalContext) fieldLabel() string {
	if ctx.Field == "" {
		return "unknown"
	}
	return ctx.Field
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedIdentifiers are bound by every engine and cannot be shadowed by
// property values.
var reservedIdentifiers = map[string]struct{}{
	"now": {}, "args": {}, "metadata": {}, "field": {}, "auth": {}, "values": {}, "call": {},
}

// variables returns the names bound directly from ctx.Values, sorted. Keys
// that are not identifiers stay reachable through values["key"].
func (ctx EvalContext) variables() []string {
	names := make([]string, 0, len(ctx.Values))
	for key := range ctx.Values {
		if _, reserved := reservedIdentifiers[key]; reserved {
			continue
		}
		if identifierPattern.MatchString(key) {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// bindings is the variable environment shared by the expr and js engines.
func (ctx EvalContext) bindings() map[string]any {
	env := map[string]any{
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
		"field":    ctx.Field,
		"auth":     ctx.Auth,
		"values":   ctx.Values,
	}
	for _, name := range ctx.variables() {
		env[name] = ctx.Values[name]
	}
	return env
}

// Evaluator executes expressions against an evaluation context.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx EvalContext) (any, error)
}

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

type memoryProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewProgramCache returns an unbounded in-memory ProgramCache safe for
// concurrent use.
func NewProgramCache() ProgramCache {
	return &memoryProgramCache{programs: map[string]any{}}
}

func (c *memoryProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	program, ok := c.programs[key]
	return program, ok
}

func (c *memoryProgramCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[key] = value
}

// NewEvaluator builds the evaluator registered for engine. cache and registry
// may be nil.
func NewEvaluator(engine string, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(registry)), nil
	case EngineJS:
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("%w: %s (build with -tags js_eval)", ErrEngineUnavailable, engine)
		}
		return NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(registry)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, engine)
	}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*props.exprEvaluator":
		return EngineExpr
	case "*props.celEvaluator":
		return EngineCEL
	case "*props.jsEvaluator":
		return EngineJS
	default:
		return "custom"
	}
}
