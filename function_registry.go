package props

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function is a piece supplied callable exposed to expression resolvers,
// typically wrapping an external API call. ctx carries the resolver deadline.
type Function func(ctx context.Context, args ...any) (any, error)

// FunctionRegistry stores piece functions keyed by case-insensitive name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// ErrUnknownFunction is returned by Call for names nobody registered.
var ErrUnknownFunction = errors.New("props: unknown function")

// reservedFunctionName is bound by every evaluator to dispatch by name.
const reservedFunctionName = "call"

// FunctionError wraps a failure raised by a piece function. Panics are
// recovered and reported with Panic set.
type FunctionError struct {
	Name  string
	Panic bool
	Err   error
}

func (e *FunctionError) Error() string {
	if e.Panic {
		return fmt.Sprintf("props: function %s panicked: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("props: function %s: %v", e.Name, e.Err)
}

func (e *FunctionError) Unwrap() error { return e.Err }

// Register stores fn under name. Names must be identifiers so expressions can
// call them directly; "call" is reserved and duplicates are rejected.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("props: function %q is nil", name)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	switch {
	case key == "":
		return fmt.Errorf("props: function name must not be empty")
	case !identifierPattern.MatchString(key):
		return fmt.Errorf("props: function name %q is not an identifier", name)
	case key == reservedFunctionName:
		return fmt.Errorf("props: function name %q is reserved", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("props: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// MustRegister is like Register but panics on error.
func (r *FunctionRegistry) MustRegister(name string, fn Function) *FunctionRegistry {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
	return r
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[strings.ToLower(name)]
	return ok
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the function registered for name with ctx, which carries the
// resolver deadline.
func (r *FunctionRegistry) Call(ctx context.Context, name string, args ...any) (out any, err error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s (no registry)", ErrUnknownFunction, name)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	fn := r.functions[key]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, &FunctionError{Name: key, Panic: true, Err: fmt.Errorf("%v", rec)}
		}
	}()
	out, err = fn(ctx, args...)
	if err != nil {
		return nil, &FunctionError{Name: key, Err: err}
	}
	return out, nil
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bind returns name-indexed closures over ctx for evaluator environments.
func (r *FunctionRegistry) bind(ctx context.Context) map[string]func(...any) (any, error) {
	if r == nil {
		return nil
	}
	names := r.Names()
	bound := make(map[string]func(...any) (any, error), len(names))
	for _, name := range names {
		fn := name
		bound[fn] = func(arguments ...any) (any, error) {
			return r.Call(ctx, fn, arguments...)
		}
	}
	return bound
}
