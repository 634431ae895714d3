//go:build !js_eval

package props

import "fmt"

// NewJSEvaluator returns an evaluator that fails every compile with
// ErrEngineUnavailable when built without the js_eval tag.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyJSEvaluatorOptions(opts)
	return unavailableEvaluator{engine: EngineJS}
}

type unavailableEvaluator struct {
	engine string
}

func (e unavailableEvaluator) Evaluate(_ EvalContext, expression string) (any, error) {
	_, err := e.Compile(expression)
	return nil, err
}

func (e unavailableEvaluator) Compile(string) (CompiledRule, error) {
	return nil, fmt.Errorf("%w: %s (build with -tags js_eval)", ErrEngineUnavailable, e.engine)
}

func jsEvaluatorAvailable() bool {
	return false
}
