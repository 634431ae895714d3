package props

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExpressionOption configures an expression backed resolver.
type ExpressionOption func(*expressionResolver)

// WithExpressionArgs binds args as the `args` variable of every evaluation.
func WithExpressionArgs(args map[string]any) ExpressionOption {
	return func(r *expressionResolver) {
		r.args = copyValues(args)
	}
}

// WithExpressionMetadata binds metadata as the `metadata` variable.
func WithExpressionMetadata(metadata map[string]any) ExpressionOption {
	return func(r *expressionResolver) {
		r.metadata = copyValues(metadata)
	}
}

// WithExpressionLogger records each evaluation on logger.
func WithExpressionLogger(logger Logger) ExpressionOption {
	return func(r *expressionResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithExpressionClock overrides the `now` binding.
func WithExpressionClock(now func() time.Time) ExpressionOption {
	return func(r *expressionResolver) {
		r.now = now
	}
}

type expressionResolver struct {
	evaluator Evaluator
	expr      string
	args      map[string]any
	metadata  map[string]any
	logger    Logger
	now       func() time.Time
	opts      []ExpressionOption

	once sync.Once
	rule CompiledRule
	err  error
}

// Expression returns a Resolver that evaluates expr with evaluator. The
// expression sees its refresher values by name, the full subset as `values`,
// the credential as `auth` and the field key as `field`. Compilation happens
// once, on first use.
func Expression(evaluator Evaluator, expr string, opts ...ExpressionOption) Resolver {
	r := &expressionResolver{
		evaluator: evaluator,
		expr:      expr,
		logger:    noopLogger{},
		opts:      append([]ExpressionOption(nil), opts...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *expressionResolver) compile() (CompiledRule, error) {
	r.once.Do(func() {
		if r.evaluator == nil {
			r.err = ErrNoEvaluator
			return
		}
		r.rule, r.err = r.evaluator.Compile(r.expr)
	})
	return r.rule, r.err
}

// Resolve implements Resolver.
func (r *expressionResolver) Resolve(ctx context.Context, in Input) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	engine := evaluatorEngineName(r.evaluator)
	start := time.Now()
	rule, err := r.compile()
	var result any
	if err == nil {
		auth, _ := in.Auth()
		evalCtx := EvalContext{
			Context:  ctx,
			Field:    in.Key(),
			Values:   in.Values(),
			Auth:     auth,
			Args:     r.args,
			Metadata: r.metadata,
		}
		if r.now != nil {
			now := r.now()
			evalCtx.Now = &now
		}
		result, err = rule.Evaluate(evalCtx)
	}
	err = wrapEvaluationError(engine, r.expr, in.Key(), err)
	outcome := OutcomeResolved
	if err != nil {
		outcome = OutcomeFailed
	}
	r.logger.Log(LogEvent{
		Kind:     LogEventEvaluate,
		Key:      in.Key(),
		Engine:   engine,
		Expr:     r.expr,
		Outcome:  outcome,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *expressionResolver) expressionEvaluator() (Evaluator, []ExpressionOption) {
	return r.evaluator, r.opts
}

func (r *expressionResolver) String() string {
	return fmt.Sprintf("%s(%s)", evaluatorEngineName(r.evaluator), r.expr)
}
