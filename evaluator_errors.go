package props

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationStage tells whether an expression failed to compile or to run.
type EvaluationStage string

const (
	StageCompile  EvaluationStage = "compile"
	StageEvaluate EvaluationStage = "evaluate"
)

// EvaluationError is returned by expression resolvers. It names the engine,
// the expression source and the field being resolved.
type EvaluationError struct {
	Engine string
	Expr   string
	Field  string
	Stage  EvaluationStage
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "props: %s evaluator", e.Engine)
	if e.Stage == StageCompile {
		b.WriteString(" compile")
	}
	if e.Expr == "" {
		b.WriteString(" expr=<empty>")
	} else {
		fmt.Fprintf(&b, " expr=%q", e.Expr)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%s", e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsCompileError reports whether err carries an expression that never
// compiled. Such failures repeat on every pass until the schema changes.
func IsCompileError(err error) bool {
	var evalErr *EvaluationError
	return errors.As(err, &evalErr) && evalErr.Stage == StageCompile
}

// wrapEvaluatorError prefixes failures that are not tied to an expression,
// such as an evaluator built without its environment.
func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) || strings.HasPrefix(err.Error(), "props:") {
		return err
	}
	return fmt.Errorf("props: %s evaluator: %w", engine, err)
}

func wrapCompileError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	return &EvaluationError{Engine: engine, Expr: expr, Stage: StageCompile, Err: err}
}

// wrapEvaluationError attaches engine, expression and field to err. Existing
// EvaluationErrors only get their empty fields filled.
func wrapEvaluationError(engine, expr, field string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		return &EvaluationError{Engine: engine, Expr: expr, Field: field, Stage: StageEvaluate, Err: err}
	}
	if evalErr.Engine == "" {
		evalErr.Engine = engine
	}
	if evalErr.Expr == "" {
		evalErr.Expr = expr
	}
	if evalErr.Field == "" {
		evalErr.Field = field
	}
	if evalErr.Stage == "" {
		evalErr.Stage = StageEvaluate
	}
	return evalErr
}
