package props

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSuperseded reports that a newer change replaced the pass before it
	// settled. The returned View still reflects the latest applied state.
	ErrSuperseded = errors.New("props: resolution pass superseded")
	// ErrSessionClosed reports use of a closed session.
	ErrSessionClosed = errors.New("props: session closed")
	// ErrUnknownField reports a value change for a key that is not materialized.
	ErrUnknownField = errors.New("props: unknown field")
	// ErrNoEvaluator reports an expression resolver built without an evaluator.
	ErrNoEvaluator = errors.New("props: evaluator not configured")
)

// ErrorKind classifies per-node resolution failures surfaced in a View.
type ErrorKind string

const (
	ErrorKindNone                  ErrorKind = ""
	ErrorKindMissingPrerequisite   ErrorKind = "missing_prerequisite"
	ErrorKindResolverTimeout       ErrorKind = "resolver_timeout"
	ErrorKindResolverThrew         ErrorKind = "resolver_threw"
	ErrorKindMalformedNestedResult ErrorKind = "malformed_nested_result"
	ErrorKindMalformedOptions      ErrorKind = "malformed_options"
)

// CyclicDependencyError means the refresher graph contains a cycle. Cycle
// lists the keys along the cycle, starting and ending with the same key.
type CyclicDependencyError struct {
	Schema string
	Cycle  []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Cycle) == 0 {
		return fmt.Sprintf("props: schema %q: cyclic dependency", e.Schema)
	}
	return fmt.Sprintf("props: schema %q: cyclic dependency: %s", e.Schema, strings.Join(e.Cycle, " -> "))
}

// UnknownRefresherError means a field declares a refresher that does not exist.
type UnknownRefresherError struct {
	Key       string
	Refresher string
}

func (e *UnknownRefresherError) Error() string {
	return fmt.Sprintf("props: field %q declares unknown refresher %q", e.Key, e.Refresher)
}

// DuplicateKeyError means the same key is declared twice in one scope.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("props: duplicate field key %q", e.Key)
}

// InvalidSpecError reports a PropertySpec that cannot be registered.
type InvalidSpecError struct {
	Key    string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("props: invalid field %q: %s", e.Key, e.Reason)
}

// ResolverTimeoutError means a resolver exceeded its execution budget.
type ResolverTimeoutError struct {
	Key     string
	Timeout time.Duration
}

func (e *ResolverTimeoutError) Error() string {
	return fmt.Sprintf("props: resolver for %q timed out after %s", e.Key, e.Timeout)
}

// ResolverError wraps an error returned (or a panic raised) by a resolver.
type ResolverError struct {
	Key   string
	Panic bool
	Err   error
}

func (e *ResolverError) Error() string {
	if e.Panic {
		return fmt.Sprintf("props: resolver for %q panicked: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("props: resolver for %q failed: %v", e.Key, e.Err)
}

func (e *ResolverError) Unwrap() error {
	return e.Err
}

// MalformedResultError means a resolver returned a value that cannot be
// normalized for its field kind.
type MalformedResultError struct {
	Key  string
	Kind Kind
	Got  string
	Err  error
}

func (e *MalformedResultError) Error() string {
	msg := fmt.Sprintf("props: resolver for %q returned malformed %s result (%s)", e.Key, e.Kind, e.Got)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResultError) Unwrap() error {
	return e.Err
}

func classifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var timeoutErr *ResolverTimeoutError
	if errors.As(err, &timeoutErr) {
		return ErrorKindResolverTimeout
	}
	var malformed *MalformedResultError
	if errors.As(err, &malformed) {
		if malformed.Kind == KindNestedDynamic {
			return ErrorKindMalformedNestedResult
		}
		return ErrorKindMalformedOptions
	}
	return ErrorKindResolverThrew
}
