package props

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestExpressionResolverSeesDeclaredInputs(t *testing.T) {
	var events []LogEvent
	resolver := Expression(NewExprEvaluator(), `map(args.columns[table], {{"key": #, "display_name": upper(#)}})`,
		WithExpressionArgs(map[string]any{
			"columns": map[string]any{"orders": []any{"id", "total"}},
		}),
		WithExpressionLogger(LoggerFunc(func(event LogEvent) { events = append(events, event) })),
	)

	got, err := resolver.Resolve(context.Background(), NewInput("fields", map[string]any{"table": "orders"}, "token"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []any{
		map[string]any{"key": "id", "display_name": "ID"},
		map[string]any{"key": "total", "display_name": "TOTAL"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}

	if len(events) != 1 {
		t.Fatalf("expected one log event, got %d", len(events))
	}
	if events[0].Kind != LogEventEvaluate || events[0].Engine != EngineExpr || events[0].Key != "fields" || events[0].Outcome != OutcomeResolved {
		t.Fatalf("unexpected log event %+v", events[0])
	}
}

func TestExpressionResolverReadsValuesMap(t *testing.T) {
	resolver := Expression(NewExprEvaluator(), `values["table"] == "orders" ? ["id", "total"] : []`)
	got, err := resolver.Resolve(context.Background(), NewInput("fields", map[string]any{"table": "orders"}, nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"id", "total"}) {
		t.Fatalf("unexpected result %#v", got)
	}
}

func TestExpressionResolverBindsMetadataAndClock(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	resolver := Expression(NewCELEvaluator(), `[metadata.piece, string(now.getFullYear())]`,
		WithExpressionMetadata(map[string]any{"piece": "crm"}),
		WithExpressionClock(func() time.Time { return fixed }),
	)
	got, err := resolver.Resolve(context.Background(), NewInput("pipeline", nil, nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"crm", "2025"}) {
		t.Fatalf("unexpected result %#v", got)
	}
}

func TestExpressionResolverErrors(t *testing.T) {
	var logged []LogEvent
	logger := LoggerFunc(func(event LogEvent) { logged = append(logged, event) })

	_, err := Expression(nil, `1`).Resolve(context.Background(), NewInput("x", nil, nil))
	if !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected ErrNoEvaluator, got %v", err)
	}

	_, err = Expression(NewExprEvaluator(), `table +`, WithExpressionLogger(logger)).Resolve(context.Background(), NewInput("fields", nil, nil))
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.Field != "fields" {
		t.Fatalf("expected EvaluationError carrying the field, got %v", err)
	}
	if len(logged) != 1 || logged[0].Outcome != OutcomeFailed || logged[0].Err == nil {
		t.Fatalf("expected failed evaluation to be logged, got %+v", logged)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Expression(NewExprEvaluator(), `1`).Resolve(ctx, NewInput("x", nil, nil)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExpressionResolverString(t *testing.T) {
	resolver := Expression(NewCELEvaluator(), `["a"]`)
	if got := resolver.(interface{ String() string }).String(); got != `cel(["a"])` {
		t.Fatalf("unexpected String() %q", got)
	}
}
