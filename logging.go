package props

import (
	"context"
	"log/slog"
	"time"
)

// LogEventKind distinguishes resolver invocations, expression evaluations and
// activity hook failures.
type LogEventKind string

const (
	LogEventResolve  LogEventKind = "resolve"
	LogEventEvaluate LogEventKind = "evaluate"
	LogEventActivity LogEventKind = "activity"
)

// LogEvent describes one resolution or evaluation attempt.
type LogEvent struct {
	Kind       LogEventKind
	Session    string
	Generation uint64
	Key        string
	Engine     string
	Expr       string
	Outcome    StepOutcome
	Duration   time.Duration
	Err        error
}

// Logger records resolution events.
type Logger interface {
	Log(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// Log implements Logger.
func (f LoggerFunc) Log(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) Log(LogEvent) {}

// SlogLogger forwards events to a structured slog logger. Failures log at
// warn level, everything else at debug.
func SlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return LoggerFunc(func(event LogEvent) {
		attrs := []slog.Attr{
			slog.String("kind", string(event.Kind)),
			slog.String("key", event.Key),
			slog.Duration("duration", event.Duration),
		}
		if event.Session != "" {
			attrs = append(attrs, slog.String("session", event.Session), slog.Uint64("generation", event.Generation))
		}
		if event.Engine != "" {
			attrs = append(attrs, slog.String("engine", event.Engine))
		}
		if event.Expr != "" {
			attrs = append(attrs, slog.String("expr", event.Expr))
		}
		if event.Outcome != "" {
			attrs = append(attrs, slog.String("outcome", string(event.Outcome)))
		}
		level := slog.LevelDebug
		if event.Err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("error", event.Err.Error()))
		}
		logger.LogAttrs(context.Background(), level, "props: "+string(event.Kind), attrs...)
	})
}
