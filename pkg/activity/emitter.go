package activity

import (
	"context"
	"strings"
)

// Config controls activity emission defaults supplied by DI/config.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Channel string `json:"channel" yaml:"channel"`
}

// Emitter fans out events to hooks while applying defaults. A nil Emitter is
// valid and drops everything.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	onError func(Event, error)
}

// EmitterOption tweaks an Emitter.
type EmitterOption func(*Emitter)

// WithErrorHandler receives hook failures from EmitAll.
func WithErrorHandler(fn func(Event, error)) EmitterOption {
	return func(e *Emitter) {
		e.onError = fn
	}
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config, opts ...EmitterOption) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	normalizedHooks := cloneHooks(hooks)
	e := &Emitter{
		hooks:   normalizedHooks,
		enabled: cfg.Enabled && len(normalizedHooks) > 0,
		channel: channel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Emit forwards the event to all hooks, applying default channel when missing.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" && e.channel != "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}

// EmitAll emits events in order. Failures go to the error handler and never
// stop later events.
func (e *Emitter) EmitAll(ctx context.Context, events ...Event) {
	if !e.Enabled() {
		return
	}
	for _, event := range events {
		if err := e.Emit(ctx, event); err != nil && e.onError != nil {
			e.onError(event, err)
		}
	}
}

func cloneHooks(hooks Hooks) Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	return Hooks(normalized)
}
