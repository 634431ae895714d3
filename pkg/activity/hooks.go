package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one resolution lifecycle occurrence. The shape mirrors go-users
// activity records so sinks can forward it without translation; session and
// field identity travel in Metadata.
type Event struct {
	Verb           string
	ActorID        string
	UserID         string
	TenantID       string
	ObjectType     string
	ObjectID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// SessionID returns the session that produced the event, if recorded.
func (e Event) SessionID() string {
	return metadataString(e.Metadata, metadataSessionID)
}

// Field returns the field key the event is about. Session level events
// return "".
func (e Event) Field() string {
	return metadataString(e.Metadata, metadataField)
}

// Generation returns the session generation at emission time.
func (e Event) Generation() uint64 {
	switch v := e.Metadata[metadataGeneration].(type) {
	case uint64:
		return v
	case int:
		if v > 0 {
			return uint64(v)
		}
	case float64:
		if v > 0 {
			return uint64(v)
		}
	}
	return 0
}

// ActivityHook receives normalized resolution events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify calls fn; a nil HookFunc ignores the event.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// OnlyVerbs forwards events carrying one of verbs to hook and drops the rest.
func OnlyVerbs(hook ActivityHook, verbs ...string) ActivityHook {
	allowed := make(map[string]struct{}, len(verbs))
	for _, verb := range verbs {
		if verb = strings.TrimSpace(verb); verb != "" {
			allowed[verb] = struct{}{}
		}
	}
	return HookFunc(func(ctx context.Context, event Event) error {
		if hook == nil {
			return nil
		}
		if _, ok := allowed[event.Verb]; !ok {
			return nil
		}
		return hook.Notify(ctx, event)
	})
}

// HookError reports a single hook failure while fanning out an event.
type HookError struct {
	Index int
	Verb  string
	Panic bool
	Err   error
}

func (e *HookError) Error() string {
	if e.Panic {
		return fmt.Sprintf("activity: hook %d panicked on %s: %v", e.Index, e.Verb, e.Err)
	}
	return fmt.Sprintf("activity: hook %d failed on %s: %v", e.Index, e.Verb, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Hooks fans events out to zero or more hooks.
type Hooks []ActivityHook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes event and forwards it to every hook in order. Events
// without a verb or object type are dropped. A failing or panicking hook does
// not stop the others; failures come back joined as *HookError values.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := notifyHook(ctx, hook, normalized); err != nil {
			var hookErr *HookError
			if errors.As(err, &hookErr) {
				hookErr.Index = i
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func notifyHook(ctx context.Context, hook ActivityHook, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Verb: event.Verb, Panic: true, Err: fmt.Errorf("%v", r)}
		}
	}()
	if err := hook.Notify(ctx, event); err != nil {
		return &HookError{Verb: event.Verb, Err: err}
	}
	return nil
}

// NormalizeEvent trims identifiers, copies metadata and recipients, falls back
// to the object type when ObjectID is empty and stamps OccurredAt in UTC when
// missing.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.UserID = strings.TrimSpace(event.UserID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.ObjectType = strings.TrimSpace(event.ObjectType)
	normalized.ObjectID = strings.TrimSpace(event.ObjectID)
	if normalized.ObjectID == "" {
		normalized.ObjectID = normalized.ObjectType
	}
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.DefinitionCode = strings.TrimSpace(event.DefinitionCode)
	normalized.Metadata = cloneMap(event.Metadata)
	normalized.Recipients = nil
	for _, recipient := range event.Recipients {
		if recipient = strings.TrimSpace(recipient); recipient != "" {
			normalized.Recipients = append(normalized.Recipients, recipient)
		}
	}
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now().UTC()
	}
	return normalized
}

// cloneMap copies src one level deep; key lists are copied too so hooks may
// keep them.
func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		if keys, ok := value.([]string); ok {
			value = append([]string(nil), keys...)
		}
		dst[key] = value
	}
	return dst
}

func metadataString(metadata map[string]any, key string) string {
	value, _ := metadata[key].(string)
	return value
}
