package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context identifies the payload being decoded in error messages and hooks.
type Context struct {
	// Field is the property key the payload describes, when known.
	Field string
	// Source names where the payload came from (resolver result, loader file).
	Source string

	index   int
	indexed bool
}

func (c Context) label() string {
	field := c.Field
	if field == "" && c.indexed {
		field = fmt.Sprintf("[%d]", c.index)
	}
	switch {
	case field != "" && c.Source != "":
		return c.Source + ":" + field
	case field != "":
		return field
	case c.Source != "":
		return c.Source
	default:
		return "<unnamed>"
	}
}

// PreHook rewrites the payload copy before decoding, e.g. to rename legacy
// keys. Returning nil keeps the current payload.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the hydrated struct after decoding.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts loosely typed map payloads into strongly typed structs.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithDisallowUnknownFields invokes json.Decoder.DisallowUnknownFields.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

// NewDecoder builds a Decoder from opts.
func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// DecodeError names the stage and payload that failed to decode.
type DecodeError struct {
	Stage string
	Label string
	Err   error
}

const (
	stageNil    = "nil"
	stageClone  = "clone"
	stagePre    = "pre-hook"
	stageDecode = "decode"
	stagePost   = "post-hook"
)

func (e *DecodeError) Error() string {
	if e.Stage == stageNil {
		return fmt.Sprintf("hydrate: payload is nil for %s", e.Label)
	}
	return fmt.Sprintf("hydrate: %s for %s failed: %v", e.Stage, e.Label, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode copies payload, runs the pre hooks, decodes the copy into T and runs
// the post hooks. payload itself is never modified.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T
	fail := func(stage string, err error) (T, error) {
		return zero, &DecodeError{Stage: stage, Label: ctx.label(), Err: err}
	}

	if payload == nil {
		return fail(stageNil, nil)
	}
	current, err := clonePayload(payload)
	if err != nil {
		return fail(stageClone, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return fail(stagePre, err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if err := d.decodeJSON(current, &result); err != nil {
		return fail(stageDecode, err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return fail(stagePost, err)
		}
	}
	return result, nil
}

func (d *Decoder[T]) decodeJSON(payload map[string]any, out *T) error {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	for _, configure := range d.configureDec {
		configure(decoder)
	}
	return decoder.Decode(out)
}

// clonePayload deep copies payload through JSON, so hooks see the same
// number and slice shapes the decoder does.
func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeList decodes every payload in order. fields, when given, supplies
// the Field for the payload at the same index. Items without a field are
// labelled by index in errors, e.g. "resolver:[1]", while hooks see an empty
// Field.
func (d *Decoder[T]) DecodeList(ctx Context, payloads []map[string]any, fields []string) ([]T, error) {
	out := make([]T, 0, len(payloads))
	for i, payload := range payloads {
		itemCtx := ctx
		itemCtx.index, itemCtx.indexed = i, true
		if i < len(fields) && fields[i] != "" {
			itemCtx.Field = fields[i]
		}
		item, err := d.Decode(itemCtx, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
