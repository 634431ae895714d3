package props

import (
	"reflect"
	"sort"
)

// Snapshot is an immutable view of field values and the auth slot at a point
// in time. Mutating helpers return a new Snapshot.
type Snapshot struct {
	values  map[string]any
	auth    any
	hasAuth bool
}

// NewSnapshot copies values into a new Snapshot.
func NewSnapshot(values map[string]any) Snapshot {
	return Snapshot{values: copyValues(values)}
}

// With returns a snapshot where key holds value.
func (s Snapshot) With(key string, value any) Snapshot {
	out := s.clone()
	if out.values == nil {
		out.values = map[string]any{}
	}
	out.values[key] = value
	return out
}

// Without returns a snapshot with keys removed.
func (s Snapshot) Without(keys ...string) Snapshot {
	out := s.clone()
	for _, key := range keys {
		delete(out.values, key)
	}
	return out
}

// WithAuth returns a snapshot carrying auth. A nil auth clears the slot.
func (s Snapshot) WithAuth(auth any) Snapshot {
	out := s.clone()
	out.auth = auth
	out.hasAuth = auth != nil
	return out
}

// Value returns the value stored for key.
func (s Snapshot) Value(key string) (any, bool) {
	value, ok := s.values[key]
	return value, ok
}

// Auth returns the auth value.
func (s Snapshot) Auth() (any, bool) {
	return s.auth, s.hasAuth
}

// Values returns a copy of the value map.
func (s Snapshot) Values() map[string]any {
	return copyValues(s.values)
}

// Keys returns the keys holding a value, sorted.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored values.
func (s Snapshot) Len() int {
	return len(s.values)
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		values:  copyValues(s.values),
		auth:    s.auth,
		hasAuth: s.hasAuth,
	}
}

// Present reports whether key (or AuthKey) carries a non-empty value.
func (s Snapshot) Present(key string) bool {
	if key == AuthKey {
		return s.hasAuth && !isEmpty(s.auth)
	}
	value, ok := s.values[key]
	return ok && !isEmpty(value)
}

// Input is the read-only slice of a Snapshot handed to a resolver: only the
// refreshers the field declared, keyed by their declared names.
type Input struct {
	key     string
	values  map[string]any
	auth    any
	hasAuth bool
}

// NewInput builds an Input, mainly for testing resolvers in isolation.
func NewInput(key string, values map[string]any, auth any) Input {
	return Input{
		key:     key,
		values:  copyValues(values),
		auth:    auth,
		hasAuth: auth != nil,
	}
}

// Key is the materialized key of the field being resolved.
func (in Input) Key() string {
	return in.key
}

// Auth returns the auth value when the field declared the auth refresher.
func (in Input) Auth() (any, bool) {
	return in.auth, in.hasAuth
}

// Lookup returns the value of a declared refresher.
func (in Input) Lookup(name string) (any, bool) {
	value, ok := in.values[name]
	return value, ok
}

// Value returns the value of a declared refresher or nil.
func (in Input) Value(name string) any {
	return in.values[name]
}

// String returns the refresher value when it is a string.
func (in Input) String(name string) string {
	value, _ := in.values[name].(string)
	return value
}

// Values returns a copy of the refresher values.
func (in Input) Values() map[string]any {
	return copyValues(in.values)
}

func copyValues(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}

// isEmpty treats nil, empty strings and empty collections as absent.
func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
