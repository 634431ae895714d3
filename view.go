package props

import "encoding/json"

// FieldStatus is the settled state of one field in a View.
type FieldStatus string

const (
	StatusStatic   FieldStatus = "static"
	StatusPending  FieldStatus = "pending"
	StatusResolved FieldStatus = "resolved"
	StatusDisabled FieldStatus = "disabled"
	StatusFailed   FieldStatus = "failed"
)

// FieldState is what a renderer needs to draw one control.
type FieldState struct {
	Key         string           `json:"key"`
	Parent      string           `json:"parent,omitempty"`
	Kind        Kind             `json:"kind"`
	Required    bool             `json:"required,omitempty"`
	DisplayName string           `json:"display_name"`
	Description string           `json:"description,omitempty"`
	Value       any              `json:"value,omitempty"`
	HasValue    bool             `json:"has_value"`
	Options     *ResolvedOptions `json:"options,omitempty"`
	Children    []string         `json:"children,omitempty"`
	Status      FieldStatus      `json:"status"`
	Cached      bool             `json:"cached,omitempty"`
	Error       string           `json:"error,omitempty"`
	ErrorKind   ErrorKind        `json:"error_kind,omitempty"`
}

// Disabled reports whether the control should be rendered disabled.
func (f FieldState) Disabled() bool {
	return f.Options != nil && f.Options.Disabled
}

// Placeholder returns the guidance text of a disabled or empty control.
func (f FieldState) Placeholder() string {
	if f.Options == nil {
		return ""
	}
	return f.Options.Placeholder
}

// View is the flat materialized state of a session after a pass. Order lists
// top-level fields in declaration order with nested children right after
// their parent.
type View struct {
	SessionID  string                `json:"session_id"`
	Schema     string                `json:"schema"`
	Generation uint64                `json:"generation"`
	Order      []string              `json:"order"`
	Fields     map[string]FieldState `json:"fields"`
}

// Field returns the state of key.
func (v View) Field(key string) (FieldState, bool) {
	state, ok := v.Fields[key]
	return state, ok
}

// States returns the field states in view order.
func (v View) States() []FieldState {
	out := make([]FieldState, 0, len(v.Order))
	for _, key := range v.Order {
		out = append(out, v.Fields[key])
	}
	return out
}

// Options returns the resolved options of key, or nil.
func (v View) Options(key string) *ResolvedOptions {
	state, ok := v.Fields[key]
	if !ok {
		return nil
	}
	return state.Options
}

// Settled reports whether no field is pending.
func (v View) Settled() bool {
	for _, state := range v.Fields {
		if state.Status == StatusPending {
			return false
		}
	}
	return true
}

// ToJSON serialises the view for transport to a renderer.
func (v View) ToJSON() ([]byte, error) {
	return json.Marshal(v)
}
