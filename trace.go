package props

import (
	"encoding/json"
	"time"
)

// StepOutcome describes what happened to one node during a pass.
type StepOutcome string

const (
	OutcomeResolved   StepOutcome = "resolved"
	OutcomeCached     StepOutcome = "cached"
	OutcomeSkipped    StepOutcome = "skipped"
	OutcomeFailed     StepOutcome = "failed"
	OutcomeSuperseded StepOutcome = "superseded"
)

// PassTrace captures provenance for one resolution pass: what triggered it,
// which nodes were dirtied or pruned and how each node settled.
type PassTrace struct {
	Generation uint64        `json:"generation"`
	Trigger    string        `json:"trigger"`
	Dirty      []string      `json:"dirty,omitempty"`
	Pruned     []string      `json:"pruned,omitempty"`
	Expanded   []string      `json:"expanded,omitempty"`
	Steps      []TraceStep   `json:"steps"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Superseded bool          `json:"superseded,omitempty"`
}

// TraceStep is the provenance of a single node within a pass.
type TraceStep struct {
	Key       string        `json:"key"`
	Outcome   StepOutcome   `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
}

// Step returns the step recorded for key.
func (t PassTrace) Step(key string) (TraceStep, bool) {
	for _, step := range t.Steps {
		if step.Key == key {
			return step, true
		}
	}
	return TraceStep{}, false
}

// Count returns how many steps settled with outcome.
func (t PassTrace) Count(outcome StepOutcome) int {
	n := 0
	for _, step := range t.Steps {
		if step.Outcome == outcome {
			n++
		}
	}
	return n
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t PassTrace) ToJSON() ([]byte, error) {
	type alias PassTrace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (PassTrace, error) {
	type alias PassTrace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return PassTrace{}, err
	}
	return PassTrace(trace), nil
}

func (t PassTrace) clone() PassTrace {
	out := t
	out.Dirty = append([]string(nil), t.Dirty...)
	out.Pruned = append([]string(nil), t.Pruned...)
	out.Expanded = append([]string(nil), t.Expanded...)
	out.Steps = append([]TraceStep(nil), t.Steps...)
	return out
}
