package activity

import (
	"errors"
	"testing"
	"time"
)

func TestBuildFieldChangedEventScopesObjectToSession(t *testing.T) {
	meta := map[string]any{"source": "ui"}
	input := ResolutionEventInput{
		ActorID:    " actor ",
		SessionID:  "sess-1",
		Schema:     "airtable",
		Generation: 3,
		Field:      "base",
		OldValue:   "app1",
		NewValue:   "app2",
		Metadata:   meta,
		Channel:    " props ",
	}

	event := BuildFieldChangedEvent(input)

	if event.Verb != VerbFieldChanged {
		t.Fatalf("expected verb %s got %s", VerbFieldChanged, event.Verb)
	}
	if event.ObjectType != ObjectTypeField || event.ObjectID != "sess-1/base" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" || event.Channel != "props" {
		t.Fatalf("expected trimmed identity fields: %+v", event)
	}
	if event.Metadata["session_id"] != "sess-1" || event.Metadata["schema"] != "airtable" {
		t.Fatalf("expected session metadata, got %+v", event.Metadata)
	}
	if event.Metadata["generation"] != uint64(3) || event.Metadata["field"] != "base" {
		t.Fatalf("expected generation and field, got %+v", event.Metadata)
	}
	if event.Metadata["old_value"] != "app1" || event.Metadata["new_value"] != "app2" {
		t.Fatalf("expected old/new values, got %+v", event.Metadata)
	}
	event.Metadata["source"] = "changed"
	if meta["source"] != "ui" {
		t.Fatalf("expected caller metadata untouched")
	}
}

func TestBuildPassCompletedEventSummarizesPass(t *testing.T) {
	event := BuildPassCompletedEvent(ResolutionEventInput{
		SessionID:  "sess-1",
		Generation: 2,
		Keys:       []string{"table", "fields"},
		Resolved:   2,
		Duration:   1500 * time.Millisecond,
		Superseded: true,
	})

	if event.ObjectType != ObjectTypeSession || event.ObjectID != "sess-1" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.Metadata["superseded"] != true || event.Metadata["resolved"] != 2 {
		t.Fatalf("unexpected summary metadata: %+v", event.Metadata)
	}
	if event.Metadata["duration_ms"] != int64(1500) {
		t.Fatalf("expected duration_ms 1500, got %v", event.Metadata["duration_ms"])
	}
	keys, ok := event.Metadata["keys"].([]string)
	if !ok || len(keys) != 2 {
		t.Fatalf("expected keys metadata, got %v", event.Metadata["keys"])
	}
}

func TestBuildFieldFailedEventCarriesError(t *testing.T) {
	event := BuildFieldFailedEvent(ResolutionEventInput{
		SessionID: "sess-1",
		Field:     "fields",
		Err:       errors.New("rate limited"),
		ErrorKind: "resolver_threw",
	})

	if event.Verb != VerbFieldFailed {
		t.Fatalf("unexpected verb %s", event.Verb)
	}
	if event.Metadata["error"] != "rate limited" || event.Metadata["error_kind"] != "resolver_threw" {
		t.Fatalf("expected error metadata, got %+v", event.Metadata)
	}
}

func TestBuildChildrenPrunedEventFallsBackToObjectType(t *testing.T) {
	event := BuildChildrenPrunedEvent(ResolutionEventInput{Keys: []string{"fields.name"}})

	if event.ObjectID != ObjectTypeField {
		t.Fatalf("expected object id fallback, got %q", event.ObjectID)
	}
	keys := event.Metadata["keys"].([]string)
	if len(keys) != 1 || keys[0] != "fields.name" {
		t.Fatalf("unexpected pruned keys %v", keys)
	}
}
