package usersink_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-props/pkg/activity"
	"github.com/goliatone/go-props/pkg/activity/usersink"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsEvent(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actorID := uuid.New()
	userID := uuid.New()
	tenantID := uuid.New()
	objectID := uuid.New().String()

	event := activity.Event{
		Verb:           "props.field.changed",
		ActorID:        actorID.String(),
		UserID:         userID.String(),
		TenantID:       tenantID.String(),
		ObjectType:     "props.field",
		ObjectID:       objectID,
		Channel:        "props",
		DefinitionCode: "props:field",
		Recipients:     []string{"recipient@example.com"},
		Metadata: map[string]any{
			"field": "base",
		},
		OccurredAt: now,
	}

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.ActorID != actorID {
		t.Fatalf("expected actor %s got %s", actorID, record.ActorID)
	}
	if record.UserID != userID {
		t.Fatalf("expected user %s got %s", userID, record.UserID)
	}
	if record.TenantID != tenantID {
		t.Fatalf("expected tenant %s got %s", tenantID, record.TenantID)
	}
	if record.Verb != "props.field.changed" || record.ObjectType != "props.field" || record.ObjectID != objectID {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.Channel != "props" {
		t.Fatalf("expected channel props got %q", record.Channel)
	}
	if record.OccurredAt != now {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["definition_code"] != "props:field" {
		t.Fatalf("expected definition_code metadata got %v", record.Data["definition_code"])
	}
	if record.Data["field"] != "base" {
		t.Fatalf("expected metadata passthrough got %v", record.Data["field"])
	}
	recipients, ok := record.Data["recipients"].([]string)
	if !ok || len(recipients) != 1 || recipients[0] != "recipient@example.com" {
		t.Fatalf("expected recipients metadata got %v", record.Data["recipients"])
	}
}

func TestHookNotifySkipsMissingVerb(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records for empty event, got %d", len(sink.records))
	}
}

func TestHookNotifyDefaultsTimestamp(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       "create",
		ObjectType: "props.field",
		ObjectID:   "1",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	if sink.records[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
}

func TestHookFiltersVerbsAndDefaultsTenant(t *testing.T) {
	sink := &recordingSink{}
	tenantID := uuid.New()
	hook := usersink.Hook{Sink: sink, Verbs: []string{activity.VerbFieldFailed}, TenantID: tenantID.String()}

	_ = hook.Notify(context.Background(), activity.Event{Verb: activity.VerbFieldChanged, ObjectType: "props.field", ObjectID: "s/base"})
	if err := hook.Notify(context.Background(), activity.Event{Verb: activity.VerbFieldFailed, ObjectType: "props.field", ObjectID: "s/base"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected only the allowed verb forwarded, got %d", len(sink.records))
	}
	if sink.records[0].TenantID != tenantID {
		t.Fatalf("expected default tenant %s got %s", tenantID, sink.records[0].TenantID)
	}
}

func TestHookRedactsFieldValues(t *testing.T) {
	tests := []struct {
		name          string
		field         string
		includeValues bool
		wantValues    bool
	}{
		{name: "default", field: "table", wantValues: false},
		{name: "included", field: "table", includeValues: true, wantValues: true},
		{name: "auth always redacted", field: usersink.AuthField, includeValues: true, wantValues: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			hook := usersink.Hook{Sink: sink, IncludeValues: tt.includeValues}
			event := activity.BuildFieldChangedEvent(activity.ResolutionEventInput{
				SessionID: "sess-1",
				Field:     tt.field,
				OldValue:  "old",
				NewValue:  "new",
			})

			if err := hook.Notify(context.Background(), event); err != nil {
				t.Fatalf("notify: %v", err)
			}
			data := sink.records[0].Data
			_, hasOld := data["old_value"]
			_, hasNew := data["new_value"]
			if hasOld != tt.wantValues || hasNew != tt.wantValues {
				t.Fatalf("expected values present=%v, got %v", tt.wantValues, data)
			}
			if data["field"] != tt.field || data["session_id"] != "sess-1" {
				t.Fatalf("expected identity metadata kept, got %v", data)
			}
			if _, ok := event.Metadata["old_value"]; !ok {
				t.Fatalf("redaction must not mutate the caller's event")
			}
		})
	}
}
