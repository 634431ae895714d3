package activity

import (
	"strings"
	"time"
)

// Verbs emitted by resolution sessions.
const (
	VerbSessionOpened   = "props.session.opened"
	VerbFieldChanged    = "props.field.changed"
	VerbPassCompleted   = "props.pass.completed"
	VerbFieldFailed     = "props.field.failed"
	VerbChildrenPruned  = "props.children.pruned"
	ObjectTypeSession   = "props.session"
	ObjectTypeField     = "props.field"
	DefaultChannel      = "props"
	metadataSessionID   = "session_id"
	metadataSchema      = "schema"
	metadataGeneration  = "generation"
	metadataField       = "field"
	metadataOldValue    = "old_value"
	metadataNewValue    = "new_value"
	metadataKeys        = "keys"
	metadataError       = "error"
	metadataErrorKind   = "error_kind"
	metadataSuperseded  = "superseded"
	metadataDurationMS  = "duration_ms"
	metadataResolvedCnt = "resolved"
)

// ResolutionEventInput describes the common fields of session lifecycle events.
type ResolutionEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	SessionID      string
	Schema         string
	Generation     uint64
	Field          string
	OldValue       any
	NewValue       any
	Keys           []string
	Err            error
	ErrorKind      string
	Superseded     bool
	Resolved       int
	Duration       time.Duration
	OccurredAt     time.Time
}

// BuildSessionOpenedEvent announces a new resolution session for a schema.
func BuildSessionOpenedEvent(input ResolutionEventInput) Event {
	return buildResolutionEvent(VerbSessionOpened, ObjectTypeSession, input.SessionID, input)
}

// BuildFieldChangedEvent records a user or auth value change.
func BuildFieldChangedEvent(input ResolutionEventInput) Event {
	event := buildResolutionEvent(VerbFieldChanged, ObjectTypeField, fieldObjectID(input), input)
	if input.OldValue != nil {
		event.Metadata[metadataOldValue] = input.OldValue
	}
	if input.NewValue != nil {
		event.Metadata[metadataNewValue] = input.NewValue
	}
	return event
}

// BuildPassCompletedEvent summarizes a finished resolution pass.
func BuildPassCompletedEvent(input ResolutionEventInput) Event {
	event := buildResolutionEvent(VerbPassCompleted, ObjectTypeSession, input.SessionID, input)
	event.Metadata[metadataSuperseded] = input.Superseded
	event.Metadata[metadataResolvedCnt] = input.Resolved
	event.Metadata[metadataDurationMS] = input.Duration.Milliseconds()
	if len(input.Keys) > 0 {
		event.Metadata[metadataKeys] = append([]string{}, input.Keys...)
	}
	return event
}

// BuildFieldFailedEvent records a resolver failure surfaced on a field.
func BuildFieldFailedEvent(input ResolutionEventInput) Event {
	event := buildResolutionEvent(VerbFieldFailed, ObjectTypeField, fieldObjectID(input), input)
	if input.Err != nil {
		event.Metadata[metadataError] = input.Err.Error()
	}
	if input.ErrorKind != "" {
		event.Metadata[metadataErrorKind] = input.ErrorKind
	}
	return event
}

// BuildChildrenPrunedEvent records nested children removed from a session.
func BuildChildrenPrunedEvent(input ResolutionEventInput) Event {
	event := buildResolutionEvent(VerbChildrenPruned, ObjectTypeField, fieldObjectID(input), input)
	event.Metadata[metadataKeys] = append([]string{}, input.Keys...)
	return event
}

func buildResolutionEvent(verb, objectType, objectID string, input ResolutionEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if id := strings.TrimSpace(input.SessionID); id != "" {
		metadata[metadataSessionID] = id
	}
	if input.Schema != "" {
		metadata[metadataSchema] = input.Schema
	}
	if input.Generation > 0 {
		metadata[metadataGeneration] = input.Generation
	}
	if input.Field != "" {
		metadata[metadataField] = input.Field
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     objectType,
		ObjectID:       objectID,
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

// fieldObjectID scopes field events to their session: "<session>/<field>".
func fieldObjectID(input ResolutionEventInput) string {
	field := strings.TrimSpace(input.Field)
	session := strings.TrimSpace(input.SessionID)
	switch {
	case session == "":
		return field
	case field == "":
		return session
	default:
		return session + "/" + field
	}
}

// RedactValues returns a copy of event without the old and new field values.
func RedactValues(event Event) Event {
	if _, ok := event.Metadata[metadataOldValue]; !ok {
		if _, ok := event.Metadata[metadataNewValue]; !ok {
			return event
		}
	}
	event.Metadata = cloneMap(event.Metadata)
	delete(event.Metadata, metadataOldValue)
	delete(event.Metadata, metadataNewValue)
	return event
}
