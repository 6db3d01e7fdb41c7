package outbox

import "example.com/enrollment/internal/events"

const participantEnrolledSchema = `{
  "type": "object",
  "title": "ParticipantEnrolled",
  "properties": {
    "event_id": {"type": "string"},
    "activity": {"type": "string"},
    "email": {"type": "string"},
    "spots_left": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "activity", "email", "spots_left", "occurred_at"],
  "additionalProperties": false
}`

const participantRemovedSchema = `{
  "type": "object",
  "title": "ParticipantRemoved",
  "properties": {
    "event_id": {"type": "string"},
    "activity": {"type": "string"},
    "email": {"type": "string"},
    "spots_left": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "activity", "email", "spots_left", "occurred_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps an event type to its schema definition.
// LocalID is the id framed into records when no Schema Registry is configured.
type SchemaCatalogEntry struct {
	Subject string
	Schema  string
	LocalID int
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeParticipantEnrolled: {
		Subject: "participant_enrolled-value",
		Schema:  participantEnrolledSchema,
		LocalID: 1,
	},
	events.TypeParticipantRemoved: {
		Subject: "participant_removed-value",
		Schema:  participantRemovedSchema,
		LocalID: 2,
	},
}
