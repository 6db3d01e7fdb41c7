// Package events defines the enrollment event payloads shared by the API and the consumer.
package events

import "time"

// Event types carried in the event_type record header.
const (
	TypeParticipantEnrolled = "participant.enrolled"
	TypeParticipantRemoved  = "participant.removed"
)

// ParticipantEnrolled is emitted after a participant signs up for an activity.
type ParticipantEnrolled struct {
	EventID    string    `json:"event_id"`
	Activity   string    `json:"activity"`
	Email      string    `json:"email"`
	SpotsLeft  int       `json:"spots_left"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ParticipantRemoved is emitted after a participant is unregistered from an activity.
type ParticipantRemoved struct {
	EventID    string    `json:"event_id"`
	Activity   string    `json:"activity"`
	Email      string    `json:"email"`
	SpotsLeft  int       `json:"spots_left"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Envelope pairs a payload with its routing metadata before it is encoded for Kafka.
type Envelope struct {
	ID      string
	Type    string
	Key     string
	Payload any
}
