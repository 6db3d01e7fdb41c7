package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/enrollment/internal/events"
)

const auditSchema = `CREATE TABLE IF NOT EXISTS enrollment_event_log (
    event_id       TEXT PRIMARY KEY,
    event_type     TEXT NOT NULL,
    activity       TEXT NOT NULL,
    email          TEXT NOT NULL,
    spots_left     INTEGER NOT NULL,
    schema_id      INTEGER NOT NULL,
    schema_subject TEXT NOT NULL,
    topic          TEXT NOT NULL,
    partition      INTEGER NOT NULL,
    record_offset  BIGINT NOT NULL,
    payload        JSONB NOT NULL,
    occurred_at    TIMESTAMPTZ NOT NULL,
    received_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// change is the shape shared by enrolled and removed payloads.
type change struct {
	EventID    string    `json:"event_id"`
	Activity   string    `json:"activity"`
	Email      string    `json:"email"`
	SpotsLeft  int       `json:"spots_left"`
	OccurredAt time.Time `json:"occurred_at"`
}

func decodeChange(msg Message) (change, error) {
	var c change
	switch msg.EventType {
	case events.TypeParticipantEnrolled, events.TypeParticipantRemoved:
	default:
		return c, fmt.Errorf("unsupported event_type %q", msg.EventType)
	}
	if err := json.Unmarshal(msg.Payload, &c); err != nil {
		return c, fmt.Errorf("decode %s: %w", msg.EventType, err)
	}

	if c.EventID == "" {
		c.EventID = msg.EventID
	}
	if c.EventID == "" {
		return c, fmt.Errorf("event %s at offset %d has no event id", msg.EventType, msg.Offset)
	}
	if c.Activity == "" {
		c.Activity = msg.Key
	}
	if c.OccurredAt.IsZero() {
		c.OccurredAt = msg.Timestamp
	}
	return c, nil
}

// AuditHandler appends consumed enrollment events to the enrollment_event_log table.
// Redelivered events are ignored by event id.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (h *AuditHandler) EnsureSchema(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("create enrollment_event_log: %w", err)
	}
	return nil
}

// Handle stores the event in the audit log.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	evt, err := decodeChange(msg)
	if err != nil {
		return err
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO enrollment_event_log (event_id, event_type, activity, email, spots_left, schema_id, schema_subject, topic, partition, record_offset, payload, occurred_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
         ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID,
		msg.EventType,
		evt.Activity,
		evt.Email,
		evt.SpotsLeft,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		[]byte(msg.Payload),
		evt.OccurredAt,
	)
	return err
}

// LogHandler writes a one-line summary of every event, used when no audit database is configured.
func LogHandler(logger *log.Logger) Handler {
	return HandlerFunc(func(_ context.Context, msg Message) error {
		evt, err := decodeChange(msg)
		if err != nil {
			return err
		}
		logger.Printf("%s activity=%q email=%s spots_left=%d event_id=%s", msg.EventType, evt.Activity, evt.Email, evt.SpotsLeft, evt.EventID)
		return nil
	})
}
