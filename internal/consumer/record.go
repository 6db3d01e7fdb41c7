package consumer

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// wireHeaderLen covers the magic byte and the big-endian schema id in front of every payload.
const wireHeaderLen = 5

// Message is one enrollment event as published by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	Key           string // activity name
	EventType     string
	EventID       string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

var errMissingEventType = errors.New("missing event_type header")

// decodeRecord unwraps the schema-registry framing and reads the routing headers.
func decodeRecord(rec kafka.Message) (Message, error) {
	if len(rec.Value) < wireHeaderLen {
		return Message{}, fmt.Errorf("record of %d bytes is shorter than the wire header", len(rec.Value))
	}
	if magic := rec.Value[0]; magic != 0 {
		return Message{}, fmt.Errorf("unexpected magic byte %d", magic)
	}

	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers["event_type"]
	if eventType == "" {
		return Message{}, errMissingEventType
	}

	body := rec.Value[wireHeaderLen:]
	if !json.Valid(body) {
		return Message{}, errors.New("payload is not valid JSON")
	}

	return Message{
		Topic:         rec.Topic,
		Partition:     rec.Partition,
		Offset:        rec.Offset,
		Timestamp:     rec.Time,
		Key:           string(rec.Key),
		EventType:     eventType,
		EventID:       headers["event_id"],
		SchemaSubject: headers["schema_subject"],
		SchemaID:      int(binary.BigEndian.Uint32(rec.Value[1:wireHeaderLen])),
		Payload:       append(json.RawMessage(nil), body...),
	}, nil
}
