// Package outbox buffers enrollment events and delivers them to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Registrar resolves the schema id framed into each record for a subject.
type Registrar interface {
	EnsureSchema(ctx context.Context, subject, schema string) (int, error)
}

const maxBackoff = 30 * time.Second

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRetry sets how many times a batch is attempted and the initial backoff between attempts.
func WithRetry(maxAttempts int, baseDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			d.baseDelay = baseDelay
		}
	}
}

// WithDrainTimeout bounds how long buffered events may take to flush on shutdown.
func WithDrainTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.drainTimeout = timeout
		}
	}
}

// Dispatcher drains the Queue and delivers events to Kafka using Schema Registry framing.
type Dispatcher struct {
	queue            *Queue
	producer         messageWriter
	registry         Registrar
	flushInterval    time.Duration
	batchSize        int
	maxAttempts      int
	baseDelay        time.Duration
	drainTimeout     time.Duration
	logger           *log.Logger
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(queue *Queue, producer messageWriter, registry Registrar, flushInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	d := &Dispatcher{
		queue:            queue,
		producer:         producer,
		registry:         registry,
		flushInterval:    flushInterval,
		batchSize:        batchSize,
		maxAttempts:      3,
		baseDelay:        200 * time.Millisecond,
		drainTimeout:     5 * time.Second,
		logger:           log.New(log.Writer(), "[outbox] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the batching loop until ctx is cancelled. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.flushInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	batch := make([]Message, 0, d.batchSize)
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx, batch)
			return
		case msg := <-d.queue.ch:
			queueDepth.Set(float64(len(d.queue.ch)))
			batch = append(batch, msg)
			if len(batch) >= d.batchSize {
				d.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) drain(ctx context.Context, pending []Message) {
	for len(d.queue.ch) > 0 {
		pending = append(pending, <-d.queue.ch)
	}
	queueDepth.Set(0)
	if len(pending) == 0 {
		return
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.drainTimeout)
	defer cancel()
	for start := 0; start < len(pending); start += d.batchSize {
		end := min(start+d.batchSize, len(pending))
		d.processBatch(drainCtx, pending[start:end])
	}
}

func (d *Dispatcher) processBatch(ctx context.Context, messages []Message) {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	for attempt := 1; ; attempt++ {
		err := d.deliver(ctx, messages)
		if err == nil {
			deliveredCounter.Add(float64(len(messages)))
			return
		}
		if attempt >= d.maxAttempts || ctx.Err() != nil {
			d.logger.Printf("delivery failed after %d attempt(s), dropping %d event(s): %v", attempt, len(messages), err)
			failedCounter.Add(float64(len(messages)))
			return
		}

		retryCounter.Inc()
		delay := d.backoffDelay(attempt)
		d.logger.Printf("delivery attempt %d failed, retrying in %s: %v", attempt, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// backoffDelay calculates exponential backoff capped at maxBackoff.
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * d.baseDelay
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)

	for _, msg := range messages {
		meta, ok := schemaCatalog[msg.EventType]
		if !ok {
			return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
		}

		schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:   []byte(msg.Key),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "event_id", Value: []byte(msg.EventID)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			},
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for topic, records := range batches {
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	cacheKey := subject + "::" + schema
	if v, ok := d.schemaIDCache.Load(cacheKey); ok {
		return v.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
