// Package consumer reads enrollment events from Kafka and hands them to downstream handlers.
package consumer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the processor uses.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler consumes one decoded enrollment event.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHandlerRetry sets how often a failing handler is retried for the same record
// and the pause between attempts.
func WithHandlerRetry(attempts int, delay time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if delay >= 0 {
			p.retryDelay = delay
		}
	}
}

// Processor feeds records from one Reader to one Handler, one at a time, so
// events for an activity reach the handler in partition order.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     *log.Logger
	attempts   int
	retryDelay time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     log.New(log.Writer(), "[consumer] ", log.LstdFlags),
		attempts:   3,
		retryDelay: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records until ctx is cancelled.
// A record is committed once its handler succeeds. Undecodable records are committed
// and skipped; records whose handler keeps failing are left uncommitted.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		if err := p.process(ctx, rec); err != nil {
			return err
		}
	}
}

// process handles one record. It only returns an error when ctx ends mid-retry.
func (p *Processor) process(ctx context.Context, rec kafka.Message) error {
	msg, err := decodeRecord(rec)
	if err != nil {
		p.logger.Printf("skipping %s/%d@%d: %v", rec.Topic, rec.Partition, rec.Offset, err)
		recordDecodeError(rec.Topic)
		p.commit(ctx, rec)
		return nil
	}

	if err := p.handle(ctx, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.logger.Printf("giving up on %s for %q (event_id=%s): %v", msg.EventType, msg.Key, msg.EventID, err)
		recordHandlerError(msg)
		return nil
	}

	if p.commit(ctx, rec) {
		recordProcessed(msg)
	}
	return nil
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		recordHandlerRetry(msg)

		timer := time.NewTimer(p.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (p *Processor) commit(ctx context.Context, rec kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, rec); err != nil {
		p.logger.Printf("commit %s/%d@%d: %v", rec.Topic, rec.Partition, rec.Offset, err)
		return false
	}
	return true
}
