// Package domain defines the enrollment rules for the activity catalog.
package domain

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"example.com/enrollment/internal/events"
	"example.com/enrollment/internal/observability"
)

const (
	opEnroll = "enroll"
	opRemove = "remove"
)

// EventPublisher receives enrollment events after a successful state change.
// Publish is called with the activity store locked, in mutation order, and must not block.
type EventPublisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// Publish performs no action.
func (NoopPublisher) Publish(context.Context, events.Envelope) error { return nil }

// ServiceOption configures optional behaviour for the Service.
type ServiceOption func(*Service)

// WithLogger overrides the logger used to report publish failures.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates enrollment workflows on top of the EnrollmentStore.
type Service struct {
	store     *EnrollmentStore
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

// NewService constructs a Service. A nil publisher discards events.
func NewService(store *EnrollmentStore, publisher EventPublisher, opts ...ServiceOption) *Service {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	s := &Service{
		store:     store,
		publisher: publisher,
		logger:    log.New(log.Writer(), "[domain] ", log.LstdFlags),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for name, activity := range store.List() {
		observability.RecordParticipants(name, len(activity.Participants))
	}
	return s
}

// ListActivities returns a snapshot of the catalog.
func (s *Service) ListActivities(ctx context.Context) Catalog {
	return s.store.List()
}

// Enroll signs email up for activity. Both values are used as given.
func (s *Service) Enroll(ctx context.Context, activity, email string) (Confirmation, error) {
	conf, err := s.store.enroll(activity, email, func(conf Confirmation) {
		observability.RecordParticipants(activity, conf.Participants)
		id := uuid.NewString()
		s.publish(ctx, events.Envelope{
			ID:   id,
			Type: events.TypeParticipantEnrolled,
			Key:  activity,
			Payload: events.ParticipantEnrolled{
				EventID:    id,
				Activity:   activity,
				Email:      email,
				SpotsLeft:  conf.SpotsLeft,
				OccurredAt: s.now().UTC(),
			},
		})
	})
	if err != nil {
		observability.RecordOperation(opEnroll, outcome(err))
		return Confirmation{}, err
	}
	observability.RecordOperation(opEnroll, "ok")
	return conf, nil
}

// Remove unregisters email from activity. Both values are used as given.
func (s *Service) Remove(ctx context.Context, activity, email string) (Confirmation, error) {
	conf, err := s.store.remove(activity, email, func(conf Confirmation) {
		observability.RecordParticipants(activity, conf.Participants)
		id := uuid.NewString()
		s.publish(ctx, events.Envelope{
			ID:   id,
			Type: events.TypeParticipantRemoved,
			Key:  activity,
			Payload: events.ParticipantRemoved{
				EventID:    id,
				Activity:   activity,
				Email:      email,
				SpotsLeft:  conf.SpotsLeft,
				OccurredAt: s.now().UTC(),
			},
		})
	})
	if err != nil {
		observability.RecordOperation(opRemove, outcome(err))
		return Confirmation{}, err
	}
	observability.RecordOperation(opRemove, "ok")
	return conf, nil
}

func (s *Service) publish(ctx context.Context, env events.Envelope) {
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.logger.Printf("publish %s for %q failed: %v", env.Type, env.Key, err)
	}
}

func outcome(err error) string {
	var enrollErr *EnrollmentError
	if errors.As(err, &enrollErr) {
		return string(enrollErr.Kind)
	}
	return "error"
}
