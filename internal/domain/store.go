package domain

import (
	"fmt"
	"strings"
	"sync"
)

// StoreOption configures an EnrollmentStore.
type StoreOption func(*EnrollmentStore)

// WithCapacityEnforcement rejects enrollments once an activity has no spots left.
func WithCapacityEnforcement() StoreOption {
	return func(s *EnrollmentStore) {
		s.enforceCapacity = true
	}
}

// EnrollmentStore owns the catalog. All reads and writes go through List, Enroll and Remove.
type EnrollmentStore struct {
	mu              sync.RWMutex
	activities      map[string]*Activity
	enforceCapacity bool
}

// NewEnrollmentStore copies seed into a new store. Repeated emails within a seed
// participant list are kept once.
func NewEnrollmentStore(seed []Activity, opts ...StoreOption) *EnrollmentStore {
	s := &EnrollmentStore{activities: make(map[string]*Activity, len(seed))}
	for _, opt := range opts {
		opt(s)
	}
	for _, a := range seed {
		act := a
		act.Participants = make([]string, 0, len(a.Participants))
		for _, p := range a.Participants {
			if !act.Has(p) {
				act.Participants = append(act.Participants, p)
			}
		}
		s.activities[a.Name] = &act
	}
	return s
}

// List returns a snapshot of the catalog. The snapshot shares no memory with the store.
func (s *EnrollmentStore) List() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Catalog, len(s.activities))
	for name, a := range s.activities {
		snapshot := *a
		snapshot.Participants = append([]string(nil), a.Participants...)
		if snapshot.Participants == nil {
			snapshot.Participants = []string{}
		}
		out[name] = snapshot
	}
	return out
}

// commitFunc runs while the store lock is still held, so successive calls
// observe mutations in the order they were applied.
type commitFunc func(Confirmation)

// Enroll adds email to the named activity.
func (s *EnrollmentStore) Enroll(activity, email string) (Confirmation, error) {
	return s.enroll(activity, email, nil)
}

// Remove drops email from the named activity, keeping the order of the remaining participants.
func (s *EnrollmentStore) Remove(activity, email string) (Confirmation, error) {
	return s.remove(activity, email, nil)
}

func (s *EnrollmentStore) enroll(activity, email string, commit commitFunc) (Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activity]
	if !ok {
		return Confirmation{}, activityNotFound(activity, email)
	}
	if blank(email) {
		return Confirmation{}, emailRequired(activity, email)
	}
	if a.Has(email) {
		return Confirmation{}, &EnrollmentError{Kind: KindAlreadyEnrolled, Activity: activity, Email: email, Reason: ReasonDuplicate}
	}
	if s.enforceCapacity && a.SpotsLeft() == 0 {
		return Confirmation{}, &EnrollmentError{Kind: KindFull, Activity: activity, Email: email, Reason: ReasonFull}
	}

	a.Participants = append(a.Participants, email)
	conf := Confirmation{
		Activity:     activity,
		Email:        email,
		Message:      fmt.Sprintf("Signed up %s for %s", email, activity),
		Participants: len(a.Participants),
		SpotsLeft:    a.SpotsLeft(),
	}
	if commit != nil {
		commit(conf)
	}
	return conf, nil
}

func (s *EnrollmentStore) remove(activity, email string, commit commitFunc) (Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activity]
	if !ok {
		return Confirmation{}, activityNotFound(activity, email)
	}
	if blank(email) {
		return Confirmation{}, emailRequired(activity, email)
	}

	idx := -1
	for i, p := range a.Participants {
		if p == email {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Confirmation{}, &EnrollmentError{Kind: KindNotFound, Activity: activity, Email: email, Reason: ReasonNoParticipant}
	}

	a.Participants = append(a.Participants[:idx], a.Participants[idx+1:]...)
	conf := Confirmation{
		Activity:     activity,
		Email:        email,
		Message:      fmt.Sprintf("Removed %s from %s", email, activity),
		Participants: len(a.Participants),
		SpotsLeft:    a.SpotsLeft(),
	}
	if commit != nil {
		commit(conf)
	}
	return conf, nil
}

// blank reports an email with no visible characters. Stored emails are never trimmed.
func blank(email string) bool {
	return strings.TrimSpace(email) == ""
}
