package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the activity or the participant does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyEnrolled is returned when the participant is already signed up.
	ErrAlreadyEnrolled = errors.New("already enrolled")
	// ErrActivityFull is returned when capacity enforcement is on and no spots remain.
	ErrActivityFull = errors.New("activity full")
	// ErrInvalidEmail is returned for a blank participant email.
	ErrInvalidEmail = errors.New("invalid email")
)

// ErrorKind classifies enrollment failures.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindAlreadyEnrolled ErrorKind = "already_enrolled"
	KindFull            ErrorKind = "activity_full"
	KindInvalid         ErrorKind = "invalid_request"
)

// Reasons attached to EnrollmentError. ReasonNoActivity and ReasonNoParticipant share KindNotFound.
const (
	ReasonNoActivity    = "activity does not exist"
	ReasonNoParticipant = "participant not registered"
	ReasonDuplicate     = "duplicate signup"
	ReasonFull          = "no spots left"
	ReasonEmailRequired = "email is required"
)

// EnrollmentError carries the activity and email that a failed operation targeted.
type EnrollmentError struct {
	Kind     ErrorKind
	Activity string
	Email    string
	Reason   string
}

func (e *EnrollmentError) Error() string {
	return fmt.Sprintf("%s (activity=%q, email=%q)", e.Reason, e.Activity, e.Email)
}

// Unwrap exposes the sentinel matching Kind so callers can use errors.Is.
func (e *EnrollmentError) Unwrap() error {
	switch e.Kind {
	case KindNotFound:
		return ErrNotFound
	case KindAlreadyEnrolled:
		return ErrAlreadyEnrolled
	case KindFull:
		return ErrActivityFull
	case KindInvalid:
		return ErrInvalidEmail
	}
	return nil
}

func activityNotFound(activity, email string) error {
	return &EnrollmentError{Kind: KindNotFound, Activity: activity, Email: email, Reason: ReasonNoActivity}
}

func emailRequired(activity, email string) error {
	return &EnrollmentError{Kind: KindInvalid, Activity: activity, Email: email, Reason: ReasonEmailRequired}
}
