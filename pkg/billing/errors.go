package billing

import (
	"errors"
	"fmt"
)

// ErrExtractionUnavailable marks a transient extraction collaborator
// failure. The coordinator retries these with backoff.
var ErrExtractionUnavailable = errors.New("extraction service unavailable")

// ErrImmutableEvent is returned informationally when an extraction
// replay targets an approved or rejected event. The merge skips the
// amendment and the caller logs at info level; it is not a failure.
var ErrImmutableEvent = errors.New("billable event is no longer a draft")

// ErrInvalidTransition is returned by approve/reject operations that
// violate the forward-only event lifecycle.
var ErrInvalidTransition = errors.New("invalid billable event status transition")

// ErrEventNotFound is returned by lookups and transitions that
// reference a billable event ID the store does not know.
var ErrEventNotFound = errors.New("billable event not found")

// UnknownCaseError is returned when a merge references a case number
// that the case registry does not know. The merge engine never creates
// cases, so the unit is parked until the case is registered.
type UnknownCaseError struct {
	CaseNumber string
}

func (e *UnknownCaseError) Error() string {
	return fmt.Sprintf("unknown case %q", e.CaseNumber)
}

// IsUnknownCase reports whether err is an UnknownCaseError.
func IsUnknownCase(err error) bool {
	var uc *UnknownCaseError
	return errors.As(err, &uc)
}

// DataIntegrityError is returned when the denormalized FOR_CASE edge of
// a billable event disagrees with the RELATES_TO edge of its generating
// record. It is never silently repaired; an operator investigates.
type DataIntegrityError struct {
	EventID   string
	ForCase   string
	RelatesTo string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf(
		"billable event %s denormalization mismatch: FOR_CASE=%q RELATES_TO=%q",
		e.EventID, e.ForCase, e.RelatesTo,
	)
}

// IsDataIntegrity reports whether err is a DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var di *DataIntegrityError
	return errors.As(err, &di)
}
