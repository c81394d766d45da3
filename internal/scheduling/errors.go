package scheduling

import (
	"errors"
	"fmt"
)

// Errors returned by the slot validator and the appointment store. Validation
// and transition failures are expected business outcomes, returned to the
// caller and never logged as system failures.
var (
	ErrInvalidTimeRange    = errors.New("slot end must be strictly after slot start")
	ErrOutsideAvailability = errors.New("slot is outside the doctor's declared availability")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
	ErrTooLateToCancel     = errors.New("appointment starts in less than the cancellation window")
	ErrNotFound            = errors.New("appointment not found")
)

// SlotConflictError reports an overlap with an already-confirmed appointment.
// The conflicting appointment's id is carried for diagnostics.
type SlotConflictError struct {
	ConflictingID string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot overlaps confirmed appointment %s", e.ConflictingID)
}

// IsValidationError reports whether err is a request-time slot validation
// failure (malformed range, outside availability, or conflicting slot).
func IsValidationError(err error) bool {
	var conflict *SlotConflictError
	return errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrOutsideAvailability) ||
		errors.As(err, &conflict)
}
