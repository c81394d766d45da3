package scheduling

import (
	"therapy-app-server/internal/models"
)

// ValidateRange checks the ordering invariant of a candidate slot. It is the
// one check that can never be bypassed, including for clinician-approved
// custom times.
func ValidateRange(slot Slot) error {
	if !slot.Start.Before(slot.End) {
		return ErrInvalidTimeRange
	}
	return nil
}

// ValidateAgainstProfile checks a candidate slot against a doctor's declared
// availability windows. A clinician-approved custom slot bypasses window
// membership but not ordering.
func ValidateAgainstProfile(windows []models.AvailabilityWindow, slot Slot, customApproved bool) error {
	if err := ValidateRange(slot); err != nil {
		return err
	}
	if customApproved {
		return nil
	}

	// A slot spanning midnight can never fall within a single-day window.
	y1, m1, d1 := slot.Start.Date()
	y2, m2, d2 := slot.End.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return ErrOutsideAvailability
	}

	weekday := int(slot.Start.Weekday())
	start := minutesOfDay(slot.Start)
	end := minutesOfDay(slot.End)

	for _, w := range windows {
		if w.Weekday != weekday {
			continue
		}
		wStart, err := parseClock(w.StartTime)
		if err != nil {
			continue
		}
		wEnd, err := parseClock(w.EndTime)
		if err != nil {
			continue
		}
		if start >= wStart && end <= wEnd {
			return nil
		}
	}
	return ErrOutsideAvailability
}
