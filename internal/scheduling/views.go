package scheduling

import (
	"context"
	"fmt"
	"time"

	"therapy-app-server/internal/models"
)

// View selects a read-only filtered slice of a user's appointments. Filtering
// is a query concern only; it never touches the state machine.
type View string

const (
	ViewAll      View = "all"
	ViewToday    View = "today"
	ViewUpcoming View = "upcoming"
	ViewHistory  View = "history"
	ViewPending  View = "pending"
)

// ListForUser returns the user's appointments for the given view, ordered by
// start time. Doctors see appointments they own; patients see their requests.
func (s *Store) ListForUser(ctx context.Context, userID string, role models.Role, view View) ([]models.Appointment, error) {
	q := s.db.WithContext(ctx).Order("start_time asc")

	switch role {
	case models.RoleDoctor:
		q = q.Where("doctor_id = ?", userID)
	case models.RoleAdmin:
		// Admins see everything.
	default:
		q = q.Where("patient_id = ?", userID)
	}

	now := s.now()
	open := []models.AppointmentStatus{models.StatusRequested, models.StatusConfirmed}

	switch view {
	case ViewAll, "":
	case ViewToday:
		// Next calendar day, not start+24h: DST-transition days are not 24h long.
		y, m, d := now.Date()
		dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		dayEnd := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
		q = q.Where("status IN ?", open).
			Where("start_time >= ? AND start_time < ?", dayStart, dayEnd)
	case ViewUpcoming:
		q = q.Where("status IN ?", open).Where("start_time >= ?", now)
	case ViewPending:
		q = q.Where("status = ?", models.StatusRequested)
	case ViewHistory:
		q = q.Where("(status NOT IN ? OR end_time < ?)", open, now)
	default:
		return nil, fmt.Errorf("unknown appointment view %q", view)
	}

	var appointments []models.Appointment
	if err := q.Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}
