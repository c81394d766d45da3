package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"therapy-app-server/internal/models"
	"therapy-app-server/internal/scheduling"
)

// DefaultJoinLead is the grace period before the scheduled start during
// which participants may already join.
const DefaultJoinLead = 10 * time.Minute

// JoinDecision is the answer to "may this participant join right now".
// HasLink false means the caller should provision the meeting before opening
// the session.
type JoinDecision struct {
	CanJoin bool `json:"canJoin"`
	HasLink bool `json:"hasLink"`
}

// JoinGate decides joinability for an appointment at a point in time and
// records join events idempotently per participant role.
type JoinGate struct {
	db   *gorm.DB
	lead time.Duration
	now  func() time.Time
}

// NewJoinGate creates a join gate with the given lead time; lead <= 0 falls
// back to DefaultJoinLead.
func NewJoinGate(db *gorm.DB, lead time.Duration) *JoinGate {
	if lead <= 0 {
		lead = DefaultJoinLead
	}
	return &JoinGate{db: db, lead: lead, now: time.Now}
}

// Joinable is the pure window check: confirmed, and now inside
// [start - lead, end].
func Joinable(appt *models.Appointment, lead time.Duration, now time.Time) JoinDecision {
	if appt.Status != models.StatusConfirmed {
		return JoinDecision{}
	}
	open := appt.StartTime.Add(-lead)
	if now.Before(open) || now.After(appt.EndTime) {
		return JoinDecision{}
	}
	return JoinDecision{CanJoin: true, HasLink: appt.MeetingProvisioned()}
}

// CanJoin reports whether a participant may join the appointment now.
func (g *JoinGate) CanJoin(ctx context.Context, appointmentID string) (JoinDecision, error) {
	appt, err := g.load(ctx, appointmentID)
	if err != nil {
		return JoinDecision{}, err
	}
	return Joinable(appt, g.lead, g.now()), nil
}

// RecordJoin sets the first-join timestamp for the role. Calling it again
// for the same role is a no-op; calling it outside the join window fails
// with ErrNotJoinable.
func (g *JoinGate) RecordJoin(ctx context.Context, appointmentID string, role models.Role) (*models.Appointment, error) {
	column, err := joinColumn(role)
	if err != nil {
		return nil, err
	}

	appt, err := g.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	decision := Joinable(appt, g.lead, g.now())
	if !decision.CanJoin {
		return nil, ErrNotJoinable
	}

	if appt.JoinedAt(role) != nil {
		return appt, nil
	}

	// First-writer-wins: the NULL guard keeps a concurrent duplicate join
	// from overwriting the recorded timestamp.
	res := g.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND "+column+" IS NULL", appt.ID).
		Update(column, g.now())
	if res.Error != nil {
		return nil, fmt.Errorf("record %s join for appointment %s: %w", role, appt.ID, res.Error)
	}

	return g.load(ctx, appointmentID)
}

func (g *JoinGate) load(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := g.db.WithContext(ctx).First(&appt, "id = ?", appointmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.ErrNotFound
		}
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	return &appt, nil
}

func joinColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleDoctor:
		return "doctor_joined_at", nil
	case models.RolePatient:
		return "patient_joined_at", nil
	}
	return "", fmt.Errorf("role %q cannot join a meeting", role)
}
