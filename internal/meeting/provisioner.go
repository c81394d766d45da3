package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"therapy-app-server/internal/models"
	"therapy-app-server/internal/notifier"
	"therapy-app-server/internal/scheduling"
)

// MeetingInfo is the access metadata persisted on a provisioned appointment.
type MeetingInfo struct {
	MeetingID   string    `json:"meetingId"`
	Link        string    `json:"link"`
	AccessCode  string    `json:"accessCode"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// AuthURLBuilder builds the provider authorization URL for a resume token.
type AuthURLBuilder func(state string) string

// ProvisionerConfig configures a meeting provisioner.
type ProvisionerConfig struct {
	DB      *gorm.DB
	Gate    *Gate
	Rooms   RoomCreator
	Pending *PendingStore
	AuthURL AuthURLBuilder
	Events  notifier.Notifier
	Now     func() time.Time
	Logger  zerolog.Logger
}

// Provisioner creates a meeting room for a confirmed appointment exactly
// once. The external call is made without holding any appointment lock; the
// write-back is a compare-and-swap that only lands if the appointment is
// still confirmed and still has no meeting, so a late result after a cancel
// or a racing caller is discarded rather than persisted.
type Provisioner struct {
	db      *gorm.DB
	gate    *Gate
	rooms   RoomCreator
	pending *PendingStore
	authURL AuthURLBuilder
	events  notifier.Notifier
	now     func() time.Time
	log     zerolog.Logger
}

// NewProvisioner creates a meeting provisioner.
func NewProvisioner(cfg ProvisionerConfig) *Provisioner {
	p := &Provisioner{
		db:      cfg.DB,
		gate:    cfg.Gate,
		rooms:   cfg.Rooms,
		pending: cfg.Pending,
		authURL: cfg.AuthURL,
		events:  cfg.Events,
		now:     cfg.Now,
		log:     cfg.Logger,
	}
	if p.events == nil {
		p.events = notifier.Discard{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.authURL == nil {
		p.authURL = func(string) string { return "" }
	}
	return p
}

// Provision provisions a meeting room for the appointment. Idempotent: once
// a meeting is set it is returned unchanged on every subsequent call.
func (p *Provisioner) Provision(ctx context.Context, appointmentID string) (*MeetingInfo, error) {
	appt, err := p.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: appointment is %q", ErrNotConfirmed, appt.Status)
	}
	if appt.MeetingProvisioned() {
		return meetingInfo(appt), nil
	}

	status, err := p.gate.Status(ctx, appt.DoctorID)
	if err != nil {
		return nil, err
	}
	if status != GrantValid {
		att := p.pending.Create(appt.DoctorID, appt.ID)
		return nil, &NeedsAuthorization{
			AuthorizationURL: p.authURL(att.Token),
			ResumeToken:      att.Token,
		}
	}

	// External call, made without holding the transition lock.
	room, err := p.rooms.CreateRoom(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	generatedAt := p.now()
	res := p.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ? AND meeting_id = ''", appt.ID, models.StatusConfirmed).
		Updates(map[string]interface{}{
			"meeting_id":           room.MeetingID,
			"meeting_link":         room.Link,
			"meeting_access_code":  room.AccessCode,
			"meeting_generated_at": generatedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("persist meeting for appointment %s: %w", appt.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race: a concurrent caller provisioned first, or the
		// appointment left Confirmed while we were waiting on the provider.
		// Discard our result either way.
		current, err := p.load(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		if current.MeetingProvisioned() {
			return meetingInfo(current), nil
		}
		return nil, fmt.Errorf("%w: appointment is %q", ErrNotConfirmed, current.Status)
	}

	appt.MeetingID = room.MeetingID
	appt.MeetingLink = room.Link
	appt.MeetingAccessCode = room.AccessCode
	appt.MeetingGeneratedAt = &generatedAt

	if err := p.events.Notify(ctx, notifier.Event{Kind: models.NotifyMeetingReady, Appointment: appt}); err != nil {
		p.log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("meeting-ready notification failed")
	}
	return meetingInfo(appt), nil
}

// ResumeAfterAuthorization completes the doctor's authorization round trip
// and resumes the pending provisioning attempt exactly once. A duplicate
// completion signal inside the cooldown window returns
// ErrDuplicateCompletion without another exchange or provisioning attempt.
func (p *Provisioner) ResumeAfterAuthorization(ctx context.Context, resumeToken, code string) (*MeetingInfo, error) {
	att, err := p.pending.Consume(resumeToken)
	if err != nil {
		return nil, err
	}
	if _, err := p.gate.CompleteAuthorization(ctx, att.DoctorID, code); err != nil {
		return nil, err
	}
	return p.Provision(ctx, att.AppointmentID)
}

func (p *Provisioner) load(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := p.db.WithContext(ctx).First(&appt, "id = ?", appointmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.ErrNotFound
		}
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	return &appt, nil
}

func meetingInfo(appt *models.Appointment) *MeetingInfo {
	info := &MeetingInfo{
		MeetingID:  appt.MeetingID,
		Link:       appt.MeetingLink,
		AccessCode: appt.MeetingAccessCode,
	}
	if appt.MeetingGeneratedAt != nil {
		info.GeneratedAt = *appt.MeetingGeneratedAt
	}
	return info
}
