package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"therapy-app-server/internal/models"
)

// Event is an appointment lifecycle event emitted for the notification layer.
type Event struct {
	Kind        models.NotificationKind
	Appointment *models.Appointment
	// Message overrides the default description when non-empty.
	Message string
}

// Notifier delivers lifecycle events to the notification/UI layer. A failed
// delivery must never fail the transition that triggered it; callers log and
// continue.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Describe renders the default human-readable message for an event.
func Describe(ev Event) string {
	if ev.Message != "" {
		return ev.Message
	}
	a := ev.Appointment
	window := fmt.Sprintf("%s %s–%s",
		a.StartTime.Format("2006-01-02"),
		a.StartTime.Format("15:04"),
		a.EndTime.Format("15:04"))
	switch ev.Kind {
	case models.NotifyRequested:
		return "New appointment request for " + window
	case models.NotifyConfirmed:
		return "Appointment confirmed for " + window
	case models.NotifyDeclined:
		if a.DeclineReason != "" {
			return "Appointment request declined: " + a.DeclineReason
		}
		return "Appointment request declined"
	case models.NotifyCancelled:
		return "Appointment for " + window + " was cancelled"
	case models.NotifyMeetingReady:
		return "Your video session for " + window + " is ready to join"
	}
	return string(ev.Kind)
}

// recipients returns who should see the event. Requests go to the doctor;
// everything else goes to the patient, with cancellations shown to both.
func recipients(ev Event) []string {
	a := ev.Appointment
	switch ev.Kind {
	case models.NotifyRequested:
		return []string{a.DoctorID}
	case models.NotifyCancelled:
		return []string{a.PatientID, a.DoctorID}
	default:
		return []string{a.PatientID}
	}
}

// Discard drops all events. Used as the default when no notifier is wired.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }

// Log writes events to the structured log only.
type Log struct {
	log zerolog.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, ev Event) error {
	l.log.Info().
		Str("kind", string(ev.Kind)).
		Str("appointment_id", ev.Appointment.ID).
		Str("doctor_id", ev.Appointment.DoctorID).
		Str("patient_id", ev.Appointment.PatientID).
		Msg(Describe(ev))
	return nil
}

// Store persists events as notification rows for the UI's feed.
type Store struct {
	DB *gorm.DB
}

// NewStore creates a database-backed notifier.
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) Notify(ctx context.Context, ev Event) error {
	message := Describe(ev)
	for _, recipientID := range recipients(ev) {
		n := models.Notification{
			RecipientID:   recipientID,
			AppointmentID: ev.Appointment.ID,
			Kind:          ev.Kind,
			Message:       message,
		}
		if err := s.DB.WithContext(ctx).Create(&n).Error; err != nil {
			return fmt.Errorf("persist notification: %w", err)
		}
	}
	return nil
}

// Fanout delivers each event to every wrapped notifier, returning the first
// error after attempting all of them.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, ev Event) error {
	var firstErr error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
