package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"therapy-app-server/internal/models"
	"therapy-app-server/internal/notifier"
)

// AvailabilitySource provides a doctor's declared availability windows. The
// store only reads them; the availability profile is owned elsewhere.
type AvailabilitySource interface {
	Get(ctx context.Context, doctorID string) ([]models.AvailabilityWindow, error)
}

// DBAvailability reads availability windows straight from the database.
type DBAvailability struct {
	DB *gorm.DB
}

func (a *DBAvailability) Get(ctx context.Context, doctorID string) ([]models.AvailabilityWindow, error) {
	var windows []models.AvailabilityWindow
	if err := a.DB.WithContext(ctx).Where("doctor_id = ?", doctorID).Find(&windows).Error; err != nil {
		return nil, err
	}
	return windows, nil
}

// DefaultCancelWindow is how much notice a patient or doctor must give to
// cancel a confirmed appointment.
const DefaultCancelWindow = 24 * time.Hour

// Config configures an appointment store.
type Config struct {
	DB           *gorm.DB
	Availability AvailabilitySource
	Events       notifier.Notifier
	CancelWindow time.Duration
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Store is the authoritative record of appointments. All status transitions
// go through it, serialized per appointment; accepts are additionally
// serialized per doctor so two simultaneous accepts cannot both observe
// "no conflict" and both commit.
type Store struct {
	db           *gorm.DB
	availability AvailabilitySource
	events       notifier.Notifier
	cancelWindow time.Duration
	now          func() time.Time
	log          zerolog.Logger

	locks       *lockTable // per appointment id
	doctorLocks *lockTable // per doctor id, held only during accept
}

// NewStore creates an appointment store.
func NewStore(cfg Config) *Store {
	s := &Store{
		db:           cfg.DB,
		availability: cfg.Availability,
		events:       cfg.Events,
		cancelWindow: cfg.CancelWindow,
		now:          cfg.Now,
		log:          cfg.Logger,
		locks:        newLockTable(),
		doctorLocks:  newLockTable(),
	}
	if s.availability == nil {
		s.availability = &DBAvailability{DB: cfg.DB}
	}
	if s.events == nil {
		s.events = notifier.Discard{}
	}
	if s.cancelWindow <= 0 {
		s.cancelWindow = DefaultCancelWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RequestParams are the inputs for a patient's appointment request.
type RequestParams struct {
	PatientID  string
	DoctorID   string
	Slot       Slot
	Type       models.ConsultationType
	Mode       models.AppointmentMode
	Reason     string
	CustomSlot bool // clinician-approved time outside declared windows
}

// Request validates the candidate slot and creates the appointment as
// Requested. The conflict check here is advisory: two patients may both reach
// Requested for overlapping slots, and the accept transition re-validates.
func (s *Store) Request(ctx context.Context, p RequestParams) (*models.Appointment, error) {
	if err := ValidateRange(p.Slot); err != nil {
		return nil, err
	}
	if !p.CustomSlot {
		windows, err := s.availability.Get(ctx, p.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("load availability for doctor %s: %w", p.DoctorID, err)
		}
		if err := ValidateAgainstProfile(windows, p.Slot, false); err != nil {
			return nil, err
		}
	}
	if err := s.findConflict(ctx, p.DoctorID, p.Slot, ""); err != nil {
		return nil, err
	}

	appt := models.Appointment{
		PatientID:     p.PatientID,
		DoctorID:      p.DoctorID,
		StartTime:     p.Slot.Start,
		EndTime:       p.Slot.End,
		Type:          p.Type,
		Mode:          p.Mode,
		Status:        models.StatusRequested,
		PatientReason: p.Reason,
		CustomSlot:    p.CustomSlot,
	}
	if err := s.db.WithContext(ctx).Create(&appt).Error; err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.emit(ctx, models.NotifyRequested, &appt)
	return &appt, nil
}

// Accept moves a Requested appointment to Confirmed. The slot was validated
// at request time; only the conflict check is re-run here, against the
// doctor's currently confirmed appointments, under the doctor lock.
func (s *Store) Accept(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	unlock := s.locks.acquire(appointmentID)
	defer unlock()

	appt, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.StatusRequested {
		return nil, fmt.Errorf("%w: cannot accept appointment in status %q", ErrInvalidTransition, appt.Status)
	}

	unlockDoctor := s.doctorLocks.acquire(appt.DoctorID)
	defer unlockDoctor()

	slot := Slot{Start: appt.StartTime, End: appt.EndTime}
	if err := s.findConflict(ctx, appt.DoctorID, slot, appt.ID); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, appt.ID, models.StatusRequested, map[string]interface{}{
		"status": models.StatusConfirmed,
	}); err != nil {
		return nil, err
	}

	appt.Status = models.StatusConfirmed
	s.emit(ctx, models.NotifyConfirmed, appt)
	return appt, nil
}

// Decline moves a Requested appointment to Declined, storing the doctor's
// reason verbatim when given.
func (s *Store) Decline(ctx context.Context, appointmentID, reason string) (*models.Appointment, error) {
	unlock := s.locks.acquire(appointmentID)
	defer unlock()

	appt, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.StatusRequested {
		return nil, fmt.Errorf("%w: cannot decline appointment in status %q", ErrInvalidTransition, appt.Status)
	}

	if err := s.transition(ctx, appt.ID, models.StatusRequested, map[string]interface{}{
		"status":         models.StatusDeclined,
		"decline_reason": reason,
	}); err != nil {
		return nil, err
	}

	appt.Status = models.StatusDeclined
	appt.DeclineReason = reason
	s.emit(ctx, models.NotifyDeclined, appt)
	return appt, nil
}

// Cancel cancels an appointment. Patients and doctors may only cancel a
// Confirmed appointment with more than the cancellation window remaining;
// admins may cancel any non-terminal appointment with no time guard.
func (s *Store) Cancel(ctx context.Context, appointmentID string, actor models.Role) (*models.Appointment, error) {
	unlock := s.locks.acquire(appointmentID)
	defer unlock()

	appt, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is already %q", ErrInvalidTransition, appt.Status)
	}

	if actor != models.RoleAdmin {
		if appt.Status != models.StatusConfirmed {
			return nil, fmt.Errorf("%w: only confirmed appointments can be cancelled", ErrInvalidTransition)
		}
		if appt.StartTime.Sub(s.now()) <= s.cancelWindow {
			return nil, ErrTooLateToCancel
		}
	}

	if err := s.transition(ctx, appt.ID, appt.Status, map[string]interface{}{
		"status": models.StatusCancelled,
	}); err != nil {
		return nil, err
	}

	appt.Status = models.StatusCancelled
	s.emit(ctx, models.NotifyCancelled, appt)
	return appt, nil
}

// MarkOutcome records the outcome of an elapsed Confirmed appointment as
// Completed or NoShow, appending the doctor's consultation notes.
func (s *Store) MarkOutcome(ctx context.Context, appointmentID string, outcome models.AppointmentStatus, notes string) (*models.Appointment, error) {
	if outcome != models.StatusCompleted && outcome != models.StatusNoShow {
		return nil, fmt.Errorf("%w: outcome must be %q or %q", ErrInvalidTransition, models.StatusCompleted, models.StatusNoShow)
	}

	unlock := s.locks.acquire(appointmentID)
	defer unlock()

	appt, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot record outcome for appointment in status %q", ErrInvalidTransition, appt.Status)
	}
	if appt.EndTime.After(s.now()) {
		return nil, fmt.Errorf("%w: scheduled window has not elapsed yet", ErrInvalidTransition)
	}

	if err := s.transition(ctx, appt.ID, models.StatusConfirmed, map[string]interface{}{
		"status":          outcome,
		"clinician_notes": notes,
	}); err != nil {
		return nil, err
	}

	appt.Status = outcome
	appt.ClinicianNotes = notes
	return appt, nil
}

// Get returns an appointment by id.
func (s *Store) Get(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	return s.load(ctx, appointmentID)
}

// load fetches an appointment, mapping a missing record to ErrNotFound.
func (s *Store) load(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := s.db.WithContext(ctx).First(&appt, "id = ?", appointmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	return &appt, nil
}

// transition performs the compare-and-swap status update. A zero row count
// means another writer got there first; the loser sees ErrInvalidTransition.
func (s *Store) transition(ctx context.Context, appointmentID string, from models.AppointmentStatus, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ?", appointmentID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update appointment %s: %w", appointmentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: appointment was modified concurrently", ErrInvalidTransition)
	}
	return nil
}

// findConflict looks for a confirmed appointment of the doctor overlapping
// the slot. excludeID skips the appointment being transitioned itself.
func (s *Store) findConflict(ctx context.Context, doctorID string, slot Slot, excludeID string) error {
	q := s.db.WithContext(ctx).
		Where("doctor_id = ? AND status = ?", doctorID, models.StatusConfirmed).
		Where("start_time < ? AND end_time > ?", slot.End, slot.Start)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var conflict models.Appointment
	err := q.First(&conflict).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("conflict check for doctor %s: %w", doctorID, err)
	}
	return &SlotConflictError{ConflictingID: conflict.ID}
}

// emit forwards a lifecycle event. Delivery failures are logged and do not
// fail the transition.
func (s *Store) emit(ctx context.Context, kind models.NotificationKind, appt *models.Appointment) {
	if err := s.events.Notify(ctx, notifier.Event{Kind: kind, Appointment: appt}); err != nil {
		s.log.Warn().Err(err).
			Str("kind", string(kind)).
			Str("appointment_id", appt.ID).
			Msg("notification delivery failed")
	}
}
