package scheduling

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"therapy-app-server/internal/models"
	"therapy-app-server/internal/notifier"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	user := models.User{
		Email:     fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()),
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	}
	require.NoError(t, user.SetPassword("password123"))
	require.NoError(t, db.Create(&user).Error)
	return &user
}

// fixedNow is a Sunday; most test slots land on the following Monday.
var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, db *gorm.DB) *Store {
	t.Helper()
	return NewStore(Config{
		DB:     db,
		Events: notifier.NewStore(db),
		Now:    func() time.Time { return fixedNow },
	})
}

func request(t *testing.T, s *Store, patientID, doctorID string, slot Slot) *models.Appointment {
	t.Helper()
	appt, err := s.Request(context.Background(), RequestParams{
		PatientID:  patientID,
		DoctorID:   doctorID,
		Slot:       slot,
		Type:       models.TypeInitialConsultation,
		Mode:       models.ModeVideo,
		Reason:     "speech development check",
		CustomSlot: true,
	})
	require.NoError(t, err)
	return appt
}

func TestRequestValidatesSlot(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	_, err := s.Request(context.Background(), RequestParams{
		PatientID:  patient.ID,
		DoctorID:   doctor.ID,
		Slot:       slotAt("2024-03-11", "11:00", "10:00"),
		Reason:     "x",
		CustomSlot: true,
	})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	// No availability windows declared, so a non-custom slot is rejected.
	_, err = s.Request(context.Background(), RequestParams{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Slot:      slotAt("2024-03-11", "10:00", "11:00"),
		Reason:    "x",
	})
	assert.ErrorIs(t, err, ErrOutsideAvailability)
}

func TestRequestChecksDeclaredWindows(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	// Monday 09:00-12:00.
	require.NoError(t, db.Create(&models.AvailabilityWindow{
		DoctorID: doctor.ID, Weekday: int(time.Monday), StartTime: "09:00", EndTime: "12:00",
	}).Error)

	appt, err := s.Request(context.Background(), RequestParams{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Slot:      slotAt("2024-03-11", "09:00", "09:45"),
		Type:      models.TypeInitialConsultation,
		Reason:    "milestone concerns",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, appt.Status)
	assert.Equal(t, "milestone concerns", appt.PatientReason)

	_, err = s.Request(context.Background(), RequestParams{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Slot:      slotAt("2024-03-11", "13:00", "14:00"),
		Reason:    "x",
	})
	assert.ErrorIs(t, err, ErrOutsideAvailability)
}

func TestAcceptConfirmsRequested(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	appt := request(t, s, patient.ID, doctor.ID, slotAt("2024-03-11", "10:00", "11:00"))

	confirmed, err := s.Accept(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)

	// The patient is notified of the confirmation.
	var n models.Notification
	require.NoError(t, db.Where("appointment_id = ? AND kind = ?", appt.ID, models.NotifyConfirmed).First(&n).Error)
	assert.Equal(t, patient.ID, n.RecipientID)
}

func TestOverlappingRequestsResolvedAtAccept(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	doctor := createUser(t, db, models.RoleDoctor)
	p1 := createUser(t, db, models.RolePatient)
	p2 := createUser(t, db, models.RolePatient)

	// Both overlapping requests pass initial validation.
	first := request(t, s, p1.ID, doctor.ID, slotAt("2024-03-15", "10:00", "11:00"))
	second := request(t, s, p2.ID, doctor.ID, slotAt("2024-03-15", "10:30", "11:30"))

	_, err := s.Accept(context.Background(), first.ID)
	require.NoError(t, err)

	// The second accept re-validates against confirmed appointments.
	_, err = s.Accept(context.Background(), second.ID)
	var conflict *SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ConflictingID)

	// The loser is untouched and can still be declined.
	current, err := s.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, current.Status)
}

func TestAdjacentSlotsDoNotConflict(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	doctor := createUser(t, db, models.RoleDoctor)
	patient := createUser(t, db, models.RolePatient)

	first := request(t, s, patient.ID, doctor.ID, slotAt("2024-03-15", "10:00", "11:00"))
	second := request(t, s, patient.ID, doctor.ID, slotAt("2024-03-15", "11:00", "12:00"))

	_, err := s.Accept(context.Background(), first.ID)
	require.NoError(t, err)
	_, err = s.Accept(context.Background(), second.ID)
	require.NoError(t, err)
}

func TestDeclineStoresReason(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	appt := request(t, s, patient.ID, doctor.ID, slotAt("2024-03-11", "10:00", "11:00"))

	declined, err := s.Decline(context.Background(), appt.ID, "out of office that week")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, declined.Status)
	assert.Equal(t, "out of office that week", declined.DeclineReason)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	appt := request(t, s, patient.ID, doctor.ID, slotAt("2024-03-11", "10:00", "11:00"))
	_, err := s.Decline(context.Background(), appt.ID, "")
	require.NoError(t, err)

	// Accepting an already-declined appointment fails and leaves it untouched.
	_, err = s.Accept(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Cancel(context.Background(), appt.ID, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	current, err := s.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, current.Status)
}

func TestCancelWindow(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	// Starts 23h from now: inside the 24h window.
	soon := Slot{Start: fixedNow.Add(23 * time.Hour), End: fixedNow.Add(24 * time.Hour)}
	apptSoon := request(t, s, patient.ID, doctor.ID, soon)
	_, err := s.Accept(context.Background(), apptSoon.ID)
	require.NoError(t, err)

	_, err = s.Cancel(context.Background(), apptSoon.ID, models.RolePatient)
	assert.ErrorIs(t, err, ErrTooLateToCancel)

	// Starts 25h from now: cancellable.
	later := Slot{Start: fixedNow.Add(25 * time.Hour), End: fixedNow.Add(26 * time.Hour)}
	apptLater := request(t, s, patient.ID, doctor.ID, later)
	_, err = s.Accept(context.Background(), apptLater.ID)
	require.NoError(t, err)

	cancelled, err := s.Cancel(context.Background(), apptLater.ID, models.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestCancelRequestedRequiresAdmin(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	appt := request(t, s, patient.ID, doctor.ID, slotAt("2024-03-11", "10:00", "11:00"))

	// Parties can only cancel confirmed appointments.
	_, err := s.Cancel(context.Background(), appt.ID, models.RolePatient)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Administrative override has no time guard and works from Requested.
	cancelled, err := s.Cancel(context.Background(), appt.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestAdminCancelIgnoresTimeGuard(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	soon := Slot{Start: fixedNow.Add(1 * time.Hour), End: fixedNow.Add(2 * time.Hour)}
	appt := request(t, s, patient.ID, doctor.ID, soon)
	_, err := s.Accept(context.Background(), appt.ID)
	require.NoError(t, err)

	cancelled, err := s.Cancel(context.Background(), appt.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestMarkOutcome(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	future := Slot{Start: fixedNow.Add(48 * time.Hour), End: fixedNow.Add(49 * time.Hour)}
	appt := request(t, s, patient.ID, doctor.ID, future)
	_, err := s.Accept(context.Background(), appt.ID)
	require.NoError(t, err)

	// Window has not elapsed yet.
	_, err = s.MarkOutcome(context.Background(), appt.ID, models.StatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	past := Slot{Start: fixedNow.Add(-2 * time.Hour), End: fixedNow.Add(-1 * time.Hour)}
	elapsed := request(t, s, patient.ID, doctor.ID, past)
	_, err = s.Accept(context.Background(), elapsed.ID)
	require.NoError(t, err)

	done, err := s.MarkOutcome(context.Background(), elapsed.ID, models.StatusCompleted, "responding well to exercises")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "responding well to exercises", done.ClinicianNotes)

	// The patient's original reason survives the outcome note.
	current, err := s.Get(context.Background(), elapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, "speech development check", current.PatientReason)

	// Only completed and no_show are valid outcomes.
	_, err = s.MarkOutcome(context.Background(), elapsed.ID, models.StatusCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkNoShow(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	past := Slot{Start: fixedNow.Add(-2 * time.Hour), End: fixedNow.Add(-1 * time.Hour)}
	appt := request(t, s, patient.ID, doctor.ID, past)
	_, err := s.Accept(context.Background(), appt.ID)
	require.NoError(t, err)

	done, err := s.MarkOutcome(context.Background(), appt.ID, models.StatusNoShow, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoShow, done.Status)
}

func TestListForUserViews(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	pending := request(t, s, patient.ID, doctor.ID, Slot{Start: fixedNow.Add(72 * time.Hour), End: fixedNow.Add(73 * time.Hour)})
	today := request(t, s, patient.ID, doctor.ID, Slot{Start: fixedNow.Add(3 * time.Hour), End: fixedNow.Add(4 * time.Hour)})
	_, err := s.Accept(context.Background(), today.ID)
	require.NoError(t, err)

	declined := request(t, s, patient.ID, doctor.ID, Slot{Start: fixedNow.Add(96 * time.Hour), End: fixedNow.Add(97 * time.Hour)})
	_, err = s.Decline(context.Background(), declined.ID, "")
	require.NoError(t, err)

	pendingList, err := s.ListForUser(context.Background(), doctor.ID, models.RoleDoctor, ViewPending)
	require.NoError(t, err)
	require.Len(t, pendingList, 1)
	assert.Equal(t, pending.ID, pendingList[0].ID)

	todayList, err := s.ListForUser(context.Background(), patient.ID, models.RolePatient, ViewToday)
	require.NoError(t, err)
	require.Len(t, todayList, 1)
	assert.Equal(t, today.ID, todayList[0].ID)

	historyList, err := s.ListForUser(context.Background(), patient.ID, models.RolePatient, ViewHistory)
	require.NoError(t, err)
	require.Len(t, historyList, 1)
	assert.Equal(t, declined.ID, historyList[0].ID)

	upcomingList, err := s.ListForUser(context.Background(), patient.ID, models.RolePatient, ViewUpcoming)
	require.NoError(t, err)
	assert.Len(t, upcomingList, 2)

	_, err = s.ListForUser(context.Background(), patient.ID, models.RolePatient, View("bogus"))
	assert.Error(t, err)
}

func TestConcurrentAcceptsOnlyOneConfirms(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	doctor := createUser(t, db, models.RoleDoctor)
	p1 := createUser(t, db, models.RolePatient)
	p2 := createUser(t, db, models.RolePatient)

	first := request(t, s, p1.ID, doctor.ID, slotAt("2024-03-15", "10:00", "11:00"))
	second := request(t, s, p2.ID, doctor.ID, slotAt("2024-03-15", "10:30", "11:30"))

	errs := make(chan error, 2)
	go func() {
		_, err := s.Accept(context.Background(), first.ID)
		errs <- err
	}()
	go func() {
		_, err := s.Accept(context.Background(), second.ID)
		errs <- err
	}()

	var confirmed, conflicts int
	for i := 0; i < 2; i++ {
		err := <-errs
		if err == nil {
			confirmed++
			continue
		}
		var conflict *SlotConflictError
		assert.ErrorAs(t, err, &conflict)
		conflicts++
	}
	assert.Equal(t, 1, confirmed, "exactly one accept may observe no conflict")
	assert.Equal(t, 1, conflicts)

	var count int64
	require.NoError(t, db.Model(&models.Appointment{}).
		Where("doctor_id = ? AND status = ?", doctor.ID, models.StatusConfirmed).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestListForUserTodaySpansFallBackDay(t *testing.T) {
	db := testDB(t)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-11-03 is 25 hours long in New York.
	noon := time.Date(2024, 11, 3, 12, 0, 0, 0, loc)
	s := NewStore(Config{DB: db, Now: func() time.Time { return noon }})
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	lateEvening := time.Date(2024, 11, 3, 23, 30, 0, 0, loc)
	appt := request(t, s, patient.ID, doctor.ID, Slot{Start: lateEvening, End: lateEvening.Add(30 * time.Minute)})
	_, err = s.Accept(context.Background(), appt.ID)
	require.NoError(t, err)

	todayList, err := s.ListForUser(context.Background(), patient.ID, models.RolePatient, ViewToday)
	require.NoError(t, err)
	require.Len(t, todayList, 1)
	assert.Equal(t, appt.ID, todayList[0].ID)
}

func TestConcurrentAcceptDecline(t *testing.T) {
	db := testDB(t)
	s := newTestStore(t, db)
	patient := createUser(t, db, models.RolePatient)
	doctor := createUser(t, db, models.RoleDoctor)

	appt := request(t, s, patient.ID, doctor.ID, slotAt("2024-03-11", "10:00", "11:00"))

	type result struct {
		status models.AppointmentStatus
		err    error
	}
	results := make(chan result, 2)

	go func() {
		a, err := s.Accept(context.Background(), appt.ID)
		if err != nil {
			results <- result{err: err}
			return
		}
		results <- result{status: a.Status}
	}()
	go func() {
		a, err := s.Decline(context.Background(), appt.ID, "busy")
		if err != nil {
			results <- result{err: err}
			return
		}
		results <- result{status: a.Status}
	}()

	var wins, losses int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			assert.ErrorIs(t, r.err, ErrInvalidTransition)
			losses++
		} else {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one writer must win")
	assert.Equal(t, 1, losses, "the loser must see InvalidTransition")
}
