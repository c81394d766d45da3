package meeting

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"therapy-app-server/internal/models"
)

const testProvider = "meetlink"

// testNow sits five minutes before a 09:00 appointment, inside the default
// ten-minute join lead.
var testNow = time.Date(2024, 3, 11, 8, 55, 0, 0, time.UTC)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func seedAppointment(t *testing.T, db *gorm.DB, status models.AppointmentStatus) *models.Appointment {
	t.Helper()
	appt := &models.Appointment{
		PatientID:     uuid.New().String(),
		DoctorID:      uuid.New().String(),
		StartTime:     testNow.Add(5 * time.Minute),
		EndTime:       testNow.Add(50 * time.Minute),
		Type:          models.TypeInitialConsultation,
		Mode:          models.ModeVideo,
		Status:        status,
		PatientReason: "speech development check",
	}
	require.NoError(t, db.Create(appt).Error)
	return appt
}

func seedGrant(t *testing.T, db *gorm.DB, doctorID string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.AuthorizationGrant{
		DoctorID:     doctorID,
		Provider:     testProvider,
		AccessToken:  "access-" + doctorID,
		RefreshToken: "refresh-" + doctorID,
		ExpiresAt:    expiresAt,
	}).Error)
}

func createUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	user := models.User{
		Email:     fmt.Sprintf("%s-%s@example.com", role, uuid.New().String()[:8]),
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	}
	require.NoError(t, user.SetPassword("password123"))
	require.NoError(t, db.Create(&user).Error)
	return &user
}

type fakeRooms struct {
	calls int
	err   error
	room  RoomInfo
	// hook runs before the fake returns, while no lock is held. Used to
	// simulate state changing underneath an in-flight provider call.
	hook func(appt *models.Appointment)
}

func (f *fakeRooms) CreateRoom(_ context.Context, appt *models.Appointment) (*RoomInfo, error) {
	f.calls++
	if f.hook != nil {
		f.hook(appt)
	}
	if f.err != nil {
		return nil, f.err
	}
	r := f.room
	return &r, nil
}

type fakeExchanger struct {
	calls  int
	err    error
	result ExchangeResult
}

func (f *fakeExchanger) Exchange(_ context.Context, _ string) (*ExchangeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := f.result
	return &r, nil
}
