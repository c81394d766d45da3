package meeting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingStoreConsumeOnce(t *testing.T) {
	s := NewPendingStore(15*time.Minute, time.Minute)
	clock := testNow
	s.now = func() time.Time { return clock }

	att := s.Create("doc-1", "appt-1")
	require.NotEmpty(t, att.Token)
	assert.Equal(t, "doc-1", att.DoctorID)

	got, err := s.Consume(att.Token)
	require.NoError(t, err)
	assert.Equal(t, "appt-1", got.AppointmentID)

	// A second completion signal inside the cooldown window is reported as a
	// duplicate so the caller treats it as a no-op.
	_, err = s.Consume(att.Token)
	assert.ErrorIs(t, err, ErrDuplicateCompletion)

	// After the cooldown the token is simply unknown.
	clock = clock.Add(2 * time.Minute)
	_, err = s.Consume(att.Token)
	assert.ErrorIs(t, err, ErrUnknownAttempt)
}

func TestPendingStoreExpiry(t *testing.T) {
	s := NewPendingStore(15*time.Minute, time.Minute)
	clock := testNow
	s.now = func() time.Time { return clock }

	att := s.Create("doc-1", "appt-1")

	clock = clock.Add(16 * time.Minute)
	_, err := s.Consume(att.Token)
	assert.ErrorIs(t, err, ErrUnknownAttempt)
}

func TestPendingStoreUnknownToken(t *testing.T) {
	s := NewPendingStore(15*time.Minute, time.Minute)

	_, err := s.Consume("nope")
	assert.ErrorIs(t, err, ErrUnknownAttempt)
}

func TestPendingStoreCleanup(t *testing.T) {
	s := NewPendingStore(15*time.Minute, time.Minute)
	clock := testNow
	s.now = func() time.Time { return clock }

	stale := s.Create("doc-1", "appt-1")
	_, err := s.Consume(stale.Token)
	require.NoError(t, err)
	s.Create("doc-2", "appt-2")

	clock = clock.Add(20 * time.Minute)
	s.Cleanup()

	assert.Empty(t, s.pending)
	assert.Empty(t, s.completed)
}

func TestPendingStoreBackgroundCleanupReapsAbandonedAttempts(t *testing.T) {
	s := NewPendingStore(15*time.Minute, time.Minute)
	var clockMu sync.Mutex
	clock := testNow
	s.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	// Every unauthorized provisioning attempt parks one entry; none of these
	// round trips ever completes.
	for i := 0; i < 1000; i++ {
		s.Create("doc-1", fmt.Sprintf("appt-%d", i))
	}

	clockMu.Lock()
	clock = clock.Add(24 * time.Hour)
	clockMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartCleanup(ctx, time.Millisecond)

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pending) == 0 && len(s.completed) == 0
	}, time.Second, 5*time.Millisecond)
}
