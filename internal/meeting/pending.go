package meeting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingAuthorization is one provisioning attempt waiting on the doctor to
// complete the provider's authorization flow. The appointment id is retained
// across the round trip so provisioning can resume where it left off.
type PendingAuthorization struct {
	Token         string
	DoctorID      string
	AppointmentID string
	CreatedAt     time.Time
}

// PendingStore tracks in-flight authorization attempts and suppresses
// duplicate completions: once an attempt has been consumed, a second
// completion signal arriving within the cooldown window is reported as a
// duplicate instead of triggering another exchange.
type PendingStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	cooldown  time.Duration
	now       func() time.Time
	pending   map[string]*PendingAuthorization
	completed map[string]time.Time
}

// NewPendingStore creates a pending-authorization store. ttl bounds how long
// an attempt stays resumable; cooldown bounds the duplicate-suppression
// window after completion.
func NewPendingStore(ttl, cooldown time.Duration) *PendingStore {
	return &PendingStore{
		ttl:       ttl,
		cooldown:  cooldown,
		now:       time.Now,
		pending:   make(map[string]*PendingAuthorization),
		completed: make(map[string]time.Time),
	}
}

// Create registers a new pending attempt and returns it with a fresh token.
func (s *PendingStore) Create(doctorID, appointmentID string) *PendingAuthorization {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &PendingAuthorization{
		Token:         uuid.New().String(),
		DoctorID:      doctorID,
		AppointmentID: appointmentID,
		CreatedAt:     s.now(),
	}
	s.pending[p.Token] = p
	return p
}

// Consume resolves a completion signal for token. The first call within the
// ttl returns the attempt and marks it completed; later calls within the
// cooldown window return ErrDuplicateCompletion; everything else returns
// ErrUnknownAttempt.
func (s *PendingStore) Consume(token string) (*PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if p, ok := s.pending[token]; ok {
		delete(s.pending, token)
		if now.Sub(p.CreatedAt) > s.ttl {
			return nil, ErrUnknownAttempt
		}
		s.completed[token] = now
		return p, nil
	}
	if completedAt, ok := s.completed[token]; ok {
		if now.Sub(completedAt) <= s.cooldown {
			return nil, ErrDuplicateCompletion
		}
		delete(s.completed, token)
	}
	return nil, ErrUnknownAttempt
}

// StartCleanup starts a background goroutine that reaps expired attempts on
// the given interval until ctx is cancelled. Abandoned authorization round
// trips would otherwise accumulate in the maps for the life of the process.
func (s *PendingStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Cleanup drops expired pending attempts and stale completion markers.
func (s *PendingStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, p := range s.pending {
		if now.Sub(p.CreatedAt) > s.ttl {
			delete(s.pending, token)
		}
	}
	for token, completedAt := range s.completed {
		if now.Sub(completedAt) > s.cooldown {
			delete(s.completed, token)
		}
	}
}
