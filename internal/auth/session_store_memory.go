package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlesng35/authcore/internal/models"
)

// MemorySessionStore keeps sessions in a process-local map indexed by user.
// Revocations made by other processes are invisible to it. Sessions that are
// no longer live are evicted by SweepExpired once the retention has passed.
type MemorySessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*models.Session
	byUser    map[string]map[string]struct{}
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewMemorySessionStore constructs an empty in-memory store.
func NewMemorySessionStore(cfg SessionStoreConfig) *MemorySessionStore {
	ttl, now := cfg.normalise()
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultSessionRetention
	}
	return &MemorySessionStore{
		sessions:  make(map[string]*models.Session),
		byUser:    make(map[string]map[string]struct{}),
		ttl:       ttl,
		retention: retention,
		now:       now,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, input NewSession) (*models.Session, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, errors.New("session store: user id is required")
	}
	session := newSessionRecord(input, s.now(), s.ttl)
	s.put(session)
	return session.Clone(), nil
}

// put stores a copy of a session created elsewhere.
func (s *MemorySessionStore) put(session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session.Clone()
	ids, ok := s.byUser[session.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[session.UserID] = ids
	}
	ids[session.ID] = struct{}{}
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := checkLive(session, s.now()); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

func (s *MemorySessionStore) Lookup(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *MemorySessionStore) Touch(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !session.IsActive {
		return nil
	}
	session.LastActivity = s.now()
	session.RequestCount++
	return nil
}

func (s *MemorySessionStore) ListForUser(_ context.Context, userID string) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	sessions := make([]models.Session, 0, len(ids))
	for id := range ids {
		sessions = append(sessions, *s.sessions[id].Clone())
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *MemorySessionStore) Revoke(_ context.Context, sessionID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	return session.MarkRevoked(s.now(), reason), nil
}

func (s *MemorySessionStore) RevokeAllForUser(_ context.Context, userID, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var count int64
	for id := range s.byUser[userID] {
		session := s.sessions[id]
		if !session.IsActive {
			continue
		}
		if session.MarkRevoked(now, reason) {
			count++
		}
	}
	return count, nil
}

// SweepExpired revokes live sessions past their expiry and evicts sessions
// that stopped being live more than the retention ago.
func (s *MemorySessionStore) SweepExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.retention)
	var count int64
	for id, session := range s.sessions {
		if session.IsActive && !session.ExpiresAt.After(now) {
			if session.MarkRevoked(now, models.RevocationExpired) {
				count++
			}
		}
		if !session.IsActive && inactiveSince(session).Before(cutoff) {
			s.evict(id, session.UserID)
		}
	}
	return count, nil
}

func (s *MemorySessionStore) evict(id, userID string) {
	delete(s.sessions, id)
	if ids, ok := s.byUser[userID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, userID)
		}
	}
}

// inactiveSince is when a session stopped being live: its revocation or its
// expiry, whichever came first.
func inactiveSince(session *models.Session) time.Time {
	since := session.ExpiresAt
	if session.RevokedAt != nil && session.RevokedAt.Before(since) {
		since = *session.RevokedAt
	}
	return since
}
