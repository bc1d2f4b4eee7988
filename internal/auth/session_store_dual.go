package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/logger"
)

// DualSessionStore writes every session to a process-local map and to the
// durable table. Get, the enforcement read, only trusts the durable table so a
// revocation made by any process is honoured everywhere, and fails while the
// database is unreachable. Lookup may answer from the memory copy.
type DualSessionStore struct {
	memory  *MemorySessionStore
	durable *DatabaseSessionStore
	log     *zap.Logger
}

// NewDualSessionStore combines a memory and a durable store.
func NewDualSessionStore(memory *MemorySessionStore, durable *DatabaseSessionStore) (*DualSessionStore, error) {
	if memory == nil || durable == nil {
		return nil, errors.New("session store: memory and durable stores are required")
	}
	return &DualSessionStore{
		memory:  memory,
		durable: durable,
		log:     logger.WithModule("session_store"),
	}, nil
}

func (s *DualSessionStore) Create(ctx context.Context, input NewSession) (*models.Session, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, errors.New("session store: user id is required")
	}
	session := newSessionRecord(input, s.durable.now(), s.durable.ttl)
	if err := s.durable.insert(ctx, session); err != nil {
		return nil, err
	}
	s.memory.put(session)
	return session, nil
}

func (s *DualSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.durable.Get(ctx, sessionID)
	switch {
	case err == nil:
		return session, nil
	case isSessionStateError(err):
		if errors.Is(err, ErrSessionRevoked) || errors.Is(err, ErrSessionExpired) {
			s.syncRevocation(ctx, sessionID)
		}
		return nil, err
	default:
		return nil, err
	}
}

func (s *DualSessionStore) Lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.durable.Lookup(ctx, sessionID)
	if err == nil || isSessionStateError(err) {
		return session, err
	}
	s.log.Warn("durable session lookup failed; using local copy",
		zap.String("session_id", sessionID),
		zap.Error(err),
	)
	return s.memory.Lookup(ctx, sessionID)
}

// Touch updates the local copy and tries the durable row. A durable failure is
// logged and swallowed.
func (s *DualSessionStore) Touch(ctx context.Context, sessionID string) error {
	if err := s.memory.Touch(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if err := s.durable.Touch(ctx, sessionID); err != nil {
		s.log.Warn("touch durable session", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

func (s *DualSessionStore) ListForUser(ctx context.Context, userID string) ([]models.Session, error) {
	return s.durable.ListForUser(ctx, userID)
}

func (s *DualSessionStore) Revoke(ctx context.Context, sessionID, reason string) (bool, error) {
	revoked, err := s.durable.Revoke(ctx, sessionID, reason)
	if err != nil {
		return false, err
	}
	_, _ = s.memory.Revoke(ctx, sessionID, reason)
	return revoked, nil
}

func (s *DualSessionStore) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	count, err := s.durable.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, err
	}
	_, _ = s.memory.RevokeAllForUser(ctx, userID, reason)
	return count, nil
}

func (s *DualSessionStore) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.durable.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	_, _ = s.memory.SweepExpired(ctx)
	return count, nil
}

// syncRevocation copies a revocation observed in the durable table into the
// local map so the fallback path cannot resurrect it.
func (s *DualSessionStore) syncRevocation(ctx context.Context, sessionID string) {
	record, err := s.durable.Lookup(ctx, sessionID)
	if err != nil {
		return
	}
	reason := models.RevocationRevoked
	if record.RevocationReason != nil {
		reason = *record.RevocationReason
	} else if record.IsActive {
		reason = models.RevocationExpired
	}
	_, _ = s.memory.Revoke(ctx, sessionID, reason)
}

func isSessionStateError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrSessionExpired)
}
