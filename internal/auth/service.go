package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// CredentialVerifier is the credential store consulted at login and reset time.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, input providers.AuthenticateInput) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ActivityRecorder appends session activity rows.
type ActivityRecorder interface {
	Record(ctx context.Context, entry services.ActivityEntry) error
}

// ResetTokenSender delivers a freshly issued raw reset token out of band.
type ResetTokenSender interface {
	SendResetToken(ctx context.Context, user *models.User, rawToken string, expiresAt time.Time) error
}

// ServiceDeps wires the collaborators of the Service. Activity, Resets and
// ResetSender are optional.
type ServiceDeps struct {
	Credentials CredentialVerifier
	Sessions    SessionStore
	Tokens      *JWTService
	Lockout     *LockoutGuard
	Resets      *PasswordResetLedger
	Activity    ActivityRecorder
	ResetSender ResetTokenSender
}

// ServiceConfig holds behavioural switches.
type ServiceConfig struct {
	// KeyLockoutByIP additionally counts failures per client IP.
	KeyLockoutByIP bool
}

// LoginInput carries a login attempt.
type LoginInput struct {
	Identifier        string
	Password          string
	ClientIP          string
	UserAgent         string
	DeviceFingerprint string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Session   *models.Session
	User      *models.User
}

// Principal is the identity behind an authenticated request.
type Principal struct {
	UserID  string
	Session *models.Session
	Claims  *Claims
}

// PasswordResetInput carries a reset request.
type PasswordResetInput struct {
	Email     string
	ClientIP  string
	UserAgent string
}

// Service orchestrates login, request authentication, logout and password reset.
type Service struct {
	credentials CredentialVerifier
	sessions    SessionStore
	tokens      *JWTService
	lockout     *LockoutGuard
	resets      *PasswordResetLedger
	activity    ActivityRecorder
	resetSender ResetTokenSender
	keyByIP     bool
	log         *zap.Logger
}

// NewService validates the dependencies and builds a Service.
func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	switch {
	case deps.Credentials == nil:
		return nil, errors.New("auth service: credential verifier is required")
	case deps.Sessions == nil:
		return nil, errors.New("auth service: session store is required")
	case deps.Tokens == nil:
		return nil, errors.New("auth service: jwt service is required")
	case deps.Lockout == nil:
		return nil, errors.New("auth service: lockout guard is required")
	}

	log := logger.WithModule("auth")
	sender := deps.ResetSender
	if sender == nil {
		sender = logResetSender{log: log}
	}

	return &Service{
		credentials: deps.Credentials,
		sessions:    deps.Sessions,
		tokens:      deps.Tokens,
		lockout:     deps.Lockout,
		resets:      deps.Resets,
		activity:    deps.Activity,
		resetSender: sender,
		keyByIP:     cfg.KeyLockoutByIP,
		log:         log,
	}, nil
}

// Login checks the lockout guard, verifies the credential, creates a session
// and issues a token bound to it. Failures are counted against the account,
// whichever of its aliases was typed. A locked principal fails with
// *LockedError before the password is checked; every other failure wraps
// ErrAuthenticationFailed.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	principal, err := s.principalKey(ctx, identifier)
	if err != nil {
		return nil, err
	}
	keys := s.lockoutKeys(principal, input.ClientIP)

	for _, key := range keys {
		locked, remaining, err := s.lockout.IsLocked(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("auth service: check lockout: %w", err)
		}
		if locked {
			metrics.AuthAttempts.WithLabelValues("locked").Inc()
			return nil, &LockedError{RetryAfter: remaining}
		}
	}

	user, err := s.credentials.Authenticate(ctx, providers.AuthenticateInput{
		Identifier: identifier,
		Password:   input.Password,
		IPAddress:  input.ClientIP,
		UserAgent:  input.UserAgent,
	})
	if err != nil {
		if !errors.Is(err, providers.ErrInvalidCredentials) && !errors.Is(err, providers.ErrAccountDisabled) {
			return nil, fmt.Errorf("auth service: verify credentials: %w", err)
		}
		for _, key := range keys {
			if _, recErr := s.lockout.RecordFailedAttempt(ctx, key); recErr != nil {
				s.log.Error("record failed attempt", zap.String("key", key), zap.Error(recErr))
			}
		}
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, authFailure(ErrInvalidCredentials)
	}

	if err := s.lockout.Clear(ctx, principal); err != nil {
		s.log.Warn("clear lockout counter", zap.String("user_id", user.ID), zap.Error(err))
	}

	session, err := s.sessions.Create(ctx, NewSession{
		UserID:            user.ID,
		ClientIP:          input.ClientIP,
		UserAgent:         input.UserAgent,
		DeviceFingerprint: input.DeviceFingerprint,
		LoginMethod:       DefaultLoginMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: create session: %w", err)
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(AccessTokenInput{
		UserID:    user.ID,
		SessionID: session.ID,
	})
	if err != nil {
		if _, revokeErr := s.sessions.Revoke(ctx, session.ID, models.RevocationRevoked); revokeErr != nil {
			s.log.Error("revoke orphaned session", zap.String("session_id", session.ID), zap.Error(revokeErr))
		}
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	metrics.ActiveSessions.Inc()

	s.RecordActivity(ctx, services.ActivityEntry{
		SessionID:    session.ID,
		UserID:       user.ID,
		ActivityType: models.ActivityLogin,
		ClientIP:     input.ClientIP,
	})

	s.log.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID),
	)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Session:   session,
		User:      user,
	}, nil
}

// AuthenticateRequest verifies the token and then confirms the session it
// references is still live. A valid token for a revoked session fails with
// ErrSessionRevoked.
func (s *Service) AuthenticateRequest(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, authFailure(err)
	}
	if claims.SessionID == "" {
		return nil, authFailure(fmt.Errorf("%w: missing session claim", ErrInvalidToken))
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if isSessionStateError(err) {
			return nil, authFailure(err)
		}
		return nil, fmt.Errorf("auth service: load session: %w", err)
	}
	if session.UserID != claims.UserID {
		return nil, authFailure(fmt.Errorf("%w: session owner mismatch", ErrInvalidToken))
	}

	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		s.log.Debug("touch session", zap.String("session_id", session.ID), zap.Error(err))
	}

	return &Principal{UserID: claims.UserID, Session: session, Claims: claims}, nil
}

// RecordActivity appends an activity row. Failures are logged, never returned.
func (s *Service) RecordActivity(ctx context.Context, entry services.ActivityEntry) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.log.Warn("record session activity",
			zap.String("session_id", entry.SessionID),
			zap.String("activity", entry.ActivityType),
			zap.Error(err),
		)
	}
}

// Logout revokes a single session with reason user_logout. Logging out a
// session that is already revoked is a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	revoked, err := s.revoke(ctx, sessionID, models.RevocationUserLogout)
	if err != nil || !revoked {
		return err
	}
	s.RecordActivity(ctx, services.ActivityEntry{
		SessionID:    sessionID,
		UserID:       session.UserID,
		ActivityType: models.ActivityLogout,
	})
	return nil
}

// LogoutAll revokes every active session of the user and returns how many were revoked.
func (s *Service) LogoutAll(ctx context.Context, userID, reason string) (int64, error) {
	if strings.TrimSpace(reason) == "" {
		reason = models.RevocationLogoutAll
	}
	count, err := s.sessions.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("auth service: revoke sessions: %w", err)
	}
	s.observeRevocations(reason, count)
	s.log.Info("user sessions revoked",
		zap.String("user_id", userID),
		zap.String("reason", reason),
		zap.Int64("count", count),
	)
	return count, nil
}

// ListSessions returns all sessions of a user, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListForUser(ctx, userID)
}

// LookupSession returns a session in whatever state it is in.
func (s *Service) LookupSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.sessions.Lookup(ctx, sessionID)
}

// RevokeSession revokes a session with reason revoked.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := s.revoke(ctx, sessionID, models.RevocationRevoked)
	return err
}

// RevokeUserSession revokes a session only if it belongs to userID. Sessions of
// other users are reported as not found.
func (s *Service) RevokeUserSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	return s.RevokeSession(ctx, sessionID)
}

// RequestPasswordReset issues a reset token for the account registered with
// email and hands it to the sender. Unknown addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, input PasswordResetInput) error {
	if s.resets == nil {
		return errors.New("auth service: password reset is not configured")
	}

	user, err := s.credentials.FindByEmail(ctx, input.Email)
	if errors.Is(err, providers.ErrUserNotFound) {
		s.log.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth service: find user: %w", err)
	}

	raw, record, err := s.resets.Request(ctx, ResetRequest{
		UserID:    user.ID,
		Email:     user.Email,
		ClientIP:  input.ClientIP,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("auth service: issue reset token: %w", err)
	}

	if err := s.resetSender.SendResetToken(ctx, user, raw, record.ExpiresAt); err != nil {
		return fmt.Errorf("auth service: deliver reset token: %w", err)
	}
	return nil
}

// ResetPassword consumes the token, stores the new password, revokes every
// session of the user and clears their lockout counter.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if s.resets == nil {
		return errors.New("auth service: password reset is not configured")
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	record, err := s.resets.Consume(ctx, rawToken, hash)
	if err != nil {
		return err
	}

	if _, err := s.LogoutAll(ctx, record.UserID, models.RevocationPasswordReset); err != nil {
		return err
	}

	user, err := s.credentials.FindByID(ctx, record.UserID)
	if err != nil {
		s.log.Warn("load user after reset", zap.String("user_id", record.UserID), zap.Error(err))
		return nil
	}
	if err := s.lockout.Clear(ctx, PrincipalKey(user.Username)); err != nil {
		s.log.Warn("clear lockout after reset", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// SweepExpiredSessions marks expired sessions revoked and returns how many were swept.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	count, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("auth service: sweep sessions: %w", err)
	}
	s.observeRevocations(models.RevocationExpired, count)
	return count, nil
}

func (s *Service) revoke(ctx context.Context, sessionID, reason string) (bool, error) {
	revoked, err := s.sessions.Revoke(ctx, sessionID, reason)
	if err != nil {
		return false, err
	}
	if revoked {
		s.observeRevocations(reason, 1)
	}
	return revoked, nil
}

func (s *Service) observeRevocations(reason string, count int64) {
	if count <= 0 {
		return
	}
	metrics.SessionRevocations.WithLabelValues(reason).Add(float64(count))
	metrics.ActiveSessions.Sub(float64(count))
}

// principalKey maps a login identifier to the lockout key of its account.
// Unknown identifiers are keyed as typed so probing them locks the same way.
func (s *Service) principalKey(ctx context.Context, identifier string) (string, error) {
	user, err := s.credentials.FindByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		return PrincipalKey(user.Username), nil
	case errors.Is(err, providers.ErrUserNotFound):
		return PrincipalKey(identifier), nil
	default:
		return "", fmt.Errorf("auth service: resolve principal: %w", err)
	}
}

func (s *Service) lockoutKeys(principal, clientIP string) []string {
	keys := []string{principal}
	if s.keyByIP && strings.TrimSpace(clientIP) != "" {
		keys = append(keys, IPKey(clientIP))
	}
	return keys
}

type logResetSender struct {
	log *zap.Logger
}

func (l logResetSender) SendResetToken(_ context.Context, user *models.User, _ string, expiresAt time.Time) error {
	l.log.Info("password reset token issued; no delivery channel configured",
		zap.String("user_id", user.ID),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}
