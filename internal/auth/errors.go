package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthenticationFailed is the uniform failure surfaced by the Service for
	// credential, token and session problems. The specific cause stays reachable
	// through errors.Is.
	ErrAuthenticationFailed = errors.New("auth: authentication failed")
	// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the principal is temporarily locked out.
	// The concrete error is a *LockedError carrying the retry delay.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrInvalidToken is returned for malformed, forged or expired bearer tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrSessionNotFound indicates that no session matches the provided identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that has been revoked by the user or administrators.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that a session has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")

	ErrResetTokenInvalid     = errors.New("password reset: token invalid")
	ErrResetTokenExpired     = errors.New("password reset: token expired")
	ErrResetTokenAlreadyUsed = errors.New("password reset: token already used")
	ErrResetTokenRevoked     = errors.New("password reset: token revoked")
)

// LockedError reports an active lockout together with the time left on it.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrAccountLocked.Error(), e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrAccountLocked) hold for any *LockedError.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryAfterSeconds rounds the remaining lockout up to whole seconds.
func (e *LockedError) RetryAfterSeconds() int64 {
	secs := int64(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// IsResetTokenError reports whether err is one of the reset ledger failures.
func IsResetTokenError(err error) bool {
	return errors.Is(err, ErrResetTokenInvalid) ||
		errors.Is(err, ErrResetTokenExpired) ||
		errors.Is(err, ErrResetTokenAlreadyUsed) ||
		errors.Is(err, ErrResetTokenRevoked)
}

func authFailure(cause error) error {
	return fmt.Errorf("%w: %w", ErrAuthenticationFailed, cause)
}
