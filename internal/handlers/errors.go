package handlers

import (
	"errors"
	"strconv"

	iauth "github.com/charlesng35/authcore/internal/auth"
	appErrors "github.com/charlesng35/authcore/pkg/errors"
)

// authError maps authentication service failures onto API errors. Credential,
// token and session failures collapse into one response so callers cannot tell
// which part was wrong.
func authError(err error) *appErrors.AppError {
	var locked *iauth.LockedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &locked):
		return appErrors.ErrAccountLocked.
			WithDetail("retry_after", locked.RetryAfterSeconds()).
			WithInternal(err)
	case errors.Is(err, iauth.ErrAuthenticationFailed):
		return appErrors.ErrAuthenticationFailed.WithInternal(err)
	case errors.Is(err, iauth.ErrSessionNotFound):
		return appErrors.ErrNotFound.WithInternal(err)
	case iauth.IsResetTokenError(err):
		return appErrors.ErrResetTokenInvalid.WithInternal(err)
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}

func retryAfterHeader(err *appErrors.AppError) string {
	if err == nil || err.Details == nil {
		return ""
	}
	if secs, ok := err.Details["retry_after"].(int64); ok && secs > 0 {
		return strconv.FormatInt(secs, 10)
	}
	return ""
}
