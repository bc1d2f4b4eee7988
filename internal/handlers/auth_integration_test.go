package handlers_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/handlers/testutil"
	"github.com/charlesng35/authcore/internal/models"
)

func TestAuthHandler_LoginLogoutFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Password123!")

	login := env.Login(user.Username, "Password123!")
	require.Equal(t, "Bearer", login.TokenType)
	require.Equal(t, user.ID, login.User.ID)

	w := env.Request(http.MethodGet, "/api/sessions", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/auth/logout", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the token still verifies but its session is gone
	_, err := env.JWT.ValidateAccessToken(login.AccessToken)
	require.NoError(t, err)

	w = env.Request(http.MethodGet, "/api/sessions", nil, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var session models.Session
	require.NoError(t, env.DB.First(&session, "id = ?", login.SessionID).Error)
	require.False(t, session.IsActive)
	require.Equal(t, models.RevocationUserLogout, *session.RevocationReason)
}

func TestAuthHandler_LoginFailuresAreUniform(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Password123!")

	wrongPassword := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": user.Username,
		"password":   "nope",
	}, "")
	unknownUser := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "ghost",
		"password":   "nope",
	}, "")

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, wrongPassword.Code, unknownUser.Code)
	require.JSONEq(t, wrongPassword.Body.String(), unknownUser.Body.String())

	resp := testutil.DecodeResponse(t, wrongPassword)
	require.Equal(t, "AUTHENTICATION_FAILED", resp.Error.Code)
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"identifier": "   "}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.Contains(t, resp.Error.Message, "identifier is required")
	require.Contains(t, resp.Error.Message, "password is required")
}

func TestAuthHandler_Lockout(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Password123!")

	for i := 0; i < env.Config.Auth.Lockout.Threshold; i++ {
		w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
			"identifier": user.Username,
			"password":   "wrong",
		}, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": user.Username,
		"password":   "Password123!",
	}, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "ACCOUNT_LOCKED", resp.Error.Code)
	require.Greater(t, resp.Error.Details["retry_after"].(float64), float64(0))
}

func TestAuthHandler_LogoutAll(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Password123!")

	first := env.Login(user.Username, "Password123!")
	second := env.Login(user.Username, "Password123!")

	w := env.Request(http.MethodPost, "/api/auth/logout_all", nil, first.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		Revoked int64 `json:"revoked"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	require.Equal(t, int64(2), payload.Revoked)

	for _, token := range []string{first.AccessToken, second.AccessToken} {
		w := env.Request(http.MethodGet, "/api/sessions", nil, token)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Password123!")
	login := env.Login(user.Username, "Password123!")

	w := env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{"email": "nobody@example.com"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	unknownBody := w.Body.String()
	require.Zero(t, env.Resets.Count())

	w = env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{"email": user.Email}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, unknownBody, w.Body.String())

	raw := env.Resets.Token(user.Email)
	require.NotEmpty(t, raw)

	w = env.Request(http.MethodPost, "/api/auth/password/reset", map[string]string{
		"token":    raw,
		"password": "NewPassword456!",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// existing sessions are revoked by the reset
	w = env.Request(http.MethodGet, "/api/sessions", nil, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	env.Login(user.Username, "NewPassword456!")

	w = env.Request(http.MethodPost, "/api/auth/password/reset", map[string]string{
		"token":    raw,
		"password": "AnotherPassword789!",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "RESET_TOKEN_INVALID", testutil.DecodeResponse(t, w).Error.Code)
}

func TestAuthHandler_ResetRejectsUnknownToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/password/reset", map[string]string{
		"token":    "not-a-real-token",
		"password": "NewPassword456!",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "RESET_TOKEN_INVALID", testutil.DecodeResponse(t, w).Error.Code)
}

func TestAuthHandler_ForgotPasswordHidesDeliveryFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Password123!")

	w := env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{"email": "nobody@example.com"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	unknownBody := w.Body.String()

	env.Resets.FailWith(errors.New("smtp relay unavailable"))
	w = env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{"email": user.Email}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.JSONEq(t, unknownBody, w.Body.String())
	require.Zero(t, env.Resets.Count())
}
