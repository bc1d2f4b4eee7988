package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/cache"
	sharedtestutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Auth    *iauth.Service
	JWT     *iauth.JWTService
	Users   *providers.LocalProvider
	Resets  *ResetInbox
	Config  *app.Config
	Lockout *iauth.LockoutGuard
}

// ResetInbox captures reset tokens handed to the delivery channel.
type ResetInbox struct {
	mu     sync.Mutex
	tokens map[string]string
	fail   error
}

func (r *ResetInbox) SendResetToken(_ context.Context, user *models.User, raw string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.tokens[user.Email] = raw
	return nil
}

// FailWith makes every following delivery fail with err; nil restores delivery.
func (r *ResetInbox) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Token returns the last raw token sent to email.
func (r *ResetInbox) Token(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[email]
}

// Count reports how many addresses received a token.
func (r *ResetInbox) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{TTL: 24 * time.Hour, Store: app.SessionStoreDual},
			Lockout: app.LockoutSettings{Threshold: 3, Duration: 10 * time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	users, err := providers.NewLocalProvider(db, providers.LocalConfig{})
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	durable, err := iauth.NewDatabaseSessionStore(db, cfg.Auth.SessionStoreConfig())
	require.NoError(t, err)
	sessions, err := iauth.NewDualSessionStore(iauth.NewMemorySessionStore(cfg.Auth.SessionStoreConfig()), durable)
	require.NoError(t, err)

	counters := cache.NewDatabaseStore(db)
	lockout, err := iauth.NewLockoutGuard(counters, cfg.Auth.LockoutConfig())
	require.NoError(t, err)

	resets, err := iauth.NewPasswordResetLedger(db, cfg.Auth.PasswordResetConfig())
	require.NoError(t, err)

	activity, err := services.NewActivityService(db, nil)
	require.NoError(t, err)

	inbox := &ResetInbox{tokens: map[string]string{}}
	svc, err := iauth.NewService(iauth.ServiceDeps{
		Credentials: users,
		Sessions:    sessions,
		Tokens:      jwtSvc,
		Lockout:     lockout,
		Resets:      resets,
		Activity:    activity,
		ResetSender: inbox,
	}, cfg.Auth.ServiceConfig())
	require.NoError(t, err)

	router, err := api.NewRouter(api.RouterDeps{
		DB:        db,
		Auth:      svc,
		Config:    cfg,
		RateStore: middleware.NewRateStore(cache.NewMemoryStore(nil)),
	})
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		Auth:    svc,
		JWT:     jwtSvc,
		Users:   users,
		Resets:  inbox,
		Config:  cfg,
		Lockout: lockout,
	}
}

// CreateUser registers an active user with a random username and returns the record.
func (e *Env) CreateUser(password string) *models.User {
	e.T.Helper()

	username := "user-" + uuid.NewString()[:8]
	user, err := e.Users.Register(context.Background(), providers.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	})
	require.NoError(e.T, err)
	return user
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	ExpiresIn   int         `json:"expires_in"`
	SessionID   string      `json:"session_id"`
	User        UserPayload `json:"user"`
}

// Login authenticates using the local provider and returns the issued token.
func (e *Env) Login(username, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": username,
		"password":   password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.NotEmpty(e.T, result.SessionID)
	require.Greater(e.T, result.ExpiresIn, 0)
	require.Equal(e.T, username, result.User.Username)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
