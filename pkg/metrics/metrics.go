package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|locked).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// AccountLockouts counts lockouts triggered by crossing the failure threshold.
	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_account_lockouts_total",
			Help: "Total number of temporary account lockouts",
		},
	)

	// ActiveSessions tracks sessions created by this process that are not yet revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authcore_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// SessionRevocations counts revoked sessions by reason.
	SessionRevocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_session_revocations_total",
			Help: "Total number of revoked sessions",
		},
		[]string{"reason"},
	)

	// PasswordResets counts reset ledger events (requested|consumed|rejected).
	PasswordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_password_resets_total",
			Help: "Password reset token lifecycle events",
		},
		[]string{"event"},
	)

	// MigrationLockWait measures how long a process waited for the migration lock.
	MigrationLockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_migration_lock_wait_seconds",
			Help:    "Time spent waiting for the migration lock",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
