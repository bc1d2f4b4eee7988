package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

// ActivityEntry captures a single session activity event to persist.
type ActivityEntry struct {
	SessionID      string
	UserID         string
	ActivityType   string
	Endpoint       string
	Method         string
	ClientIP       string
	ResponseStatus int
}

// ActivityListOptions controls pagination for activity queries.
type ActivityListOptions struct {
	Page     int
	PageSize int
	Since    *time.Time
}

// ActivityService appends and reads the session activity log. Rows are never
// updated or deleted.
type ActivityService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewActivityService constructs an ActivityService using the provided database handle.
func NewActivityService(db *gorm.DB, clock func() time.Time) (*ActivityService, error) {
	if db == nil {
		return nil, errors.New("activity service: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ActivityService{db: db, now: clock}, nil
}

// Record appends an activity row.
func (s *ActivityService) Record(ctx context.Context, entry ActivityEntry) error {
	ctx = ensureContext(ctx)

	activityType := strings.TrimSpace(entry.ActivityType)
	if activityType == "" {
		return errors.New("activity service: activity type is required")
	}

	row := models.SessionActivity{
		SessionID:      strings.TrimSpace(entry.SessionID),
		UserID:         strings.TrimSpace(entry.UserID),
		ActivityType:   activityType,
		Endpoint:       strings.TrimSpace(entry.Endpoint),
		Method:         strings.ToUpper(strings.TrimSpace(entry.Method)),
		ClientIP:       strings.TrimSpace(entry.ClientIP),
		Timestamp:      s.now().UTC(),
		ResponseStatus: entry.ResponseStatus,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("activity service: record: %w", err)
	}
	return nil
}

// ListForSession returns the activity of one session, newest first.
func (s *ActivityService) ListForSession(ctx context.Context, sessionID string, opts ActivityListOptions) ([]models.SessionActivity, int64, error) {
	return s.list(ctx, "session_id = ?", sessionID, opts)
}

// ListForUser returns the activity of every session of a user, newest first.
func (s *ActivityService) ListForUser(ctx context.Context, userID string, opts ActivityListOptions) ([]models.SessionActivity, int64, error) {
	return s.list(ctx, "user_id = ?", userID, opts)
}

func (s *ActivityService) list(ctx context.Context, where string, arg string, opts ActivityListOptions) ([]models.SessionActivity, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.SessionActivity{}).Where(where, arg)
	if opts.Since != nil {
		query = query.Where("timestamp >= ?", opts.Since.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("activity service: count: %w", err)
	}

	var rows []models.SessionActivity
	if err := query.
		Order("timestamp DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("activity service: list: %w", err)
	}

	return rows, total, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
