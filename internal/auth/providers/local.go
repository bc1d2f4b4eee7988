package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
	// ErrUserNotFound is returned by lookups that find no matching user.
	ErrUserNotFound = errors.New("auth: user not found")
)

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	Clock func() time.Time
}

// AuthenticateInput contains metadata required to authenticate a local user.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// RegisterInput captures the details required to register a new local user.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LocalProvider implements username/password authentication against the users table.
// Failed-attempt accounting lives in the lockout guard, not here.
type LocalProvider struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewLocalProvider builds a provider with sane defaults.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:    db,
		clock: clock,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated user when successful.
// Unknown identities still pay for a bcrypt comparison.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := p.FindByIdentifier(ctx, identity)
	if errors.Is(err, ErrUserNotFound) {
		crypto.BurnPasswordCheck(input.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := p.clock().UTC()
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(input.IPAddress)

	if err := p.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": user.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("local provider: update user: %w", err)
	}

	return user, nil
}

// FindByIdentifier resolves a login identifier, either username or email, to
// its user regardless of the account state.
func (p *LocalProvider) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := p.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", identifier, identifier).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}
	return &user, nil
}

// FindByEmail returns the active user registered with email.
func (p *LocalProvider) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := p.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?) AND is_active = ?", email, true).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: find user: %w", err)
	}
	return &user, nil
}

// FindByID returns the user with the given id.
func (p *LocalProvider) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := p.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: find user: %w", err)
	}
	return &user, nil
}

// Register creates a new local user with a hashed password.
func (p *LocalProvider) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if strings.TrimSpace(input.Username) == "" || strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, errors.New("local provider: username, email and password are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("local provider: hash password: %w", err)
	}

	user := &models.User{
		Username: strings.TrimSpace(input.Username),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: hashed,
		IsActive: true,
	}

	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("local provider: create user: %w", err)
	}

	return user, nil
}
