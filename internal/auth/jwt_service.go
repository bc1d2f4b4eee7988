package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID    string         `json:"uid"`
	SessionID string         `json:"sid,omitempty"`
	Metadata  map[string]any `json:"meta,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput holds the parameters used when generating a new access token.
type AccessTokenInput struct {
	UserID    string
	SessionID string
	Audience  []string
	Metadata  map[string]any
	// TTL overrides the service default when positive.
	TTL time.Duration
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// TTL returns the default access token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// GenerateAccessToken issues a signed JWT containing the supplied claims.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, time.Time, error) {
	if input.UserID == "" {
		return "", time.Time{}, errors.New("jwt: user id is required")
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Metadata:  cloneMetadata(input.Metadata),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.UserID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	if input.SessionID != "" {
		claims.ID = input.SessionID
	}

	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Issue signs an arbitrary claim set that expires after ttl. Registered time
// claims and the issuer are always set by the service.
func (s *JWTService) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	mapClaims := make(jwt.MapClaims, len(claims)+4)
	for k, v := range claims {
		mapClaims[k] = v
	}
	mapClaims["exp"] = jwt.NewNumericDate(now.Add(ttl))
	mapClaims["iat"] = jwt.NewNumericDate(now)
	mapClaims["nbf"] = jwt.NewNumericDate(now)
	if s.issuer != "" {
		mapClaims["iss"] = s.issuer
	}

	return s.sign(mapClaims)
}

// Verify is the inverse of Issue and returns the decoded claim set.
func (s *JWTService) Verify(tokenString string) (map[string]any, error) {
	var claims jwt.MapClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateAccessToken parses and validates a signed JWT, returning the application claims.
// Every failure wraps ErrInvalidToken.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	var claims Claims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}

	return &claims, nil
}

func (s *JWTService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	if tokenString == "" {
		return fmt.Errorf("%w: token string is empty", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

// cloneMetadata guards against accidental external mutation of stored metadata.
func cloneMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}

	cpy := make(map[string]any, len(meta))
	for k, v := range meta {
		cpy[k] = v
	}
	return cpy
}
