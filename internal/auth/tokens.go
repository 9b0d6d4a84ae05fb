package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

var (
	ErrMissingSecret = errors.New("auth: token secret is empty")
	ErrInvalidToken  = errors.New("auth: invalid token")
)

// Claims is the payload of both token kinds. Refresh tokens carry only ID.
type Claims struct {
	ID    string      `json:"id"`
	Email string      `json:"email,omitempty"`
	Role  schema.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig holds the signing keys and lifetimes.
type TokenConfig struct {
	Secret        string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Tokens issues and verifies HS256 access and refresh tokens.
type Tokens struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if cfg.Secret == "" || cfg.RefreshSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Tokens{cfg: cfg, now: time.Now}, nil
}

// Access signs an access token carrying the user's id, email and role.
func (t *Tokens) Access(u *schema.User) (string, error) {
	return t.sign(Claims{ID: u.ID, Email: u.Email, Role: u.Role}, t.cfg.AccessTTL, t.cfg.Secret)
}

// Refresh signs a refresh token carrying only the user's id.
func (t *Tokens) Refresh(u *schema.User) (string, error) {
	return t.sign(Claims{ID: u.ID}, t.cfg.RefreshTTL, t.cfg.RefreshSecret)
}

// ParseAccess verifies an access token and returns its claims.
func (t *Tokens) ParseAccess(token string) (*Claims, error) {
	return t.parse(token, t.cfg.Secret)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (t *Tokens) ParseRefresh(token string) (*Claims, error) {
	return t.parse(token, t.cfg.RefreshSecret)
}

func (t *Tokens) sign(c Claims, ttl time.Duration, secret string) (string, error) {
	now := t.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func (t *Tokens) parse(token, secret string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if c.ID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}
