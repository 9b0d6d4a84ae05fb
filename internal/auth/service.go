// Package auth registers and logs in users and turns bearer tokens back into
// identities.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     schema.Role `json:"role"`
}

// Session is returned by Register and Login.
type Session struct {
	User         schema.UserSummary `json:"user"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
}

// Profile is the account as its owner sees it.
type Profile struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      schema.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type Service struct {
	users    store.UserRepository
	tokens   *Tokens
	log      *slog.Logger
	now      func() time.Time
	hashCost int
}

func NewService(users store.UserRepository, tokens *Tokens, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
		hashCost: bcrypt.DefaultCost,
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, apperr.Validation("Please fill all fields")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperr.Validation("Password must be at least %d characters", MinPasswordLength)
	}
	role := in.Role
	if role == "" {
		role = schema.RoleMember
	}
	if !role.Valid() {
		return nil, apperr.Validation("Invalid role")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Validation("User already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internal(err, "looking up user")
	}

	hash, err := HashPassword(in.Password, s.hashCost)
	if err != nil {
		return nil, apperr.Internal(err, "hashing password")
	}
	now := s.now()
	u := &schema.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation("User already exists")
		}
		return nil, apperr.Internal(err, "creating user")
	}
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("Please provide email and password")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Auth("Invalid credentials")
	}
	if err != nil {
		return nil, apperr.Internal(err, "looking up user")
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, apperr.Auth("Invalid credentials")
	}
	return s.session(u)
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperr.Validation("Refresh token required")
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", apperr.Auth("Invalid refresh token")
	}
	u, err := s.user(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	access, err := s.tokens.Access(u)
	if err != nil {
		return "", apperr.Internal(err, "signing token")
	}
	return access, nil
}

func (s *Service) Profile(ctx context.Context, id schema.Identity) (*Profile, error) {
	u, err := s.user(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}, nil
}

// Authenticate verifies an access token and resolves the user it names.
func (s *Service) Authenticate(ctx context.Context, token string) (schema.Identity, error) {
	if token == "" {
		return schema.Identity{}, apperr.Auth("Authentication required")
	}
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return schema.Identity{}, apperr.Auth("Invalid token")
	}
	u, err := s.user(ctx, claims.ID)
	if err != nil {
		return schema.Identity{}, err
	}
	return u.Identity(), nil
}

func (s *Service) user(ctx context.Context, id string) (*schema.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Auth("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "loading user")
	}
	return u, nil
}

func (s *Service) session(u *schema.User) (*Session, error) {
	access, err := s.tokens.Access(u)
	if err != nil {
		return nil, apperr.Internal(err, "signing token")
	}
	refresh, err := s.tokens.Refresh(u)
	if err != nil {
		return nil, apperr.Internal(err, "signing token")
	}
	return &Session{User: u.Summary(), AccessToken: access, RefreshToken: refresh}, nil
}
