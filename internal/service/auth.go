package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RegisterRequest carries signup form values. An empty Role means driver.
type RegisterRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role,omitempty"`
}

// Session is an issued login token.
type Session struct {
	Token     string          `json:"token"`
	User      domain.Identity `json:"user"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// AuthService manages accounts and session tokens in the key-value store.
type AuthService struct {
	kv               *store.KV
	sessionTTL       time.Duration
	allowAdminSignup bool
	bcryptCost       int
	logger           *slog.Logger
}

// NewAuthService creates an AuthService using SESSION_TTL and ALLOW_ADMIN_SIGNUP.
func NewAuthService(kv *store.KV, cfg *config.Config, logger *slog.Logger) *AuthService {
	return &AuthService{
		kv:               kv,
		sessionTTL:       cfg.SessionTTL,
		allowAdminSignup: cfg.AllowAdminSignup,
		bcryptCost:       bcrypt.DefaultCost,
		logger:           logger,
	}
}

// Register creates an account. Emails are unique case-insensitively and
// stored lower-cased. The first account may always be an admin; later admin
// signups need ALLOW_ADMIN_SIGNUP.
func (a *AuthService) Register(ctx context.Context, req RegisterRequest) (domain.Identity, error) {
	email := normalizeEmail(req.Email)
	if !emailPattern.MatchString(email) {
		return domain.Identity{}, ErrInvalidEmail
	}
	if len(req.Password) < MinPasswordLength {
		return domain.Identity{}, ErrWeakPassword
	}
	role := req.Role
	if role == "" {
		role = domain.RoleDriver
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return domain.Identity{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	var user domain.User
	_, err = store.UpdateJSON(ctx, a.kv, store.KeyUsers, func(users []domain.User, _ bool) ([]domain.User, error) {
		if _, ok := findUser(users, email); ok {
			return nil, ErrEmailTaken
		}
		if role == domain.RoleAdmin && !a.allowAdminSignup && len(users) > 0 {
			return nil, ErrAdminSignupDisabled
		}
		user = domain.User{
			ID:           uuid.NewString(),
			Email:        email,
			Role:         role,
			PasswordHash: string(hash),
		}
		return append(users, user), nil
	})
	switch {
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrAdminSignupDisabled):
		return domain.Identity{}, err
	case err != nil:
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	a.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user.Identity(), nil
}

// Login checks credentials and issues a session token.
func (a *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	users, err := a.loadUsers(ctx)
	if err != nil {
		return Session{}, err
	}
	user, ok := findUser(users, normalizeEmail(email))
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("compare password: %w", err)
	}

	session := Session{
		Token:     uuid.NewString(),
		User:      user.Identity(),
		ExpiresAt: domain.Now().Add(a.sessionTTL).UTC(),
	}
	if !a.kv.SetJSON(ctx, store.SessionKey(session.Token), session) {
		return Session{}, ErrStoreWrite
	}
	a.logger.Info("user logged in", "user_id", user.ID)
	return session, nil
}

// Logout revokes token. Unknown tokens are ignored.
func (a *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if !a.kv.Remove(ctx, store.SessionKey(token)) {
		return ErrStoreWrite
	}
	return nil
}

// Current resolves a session token to its user. Expired sessions are removed.
func (a *AuthService) Current(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrUnauthenticated
	}
	var session Session
	if !a.kv.GetJSON(ctx, store.SessionKey(token), &session) {
		return domain.Identity{}, ErrUnauthenticated
	}
	if !domain.Now().Before(session.ExpiresAt) {
		a.kv.Remove(ctx, store.SessionKey(token))
		return domain.Identity{}, ErrUnauthenticated
	}
	return session.User, nil
}

// SeedAdmin creates an admin account when the store has no users yet. It
// reports whether an account was created. Losing the race to another replica
// seeding the same store is not an error.
func (a *AuthService) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" {
		return false, nil
	}
	users, err := a.loadUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	if len(users) > 0 {
		return false, nil
	}
	_, err = a.Register(ctx, RegisterRequest{Email: email, Password: password, Role: domain.RoleAdmin})
	switch {
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrAdminSignupDisabled):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("seed admin: %w", err)
	}
	a.logger.Info("seeded admin account", "email", normalizeEmail(email))
	return true, nil
}

// loadUsers reads the account list, failing rather than reporting no
// accounts when the stored list is unreadable.
func (a *AuthService) loadUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if _, err := a.kv.LoadJSON(ctx, store.KeyUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func findUser(users []domain.User, email string) (domain.User, bool) {
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return domain.User{}, false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
