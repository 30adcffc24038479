// Package account implements the account lifecycle: registration,
// activation, profile and password self-service, and the two-phase
// password reset. Storage, email delivery, and the authenticated request
// context are collaborators behind the UserStore, Notifier, and
// SecurityContext interfaces.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ae-platform/account-management/internal/domain"
	"github.com/ae-platform/account-management/pkg/auth"
)

// UserStore persists User records. Login and email lookups are
// case-insensitive; key lookups are exact. Implementations must enforce
// login/email uniqueness and surface conflicts as
// domain.ErrLoginAlreadyUsed / domain.ErrEmailAlreadyUsed, and report
// misses as domain.ErrUserNotFound.
type UserStore interface {
	FindByLogin(ctx context.Context, login string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByActivationKey(ctx context.Context, key string) (*domain.User, error)
	FindByResetKey(ctx context.Context, key string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
}

// Notifier delivers account emails. Sends are best-effort: a delivery
// failure never rolls back the state transition that triggered it.
type Notifier interface {
	SendActivationEmail(user *domain.User)
	SendPasswordResetEmail(user *domain.User)
}

// SecurityContext resolves the authenticated principal of the in-flight
// request.
type SecurityContext interface {
	// CurrentLogin returns the authenticated login, or false if the
	// request carries no authenticated principal.
	CurrentLogin() (string, bool)
}

// Config holds lifecycle tunables.
type Config struct {
	// PasswordMinLength and PasswordMaxLength bound raw passwords,
	// inclusive on both ends.
	PasswordMinLength int
	PasswordMaxLength int
	// ResetKeyValidity is how long a reset key stays usable after issue.
	ResetKeyValidity time.Duration
}

// Registration carries the profile fields of a self-registration request.
type Registration struct {
	Login     string
	Email     string
	FirstName string
	LastName  string
	LangKey   string
}

// Service orchestrates account lifecycle transitions over a UserStore.
type Service struct {
	config Config
	store  UserStore
	logger *slog.Logger

	// injectable for tests
	now    func() time.Time
	newKey func() (string, error)
}

// NewService creates a lifecycle service.
func NewService(config Config, store UserStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config: config,
		store:  store,
		logger: logger,
		now:    time.Now,
		newKey: GenerateSecretKey,
	}
}

// RegisterUser creates an unactivated account with a fresh activation key.
// The login conflict check runs before the email conflict check, so when
// both collide the caller sees domain.ErrLoginAlreadyUsed. The store's
// unique constraints remain authoritative: a concurrent registration that
// slips past the pre-checks surfaces as the same typed errors from Create.
func (s *Service) RegisterUser(ctx context.Context, reg Registration, rawPassword string) (*domain.User, error) {
	if err := s.checkPasswordLength(rawPassword); err != nil {
		return nil, err
	}

	login := normalize(reg.Login)
	email := normalize(reg.Email)
	if login == "" {
		return nil, fmt.Errorf("login is required")
	}
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if _, err := s.store.FindByLogin(ctx, login); err == nil {
		return nil, domain.ErrLoginAlreadyUsed
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailAlreadyUsed
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(rawPassword)
	if err != nil {
		return nil, err
	}
	key, err := s.newKey()
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:            uuid.New(),
		Login:         login,
		Email:         email,
		PasswordHash:  hash,
		FirstName:     reg.FirstName,
		LastName:      reg.LastName,
		LangKey:       reg.LangKey,
		Activated:     false,
		ActivationKey: &key,
		Authorities:   []string{domain.AuthorityUser},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "login", user.Login)
	return user, nil
}

// ActivateRegistration consumes an activation key. The second return value
// is false when no pending account matches the key; a key that was already
// consumed is indistinguishable from an unknown one.
func (s *Service) ActivateRegistration(ctx context.Context, key string) (*domain.User, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	user, err := s.store.FindByActivationKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	user.Activated = true
	user.ActivationKey = nil
	user.UpdatedAt = s.now()
	if err := s.store.Update(ctx, user); err != nil {
		return nil, false, err
	}

	s.logger.Info("user activated", "login", user.Login)
	return user, true, nil
}

// AuthenticatedLogin returns the login of the authenticated principal, or
// false if the request is unauthenticated. No store access.
func (s *Service) AuthenticatedLogin(sc SecurityContext) (string, bool) {
	return sc.CurrentLogin()
}

// GetCurrentUser loads the full record (including authorities) for the
// authenticated principal. Returns domain.ErrUserNotFound when the context
// carries no login or the store has no matching record.
func (s *Service) GetCurrentUser(ctx context.Context, sc SecurityContext) (*domain.User, error) {
	login, ok := sc.CurrentLogin()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.store.FindByLogin(ctx, login)
}

// Authenticate verifies login credentials for an activated account.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*domain.User, error) {
	user, err := s.store.FindByLogin(ctx, normalize(login))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Activated {
		return nil, domain.ErrAccountNotActivated
	}
	return user, nil
}

// UpdateProfile mutates the current user's name, email, and language.
// Password and activation/reset state are untouched. The caller is assumed
// already authenticated, so a missing login is a fatal inconsistency
// reported as domain.ErrUserNotFound.
func (s *Service) UpdateProfile(ctx context.Context, currentLogin, firstName, lastName, email, langKey string) error {
	login := normalize(currentLogin)
	email = normalize(email)

	if existing, err := s.store.FindByEmail(ctx, email); err == nil {
		if !strings.EqualFold(existing.Login, login) {
			return domain.ErrEmailAlreadyUsed
		}
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	user, err := s.store.FindByLogin(ctx, login)
	if err != nil {
		return err
	}

	user.FirstName = firstName
	user.LastName = lastName
	user.Email = email
	user.LangKey = langKey
	user.UpdatedAt = s.now()
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user profile updated", "login", user.Login)
	return nil
}

// ChangePassword replaces the stored hash after verifying the current
// password. Nothing is written on a failed check.
func (s *Service) ChangePassword(ctx context.Context, currentLogin, currentPassword, newPassword string) error {
	if err := s.checkPasswordLength(newPassword); err != nil {
		return err
	}

	user, err := s.store.FindByLogin(ctx, normalize(currentLogin))
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(currentPassword, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user password changed", "login", user.Login)
	return nil
}

// RequestPasswordReset issues a reset key for an activated account with
// the given email. An unknown or unactivated email is not an error: the
// second return value is false and the caller must respond exactly as if
// the request had succeeded. A new request supersedes any outstanding key
// and restarts the validity clock.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*domain.User, bool, error) {
	user, err := s.store.FindByEmail(ctx, normalize(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !user.Activated {
		return nil, false, nil
	}

	key, err := s.newKey()
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	user.ResetKey = &key
	user.ResetDate = &now
	user.UpdatedAt = now
	if err := s.store.Update(ctx, user); err != nil {
		return nil, false, err
	}

	s.logger.Info("password reset requested", "login", user.Login)
	return user, true, nil
}

// CompletePasswordReset consumes a reset key and installs the new
// password. An unknown, consumed, or expired key all yield the same
// not-found outcome.
func (s *Service) CompletePasswordReset(ctx context.Context, newPassword, key string) (*domain.User, bool, error) {
	if err := s.checkPasswordLength(newPassword); err != nil {
		return nil, false, err
	}
	if key == "" {
		return nil, false, nil
	}

	user, err := s.store.FindByResetKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !user.ResetKeyValid(s.config.ResetKeyValidity, s.now()) {
		return nil, false, nil
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, false, err
	}
	user.PasswordHash = hash
	user.ResetKey = nil
	user.ResetDate = nil
	user.UpdatedAt = s.now()
	if err := s.store.Update(ctx, user); err != nil {
		return nil, false, err
	}

	s.logger.Info("password reset completed", "login", user.Login)
	return user, true, nil
}

func (s *Service) checkPasswordLength(password string) error {
	if strings.TrimSpace(password) == "" {
		return domain.ErrInvalidPassword
	}
	if len(password) < s.config.PasswordMinLength || len(password) > s.config.PasswordMaxLength {
		return domain.ErrInvalidPassword
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
