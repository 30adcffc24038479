package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ae-platform/account-management/internal/account/accounttest"
	"github.com/ae-platform/account-management/internal/domain"
	"github.com/ae-platform/account-management/pkg/auth"
)

type staticSecurityContext struct {
	login string
	ok    bool
}

func (s staticSecurityContext) CurrentLogin() (string, bool) {
	return s.login, s.ok
}

func newTestService(t *testing.T) (*Service, *accounttest.Store) {
	t.Helper()
	store := accounttest.NewStore()
	svc := NewService(Config{
		PasswordMinLength: 4,
		PasswordMaxLength: 100,
		ResetKeyValidity:  24 * time.Hour,
	}, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func register(t *testing.T, svc *Service, login, email, password string) *domain.User {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), Registration{
		Login:     login,
		Email:     email,
		FirstName: "Jane",
		LastName:  "Doe",
		LangKey:   "en",
	}, password)
	if err != nil {
		t.Fatalf("RegisterUser(%q) failed: %v", login, err)
	}
	return user
}

func TestRegisterUser(t *testing.T) {
	svc, store := newTestService(t)

	user := register(t, svc, "JDoe", "JDoe@example.com", "passw0rd")

	if user.Activated {
		t.Error("new registration should not be activated")
	}
	if user.ActivationKey == nil || *user.ActivationKey == "" {
		t.Error("new registration should hold a non-empty activation key")
	}
	if user.Login != "jdoe" {
		t.Errorf("login = %q, want normalized %q", user.Login, "jdoe")
	}
	if user.Email != "jdoe@example.com" {
		t.Errorf("email = %q, want normalized %q", user.Email, "jdoe@example.com")
	}
	if !auth.VerifyPassword("passw0rd", user.PasswordHash) {
		t.Error("stored hash does not verify against the raw password")
	}
	if len(user.Authorities) != 1 || user.Authorities[0] != domain.AuthorityUser {
		t.Errorf("authorities = %v, want [%s]", user.Authorities, domain.AuthorityUser)
	}

	if _, ok := store.Get(user.ID); !ok {
		t.Error("user was not persisted")
	}
}

func TestRegisterUser_PasswordBounds(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name     string
		password string
	}{
		{name: "empty", password: ""},
		{name: "blank", password: "   "},
		{name: "below minimum", password: "abc"},
		{name: "above maximum", password: strings.Repeat("x", 101)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterUser(context.Background(), Registration{
				Login: "jdoe",
				Email: "jdoe@example.com",
			}, tt.password)
			if !errors.Is(err, domain.ErrInvalidPassword) {
				t.Errorf("err = %v, want ErrInvalidPassword", err)
			}
		})
	}

	// Boundary lengths are accepted.
	register(t, svc, "min", "min@example.com", "abcd")
	register(t, svc, "max", "max@example.com", strings.Repeat("x", 100))
}

func TestRegisterUser_Conflicts(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")

	tests := []struct {
		name    string
		login   string
		email   string
		wantErr error
	}{
		{
			name:    "duplicate login, different case",
			login:   "JDOE",
			email:   "other@example.com",
			wantErr: domain.ErrLoginAlreadyUsed,
		},
		{
			name:    "duplicate email, different case",
			login:   "other",
			email:   "JDoe@Example.COM",
			wantErr: domain.ErrEmailAlreadyUsed,
		},
		{
			name:    "both conflict, login takes precedence",
			login:   "jdoe",
			email:   "jdoe@example.com",
			wantErr: domain.ErrLoginAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterUser(context.Background(), Registration{
				Login: tt.login,
				Email: tt.email,
			}, "passw0rd")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterUser_ConcurrentSameEmail(t *testing.T) {
	svc, _ := newTestService(t)

	const attempts = 2
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logins := []string{"first", "second"}
			_, err := svc.RegisterUser(context.Background(), Registration{
				Login: logins[i],
				Email: "shared@example.com",
			}, "passw0rd")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrEmailAlreadyUsed):
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Errorf("succeeded = %d, conflicted = %d; want exactly one of each", succeeded, conflicted)
	}
}

func TestActivateRegistration(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")
	key := *user.ActivationKey

	activated, ok, err := svc.ActivateRegistration(context.Background(), key)
	if err != nil {
		t.Fatalf("ActivateRegistration failed: %v", err)
	}
	if !ok {
		t.Fatal("expected activation to find the user")
	}
	if !activated.Activated {
		t.Error("user should be activated")
	}
	if activated.ActivationKey != nil {
		t.Error("activation key should be cleared")
	}

	persisted, _ := store.Get(user.ID)
	if !persisted.Activated || persisted.ActivationKey != nil {
		t.Error("activation was not persisted")
	}

	// Repeating the call with the consumed key misses, same as an
	// unknown key.
	_, ok, err = svc.ActivateRegistration(context.Background(), key)
	if err != nil {
		t.Fatalf("second ActivateRegistration failed: %v", err)
	}
	if ok {
		t.Error("consumed key should not activate again")
	}
}

func TestActivateRegistration_UnknownKey(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		key  string
	}{
		{name: "unknown key", key: "no-such-key"},
		{name: "empty key", key: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := svc.ActivateRegistration(context.Background(), tt.key)
			if err != nil {
				t.Fatalf("ActivateRegistration failed: %v", err)
			}
			if ok {
				t.Error("expected no match")
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")

	if _, err := svc.Authenticate(context.Background(), "jdoe", "passw0rd"); !errors.Is(err, domain.ErrAccountNotActivated) {
		t.Errorf("unactivated login err = %v, want ErrAccountNotActivated", err)
	}

	if _, _, err := svc.ActivateRegistration(context.Background(), *user.ActivationKey); err != nil {
		t.Fatalf("activation failed: %v", err)
	}

	got, err := svc.Authenticate(context.Background(), "JDoe", "passw0rd")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.Login != "jdoe" {
		t.Errorf("login = %q, want %q", got.Login, "jdoe")
	}

	if _, err := svc.Authenticate(context.Background(), "jdoe", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(context.Background(), "ghost", "passw0rd"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("unknown login err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticatedLogin(t *testing.T) {
	svc, _ := newTestService(t)

	if login, ok := svc.AuthenticatedLogin(staticSecurityContext{login: "jdoe", ok: true}); !ok || login != "jdoe" {
		t.Errorf("AuthenticatedLogin = (%q, %v), want (jdoe, true)", login, ok)
	}
	if _, ok := svc.AuthenticatedLogin(staticSecurityContext{}); ok {
		t.Error("AuthenticatedLogin should report absent principal")
	}
}

func TestGetCurrentUser(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")

	user, err := svc.GetCurrentUser(context.Background(), staticSecurityContext{login: "jdoe", ok: true})
	if err != nil {
		t.Fatalf("GetCurrentUser failed: %v", err)
	}
	if user.Login != "jdoe" {
		t.Errorf("login = %q, want %q", user.Login, "jdoe")
	}
	if len(user.Authorities) == 0 {
		t.Error("current user should carry authorities")
	}

	if _, err := svc.GetCurrentUser(context.Background(), staticSecurityContext{}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("unauthenticated err = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.GetCurrentUser(context.Background(), staticSecurityContext{login: "ghost", ok: true}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("unknown login err = %v, want ErrUserNotFound", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")
	register(t, svc, "other", "other@example.com", "passw0rd")

	err := svc.UpdateProfile(context.Background(), "jdoe", "Janet", "Dorian", "janet@example.com", "fr")
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	persisted, _ := store.Get(user.ID)
	if persisted.FirstName != "Janet" || persisted.LastName != "Dorian" {
		t.Errorf("name = %q %q, want Janet Dorian", persisted.FirstName, persisted.LastName)
	}
	if persisted.Email != "janet@example.com" {
		t.Errorf("email = %q, want janet@example.com", persisted.Email)
	}
	if persisted.LangKey != "fr" {
		t.Errorf("langKey = %q, want fr", persisted.LangKey)
	}
	if persisted.PasswordHash != user.PasswordHash {
		t.Error("profile update must not touch the password hash")
	}
	if persisted.Activated != user.Activated {
		t.Error("profile update must not touch activation state")
	}
}

func TestUpdateProfile_EmailConflict(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")
	register(t, svc, "other", "other@example.com", "passw0rd")

	err := svc.UpdateProfile(context.Background(), "jdoe", "Jane", "Doe", "OTHER@example.com", "en")
	if !errors.Is(err, domain.ErrEmailAlreadyUsed) {
		t.Errorf("err = %v, want ErrEmailAlreadyUsed", err)
	}

	// Keeping one's own email is not a conflict.
	if err := svc.UpdateProfile(context.Background(), "jdoe", "Jane", "Doe", "jdoe@example.com", "en"); err != nil {
		t.Errorf("keeping own email failed: %v", err)
	}
}

func TestUpdateProfile_UnknownLogin(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.UpdateProfile(context.Background(), "ghost", "Jane", "Doe", "ghost@example.com", "en")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")

	if err := svc.ChangePassword(context.Background(), "jdoe", "passw0rd", "n3w-passw0rd"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	persisted, _ := store.Get(user.ID)
	if !auth.VerifyPassword("n3w-passw0rd", persisted.PasswordHash) {
		t.Error("new password does not verify")
	}
	if auth.VerifyPassword("passw0rd", persisted.PasswordHash) {
		t.Error("old password still verifies")
	}
}

func TestChangePassword_Failures(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")

	tests := []struct {
		name        string
		current     string
		newPassword string
		wantErr     error
	}{
		{
			name:        "new password too short",
			current:     "passw0rd",
			newPassword: "abc",
			wantErr:     domain.ErrInvalidPassword,
		},
		{
			name:        "new password blank",
			current:     "passw0rd",
			newPassword: "",
			wantErr:     domain.ErrInvalidPassword,
		},
		{
			name:        "wrong current password",
			current:     "not-my-password",
			newPassword: "n3w-passw0rd",
			wantErr:     domain.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ChangePassword(context.Background(), "jdoe", tt.current, tt.newPassword)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			persisted, _ := store.Get(user.ID)
			if persisted.PasswordHash != user.PasswordHash {
				t.Error("stored hash changed on a failed path")
			}
		})
	}
}

func TestRequestPasswordReset(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")
	if _, _, err := svc.ActivateRegistration(context.Background(), *user.ActivationKey); err != nil {
		t.Fatalf("activation failed: %v", err)
	}

	got, ok, err := svc.RequestPasswordReset(context.Background(), "JDOE@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if !ok {
		t.Fatal("expected reset request to find the user")
	}
	if got.ResetKey == nil || *got.ResetKey == "" {
		t.Error("reset key should be set")
	}
	if got.ResetDate == nil {
		t.Error("reset date should be set")
	}

	persisted, _ := store.Get(user.ID)
	if persisted.ResetKey == nil {
		t.Error("reset key was not persisted")
	}
}

func TestRequestPasswordReset_AbsentOutcomes(t *testing.T) {
	svc, _ := newTestService(t)
	// Unactivated account: excluded from reset eligibility.
	register(t, svc, "pending", "pending@example.com", "passw0rd")

	tests := []struct {
		name  string
		email string
	}{
		{name: "unknown email", email: "nonexistent@x.test"},
		{name: "unactivated account", email: "pending@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, ok, err := svc.RequestPasswordReset(context.Background(), tt.email)
			// The absent path must look exactly like success to the
			// caller: nil error, just no user to notify.
			if err != nil {
				t.Fatalf("RequestPasswordReset returned error: %v", err)
			}
			if ok || user != nil {
				t.Error("expected absent outcome")
			}
		})
	}
}

func TestRequestPasswordReset_SupersedesOutstandingKey(t *testing.T) {
	svc, _ := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")
	if _, _, err := svc.ActivateRegistration(context.Background(), *user.ActivationKey); err != nil {
		t.Fatalf("activation failed: %v", err)
	}

	first, _, err := svc.RequestPasswordReset(context.Background(), "jdoe@example.com")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	second, _, err := svc.RequestPasswordReset(context.Background(), "jdoe@example.com")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if *first.ResetKey == *second.ResetKey {
		t.Error("second request should overwrite the outstanding key")
	}

	// The superseded key no longer completes.
	_, ok, err := svc.CompletePasswordReset(context.Background(), "n3w-passw0rd", *first.ResetKey)
	if err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}
	if ok {
		t.Error("superseded key should not complete a reset")
	}
}

func TestCompletePasswordReset(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")
	if _, _, err := svc.ActivateRegistration(context.Background(), *user.ActivationKey); err != nil {
		t.Fatalf("activation failed: %v", err)
	}
	requested, _, err := svc.RequestPasswordReset(context.Background(), "jdoe@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	key := *requested.ResetKey

	got, ok, err := svc.CompletePasswordReset(context.Background(), "n3w-passw0rd", key)
	if err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}
	if !ok {
		t.Fatal("expected completion to find the user")
	}
	if got.ResetKey != nil || got.ResetDate != nil {
		t.Error("reset key and date should be cleared")
	}

	persisted, _ := store.Get(user.ID)
	if !auth.VerifyPassword("n3w-passw0rd", persisted.PasswordHash) {
		t.Error("new password does not verify")
	}

	// The key is consumed: the second attempt misses.
	_, ok, err = svc.CompletePasswordReset(context.Background(), "an0ther-one", key)
	if err != nil {
		t.Fatalf("second CompletePasswordReset failed: %v", err)
	}
	if ok {
		t.Error("consumed key should not complete again")
	}
}

func TestCompletePasswordReset_ExpiredKey(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "jdoe", "jdoe@example.com", "passw0rd")
	if _, _, err := svc.ActivateRegistration(context.Background(), *user.ActivationKey); err != nil {
		t.Fatalf("activation failed: %v", err)
	}

	issued := time.Now()
	svc.now = func() time.Time { return issued }
	requested, _, err := svc.RequestPasswordReset(context.Background(), "jdoe@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	// Move past the 24h window.
	svc.now = func() time.Time { return issued.Add(25 * time.Hour) }

	_, ok, err := svc.CompletePasswordReset(context.Background(), "n3w-passw0rd", *requested.ResetKey)
	if err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}
	if ok {
		t.Error("expired key must yield the same outcome as an unknown key")
	}

	persisted, _ := store.Get(user.ID)
	if !auth.VerifyPassword("passw0rd", persisted.PasswordHash) {
		t.Error("password must be unchanged after an expired-key attempt")
	}
}

func TestCompletePasswordReset_InvalidPassword(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.CompletePasswordReset(context.Background(), "abc", "some-key")
	if !errors.Is(err, domain.ErrInvalidPassword) {
		t.Errorf("err = %v, want ErrInvalidPassword", err)
	}
}
