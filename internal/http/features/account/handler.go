// Package account exposes the account lifecycle over HTTP. It maps
// transport requests onto lifecycle operations and lifecycle outcomes
// onto status codes; no lifecycle rules live here.
package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ae-platform/account-management/internal/account"
	"github.com/ae-platform/account-management/internal/domain"
	"github.com/ae-platform/account-management/internal/http/middleware"
	"github.com/ae-platform/account-management/internal/httputil"
	"github.com/ae-platform/account-management/pkg/auth"
)

// Handler handles account lifecycle endpoints.
type Handler struct {
	logger   *slog.Logger
	accounts *account.Service
	notifier account.Notifier
	tokens   *auth.TokenService
}

// NewHandler creates a new account handler.
func NewHandler(logger *slog.Logger, accounts *account.Service, notifier account.Notifier, tokens *auth.TokenService) *Handler {
	return &Handler{
		logger:   logger,
		accounts: accounts,
		notifier: notifier,
		tokens:   tokens,
	}
}

// RegisterRequest represents a self-registration request.
type RegisterRequest struct {
	Login     string `json:"login"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	LangKey   string `json:"lang_key"`
}

// LoginRequest represents an authentication request.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// TokenResponse represents an issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccountResponse represents the current user's account. The password
// hash is never serialized.
type AccountResponse struct {
	Login       string   `json:"login"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	LangKey     string   `json:"lang_key,omitempty"`
	Activated   bool     `json:"activated"`
	Authorities []string `json:"authorities,omitempty"`
}

// SaveAccountRequest represents a profile update.
type SaveAccountRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	LangKey   string `json:"lang_key"`
}

// ChangePasswordRequest carries the current and new password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ResetRequestRequest carries the email of a password reset request.
type ResetRequestRequest struct {
	Email string `json:"email"`
}

// ResetFinishRequest carries the reset key and the new password.
type ResetFinishRequest struct {
	Key         string `json:"key"`
	NewPassword string `json:"new_password"`
}

// MessageResponse is a simple message envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles self-registration.
// POST /v1/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Login == "" || req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "login and email are required")
		return
	}

	user, err := h.accounts.RegisterUser(r.Context(), account.Registration{
		Login:     req.Login,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		LangKey:   req.LangKey,
	}, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPassword):
			httputil.Error(w, http.StatusBadRequest, "password length must be within the configured bounds")
		case errors.Is(err, domain.ErrLoginAlreadyUsed):
			httputil.Error(w, http.StatusConflict, "login is already in use")
		case errors.Is(err, domain.ErrEmailAlreadyUsed):
			httputil.Error(w, http.StatusConflict, "email is already in use")
		default:
			h.logger.Error("registration failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	// The store write has committed; the activation mail rides behind it
	// and never affects the outcome.
	h.notifier.SendActivationEmail(user)

	httputil.JSON(w, http.StatusCreated, MessageResponse{Message: "registration successful, check your email to activate your account"})
}

// Activate consumes an activation key.
// GET /v1/activate?key=<key>
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	_, ok, err := h.accounts.ActivateRegistration(r.Context(), key)
	if err != nil {
		h.logger.Error("activation failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "activation failed")
		return
	}
	if !ok {
		httputil.Error(w, http.StatusInternalServerError, "no user was found for this activation key")
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "account activated"})
}

// Login authenticates credentials and issues an access token.
// POST /v1/authenticate
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Login == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "login and password are required")
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusUnauthorized, "invalid login or password")
		case errors.Is(err, domain.ErrAccountNotActivated):
			httputil.Error(w, http.StatusForbidden, "account is not activated. Please check your email for the activation link")
		default:
			h.logger.Error("authentication failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	token, err := h.tokens.IssueAccessToken(user.Login, user.Authorities)
	if err != nil {
		h.logger.Error("failed to issue access token", "error", err, "login", user.Login)
		httputil.Error(w, http.StatusInternalServerError, "failed to issue access token")
		return
	}

	httputil.JSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokens.AccessTokenTTL().Seconds()),
	})
}

// IsAuthenticated returns the login of the authenticated principal, or an
// empty login for anonymous requests.
// GET /v1/authenticate
func (h *Handler) IsAuthenticated(w http.ResponseWriter, r *http.Request) {
	login, _ := h.accounts.AuthenticatedLogin(middleware.NewSecurityContext(r.Context()))
	httputil.JSON(w, http.StatusOK, map[string]string{"login": login})
}

// GetAccount returns the current user's account.
// GET /v1/account
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.GetCurrentUser(r.Context(), middleware.NewSecurityContext(r.Context()))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// The caller is authenticated but the record is gone: an
			// inconsistency, not a user input error.
			httputil.Error(w, http.StatusInternalServerError, "user could not be found")
			return
		}
		h.logger.Error("failed to load current user", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	httputil.JSON(w, http.StatusOK, AccountResponse{
		Login:       user.Login,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		LangKey:     user.LangKey,
		Activated:   user.Activated,
		Authorities: user.Authorities,
	})
}

// SaveAccount updates the current user's profile.
// POST /v1/account
func (h *Handler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	login, ok := middleware.GetLogin(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SaveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	err := h.accounts.UpdateProfile(r.Context(), login, req.FirstName, req.LastName, req.Email, req.LangKey)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailAlreadyUsed):
			httputil.Error(w, http.StatusConflict, "email is already in use")
		case errors.Is(err, domain.ErrUserNotFound):
			httputil.Error(w, http.StatusInternalServerError, "user could not be found")
		default:
			h.logger.Error("profile update failed", "error", err, "login", login)
			httputil.Error(w, http.StatusInternalServerError, "failed to update account")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "account updated"})
}

// ChangePassword changes the current user's password.
// POST /v1/account/change-password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	login, ok := middleware.GetLogin(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.accounts.ChangePassword(r.Context(), login, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPassword):
			httputil.Error(w, http.StatusBadRequest, "new password length must be within the configured bounds")
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusBadRequest, "incorrect current password")
		case errors.Is(err, domain.ErrUserNotFound):
			httputil.Error(w, http.StatusInternalServerError, "user could not be found")
		default:
			h.logger.Error("password change failed", "error", err, "login", login)
			httputil.Error(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "password changed"})
}

// RequestPasswordReset starts a password reset. The response is identical
// whether or not the email belongs to an account, so the endpoint cannot
// be used to enumerate registered emails.
// POST /v1/account/reset-password/init
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	user, ok, err := h.accounts.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case err != nil:
		// Still answer like every other outcome; the failure is an
		// operational concern, not the caller's.
		h.logger.Error("password reset request failed", "error", err)
	case ok:
		h.notifier.SendPasswordResetEmail(user)
	default:
		h.logger.Warn("password reset requested for non existing mail")
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{
		Message: "If an account exists with that email, a password reset link has been sent",
	})
}

// FinishPasswordReset completes a password reset with a key from the
// reset email. Unknown, consumed, and expired keys are indistinguishable.
// POST /v1/account/reset-password/finish
func (h *Handler) FinishPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, ok, err := h.accounts.CompletePasswordReset(r.Context(), req.NewPassword, req.Key)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPassword) {
			httputil.Error(w, http.StatusBadRequest, "new password length must be within the configured bounds")
			return
		}
		h.logger.Error("password reset completion failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if !ok {
		httputil.Error(w, http.StatusInternalServerError, "no user was found for this reset key")
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "password reset"})
}
