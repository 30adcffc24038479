// Package notification delivers account lifecycle emails. Sends are
// best-effort relative to the state transition that triggered them: a
// delivery failure is logged, never propagated.
package notification

import (
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/ae-platform/account-management/internal/domain"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	FromName   string
	AppBaseURL string
}

// EmailService sends activation and password reset emails over SMTP.
type EmailService struct {
	config EmailConfig
	logger *slog.Logger
}

// NewEmailService creates a new email service.
func NewEmailService(config EmailConfig, logger *slog.Logger) *EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailService{config: config, logger: logger}
}

// SendActivationEmail emails the activation link to a freshly registered
// user. Fire-and-forget: the send runs in its own goroutine.
func (s *EmailService) SendActivationEmail(user *domain.User) {
	if user.ActivationKey == nil {
		s.logger.Warn("activation email requested without activation key", "login", user.Login)
		return
	}
	activateURL := fmt.Sprintf("%s/account/activate?key=%s", s.config.AppBaseURL, *user.ActivationKey)
	subject := "Activate Your Account"
	body := fmt.Sprintf(`<html><body>
		<h2>Activate Your Account</h2>
		<p>Dear %s,</p>
		<p>Your account has been created. Please click the link below to activate it:</p>
		<p><a href="%s">Activate your account</a></p>
		<p>Or copy this link to your browser: %s</p>
	</body></html>`, displayName(user), activateURL, activateURL)

	s.sendAsync(user, subject, body, "activation")
}

// SendPasswordResetEmail emails the reset link to a user with an
// outstanding reset key. Fire-and-forget.
func (s *EmailService) SendPasswordResetEmail(user *domain.User) {
	if user.ResetKey == nil {
		s.logger.Warn("reset email requested without reset key", "login", user.Login)
		return
	}
	resetURL := fmt.Sprintf("%s/account/reset/finish?key=%s", s.config.AppBaseURL, *user.ResetKey)
	subject := "Reset Your Password"
	body := fmt.Sprintf(`<html><body>
		<h2>Reset Your Password</h2>
		<p>Dear %s,</p>
		<p>A password reset has been requested for your account. Click the link below to set a new password:</p>
		<p><a href="%s">Reset your password</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in 24 hours. If you did not request this reset, please ignore this email.</p>
	</body></html>`, displayName(user), resetURL, resetURL)

	s.sendAsync(user, subject, body, "reset")
}

func (s *EmailService) sendAsync(user *domain.User, subject, body, kind string) {
	to := user.Email
	login := user.Login
	go func() {
		if err := s.sendEmail(to, subject, body); err != nil {
			s.logger.Error("failed to send email", "kind", kind, "login", login, "error", err)
			return
		}
		s.logger.Info("email sent", "kind", kind, "login", login)
	}()
}

func (s *EmailService) sendEmail(to, subject, body string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body)

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return smtp.SendMail(addr, auth, s.config.From, []string{to}, []byte(msg))
}

func displayName(user *domain.User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	return user.Login
}

// NopNotifier discards all notifications. Used when SMTP is not
// configured so lifecycle transitions still complete.
type NopNotifier struct {
	logger *slog.Logger
}

// NewNopNotifier creates a notifier that only logs.
func NewNopNotifier(logger *slog.Logger) *NopNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) SendActivationEmail(user *domain.User) {
	n.logger.Info("email delivery disabled, skipping activation email", "login", user.Login)
}

func (n *NopNotifier) SendPasswordResetEmail(user *domain.User) {
	n.logger.Info("email delivery disabled, skipping reset email", "login", user.Login)
}
