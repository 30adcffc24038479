package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	// Account lifecycle
	PasswordMinLength int
	PasswordMaxLength int
	ResetKeyValidity  time.Duration

	// SMTP (optional; notifications disabled when host is empty)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	AppBaseURL   string

	// Rate limiting
	RateLimitEnabled        bool
	AuthRequestsPerMinute   int
	ResetRequestsPerWindow  int
	ResetWindowMinutes      int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "account_management"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT defaults
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "account-management"),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),

		// Lifecycle defaults
		PasswordMinLength: getEnvInt("PASSWORD_MIN_LENGTH", 4),
		PasswordMaxLength: getEnvInt("PASSWORD_MAX_LENGTH", 100),
		ResetKeyValidity:  getEnvDuration("RESET_KEY_VALIDITY", 24*time.Hour),

		// SMTP (optional)
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", ""),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),

		// Rate limiting defaults
		RateLimitEnabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
		AuthRequestsPerMinute:  getEnvInt("AUTH_REQUESTS_PER_MINUTE", 10),
		ResetRequestsPerWindow: getEnvInt("RESET_REQUESTS_PER_WINDOW", 5),
		ResetWindowMinutes:     getEnvInt("RESET_WINDOW_MINUTES", 15),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.PasswordMinLength < 1 || cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return nil, fmt.Errorf("invalid password length bounds [%d, %d]", cfg.PasswordMinLength, cfg.PasswordMaxLength)
	}
	if cfg.ResetKeyValidity <= 0 {
		return nil, fmt.Errorf("RESET_KEY_VALIDITY must be positive")
	}

	return cfg, nil
}

// HasSMTP returns true if outbound email is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
