package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ae-platform/account-management/internal/account"
	"github.com/ae-platform/account-management/internal/config"
	apphttp "github.com/ae-platform/account-management/internal/http"
	accountapi "github.com/ae-platform/account-management/internal/http/features/account"
	"github.com/ae-platform/account-management/internal/http/middleware"
	"github.com/ae-platform/account-management/internal/notification"
	"github.com/ae-platform/account-management/internal/repository"
	"github.com/ae-platform/account-management/pkg/auth"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users := repository.NewUsersRepository(db)

	accounts := account.NewService(account.Config{
		PasswordMinLength: cfg.PasswordMinLength,
		PasswordMaxLength: cfg.PasswordMaxLength,
		ResetKeyValidity:  cfg.ResetKeyValidity,
	}, users, logger)

	var notifier account.Notifier
	if cfg.HasSMTP() {
		notifier = notification.NewEmailService(notification.EmailConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			User:       cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			FromName:   cfg.SMTPFromName,
			AppBaseURL: cfg.AppBaseURL,
		}, logger)
	} else {
		logger.Warn("SMTP not configured, account emails will be logged only")
		notifier = notification.NewNopNotifier(logger)
	}

	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:         []byte(cfg.JWTSecret),
		Issuer:         cfg.JWTIssuer,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})

	router := apphttp.NewRouter(apphttp.RouterDeps{
		Logger:       logger,
		Account:      accountapi.NewHandler(logger, accounts, notifier, tokens),
		Tokens:       tokens,
		RateLimiters: middleware.CreateRateLimiters(cfg, logger),
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
