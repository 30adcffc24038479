package domain

import "errors"

// Lifecycle errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrLoginAlreadyUsed    = errors.New("login is already in use")
	ErrEmailAlreadyUsed    = errors.New("email is already in use")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountNotActivated = errors.New("account is not activated")
)

// Validation errors
var (
	ErrInvalidPassword = errors.New("password does not meet length requirements")
)
