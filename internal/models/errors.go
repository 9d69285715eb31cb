package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateCredential = errors.New("username or email already exists")
	// ErrAuthFailure does not say whether the username or the password was wrong.
	ErrAuthFailure       = errors.New("invalid username or password")
	ErrRoleMismatch      = fmt.Errorf("invalid role for this account: %w", ErrAuthFailure)
	ErrRegistrationRole  = errors.New("only driver registration allowed")
	ErrClassifierFailure = errors.New("classifier failure")
	// ErrActiveSessionExists is only returned when the single-active-session check is enabled.
	ErrActiveSessionExists = errors.New("user already has an active session")
)
