package service

import (
	"errors"

	"github.com/iliyamo/auth-service/internal/model"
)

// Authentication failures (401).
var (
	ErrAuthRequired       = errors.New("authentication required")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRevokedToken       = errors.New("refresh token has been revoked")
	ErrInvalidCredentials = errors.New("email or password does not match")
)

// ErrForbidden is returned when a valid identity lacks the required role or tenant scope (403).
var ErrForbidden = errors.New("you do not have permission to perform this action")

// Conflict and input errors (400).
var (
	ErrEmailExists    = errors.New("email already exists")
	ErrTenantRequired = model.ErrTenantRequired
	ErrInvalidRole    = model.ErrInvalidRole
	ErrTenantNotFound = errors.New("tenant does not exist")
	ErrTenantInUse    = errors.New("tenant still has users")
	ErrValidation     = errors.New("validation failed")
)

// ErrNotFound is returned when the addressed user or tenant does not exist (404).
var ErrNotFound = errors.New("resource not found")

// Infrastructure failures (500).  Their detail is logged, never returned to clients.
var (
	ErrKeySigning = errors.New("error reading private key")
	ErrKeyFormat  = errors.New("public key is missing or malformed")
)
