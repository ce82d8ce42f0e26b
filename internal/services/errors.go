package services

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrModelNotFound   = errors.New("model not found")
	ErrNoUserMessage   = errors.New("no user message found")
	ErrInvalidData     = errors.New("invalid data")
	ErrUserExists      = errors.New("user already exists")
	ErrStorageDisabled = errors.New("file storage is not configured")
)
