package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that an upstream service rejected the request
	// with a too-many-requests signal
	ErrRateLimited = errors.New("rate limited")

	// ErrUnknownTool indicates that a directive referenced an unregistered tool
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
