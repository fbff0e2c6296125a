package types

import "errors"

// Error kinds surfaced at the HTTP boundary. Packages wrap these with %w so that
// pkg/response can map them to a status code with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)
