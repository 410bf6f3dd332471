package types

import "errors"

// Error kinds. Package errors wrap one of these so the HTTP layer can pick a
// status code without knowing every package.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)
