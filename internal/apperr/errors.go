// Package apperr holds the error taxonomy shared by the store, service and API layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrWriteRejected is returned when the backend refuses a write. It matches
	// ErrBackendUnavailable under errors.Is.
	ErrWriteRejected  = fmt.Errorf("%w: write rejected", ErrBackendUnavailable)
	ErrDecode         = errors.New("decode error")
	ErrRecordNotFound = errors.New("record not found")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrUnsupported    = errors.New("unsupported")
)
