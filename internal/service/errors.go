package service

import (
	"errors"
	"sort"
	"strings"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation error")

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactive           = errors.New("account is deactivated")
	ErrWrongPassword      = errors.New("password is incorrect")

	// ErrMetadataPersist is returned when the blob was stored but its
	// metadata record could not be written.  The blob is left in place.
	ErrMetadataPersist = errors.New("metadata persist failed")
)

// ValidationError describes rejected input.  Message is safe to show to
// clients; Details maps field names to problems.
type ValidationError struct {
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Details[k]
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(msg string) *ValidationError { return &ValidationError{Message: msg} }

// fieldErrors collects per-field problems.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Message: "Validation error", Details: f}
}

// Upload rejections.
var (
	ErrNoFile             = invalid("No file uploaded")
	ErrEmptyFile          = invalid("Uploaded file is empty")
	ErrFileTooLarge       = invalid("File too large. Maximum size is 50MB.")
	ErrFileTypeNotAllowed = invalid("File type not allowed. Please upload a valid document or image.")
	ErrNoUpdates          = invalid("No valid fields to update")
)
