package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrDataUnavailable marks an unreachable broker or store.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrConfiguration marks invalid settings. Fatal at construction time.
	ErrConfiguration = errors.New("configuration error")
)

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DataUnavailableError wraps the failure of an upstream source
type DataUnavailableError struct {
	Source string
	Err    error
}

// NewDataUnavailableError creates a DataUnavailableError
func NewDataUnavailableError(source string, err error) *DataUnavailableError {
	return &DataUnavailableError{Source: source, Err: err}
}

func (e *DataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Source)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

// Is matches ErrDataUnavailable
func (e *DataUnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}

// Unwrap exposes the underlying cause
func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// ConfigurationError describes an invalid setting
type ConfigurationError struct {
	Field   string
	Message string
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrConfiguration
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
