// Package errors provides a lightweight structured error type (PipelineError)
// for category-based classification of failures across the tile pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a pipeline error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Geospatial input errors
	CategoryUnits  ErrorCategory = "units"
	CategoryFormat ErrorCategory = "format"
	CategoryGeo    ErrorCategory = "geospatial"

	// External system integration errors
	CategoryDependency ErrorCategory = "dependency"
	CategoryProcess    ErrorCategory = "process"

	// Runtime and infrastructure errors
	CategoryCache      ErrorCategory = "cache"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Aborts the whole run
	SeverityError   ErrorSeverity = "error"   // Fails the owning tile, batch continues
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// PipelineError is a structured error with category, severity, and context
type PipelineError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PipelineError
type ContextFields map[string]any

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new PipelineError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PipelineError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category, unwrapping as
// needed.
func IsCategory(err error, category ErrorCategory) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Category == category
	}
	return false
}

// IsFatal reports whether an error should abort the whole run rather than a
// single tile.
func IsFatal(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Severity == SeverityFatal
	}
	return false
}

// IsWarning reports whether an error degrades its stage to a skip instead of
// failing the owning tile.
func IsWarning(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Severity == SeverityWarning
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if not a PipelineError
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Category
	}
	return CategoryInternal
}
