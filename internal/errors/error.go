package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryConnect Category = "connect"
	CategoryState   Category = "state"
	CategoryArchive Category = "archive"
	CategoryCLI     Category = "cli"
)

// CLIError is a structured error with a code, an explanation and a hint.
type CLIError struct {
	// Code is a unique error identifier (e.g., "R120").
	Code string

	// Category is the error type (config, connect, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CLIError) WithSuggestion(s string) *CLIError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *CLIError) WithDetail(d string) *CLIError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *CLIError) Wrap(err error) *CLIError {
	e.Wrapped = err
	return e
}

// New creates a CLIError from a registered error code.
func New(code string) *CLIError {
	template, ok := registry[code]
	if !ok {
		return &CLIError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CLIError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new CLIError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *CLIError {
	return &CLIError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a CLIError. An error that already
// contains a CLIError anywhere in its chain is returned as that CLIError.
func FromError(err error, code string) *CLIError {
	if err == nil {
		return nil
	}
	var ce *CLIError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(code).Wrap(err)
}
