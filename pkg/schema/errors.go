package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeResolution     = "RESOLUTION_ERROR"
	ErrCodeExpression     = "EXPRESSION_ERROR"
	ErrCodeSandbox        = "SANDBOX_VIOLATION"
	ErrCodeUnknownControl = "UNKNOWN_CONTROL_ACTION"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeTimeout        = "TIMEOUT_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeCancelled      = "CANCELLED"
)

// SinteError is the structured error type for all chain operations.
type SinteError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SinteError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SinteError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SinteError.
func NewError(code, message string) *SinteError {
	return &SinteError{Code: code, Message: message}
}

// NewErrorf creates a new SinteError with a formatted message.
func NewErrorf(code, format string, args ...any) *SinteError {
	return &SinteError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *SinteError) WithStep(stepID string) *SinteError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *SinteError) WithCause(err error) *SinteError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *SinteError) WithDetails(details map[string]any) *SinteError {
	e.Details = details
	return e
}

// ErrorCode returns the code of the outermost SinteError in err's chain,
// or "" when there is none.
func ErrorCode(err error) string {
	var se *SinteError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
