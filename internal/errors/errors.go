package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries both the operator-facing cause and the user-facing
// message for a failure, tagged with severity and retryability.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// NewValidationError covers malformed user input (wallet, handle). No state
// change, no escalation.
func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewStoreError covers persistence read/write failures. The triggering
// mutation must have been aborted before this is returned.
func NewStoreError(cause error) *AppError {
	var underlying string
	if cause != nil {
		underlying = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("store error: %s", underlying),
		UserMessage: "Something went wrong on our side. Please try again.",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewExternalError covers transient failures of external services (Telegram
// membership API, task API).
func NewExternalError(service string, cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     fmt.Sprintf("external service error: %s", service),
		UserMessage: "The service is temporarily unavailable. Please try again later.",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewNotFoundError covers references to entities that no longer exist,
// such as a task removed while the user was browsing.
func NewNotFoundError(what string) *AppError {
	return &AppError{
		Code:        "E404",
		Message:     fmt.Sprintf("%s not found", what),
		UserMessage: fmt.Sprintf("❌ %s not found.", what),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}
