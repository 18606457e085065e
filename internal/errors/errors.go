package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ResolveError is the structured error type for addresolve.
// Batch-level failures (bad configuration, malformed input) and provider
// failures are reported as ResolveError so callers can branch on Code.
type ResolveError struct {
	// Code is the unique error code (e.g., "ERR_103_UNKNOWN_STRATEGY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Network, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Is matches another ResolveError by code, so errors.Is works against
// sentinel values built with New.
func (e *ResolveError) Is(target error) bool {
	if t, ok := target.(*ResolveError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *ResolveError) WithDetail(key, value string) *ResolveError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *ResolveError) WithSuggestion(suggestion string) *ResolveError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ResolveError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ResolveError {
	return &ResolveError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ResolveError from an existing error.
func Wrap(code string, err error) *ResolveError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ResolveError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// UnknownStrategyError reports a strategy name outside the valid set.
func UnknownStrategyError(name string, valid []string) *ResolveError {
	return New(ErrCodeUnknownStrategy,
		fmt.Sprintf("unknown strategy %q (valid: %s)", name, strings.Join(valid, ", ")), nil).
		WithDetail("strategy", name).
		WithSuggestion("use one of: " + strings.Join(valid, ", "))
}

// StorageError creates a storage-related error.
func StorageError(message string, cause error) *ResolveError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *ResolveError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ResolveError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ProviderError creates an error attributed to a lookup provider.
func ProviderError(provider, message string, cause error) *ResolveError {
	return New(ErrCodeProviderFailed, message, cause).WithDetail("provider", provider)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ResolveError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err (or anything it wraps) is a retryable ResolveError.
func IsRetryable(err error) bool {
	var re *ResolveError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var re *ResolveError
	if stderrors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ResolveError.
// Returns empty string if err is not a ResolveError.
func GetCode(err error) string {
	var re *ResolveError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a ResolveError.
func GetCategory(err error) Category {
	var re *ResolveError
	if stderrors.As(err, &re) {
		return re.Category
	}
	return ""
}

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var re *ResolveError
	if !stderrors.As(err, &re) {
		re = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", re.Message)
	if re.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", re.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", re.Code)
	return sb.String()
}
