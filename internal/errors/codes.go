// Package errors provides structured error handling for addresolve.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (files, databases)
//   - 3XX: Network errors
//   - 4XX: Validation errors
//   - 5XX: Provider and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates file and database errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryProvider indicates a lookup provider misbehaved.
	CategoryProvider Category = "PROVIDER"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownStrategy = "ERR_103_UNKNOWN_STRATEGY"
	ErrCodeUnknownProvider = "ERR_104_UNKNOWN_PROVIDER"

	// Storage errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeStoreUnavailable = "ERR_202_STORE_UNAVAILABLE"
	ErrCodeFileCorrupt      = "ERR_203_FILE_CORRUPT"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeRateLimited        = "ERR_303_RATE_LIMITED"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeEmptyItem        = "ERR_402_EMPTY_ITEM"
	ErrCodeOverridePath     = "ERR_403_OVERRIDE_PATH"
	ErrCodeMalformedAddress = "ERR_404_MALFORMED_ADDRESS"

	// Provider and internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeProviderFailed    = "ERR_502_PROVIDER_FAILED"
	ErrCodeProviderPanic     = "ERR_503_PROVIDER_PANIC"
	ErrCodeMalformedResponse = "ERR_504_MALFORMED_RESPONSE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_101_..." -> '1'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '5':
		if code == ErrCodeInternal {
			return CategoryInternal
		}
		return CategoryProvider
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeFileCorrupt:
		return SeverityFatal
	case ErrCodeOverridePath:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeRateLimited, ErrCodeStoreUnavailable:
		return true
	default:
		return false
	}
}
