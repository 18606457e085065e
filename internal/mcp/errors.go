// Package mcp implements the Model Context Protocol (MCP) server for addresolve.
package mcp

import (
	"context"
	"errors"
	"fmt"

	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

// Custom MCP error codes for addresolve.
const (
	// ErrCodeStoreUnavailable indicates the known-address store or dictionary is unusable.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeProviderFailed indicates a lookup provider failed outside any item.
	ErrCodeProviderFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a configured file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeRateLimited indicates an upstream geocoder refused the request.
	ErrCodeRateLimited = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var re *rerrors.ResolveError
	if errors.As(err, &re) {
		return mapResolveError(re)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapResolveError converts a ResolveError to an MCPError.
func mapResolveError(re *rerrors.ResolveError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	switch re.Category {
	case rerrors.CategoryConfig:
		// An unknown strategy arrives from the caller, not from our config.
		if re.Code == rerrors.ErrCodeUnknownStrategy {
			return &MCPError{
				Code:    ErrCodeInvalidParams,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	case rerrors.CategoryStorage:
		if re.Code == rerrors.ErrCodeFileNotFound {
			return &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeStoreUnavailable,
			Message: message,
		}
	case rerrors.CategoryNetwork:
		if re.Code == rerrors.ErrCodeRateLimited {
			return &MCPError{
				Code:    ErrCodeRateLimited,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: message,
		}
	case rerrors.CategoryValidation:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case rerrors.CategoryProvider:
		return &MCPError{
			Code:    ErrCodeProviderFailed,
			Message: message,
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
