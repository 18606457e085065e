package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("items missing")

	result := MapError(fmt.Errorf("wrapped: %w", orig))

	assert.Same(t, orig, result)
}

func TestMapError_ContextErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"deadline", context.DeadlineExceeded, "timed out"},
		{"canceled", context.Canceled, "canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MapError(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, ErrCodeTimeout, result.Code)
			assert.Contains(t, result.Message, tt.msg)
		})
	}
}

func TestMapError_Sentinels(t *testing.T) {
	assert.Equal(t, ErrCodeMethodNotFound, MapError(ErrToolNotFound).Code)
	assert.Equal(t, ErrCodeInvalidParams, MapError(ErrInvalidParams).Code)
	assert.Equal(t, ErrCodeMethodNotFound, MapError(ErrResourceNotFound).Code)
}

func TestMapError_UnknownErrorIsInternal(t *testing.T) {
	result := MapError(errors.New("boom"))

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInternalError, result.Code)
	assert.NotContains(t, result.Message, "boom")
}

func TestMapError_ResolveErrorCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"config", rerrors.ConfigError("bad config", nil), ErrCodeInternalError},
		{"unknown strategy", rerrors.UnknownStrategyError("x", []string{"per-item"}), ErrCodeInvalidParams},
		{"file not found", rerrors.New(rerrors.ErrCodeFileNotFound, "no dictionary", nil), ErrCodeFileNotFound},
		{"store", rerrors.StorageError("closed", nil), ErrCodeStoreUnavailable},
		{"network", rerrors.NetworkError("timeout", nil), ErrCodeTimeout},
		{"rate limited", rerrors.New(rerrors.ErrCodeRateLimited, "slow down", nil), ErrCodeRateLimited},
		{"validation", rerrors.New(rerrors.ErrCodeEmptyItem, "item 0 is blank", nil), ErrCodeInvalidParams},
		{"provider", rerrors.ProviderError("geocoder", "bad response", nil), ErrCodeProviderFailed},
		{"internal", rerrors.InternalError("oops", nil), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MapError(fmt.Errorf("ctx: %w", tt.err))
			require.NotNil(t, result)
			assert.Equal(t, tt.code, result.Code)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := rerrors.UnknownStrategyError("fastest", []string{"per-item", "per-provider"})

	result := MapError(err)

	assert.Contains(t, result.Message, `unknown strategy "fastest"`)
	assert.Contains(t, result.Message, "use one of: per-item, per-provider")
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: -32602, Message: "bad"}
	assert.Equal(t, "MCP error -32602: bad", err.Error())
}

func TestNewErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidParams, NewInvalidParamsError("x").Code)

	nf := NewMethodNotFoundError("geocode")
	assert.Equal(t, ErrCodeMethodNotFound, nf.Code)
	assert.Contains(t, nf.Message, "'geocode'")

	rnf := NewResourceNotFoundError("addresolve://nope")
	assert.Contains(t, rnf.Message, "addresolve://nope")
}
