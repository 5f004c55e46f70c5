package provider

import (
	"errors"
	"fmt"
)

// ErrorCode classifies provider failures.
type ErrorCode string

const (
	ErrCodeAuthFailed            ErrorCode = "AUTH_FAILED"
	ErrCodeRateLimited           ErrorCode = "RATE_LIMITED"
	ErrCodeServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeModelNotFound         ErrorCode = "MODEL_NOT_FOUND"
	ErrCodeNetworkError          ErrorCode = "NETWORK_ERROR"
	ErrCodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidResponse       ErrorCode = "INVALID_RESPONSE"
	ErrCodeTimeout               ErrorCode = "TIMEOUT"
	ErrCodeContextWindowExceeded ErrorCode = "CONTEXT_WINDOW_EXCEEDED"
	ErrCodeUnknown               ErrorCode = "UNKNOWN"
)

// ProviderError is a structured error for provider operations.
type ProviderError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Provider  string    `json:"provider"`
	Retryable bool      `json:"retryable"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// NewProviderError creates a new ProviderError.
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsInvalidResponse reports whether the provider returned a body the engine cannot use.
func IsInvalidResponse(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == ErrCodeInvalidResponse
}
