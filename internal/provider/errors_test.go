package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Error(t *testing.T) {
	err := NewProviderError(ErrCodeRateLimited, "slow down", "openai", true)
	assert.Equal(t, "[openai] RATE_LIMITED: slow down", err.Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable", NewProviderError(ErrCodeServiceUnavailable, "down", "openai", true), true},
		{"wrapped retryable", fmt.Errorf("chat: %w", NewProviderError(ErrCodeRateLimited, "429", "openai", true)), true},
		{"not retryable", NewProviderError(ErrCodeAuthFailed, "bad key", "openai", false), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsInvalidResponse(t *testing.T) {
	assert.True(t, IsInvalidResponse(fmt.Errorf("x: %w", NewProviderError(ErrCodeInvalidResponse, "bad json", "openai", false))))
	assert.False(t, IsInvalidResponse(NewProviderError(ErrCodeTimeout, "slow", "openai", true)))
	assert.False(t, IsInvalidResponse(errors.New("bad json")))
}

func TestFunc(t *testing.T) {
	p := Func(func(_ context.Context, req ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Content: req.Model, FinishReason: FinishReasonStop}, nil
	})

	resp, err := p.Chat(context.Background(), ChatRequest{Model: "m"})
	assert.NoError(t, err)
	assert.Equal(t, "m", resp.Content)
	assert.Equal(t, "func", p.Name())
}
