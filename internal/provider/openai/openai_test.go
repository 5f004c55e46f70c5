package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelgate/internal/provider"
)

func TestChat_ToolCalls(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "generate_image", "arguments": "{\"prompt\":\"foam\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-test"})
	resp, err := p.Chat(context.Background(), provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "you are a producer"},
			{Role: provider.RoleUser, Content: "Create a face wash ad"},
		},
		Tools: []provider.Tool{{
			Type:     "function",
			Function: provider.ToolFunction{Name: "generate_image", Parameters: json.RawMessage(`{"type":"object"}`)},
		}},
		Temperature: 0.4,
		RunID:       "run-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, "run-1", got.User)
	assert.Len(t, got.Messages, 2)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "generate_image", got.Tools[0].Function.Name)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)

	assert.Equal(t, provider.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"prompt":"foam"}`, resp.ToolCalls[0].Arguments)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestChat_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"done"}}]}`))
	}))
	defer srv.Close()

	resp, err := New(Config{Endpoint: srv.URL}).Chat(context.Background(), provider.ChatRequest{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, provider.FinishReasonStop, resp.FinishReason)
	assert.Empty(t, resp.ToolCalls)
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      provider.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, provider.ErrCodeAuthFailed, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, provider.ErrCodeRateLimited, true},
		{"unavailable", http.StatusServiceUnavailable, `upstream down`, provider.ErrCodeServiceUnavailable, true},
		{"context window", http.StatusBadRequest, `{"error":{"message":"maximum context length is 8192"}}`, provider.ErrCodeContextWindowExceeded, false},
		{"model missing", http.StatusNotFound, `{"error":{"message":"no such model"}}`, provider.ErrCodeModelNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{Endpoint: srv.URL}).Chat(context.Background(), provider.ChatRequest{})
			require.Error(t, err)

			var pe *provider.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.retryable, provider.IsRetryable(err))
		})
	}
}

func TestChat_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL}).Chat(context.Background(), provider.ChatRequest{})
	assert.True(t, provider.IsInvalidResponse(err))
}

func TestBuildRequest_ToolHistory(t *testing.T) {
	p := New(Config{Model: "m", MaxTokens: 128})
	req := p.buildRequest(provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "web_research", Arguments: `{}`}}},
			{Role: provider.RoleTool, ToolCallID: "c1", Content: "result"},
		},
	})

	require.Len(t, req.Messages, 2)
	assert.Nil(t, req.Messages[0].Content)
	assert.Equal(t, "web_research", req.Messages[0].ToolCalls[0].Function.Name)
	assert.Equal(t, "c1", req.Messages[1].ToolCallID)
	assert.Equal(t, 128, req.MaxTokens)
	assert.Nil(t, req.Temperature)
}
