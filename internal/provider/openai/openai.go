// Package openai implements provider.Provider against any OpenAI-compatible
// chat completions endpoint (OpenAI, vLLM, LiteLLM and similar gateways).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"reelgate/internal/provider"
	"reelgate/pkg/logger"
)

const providerName = "openai"

var _ provider.Provider = (*Provider)(nil)

// Provider talks to an OpenAI-compatible /v1/chat/completions endpoint.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// New creates a provider from cfg, filling zero values with defaults.
func New(cfg Config) *Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	// avoid /v1/v1/chat/completions
	normalized := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	normalized = strings.TrimSuffix(normalized, "/v1")

	return &Provider{
		apiKey:     cfg.APIKey,
		endpoint:   normalized,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Chat sends a non-streaming chat completion request.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	chatReq := p.buildRequest(req)
	log := logger.Component("provider")

	log.Debug().
		Str("model", chatReq.Model).
		Str("run_id", req.RunID).
		Int("messages", len(chatReq.Messages)).
		Int("tools", len(chatReq.Tools)).
		Msg("chat request")

	resp, err := p.doRequest(ctx, "/v1/chat/completions", chatReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrCodeNetworkError, fmt.Sprintf("read response: %v", err), providerName, true)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("chat error response")
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	if len(body) == 0 {
		return nil, provider.NewProviderError(provider.ErrCodeServiceUnavailable, "empty response body", providerName, true)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, provider.NewProviderError(provider.ErrCodeInvalidResponse, fmt.Sprintf("decode response: %v", err), providerName, false)
	}
	if chatResp.Error != nil {
		return nil, provider.NewProviderError(provider.ErrCodeUnknown, chatResp.Error.Message, providerName, false)
	}
	if len(chatResp.Choices) == 0 {
		return nil, provider.NewProviderError(provider.ErrCodeInvalidResponse, "response has no choices", providerName, false)
	}

	return convertResponse(&chatResp), nil
}

func (p *Provider) buildRequest(req provider.ChatRequest) *chatRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chatReq := &chatRequest{
		Model:    model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
		User:     req.RunID,
	}

	chatReq.MaxTokens = req.MaxTokens
	if chatReq.MaxTokens <= 0 {
		chatReq.MaxTokens = p.maxTokens
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		chatReq.Temperature = &temp
	}

	for _, msg := range req.Messages {
		chatMsg := chatMessage{
			Role:       msg.Role,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Content != "" || len(msg.ToolCalls) == 0 {
			content := msg.Content
			chatMsg.Content = &content
		}
		for _, tc := range msg.ToolCalls {
			chatMsg.ToolCalls = append(chatMsg.ToolCalls, chatToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: chatFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		chatReq.Messages = append(chatReq.Messages, chatMsg)
	}

	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, chatTool{
			Type: tool.Type,
			Function: chatFunction{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	return chatReq
}

func (p *Provider) doRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, provider.NewProviderError(provider.ErrCodeTimeout, err.Error(), providerName, true)
		}
		return nil, provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), providerName, true)
	}
	return resp, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var errResp chatResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = errResp.Error.Message
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "context length") || strings.Contains(lower, "maximum context") {
		return provider.NewProviderError(provider.ErrCodeContextWindowExceeded, message, providerName, false)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.NewProviderError(provider.ErrCodeAuthFailed, message, providerName, false)
	case http.StatusNotFound:
		return provider.NewProviderError(provider.ErrCodeModelNotFound, message, providerName, false)
	case http.StatusTooManyRequests:
		return provider.NewProviderError(provider.ErrCodeRateLimited, message, providerName, true)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return provider.NewProviderError(provider.ErrCodeInvalidRequest, message, providerName, false)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable, message, providerName, true)
	default:
		return provider.NewProviderError(provider.ErrCodeUnknown, fmt.Sprintf("status %d: %s", statusCode, message), providerName, statusCode >= 500)
	}
}

func convertResponse(resp *chatResponse) *provider.ChatResponse {
	choice := resp.Choices[0]
	result := &provider.ChatResponse{FinishReason: provider.FinishReasonStop}

	if choice.Message.Content != nil {
		result.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	switch choice.FinishReason {
	case "tool_calls":
		result.FinishReason = provider.FinishReasonToolCalls
	case "length":
		result.FinishReason = provider.FinishReasonLength
	}
	// some servers report "stop" alongside tool calls
	if len(result.ToolCalls) > 0 {
		result.FinishReason = provider.FinishReasonToolCalls
	}

	if resp.Usage != nil {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result
}
