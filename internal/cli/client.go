package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelgate/internal/gateway/handlers"
	"reelgate/internal/stream"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// StreamFrame is one decoded run stream message.
type StreamFrame struct {
	Type      stream.MessageType `json:"type"`
	Data      json.RawMessage    `json:"data"`
	Timestamp time.Time          `json:"timestamp"`
}

// APIClient talks to a reelgate server.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// streamClient has no timeout; runs may wait on approvals for hours.
	streamClient *http.Client
}

// NewAPIClient creates a client for baseURL.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// Do sends a JSON request and decodes the JSON response into out.
func (c *APIClient) Do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connectError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Get is Do with GET.
func (c *APIClient) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is Do with POST.
func (c *APIClient) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Stream posts body to path and calls fn for every server-sent event until
// the stream ends or fn returns an error. The run id header is returned.
func (c *APIClient) Stream(ctx context.Context, path string, body any, fn func(StreamFrame) error) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", connectError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}
	runID := resp.Header.Get("X-Run-Id")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var frame StreamFrame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			continue
		}
		if err := fn(frame); err != nil {
			return runID, err
		}
		if frame.Type.Terminal() {
			return runID, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return runID, fmt.Errorf("error reading stream: %w", err)
	}
	return runID, errors.New("stream ended before the run finished")
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}

	var er handlers.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Code != "" {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}

func connectError(err error) error {
	return fmt.Errorf("failed to connect to server: %w\nIs the server running? Start it with: reelgate serve", err)
}
