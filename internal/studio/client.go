// Package studio calls the internal generation endpoints on behalf of a run.
// Every call carries the run's capability token as a bearer credential.
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelgate/pkg/logger"
)

// Config configures a Client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Retry    RetryPolicy
}

// Client is a studio API client.
type Client struct {
	endpoint   string
	httpClient *http.Client
	retry      RetryPolicy
}

// New creates a studio client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
	}
}

// Research calls POST /internal/research.
func (c *Client) Research(ctx context.Context, token string, req ResearchRequest) (Payload, error) {
	var out Payload
	err := c.do(ctx, http.MethodPost, "/internal/research", token, req, &out)
	return out, err
}

// Concept calls POST /internal/concepts.
func (c *Client) Concept(ctx context.Context, token string, req ConceptRequest) (Payload, error) {
	var out Payload
	err := c.do(ctx, http.MethodPost, "/internal/concepts", token, req, &out)
	return out, err
}

// SegmentScript calls POST /internal/segments.
func (c *Client) SegmentScript(ctx context.Context, token string, req SegmentRequest) (Payload, error) {
	var out Payload
	err := c.do(ctx, http.MethodPost, "/internal/segments", token, req, &out)
	return out, err
}

// GenerateImage calls POST /internal/images.
func (c *Client) GenerateImage(ctx context.Context, token string, req ImageRequest) (Payload, error) {
	var out Payload
	err := c.do(ctx, http.MethodPost, "/internal/images", token, req, &out)
	return out, err
}

// GenerateVideo calls POST /internal/videos.
func (c *Client) GenerateVideo(ctx context.Context, token string, req VideoRequest) (Payload, error) {
	var out Payload
	err := c.do(ctx, http.MethodPost, "/internal/videos", token, req, &out)
	return out, err
}

// Segments lists the scripted segments of a project in index order.
func (c *Client) Segments(ctx context.Context, token, projectID string) ([]Segment, error) {
	var out segmentsResponse
	path := "/internal/projects/" + url.PathEscape(projectID) + "/segments"
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	log := logger.Component("studio")

	for attempt := 1; ; attempt++ {
		err := c.once(ctx, method, path, token, body, out)
		if err == nil {
			return nil
		}
		if !c.retry.ShouldRetry(attempt, err) {
			return err
		}

		delay := c.retry.NextDelay(attempt - 1)
		log.Warn().Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transient studio failure, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) once(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &StudioError{Path: path, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &StudioError{Path: path, Status: resp.StatusCode, Message: err.Error(), Transient: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StudioError{
			Path:      path,
			Status:    resp.StatusCode,
			Message:   errorMessage(data),
			Transient: isTransientStatus(resp.StatusCode),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &StudioError{Path: path, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Error != "" {
			return er.Error
		}
		if er.Message != "" {
			return er.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}

// IsTransient reports whether err is a retryable studio failure.
func IsTransient(err error) bool {
	var se *StudioError
	return errors.As(err, &se) && se.Transient
}
