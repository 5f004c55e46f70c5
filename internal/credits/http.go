package credits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var _ Ledger = (*HTTPLedger)(nil)

// HTTPLedger talks to the billing service.
type HTTPLedger struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPLedger creates a ledger client for endpoint.
func NewHTTPLedger(endpoint string, timeout time.Duration) *HTTPLedger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLedger{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type opRequest struct {
	UserID string `json:"userId"`
	OpType OpType `json:"opType"`
	Model  string `json:"model,omitempty"`
}

type deductResponse struct {
	TransactionID string `json:"transactionId"`
}

type refundRequest struct {
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
}

func (l *HTTPLedger) Check(ctx context.Context, userID string, op OpType, model string) (CheckResult, error) {
	var out CheckResult
	err := l.post(ctx, "/credits/check", opRequest{UserID: userID, OpType: op, Model: model}, &out)
	return out, err
}

func (l *HTTPLedger) Deduct(ctx context.Context, userID string, op OpType, model string) (string, error) {
	var out deductResponse
	if err := l.post(ctx, "/credits/deduct", opRequest{UserID: userID, OpType: op, Model: model}, &out); err != nil {
		return "", err
	}
	if out.TransactionID == "" {
		return "", fmt.Errorf("credits deduct: empty transaction id")
	}
	return out.TransactionID, nil
}

func (l *HTTPLedger) Refund(ctx context.Context, transactionID, reason string) error {
	return l.post(ctx, "/credits/refund", refundRequest{TransactionID: transactionID, Reason: reason}, nil)
}

func (l *HTTPLedger) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("credits %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("credits %s: read response: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case resp.StatusCode == http.StatusNotFound && path == "/credits/refund":
		return ErrUnknownTransaction
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("credits %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("credits %s: decode response: %w", path, err)
	}
	return nil
}
