package studio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestGenerateImage_SendsTokenAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/images", r.URL.Path)
		assert.Equal(t, "Bearer cap-token", r.Header.Get("Authorization"))

		var req ImageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "seg-2", req.SegmentID)

		_, _ = w.Write([]byte(`{"imageUrl":"https://cdn/seg-2.png"}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL + "/", Retry: fastRetry(1)})
	out, err := c.GenerateImage(context.Background(), "cap-token", ImageRequest{ProjectID: "p1", SegmentID: "seg-2", Prompt: "foam"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/seg-2.png", out["imageUrl"])
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"summary":"ok"}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Retry: fastRetry(3)})
	out, err := c.Research(context.Background(), "t", ResearchRequest{Query: "face wash"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out["summary"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Retry: fastRetry(2)})
	_, err := c.Concept(context.Background(), "t", ConceptRequest{Brief: "b"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"prompt too long"}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Retry: fastRetry(5)})
	_, err := c.GenerateVideo(context.Background(), "t", VideoRequest{SegmentID: "s"})
	require.Error(t, err)

	var se *StudioError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "prompt too long", se.Message)
	assert.False(t, se.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/internal/projects/p1/segments", r.URL.Path)
		_, _ = w.Write([]byte(`{"segments":[{"id":"s1","index":0,"prompt":"a"},{"id":"s2","index":1,"prompt":"b"}]}`))
	}))
	defer srv.Close()

	segs, err := New(Config{Endpoint: srv.URL}).Segments(context.Background(), "t", "p1")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "s2", segs[1].ID)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{Endpoint: srv.URL, Retry: RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour}})
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.SegmentScript(ctx, "t", SegmentRequest{ProjectID: "p"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy(t *testing.T) {
	p := NewRetryPolicy(3, 100*time.Millisecond, 300*time.Millisecond)

	assert.Equal(t, 100*time.Millisecond, p.NextDelay(0))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 300*time.Millisecond, p.NextDelay(2))

	transient := &StudioError{Path: "/x", Status: 503, Transient: true}
	assert.True(t, p.ShouldRetry(1, transient))
	assert.False(t, p.ShouldRetry(3, transient))
	assert.False(t, p.ShouldRetry(1, &StudioError{Status: 400}))
	assert.False(t, p.ShouldRetry(1, nil))
	assert.False(t, p.ShouldRetry(1, context.Canceled))
}

func TestStudioError_Error(t *testing.T) {
	assert.Equal(t, "studio /internal/images: status 503: busy", (&StudioError{Path: "/internal/images", Status: 503, Message: "busy"}).Error())
	assert.Equal(t, "studio /internal/images: dial tcp", (&StudioError{Path: "/internal/images", Message: "dial tcp"}).Error())
}
