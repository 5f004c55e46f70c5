package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reelgate/internal/capability"
	"reelgate/internal/config"
	"reelgate/internal/gateway/websocket"
	"reelgate/internal/metrics"
)

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{Host: "127.0.0.1", Port: 8080}
}

func TestNewServer(t *testing.T) {
	hub := websocket.NewHub()
	server := NewServer(testConfig(), hub, Options{})

	if server.Router() == nil {
		t.Fatal("router is nil")
	}
	if server.Hub() != hub {
		t.Error("hub not set correctly")
	}
	if server.addr != "127.0.0.1:8080" {
		t.Errorf("addr = %q", server.addr)
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	server := NewServer(testConfig(), websocket.NewHub(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestServerUnknownRoute(t *testing.T) {
	server := NewServer(testConfig(), websocket.NewHub(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if !strings.Contains(w.Body.String(), "NOT_FOUND") {
		t.Errorf("body = %s, want NOT_FOUND error", w.Body.String())
	}
}

func TestServerCORSPreflight(t *testing.T) {
	server := NewServer(testConfig(), websocket.NewHub(), Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestServerAuth(t *testing.T) {
	issuer, err := capability.NewIssuer("gateway-secret", "reelgate", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	server := NewServer(testConfig(), websocket.NewHub(), Options{
		Auth:     issuer,
		Metrics:  m.Handler(),
		Observer: m,
	})

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"health is open", "/api/v1/health", "", http.StatusOK},
		{"metrics is open", "/metrics", "", http.StatusOK},
		{"agents needs a token", "/api/v1/agents", "", http.StatusUnauthorized},
		{"agents with a token", "/api/v1/agents", "valid", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				token, err := issuer.Mint("user-1", "", "")
				if err != nil {
					t.Fatal(err)
				}
				req.Header.Set("Authorization", "Bearer "+token)
			}
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	server := NewServer(testConfig(), websocket.NewHub(), Options{
		Metrics:  m.Handler(),
		Observer: m,
	})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `route="/api/v1/health"`) {
		t.Error("metrics output missing health route label")
	}
}

func TestServerShutdown(t *testing.T) {
	server := NewServer(testConfig(), websocket.NewHub(), Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- server.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/api/v1/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
