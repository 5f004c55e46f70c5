// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	v1 "reelgate/api/v1"
	"reelgate/internal/config"
	"reelgate/internal/gateway/handlers"
	"reelgate/internal/gateway/middleware"
	"reelgate/internal/gateway/websocket"
	"reelgate/pkg/logger"
)

const shutdownGrace = 5 * time.Second

// Options wires the gateway to the rest of the process. Only API is
// required.
type Options struct {
	API *v1.RouterDeps

	// Auth verifies bearer tokens. Nil disables authentication.
	Auth middleware.TokenVerifier

	// Metrics serves /metrics and Observer records per-route request
	// counts. Either may be nil.
	Metrics  http.Handler
	Observer middleware.HTTPObserver
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *websocket.Hub
	addr       string
}

// NewServer creates a new gateway server.
func NewServer(cfg config.GatewayConfig, hub *websocket.Hub, opts Options) *Server {
	router := mux.NewRouter()
	if opts.Observer != nil {
		router.Use(middleware.Metrics(opts.Observer))
	}

	v1.NewRouter(opts.API).RegisterRoutes(router)

	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(hub, w, r)
	}).Methods(http.MethodGet)

	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "no such route")
	})

	var handler http.Handler = router
	if opts.Auth != nil {
		handler = middleware.Auth(opts.Auth, "/api/v1/health", "/metrics")(handler)
	}

	// Recovery -> Logging -> CORS -> Auth -> router
	handler = middleware.Recovery(
		middleware.Logging(
			middleware.CORS(handler),
		),
	)

	return &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      0, // runs stream for as long as approvals take
			IdleTimeout:       120 * time.Second,
		},
		router: router,
		hub:    hub,
		addr:   cfg.Addr(),
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()
	go s.hub.Run()

	log := logger.Component("gateway")
	log.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes notification sockets and waits
// for in-flight requests. Open run streams are cut; their runs continue.
func (s *Server) Shutdown(ctx context.Context) error {
	log := logger.Component("gateway")
	log.Info().Msg("Shutting down gateway server")

	s.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return s.httpServer.Close()
		}
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
