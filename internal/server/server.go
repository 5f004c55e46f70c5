// Package server assembles the reelgate process: storage, approvals, the run
// engine, maintenance jobs and the HTTP gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	v1 "reelgate/api/v1"
	"reelgate/internal/agents"
	"reelgate/internal/approval"
	"reelgate/internal/batch"
	"reelgate/internal/capability"
	"reelgate/internal/config"
	"reelgate/internal/credits"
	"reelgate/internal/cron"
	"reelgate/internal/engine"
	"reelgate/internal/gateway"
	"reelgate/internal/gateway/handlers"
	"reelgate/internal/gateway/websocket"
	"reelgate/internal/metrics"
	"reelgate/internal/provider/openai"
	"reelgate/internal/storage"
	"reelgate/internal/studio"
	"reelgate/internal/tools"
	"reelgate/internal/tools/builtin"
	"reelgate/pkg/logger"
)

// Maintenance schedules (cron with seconds).
const (
	runPruneSchedule    = "0 */10 * * * *"
	runLogPruneSchedule = "0 30 * * * *"
)

// GatewayIssuer returns the issuer that signs and verifies gateway bearer
// tokens. It is separate from the per-run capability issuer.
func GatewayIssuer(cfg *config.Config, ttl time.Duration) (*capability.Issuer, error) {
	return capability.NewIssuer(cfg.Gateway.Auth.JWTSecret, cfg.Capability.Issuer+"-gateway", ttl)
}

// ServerConfig holds configuration for the server.
type ServerConfig struct {
	Config        *config.Config
	Version       string
	OnStateChange func(bool)
}

// Server is the assembled reelgate process.
type Server struct {
	cfg     *config.Config
	version string
	logger  zerolog.Logger

	gatewayServer *gateway.Server
	hub           *websocket.Hub
	engine        *engine.Engine
	approvals     *approval.Manager
	scheduler     *cron.Scheduler
	watcher       *agents.Watcher
	db            *storage.DB
	redis         *approval.RedisStore

	releaseOnce sync.Once

	mu            sync.RWMutex
	running       bool
	startedAt     time.Time
	errChan       chan error
	onStateChange func(bool)
}

// NewServer builds every component. Nothing listens until Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:           cfg.Config,
		version:       cfg.Version,
		logger:        logger.Component("server"),
		errChan:       make(chan error, 1),
		onStateChange: cfg.OnStateChange,
	}
	if err := s.build(); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

func (s *Server) build() error {
	cfg := s.cfg

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	s.hub = websocket.NewHub()

	// Record log
	if cfg.Storage.Enabled {
		path := cfg.Storage.Path
		if path == "" {
			var err error
			if path, err = config.DefaultDataPath(); err != nil {
				return err
			}
		}
		db, err := storage.Open(path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		s.db = db
		s.logger.Info().Str("path", db.Path()).Msg("Record log opened")
	}

	// Approvals
	managerCfg := approval.ManagerConfig{
		Notifier:    approval.NewBroadcastNotifier(s.hub),
		WaitTimeout: cfg.Engine.ApprovalTimeout,
	}
	if cfg.Approval.Backend == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := approval.NewRedisStore(ctx, approval.RedisOptions{
			Addr:     cfg.Approval.Redis.Addr,
			Password: cfg.Approval.Redis.Password,
			DB:       cfg.Approval.Redis.DB,
			Prefix:   cfg.Approval.Redis.Prefix,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect approval store: %w", err)
		}
		s.redis = store
		managerCfg.Store = store
	}
	if s.db != nil {
		managerCfg.Auditor = s.db
	}
	if m != nil {
		managerCfg.Recorder = m
	}
	s.approvals = approval.NewManager(managerCfg)
	s.hub.SetApprovalHandler(func(ctx context.Context, id string, approved bool, extraArgs map[string]any) error {
		_, err := s.approvals.Decide(ctx, id, approved, extraArgs)
		return err
	})

	// Tools
	studioClient := studio.New(studio.Config{
		Endpoint: cfg.Studio.Endpoint,
		Timeout:  cfg.Studio.Timeout,
		Retry:    studio.NewRetryPolicy(cfg.Studio.MaxAttempts, cfg.Studio.InitialDelay, cfg.Studio.MaxDelay),
	})
	batchOpts := []batch.Option{batch.WithMaxConcurrency(cfg.Batch.MaxConcurrency)}
	if m != nil {
		batchOpts = append(batchOpts, batch.WithRecorder(m))
	}
	toolDeps := builtin.Deps{
		Studio: studioClient,
		Batch:  batch.NewExecutor(studioClient, studioClient, batchOpts...),
	}
	if cfg.Credits.Enabled {
		toolDeps.Ledger = credits.NewHTTPLedger(cfg.Credits.Endpoint, cfg.Credits.Timeout)
	}

	// Specialists
	catalog, err := s.loadCatalog()
	if err != nil {
		return err
	}

	// Capability tokens
	secret := cfg.Capability.Secret
	if secret == "" {
		if secret, err = capability.RandomSecret(); err != nil {
			return err
		}
		s.logger.Warn().Msg("capability.secret not set, using a process-local secret")
	}
	issuer, err := capability.NewIssuer(secret, cfg.Capability.Issuer, cfg.Capability.TTL)
	if err != nil {
		return fmt.Errorf("capability issuer: %w", err)
	}

	deps := engine.Deps{
		Provider: openai.New(openai.Config{
			APIKey:    cfg.Provider.APIKey,
			Endpoint:  cfg.Provider.Endpoint,
			Model:     cfg.Provider.Model,
			MaxTokens: cfg.Provider.MaxTokens,
			Timeout:   cfg.Provider.Timeout,
		}),
		Catalog:   catalog,
		Approvals: s.approvals,
		Issuer:    issuer,
		Tools: func(token string) *tools.Registry {
			return builtin.Build(token, toolDeps)
		},
	}
	if s.db != nil {
		deps.Journal = s.db
	}
	if m != nil {
		deps.Recorder = m
	}
	engineCfg := engine.DefaultConfig().
		WithMaxIterations(cfg.Engine.MaxIterations).
		WithTemperature(cfg.Engine.Temperature).
		WithModel(cfg.Provider.Model)
	engineCfg.MaxTokens = cfg.Provider.MaxTokens
	s.engine, err = engine.New(deps, engineCfg)
	if err != nil {
		return err
	}

	// Maintenance
	s.scheduler = cron.NewScheduler(cron.SchedulerConfig{})
	if err := s.addJobs(); err != nil {
		return err
	}

	// Gateway
	routerDeps := &v1.RouterDeps{
		Engine:         s.engine,
		Approvals:      s.approvals,
		Catalog:        catalog,
		Scheduler:      s.scheduler,
		ApprovalMaxAge: cfg.Approval.MaxAge,
		Version:        s.version,
		Health:         s.healthChecks(),
	}
	if s.db != nil {
		routerDeps.RunLog = s.db
	}

	opts := gateway.Options{API: routerDeps}
	if m != nil {
		opts.Metrics = m.Handler()
		opts.Observer = m
	}
	if cfg.Gateway.Auth.Enabled {
		verifier, err := GatewayIssuer(cfg, 0)
		if err != nil {
			return fmt.Errorf("gateway auth: %w", err)
		}
		opts.Auth = verifier
	}
	s.gatewayServer = gateway.NewServer(cfg.Gateway, s.hub, opts)
	return nil
}

func (s *Server) loadCatalog() (*agents.Catalog, error) {
	path := s.cfg.Agents.File
	if path == "" {
		return agents.DefaultCatalog(), nil
	}
	path, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}

	f, err := agents.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	catalog := agents.NewCatalog(f)
	s.logger.Info().Str("path", path).Int("agents", len(catalog.List())).Msg("Agents loaded")

	if !s.cfg.Agents.Watch {
		return catalog, nil
	}

	w, err := agents.NewWatcher(catalog, path)
	if err != nil {
		return nil, fmt.Errorf("watch agents: %w", err)
	}
	w.OnReload(func(err error) {
		if err != nil {
			return
		}
		payload := v1.AgentsListResponse{Default: catalog.Default(), Agents: catalog.List()}
		if err := s.hub.BroadcastAll(websocket.TypeAgentsReloaded, payload); err != nil {
			s.logger.Debug().Err(err).Msg("agents reload not broadcast")
		}
	})
	if err := w.Start(); err != nil {
		w.Stop()
		return nil, fmt.Errorf("watch agents: %w", err)
	}
	s.watcher = w
	return catalog, nil
}

func (s *Server) addJobs() error {
	cfg := s.cfg
	jobs := []cron.Job{}
	if cfg.Approval.SweepSchedule != "" {
		jobs = append(jobs, cron.ApprovalSweepJob(cfg.Approval.SweepSchedule, s.approvals, cfg.Approval.MaxAge))
	}
	if cfg.Engine.RunRetention > 0 {
		jobs = append(jobs, cron.RunPruneJob(runPruneSchedule, s.engine, cfg.Engine.RunRetention))
	}
	if s.db != nil && cfg.Storage.Retention > 0 {
		jobs = append(jobs, cron.RunLogPruneJob(runLogPruneSchedule, s.db, cfg.Storage.Retention))
	}
	for _, job := range jobs {
		if err := s.scheduler.AddJob(job); err != nil {
			return fmt.Errorf("add job %s: %w", job.Name, err)
		}
	}
	return nil
}

func (s *Server) healthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	if s.db != nil {
		checks["storage"] = func(ctx context.Context) error {
			return s.db.PingContext(ctx)
		}
	}
	if s.redis != nil {
		checks["approvals"] = s.redis.Ping
	}
	return checks
}

// Handler returns the gateway handler without listening.
func (s *Server) Handler() http.Handler {
	return s.gatewayServer.Handler()
}

// Engine returns the run engine.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// ErrorChan returns the error channel for monitoring server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Start starts the maintenance jobs and begins serving on the configured
// address. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Gateway.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Gateway.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := s.scheduler.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to start maintenance jobs")
	}

	go func() {
		if err := s.gatewayServer.Serve(ln); err != nil {
			s.logger.Error().Err(err).Msg("Server error")
			s.errChan <- err
		}
		s.setRunning(false)
	}()

	if s.onStateChange != nil {
		s.onStateChange(true)
	}
	s.logger.Info().
		Str("address", "http://"+ln.Addr().String()).
		Msg("reelgate server started")
	return nil
}

func (s *Server) setRunning(running bool) {
	s.mu.Lock()
	changed := s.running != running
	s.running = running
	s.mu.Unlock()

	if changed && s.onStateChange != nil {
		s.onStateChange(running)
	}
}

// Stop shuts the gateway down and releases every resource. Runs still
// suspended on an approval are resumed as expired.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping server...")

	var errs []error
	if s.gatewayServer != nil {
		if err := s.gatewayServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.release()
	s.setRunning(false)

	s.logger.Info().Msg("Server stopped")
	return errors.Join(errs...)
}

func (s *Server) release() {
	s.releaseOnce.Do(s.releaseResources)
}

func (s *Server) releaseResources() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.approvals != nil {
		s.approvals.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close approval store")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// StartedAt returns when the server started.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}
