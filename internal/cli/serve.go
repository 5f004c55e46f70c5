package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelgate/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reelgate gateway server",
		Long: `Start the reelgate gateway server.

The server provides:
- the run API with streamed progress (SSE and WebSocket)
- approval endpoints and a notification socket at /ws
- prometheus metrics at /metrics
- scheduled maintenance (approval sweep, run pruning)`,
		Example: `  # Start server with default configuration
  reelgate serve

  # Start server on another port
  reelgate serve --port 9090`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}

	log.Info().Msg("Starting reelgate server...")

	srv, err := server.NewServer(server.ServerConfig{
		Config:  cfg,
		Version: Version,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		_ = srv.Stop(context.Background())
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case <-sigCh:
		log.Info().Msg("Shutting down server...")
	case serveErr = <-srv.ErrorChan():
		log.Error().Err(serveErr).Msg("Server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
