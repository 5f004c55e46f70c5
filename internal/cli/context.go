package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"reelgate/internal/config"
	"reelgate/pkg/logger"
)

// CLIContext carries what every command needs after the root pre-run.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	ServerURL  string
	Token      string
	Verbose    bool
	Quiet      bool
}

// NewCLIContext creates a CLI context. An empty serverURL resolves to the
// configured gateway address.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, serverURL, token string, verbose, quiet bool) *CLIContext {
	if serverURL == "" {
		host := cfg.Gateway.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		serverURL = fmt.Sprintf("http://%s:%d", host, cfg.Gateway.Port)
	}
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		ServerURL:  strings.TrimRight(serverURL, "/"),
		Token:      token,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// Client returns an API client for the configured server.
func (c *CLIContext) Client() *APIClient {
	return NewAPIClient(c.ServerURL, c.Token)
}

// Log returns the logger.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	log := logger.Get()
	return log
}
