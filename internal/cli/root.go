// Package cli implements the reelgate command line.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"reelgate/internal/config"
	"reelgate/pkg/logger"
)

// GlobalFlags are accepted by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
	ServerURL  string
	Token      string
}

var globalFlags GlobalFlags

type contextKey struct{}

// commands that run without loading configuration
var skipInit = map[string]bool{
	"version": true,
	"help":    true,
	"init":    true,
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reelgate",
		Short: "reelgate - approval-gated agent runs for video production",
		Long: `reelgate runs specialist agents that plan and produce short videos.
Tool calls that spend money (image and video generation) pause the run
until a user approves, rejects or edits them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit[cmd.Name()] {
				return nil
			}

			configPath := globalFlags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logLevel := cfg.Log.Level
			if globalFlags.Verbose {
				logLevel = "debug"
			}
			if globalFlags.Quiet {
				logLevel = "error"
			}

			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			}); err != nil {
				return err
			}

			token := globalFlags.Token
			if token == "" {
				token = os.Getenv("REELGATE_TOKEN")
			}

			cliCtx := NewCLIContext(cfg, configPath, logger.Get(), globalFlags.ServerURL, token, globalFlags.Verbose, globalFlags.Quiet)
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalFlags.ConfigPath, "config", "c", "", "config file path")
	flags.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "quiet mode")
	flags.StringVar(&globalFlags.ServerURL, "url", "", "server URL (default from gateway config)")
	flags.StringVar(&globalFlags.Token, "token", "", "gateway bearer token (default $REELGATE_TOKEN)")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewDoctorCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewRunsCmd())
	rootCmd.AddCommand(NewApprovalsCmd())
	rootCmd.AddCommand(NewAgentsCmd())
	rootCmd.AddCommand(NewJobsCmd())
	rootCmd.AddCommand(NewTokenCmd())

	return rootCmd
}

// GetCLIContext returns the context stored by the root pre-run.
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, ok := ctx.Value(contextKey{}).(*CLIContext)
	if !ok {
		return nil
	}
	return cliCtx
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
