package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"reelgate/internal/agents"
	"reelgate/internal/capability"
	"reelgate/internal/config"
	"reelgate/internal/storage"
)

// InitOptions are the init command options.
type InitOptions struct {
	Dir   string
	Force bool
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize reelgate configuration",
		Long: `Create the configuration directory with a config file, an editable
agents file and the record log database. Signing secrets are generated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Dir == "" && globalFlags.ConfigPath != "" {
				opts.Dir = filepath.Dir(globalFlags.ConfigPath)
			}
			return RunInit(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "configuration directory (default ~/.reelgate)")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit writes config.yaml, agents.yaml and data.db into opts.Dir.
func RunInit(opts *InitOptions, out io.Writer) error {
	dir := opts.Dir
	if dir == "" {
		var err error
		if dir, err = config.DefaultConfigDir(); err != nil {
			return fmt.Errorf("get config dir: %w", err)
		}
	}
	dir, err := config.ExpandPath(dir)
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// Defaults plus any REELGATE_ environment overrides.
	config.Reset()
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	defer config.Reset()

	agentsPath := filepath.Join(dir, "agents.yaml")
	data, err := yaml.Marshal(agents.DefaultFile())
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}
	if err := os.WriteFile(agentsPath, data, 0644); err != nil {
		return fmt.Errorf("write agents: %w", err)
	}

	if cfg.Capability.Secret, err = capability.RandomSecret(); err != nil {
		return err
	}
	if cfg.Gateway.Auth.JWTSecret, err = capability.RandomSecret(); err != nil {
		return err
	}
	cfg.Agents.File = agentsPath
	cfg.Storage.Path = filepath.Join(dir, "data.db")
	cfg.Log.File = filepath.Join(dir, "logs", "reelgate.log")

	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	db.Close()

	fmt.Fprintf(out, "Initialized reelgate at %s\n", dir)
	fmt.Fprintf(out, "  Config:   %s\n", configPath)
	fmt.Fprintf(out, "  Agents:   %s\n", agentsPath)
	fmt.Fprintf(out, "  Database: %s\n", cfg.Storage.Path)
	return nil
}
