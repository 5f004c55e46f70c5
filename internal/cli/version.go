package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"reelgate/internal/agents"
	"reelgate/internal/config"
	"reelgate/internal/storage/migrations"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary and the formats it understands.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`

	APIVersion    string `json:"api_version"`
	AgentsSchema  string `json:"agents_schema"`
	DBMigrations  int    `json:"db_migrations"`
	DefaultConfig string `json:"default_config,omitempty"`
}

func currentBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:      Version,
		GitCommit:    GitCommit,
		BuildTime:    BuildTime,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		APIVersion:   "v1",
		AgentsSchema: agents.SchemaConstraint,
	}
	if n, err := migrations.Count(); err == nil {
		info.DBMigrations = n
	}
	if path, err := config.DefaultConfigPath(); err == nil {
		info.DefaultConfig = path
	}
	return info
}

func writeVersion(w io.Writer, info BuildInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	_, err := fmt.Fprintf(w, `reelgate %s (%s, built %s)
  go:            %s %s
  api:           /api/%s
  agents file:   version %s
  db schema:     %d migrations
  config:        %s
`, info.Version, info.GitCommit, info.BuildTime,
		info.GoVersion, info.Platform,
		info.APIVersion, info.AgentsSchema, info.DBMigrations, info.DefaultConfig)
	return err
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and supported formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeVersion(cmd.OutOrStdout(), currentBuildInfo(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
