package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"reelgate/internal/agents"
	"reelgate/internal/approval"
	"reelgate/internal/config"
	"reelgate/internal/gateway/handlers"
	"reelgate/internal/storage"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the local setup",
		Long: `Run diagnostic checks:
- configuration validity
- agents file
- record log database
- redis approval store (when configured)
- server reachability`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			results := runChecks(cmd.Context(), cliCtx)
			if !printChecks(cmd.OutOrStdout(), results) {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}
}

type checkStatus string

const (
	checkOK      checkStatus = "ok"
	checkWarning checkStatus = "warning"
	checkError   checkStatus = "error"
)

type checkResult struct {
	name    string
	status  checkStatus
	message string
}

// runChecks runs every diagnostic against cliCtx.
func runChecks(ctx context.Context, cliCtx *CLIContext) []checkResult {
	cfg := cliCtx.Config
	return []checkResult{
		checkSystemInfo(),
		checkConfig(cliCtx.ConfigPath, cfg),
		checkAgents(cfg),
		checkStorage(cfg),
		checkApprovalStore(ctx, cfg),
		checkServer(ctx, cliCtx.Client()),
	}
}

func printChecks(w io.Writer, results []checkResult) bool {
	ok := true
	for _, r := range results {
		icon := "✓"
		switch r.status {
		case checkWarning:
			icon = "!"
		case checkError:
			icon = "✗"
			ok = false
		}
		fmt.Fprintf(w, "%s %s: %s\n", icon, r.name, r.message)
	}
	return ok
}

func checkSystemInfo() checkResult {
	return checkResult{
		name:    "System",
		status:  checkOK,
		message: fmt.Sprintf("Go %s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

func checkConfig(path string, cfg *config.Config) checkResult {
	r := checkResult{name: "Config"}
	if err := cfg.Validate(); err != nil {
		r.status, r.message = checkError, err.Error()
		return r
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.status, r.message = checkWarning, fmt.Sprintf("Not found: %s (using defaults, run: reelgate init)", path)
		return r
	}
	if cfg.Capability.Secret == "" {
		r.status, r.message = checkWarning, "capability.secret not set, tokens will not survive a restart"
		return r
	}
	r.status, r.message = checkOK, path
	return r
}

func checkAgents(cfg *config.Config) checkResult {
	r := checkResult{name: "Agents"}
	if cfg.Agents.File == "" {
		r.status, r.message = checkOK, "built-in definitions"
		return r
	}
	path, err := config.ExpandPath(cfg.Agents.File)
	if err != nil {
		r.status, r.message = checkError, err.Error()
		return r
	}
	f, err := agents.LoadFile(path)
	if err != nil {
		r.status, r.message = checkError, err.Error()
		return r
	}
	r.status, r.message = checkOK, fmt.Sprintf("%d definitions, default %s", len(f.Agents), f.Default)
	return r
}

func checkStorage(cfg *config.Config) checkResult {
	r := checkResult{name: "Record log"}
	if !cfg.Storage.Enabled {
		r.status, r.message = checkWarning, "disabled, run history and approval audit are not kept"
		return r
	}
	path := cfg.Storage.Path
	if path == "" {
		var err error
		if path, err = config.DefaultDataPath(); err != nil {
			r.status, r.message = checkError, err.Error()
			return r
		}
	}
	db, err := storage.Open(path)
	if err != nil {
		r.status, r.message = checkError, err.Error()
		return r
	}
	defer db.Close()

	r.status, r.message = checkOK, db.Path()
	if info, err := os.Stat(db.Path()); err == nil {
		r.message = fmt.Sprintf("%s (%.2f MB)", db.Path(), float64(info.Size())/1024/1024)
	}
	return r
}

func checkApprovalStore(ctx context.Context, cfg *config.Config) checkResult {
	r := checkResult{name: "Approval store"}
	if cfg.Approval.Backend != "redis" {
		r.status, r.message = checkOK, cfg.Approval.Backend
		return r
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := approval.NewRedisStore(ctx, approval.RedisOptions{
		Addr:     cfg.Approval.Redis.Addr,
		Password: cfg.Approval.Redis.Password,
		DB:       cfg.Approval.Redis.DB,
		Prefix:   cfg.Approval.Redis.Prefix,
	})
	if err != nil {
		r.status, r.message = checkError, err.Error()
		return r
	}
	defer store.Close()

	n, err := store.Count(ctx)
	if err != nil {
		r.status, r.message = checkError, err.Error()
		return r
	}
	r.status, r.message = checkOK, fmt.Sprintf("redis %s (%d pending)", cfg.Approval.Redis.Addr, n)
	return r
}

func checkServer(ctx context.Context, client *APIClient) checkResult {
	r := checkResult{name: "Server"}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var health handlers.HealthResponse
	if err := client.Get(ctx, "/api/v1/health", &health); err != nil {
		r.status, r.message = checkWarning, fmt.Sprintf("Not reachable at %s. Start with: reelgate serve", client.baseURL)
		return r
	}

	r.status = checkOK
	if health.Status != "ok" {
		r.status = checkWarning
	}
	r.message = fmt.Sprintf("%s at %s (version %s)", health.Status, client.baseURL, health.Version)
	for name, c := range health.Components {
		if c.Status != "ok" {
			r.message += fmt.Sprintf(", %s: %s", name, c.Message)
		}
	}
	return r
}
