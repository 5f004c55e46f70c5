package config

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults used by SetDefaults and by callers that build a Config by hand.
const (
	DefaultPort           = 8088
	DefaultHost           = "127.0.0.1"
	DefaultMaxIterations  = 12
	DefaultApprovalMaxAge = 24 * time.Hour
	DefaultSweepSchedule  = "0 */15 * * * *"
)

// SetDefaults registers default values for every configuration key.
func SetDefaults() {
	viper.SetDefault("gateway.host", DefaultHost)
	viper.SetDefault("gateway.port", DefaultPort)
	viper.SetDefault("gateway.auth.enabled", false)
	viper.SetDefault("gateway.auth.jwt_secret", "")

	viper.SetDefault("engine.max_iterations", DefaultMaxIterations)
	viper.SetDefault("engine.temperature", 0.4)
	viper.SetDefault("engine.approval_timeout", time.Duration(0))
	viper.SetDefault("engine.run_retention", 6*time.Hour)

	viper.SetDefault("approval.backend", "memory")
	viper.SetDefault("approval.max_age", DefaultApprovalMaxAge)
	viper.SetDefault("approval.sweep_schedule", DefaultSweepSchedule)
	viper.SetDefault("approval.redis.addr", "")
	viper.SetDefault("approval.redis.db", 0)
	viper.SetDefault("approval.redis.prefix", "reelgate")

	viper.SetDefault("batch.max_concurrency", 0)

	viper.SetDefault("provider.endpoint", "http://localhost:8000")
	viper.SetDefault("provider.model", "")
	viper.SetDefault("provider.max_tokens", 4096)
	viper.SetDefault("provider.timeout", 2*time.Minute)

	viper.SetDefault("studio.endpoint", "http://localhost:3000")
	viper.SetDefault("studio.timeout", 5*time.Minute)
	viper.SetDefault("studio.max_attempts", 3)
	viper.SetDefault("studio.initial_delay", 500*time.Millisecond)
	viper.SetDefault("studio.max_delay", 10*time.Second)

	viper.SetDefault("capability.secret", "")
	viper.SetDefault("capability.issuer", "reelgate")
	viper.SetDefault("capability.ttl", time.Hour)

	viper.SetDefault("credits.enabled", false)
	viper.SetDefault("credits.endpoint", "")
	viper.SetDefault("credits.timeout", 10*time.Second)

	viper.SetDefault("agents.file", "")
	viper.SetDefault("agents.watch", true)

	viper.SetDefault("storage.enabled", true)
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.retention", 30*24*time.Hour)

	viper.SetDefault("metrics.enabled", true)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("log.file", "")
}
