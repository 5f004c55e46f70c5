package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Approval   ApprovalConfig   `mapstructure:"approval" yaml:"approval"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch"`
	Provider   ProviderConfig   `mapstructure:"provider" yaml:"provider"`
	Studio     StudioConfig     `mapstructure:"studio" yaml:"studio"`
	Capability CapabilityConfig `mapstructure:"capability" yaml:"capability"`
	Credits    CreditsConfig    `mapstructure:"credits" yaml:"credits"`
	Agents     AgentsConfig     `mapstructure:"agents" yaml:"agents"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Host string     `mapstructure:"host" yaml:"host"`
	Port int        `mapstructure:"port" yaml:"port"`
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// AuthConfig configures bearer token verification on inbound requests.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// EngineConfig configures the run engine.
type EngineConfig struct {
	MaxIterations   int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout" yaml:"approval_timeout"` // 0 waits indefinitely
	RunRetention    time.Duration `mapstructure:"run_retention" yaml:"run_retention"`       // finished run status kept in memory
}

// ApprovalConfig configures the approval store and its maintenance sweep.
type ApprovalConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"` // memory, redis
	MaxAge        time.Duration `mapstructure:"max_age" yaml:"max_age"`
	SweepSchedule string        `mapstructure:"sweep_schedule" yaml:"sweep_schedule"` // cron spec with seconds, empty disables
	Redis         RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configures the redis approval backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// BatchConfig configures the parallel segment executor.
type BatchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"` // 0 = unbounded
}

// ProviderConfig configures the OpenAI-compatible reasoning model endpoint.
type ProviderConfig struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	Model     string        `mapstructure:"model" yaml:"model"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StudioConfig configures the internal generation endpoints.
type StudioConfig struct {
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// CapabilityConfig configures per-run capability tokens.
type CapabilityConfig struct {
	Secret string        `mapstructure:"secret" yaml:"secret"`
	Issuer string        `mapstructure:"issuer" yaml:"issuer"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// CreditsConfig configures the credit ledger.
type CreditsConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AgentsConfig configures specialist definitions.
type AgentsConfig struct {
	File  string `mapstructure:"file" yaml:"file"` // empty uses built-in definitions
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// StorageConfig configures the sqlite record log.
type StorageConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Path      string        `mapstructure:"path" yaml:"path"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"` // 0 keeps run events forever
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port)
	}
	if c.Gateway.Auth.Enabled && c.Gateway.Auth.JWTSecret == "" {
		return errors.New("gateway.auth.jwt_secret is required when auth is enabled")
	}
	switch c.Approval.Backend {
	case "memory":
	case "redis":
		if c.Approval.Redis.Addr == "" {
			return errors.New("approval.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown approval.backend: %q", c.Approval.Backend)
	}
	if c.Approval.MaxAge <= 0 {
		return errors.New("approval.max_age must be positive")
	}
	if c.Engine.MaxIterations <= 0 {
		return errors.New("engine.max_iterations must be positive")
	}
	if c.Batch.MaxConcurrency < 0 {
		return errors.New("batch.max_concurrency must not be negative")
	}
	if c.Credits.Enabled && c.Credits.Endpoint == "" {
		return errors.New("credits.endpoint is required when credits are enabled")
	}
	return nil
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads configuration. Precedence: ENV > config file > defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("REELGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, err
			}
			if _, statErr := os.Stat(expandedPath); statErr == nil {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path returns the config file path used by the last Load.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600: the file carries signing secrets
	return os.WriteFile(path, data, 0600)
}

// Reset clears global state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
