package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/empresamix/mixbi/internal/logging"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Cube     CubeConfig     `mapstructure:"cube"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  logging.Config `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CubeConfig describes the upstream cube service.
type CubeConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Client  string        `mapstructure:"client"`
	APIID   string        `mapstructure:"api_id"`
	Timeout time.Duration `mapstructure:"timeout"`
	Views   ViewsConfig   `mapstructure:"views"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// ViewsConfig names the cube views each dataset is read from.
type ViewsConfig struct {
	Invoices string `mapstructure:"invoices"`
	Budgets  string `mapstructure:"budgets"`
	Orders   string `mapstructure:"orders"`
}

type RetryConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	ConflictDelay      time.Duration `mapstructure:"conflict_delay"`
	ConflictSignatures []string      `mapstructure:"conflict_signatures"`
	RemediationPath    string        `mapstructure:"remediation_path"`
}

type BreakerConfig struct {
	Failures uint32        `mapstructure:"failures"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects and tunes the CacheStore backend.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Size    int           `mapstructure:"size"`
	Dir     string        `mapstructure:"dir"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`

	// FetchLogRetention bounds how long fetch log entries are kept.
	FetchLogRetention time.Duration `mapstructure:"fetch_log_retention"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Cache backends understood by the server.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// Load reads configuration from defaults, an optional config file, a .env
// file and the environment, in increasing priority. An empty path searches
// for config.yaml in the working directory and ./config.
func Load(path string) (*Config, error) {
	// .env is optional; the process environment always wins over it.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MIXBI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")

	v.SetDefault("cube.base_url", "http://tecnolife.empresamix.info:8077")
	v.SetDefault("cube.client", "TECNOLIFE")
	v.SetDefault("cube.api_id", "XIOPMANA")
	v.SetDefault("cube.timeout", "30s")
	v.SetDefault("cube.views.invoices", "CUBO_FATURAMENTO")
	v.SetDefault("cube.views.budgets", "CUBO_ORCAMENTO")
	v.SetDefault("cube.views.orders", "CUBO_OS")
	v.SetDefault("cube.retry.max_attempts", 3)
	v.SetDefault("cube.retry.base_delay", "2s")
	v.SetDefault("cube.retry.conflict_delay", "10s")
	v.SetDefault("cube.retry.conflict_signatures", []string{"Deadlock", "deadlock victim", "Lock wait timeout"})
	v.SetDefault("cube.retry.remediation_path", "/POWERBI/CLEAR/")
	v.SetDefault("cube.breaker.failures", 5)
	v.SetDefault("cube.breaker.timeout", "1m")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("cache.size", 64)
	v.SetDefault("cache.dir", ".cache")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "mixbi:")

	v.SetDefault("database.path", "mixbi.db")
	v.SetDefault("database.fetch_log_retention", "720h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.development", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "mixbi")
}

// bindLegacyEnv keeps the variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string][]string{
		"cube.base_url": {"MIXBI_CUBE_BASE_URL", "API_BASE_URL"},
		"cube.client":   {"MIXBI_CUBE_CLIENT", "VITE_API_CLIENTE"},
		"cube.api_id":   {"MIXBI_CUBE_API_ID", "VITE_API_ID"},
		"cache.dir":     {"MIXBI_CACHE_DIR", "CACHE_DIR"},
		"server.port":   {"MIXBI_SERVER_PORT", "PORT"},
		"database.path": {"MIXBI_DATABASE_PATH", "DB_PATH"},
	}
	for key, envs := range legacy {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Cube.BaseURL == "" {
		return errors.New("cube.base_url is required")
	}
	if c.Cube.Retry.MaxAttempts < 1 {
		return fmt.Errorf("cube.retry.max_attempts must be >= 1, got %d", c.Cube.Retry.MaxAttempts)
	}
	if c.Cube.Timeout <= 0 {
		return fmt.Errorf("cube.timeout must be positive, got %s", c.Cube.Timeout)
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis, BackendBadger, BackendNone:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend != BackendNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	return nil
}
