package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ARTSALE"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Lock   LockConfig   `mapstructure:"lock"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Backend string       `mapstructure:"backend"` // memory, remote, sqlite
	Remote  RemoteConfig `mapstructure:"remote"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

type RemoteConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	AuthToken        string        `mapstructure:"auth_token"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerOpenFor   time.Duration `mapstructure:"breaker_open_for"`
	BreakerHalfOpenN uint32        `mapstructure:"breaker_half_open_requests"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type LockConfig struct {
	Backend    string        `mapstructure:"backend"` // local, redis
	Expiry     time.Duration `mapstructure:"expiry"`
	Tries      int           `mapstructure:"tries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LedgerConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBase         time.Duration `mapstructure:"retry_base"`
	RetryMax          time.Duration `mapstructure:"retry_max"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"` // 0 disables the reconciler
	ReconcileMinAge   time.Duration `mapstructure:"reconcile_min_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`   // used when output is file
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.remote.base_url", "")
	v.SetDefault("store.remote.auth_token", "")
	v.SetDefault("store.remote.timeout", 10*time.Second)
	v.SetDefault("store.remote.breaker_failures", 5)
	v.SetDefault("store.remote.breaker_open_for", 30*time.Second)
	v.SetDefault("store.remote.breaker_half_open_requests", 1)
	v.SetDefault("store.sqlite.path", "data/artsale.db")
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.expiry", 10*time.Second)
	v.SetDefault("lock.tries", 32)
	v.SetDefault("lock.retry_delay", 50*time.Millisecond)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ledger.max_attempts", 8)
	v.SetDefault("ledger.retry_base", 10*time.Millisecond)
	v.SetDefault("ledger.retry_max", 500*time.Millisecond)
	v.SetDefault("ledger.reconcile_interval", time.Minute)
	v.SetDefault("ledger.reconcile_min_age", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/artsale.log")
}

// Load reads configuration from defaults, an optional config.yaml and
// ARTSALE_ prefixed environment variables, in increasing precedence.
// When file is non-empty it is read instead of searching the default paths.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/artsale")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite":
	case "remote":
		if c.Store.Remote.BaseURL == "" {
			return errors.New("store.remote.base_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown lock.backend %q", c.Lock.Backend)
	}

	if c.Ledger.MaxAttempts <= 0 {
		return errors.New("ledger.max_attempts must be positive")
	}
	if c.Ledger.ReconcileInterval < 0 {
		return errors.New("ledger.reconcile_interval must not be negative")
	}
	return nil
}
