// Package config loads server configuration in layers: built-in defaults, an
// optional YAML file, then STOCKROOM_* environment variables. A .env file in
// the working directory is read first when present.
//
// Nested keys use a double underscore in the environment:
//
//	STOCKROOM_STORAGE__DRIVER=mysql
//	STOCKROOM_STORAGE__DSN=root:root@tcp(localhost:3306)/stockroom?parseTime=true
//	STOCKROOM_REDIS__ENABLED=true
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix        = "STOCKROOM_"
	ConfigPathEnvVar = "STOCKROOM_CONFIG"

	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	Storage   StorageConfig   `koanf:"storage"`
	Redis     RedisConfig     `koanf:"redis"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	History   HistoryConfig   `koanf:"history"`
	Scan      ScanConfig      `koanf:"scan"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	// APIToken gates the dashboard and manual ledger routes when set.
	APIToken string `koanf:"api_token"`
}

type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

type StorageConfig struct {
	Driver          string        `koanf:"driver"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	Migrate         bool          `koanf:"migrate"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

type BroadcastConfig struct {
	QueueSize        int `koanf:"queue_size"`
	Workers          int `koanf:"workers"`
	SubscriberBuffer int `koanf:"subscriber_buffer"`
}

type HistoryConfig struct {
	Lookback  time.Duration `koanf:"lookback"`
	MinGap    time.Duration `koanf:"min_gap"`
	MaxPoints int           `koanf:"max_points"`
	ScanLimit int           `koanf:"scan_limit"`
}

type ScanConfig struct {
	DefaultLabel  string `koanf:"default_label"`
	UnknownLabel  string `koanf:"unknown_label"`
	MaxImageBytes int64  `koanf:"max_image_bytes"`
	MaxPixels     int    `koanf:"max_pixels"`
}

type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		GRPC: GRPCConfig{Addr: ":50051"},
		Storage: StorageConfig{
			Driver:          DriverMySQL,
			DSN:             "root:root@tcp(localhost:3306)/stockroom?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		Broadcast: BroadcastConfig{
			QueueSize:        1024,
			Workers:          2,
			SubscriberBuffer: 64,
		},
		History: HistoryConfig{
			Lookback:  24 * time.Hour,
			MinGap:    time.Hour,
			MaxPoints: 10,
			ScanLimit: 10000,
		},
		Scan: ScanConfig{
			DefaultLabel:  "QR Item",
			UnknownLabel:  "Unknown Product",
			MaxImageBytes: 5 << 20,
			MaxPixels:     40_000_000,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 120,
			Window:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional file named by
// STOCKROOM_CONFIG, and the environment, in that order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// comma separated lists arrive from the environment as one string
	if raw, ok := k.Get("server.cors_origins").(string); ok {
		if err := k.Set("server.cors_origins", splitList(raw)); err != nil {
			return nil, fmt.Errorf("parse server.cors_origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envTransform maps STOCKROOM_STORAGE__MAX_OPEN_CONNS to storage.max_open_conns.
// The config path variable itself is skipped.
func envTransform(s string) string {
	if s == ConfigPathEnvVar {
		return ""
	}
	key := strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Storage.Driver {
	case DriverMySQL:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the mysql driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Broadcast.QueueSize <= 0 || c.Broadcast.Workers <= 0 || c.Broadcast.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("broadcast queue_size, workers and subscriber_buffer must be positive"))
	}
	if c.History.MinGap < 0 || c.History.MaxPoints <= 0 || c.History.Lookback <= 0 || c.History.ScanLimit <= 0 {
		errs = append(errs, errors.New("history lookback, max_points and scan_limit must be positive and min_gap non-negative"))
	}
	if c.Scan.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("scan.max_image_bytes must be positive"))
	}
	if c.Scan.MaxPixels <= 0 {
		errs = append(errs, errors.New("scan.max_pixels must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit requests and window must be positive when enabled"))
	}

	return errors.Join(errs...)
}
