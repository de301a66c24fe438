package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Subscription cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// StorageConfig selects and configures the usage store
type StorageConfig struct {
	Type string `yaml:"type"`

	// SQLite
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs string        `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`
}

// CacheConfig configures the subscription info cache in front of the store
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	LocalSize int           `yaml:"local_size"`
	LocalTTL  time.Duration `yaml:"local_ttl"`

	// Redis is optional; without it only the in-process cache is used
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RedisMaxRetries int           `yaml:"redis_max_retries"`
	RedisPoolSize   int           `yaml:"redis_pool_size"`
	RedisTTL        time.Duration `yaml:"redis_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics
	MetricsEnabled         bool   `yaml:"metrics_enabled"`
	MetricsRefreshSchedule string `yaml:"metrics_refresh_schedule"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: StorageConfig{
			Type:       StorageSQLite,
			SQLitePath: "pricebulk.db",
		},
		Cache: CacheConfig{
			Enabled:   true,
			LocalSize: 10000,
			LocalTTL:  30 * time.Second,
			RedisTTL:  15 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:               "info",
			LogFormat:              "text",
			MetricsEnabled:         true,
			MetricsRefreshSchedule: "@every 5m",
			OTelEndpoint:           "localhost:4317",
			OTelServiceName:        "pricebulk",
			OTelServiceVersion:     "1.0.0",
			OTelInsecure:           true,
			OTelSampleRatio:        1,
		},
	}
}

// LoadConfig loads configuration from, in increasing precedence: defaults, the YAML
// file named by PRICEBULK_CONFIG_FILE, a .env file (PRICEBULK_ENV_FILE, default
// ".env") and the process environment.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(getEnv("PRICEBULK_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := Default()

	if path := getEnv("PRICEBULK_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv exports the variables of an env file without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadFile overlays the YAML file onto the current values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides values with any PRICEBULK_* variables that are set
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("PRICEBULK_HOST", s.Host)
	s.Port = getEnv("PRICEBULK_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("PRICEBULK_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("PRICEBULK_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("PRICEBULK_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("PRICEBULK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("PRICEBULK_HEALTH_PORT", s.HealthPort)

	st := &c.Storage
	st.Type = strings.ToLower(getEnv("PRICEBULK_STORAGE_TYPE", st.Type))
	st.SQLitePath = getEnv("PRICEBULK_SQLITE_PATH", st.SQLitePath)
	st.PostgresURL = getEnv("PRICEBULK_POSTGRES_URL", st.PostgresURL)
	st.PostgresReplicaURLs = getEnv("PRICEBULK_POSTGRES_REPLICA_URLS", st.PostgresReplicaURLs)
	st.PostgresMaxConns = getEnvInt("PRICEBULK_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("PRICEBULK_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("PRICEBULK_POSTGRES_TIMEOUT", st.PostgresTimeout)

	ca := &c.Cache
	ca.Enabled = getEnvBool("PRICEBULK_CACHE_ENABLED", ca.Enabled)
	ca.LocalSize = getEnvInt("PRICEBULK_CACHE_LOCAL_SIZE", ca.LocalSize)
	ca.LocalTTL = getEnvDuration("PRICEBULK_CACHE_LOCAL_TTL", ca.LocalTTL)
	ca.RedisURL = getEnv("PRICEBULK_REDIS_URL", ca.RedisURL)
	ca.RedisPassword = getEnv("PRICEBULK_REDIS_PASSWORD", ca.RedisPassword)
	ca.RedisDB = getEnvInt("PRICEBULK_REDIS_DB", ca.RedisDB)
	ca.RedisMaxRetries = getEnvInt("PRICEBULK_REDIS_MAX_RETRIES", ca.RedisMaxRetries)
	ca.RedisPoolSize = getEnvInt("PRICEBULK_REDIS_POOL_SIZE", ca.RedisPoolSize)
	ca.RedisTTL = getEnvDuration("PRICEBULK_REDIS_TTL", ca.RedisTTL)

	o := &c.Observability
	o.LogLevel = getEnv("PRICEBULK_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("PRICEBULK_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("PRICEBULK_METRICS_ENABLED", o.MetricsEnabled)
	o.MetricsRefreshSchedule = getEnv("PRICEBULK_METRICS_REFRESH_SCHEDULE", o.MetricsRefreshSchedule)
	o.OTelEnabled = getEnvBool("PRICEBULK_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("PRICEBULK_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("PRICEBULK_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("PRICEBULK_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("PRICEBULK_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("PRICEBULK_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite, or postgres)", c.Storage.Type)
	}

	if c.Cache.RedisURL != "" && !c.Cache.Enabled {
		return fmt.Errorf("redis URL is set but the cache is disabled")
	}

	if c.Observability.MetricsEnabled && c.Observability.MetricsRefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Observability.MetricsRefreshSchedule); err != nil {
			return fmt.Errorf("invalid metrics refresh schedule: %w", err)
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// ReplicaURLs splits the comma separated replica list
func (s StorageConfig) ReplicaURLs() []string {
	var urls []string
	for _, u := range strings.Split(s.PostgresReplicaURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
