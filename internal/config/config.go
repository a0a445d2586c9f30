// Package config provides configuration management for the telemetry service.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port               string
	AllowOrigins       []string
	RateLimitPerMinute int64
}

// ProviderConfig holds settings for the upstream session data service
type ProviderConfig struct {
	BaseURL          string        // Base URL of the data service
	SessionType      string        // Session identifier, "R" for race
	LoadTimeout      time.Duration // Hard limit for loading one session
	MaxRetries       uint64        // Retries for transient session load failures
	RetryInterval    time.Duration // Initial backoff interval
	TelemetryTimeout time.Duration // Hard limit for fetching one lap's telemetry
	TelemetryRetries uint64        // Retries for transient lap telemetry failures
}

// CacheConfig selects where raw upstream responses are cached
type CacheConfig struct {
	Backend string // "disk", "postgres" or "none"
	Dir     string // Directory for the disk backend
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                   string
	Host                  string
	Port                  string
	Name                  string
	User                  string
	Password              string
	SSLMode               string
	MaxConnections        int
	MinConnections        int
	ConnectionMaxLifetime time.Duration
}

// TelemetryConfig holds settings for replay telemetry
type TelemetryConfig struct {
	SampleRateHz float64
	BuildTimeout time.Duration // Hard limit for assembling one chunk or overview
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // zap level name
	Format string // "json" or "console"
}

// Configuration keys. Environment variables are the upper-cased key with
// dashes replaced by underscores, e.g. data-service-url -> DATA_SERVICE_URL.
const (
	KeyPort              = "port"
	KeyAllowOrigins      = "cors-allow-origins"
	KeyRateLimit         = "rate-limit-per-minute"
	KeyDataServiceURL    = "data-service-url"
	KeySessionType       = "session-type"
	KeyLoadTimeout       = "load-timeout"
	KeyMaxRetries        = "load-max-retries"
	KeyRetryInterval     = "load-retry-interval"
	KeyTelemetryTimeout  = "telemetry-fetch-timeout"
	KeyTelemetryRetries  = "telemetry-fetch-retries"
	KeyCacheBackend      = "cache-backend"
	KeyCacheDir          = "cache-dir"
	KeyDatabaseURL       = "database-url"
	KeyDBHost            = "db-host"
	KeyDBPort            = "db-port"
	KeyDBName            = "db-name"
	KeyDBUser            = "db-user"
	KeyDBPassword        = "db-password"
	KeyDBSSLMode         = "db-sslmode"
	KeyDBMaxConnections  = "db-max-connections"
	KeyDBMinConnections  = "db-min-connections"
	KeyDBConnMaxLifetime = "db-connection-max-lifetime"
	KeySampleRateHz      = "telemetry-sample-rate-hz"
	KeyBuildTimeout      = "telemetry-build-timeout"
	KeyLogLevel          = "log-level"
	KeyLogFormat         = "log-format"
)

// NewViper returns a viper instance reading the environment with the
// service's defaults applied
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers default values for every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "3000")
	v.SetDefault(KeyAllowOrigins, "*")
	v.SetDefault(KeyRateLimit, 100)
	v.SetDefault(KeyDataServiceURL, "http://localhost:8000")
	v.SetDefault(KeySessionType, "R")
	v.SetDefault(KeyLoadTimeout, "120s")
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyRetryInterval, "500ms")
	v.SetDefault(KeyTelemetryTimeout, "10s")
	v.SetDefault(KeyTelemetryRetries, 1)
	v.SetDefault(KeyCacheBackend, "disk")
	v.SetDefault(KeyCacheDir, "./cache")
	v.SetDefault(KeyDBHost, "localhost")
	v.SetDefault(KeyDBPort, "5432")
	v.SetDefault(KeyDBName, "f1_cache")
	v.SetDefault(KeyDBUser, "f1_user")
	v.SetDefault(KeyDBPassword, "f1_pass")
	v.SetDefault(KeyDBSSLMode, "disable")
	v.SetDefault(KeyDBMaxConnections, 10)
	v.SetDefault(KeyDBMinConnections, 1)
	v.SetDefault(KeyDBConnMaxLifetime, "5m")
	v.SetDefault(KeySampleRateHz, 2.0)
	v.SetDefault(KeyBuildTimeout, "90s")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
}

// Load loads configuration from v
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               v.GetString(KeyPort),
			AllowOrigins:       splitList(v.GetString(KeyAllowOrigins)),
			RateLimitPerMinute: v.GetInt64(KeyRateLimit),
		},
		Provider: ProviderConfig{
			BaseURL:          strings.TrimRight(v.GetString(KeyDataServiceURL), "/"),
			SessionType:      v.GetString(KeySessionType),
			LoadTimeout:      v.GetDuration(KeyLoadTimeout),
			MaxRetries:       v.GetUint64(KeyMaxRetries),
			RetryInterval:    v.GetDuration(KeyRetryInterval),
			TelemetryTimeout: v.GetDuration(KeyTelemetryTimeout),
			TelemetryRetries: v.GetUint64(KeyTelemetryRetries),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(v.GetString(KeyCacheBackend)),
			Dir:     strings.TrimSpace(v.GetString(KeyCacheDir)),
		},
		Database: DatabaseConfig{
			URL:                   GetSecret(v, KeyDatabaseURL),
			Host:                  v.GetString(KeyDBHost),
			Port:                  v.GetString(KeyDBPort),
			Name:                  v.GetString(KeyDBName),
			User:                  v.GetString(KeyDBUser),
			Password:              GetSecret(v, KeyDBPassword),
			SSLMode:               v.GetString(KeyDBSSLMode),
			MaxConnections:        v.GetInt(KeyDBMaxConnections),
			MinConnections:        v.GetInt(KeyDBMinConnections),
			ConnectionMaxLifetime: v.GetDuration(KeyDBConnMaxLifetime),
		},
		Telemetry: TelemetryConfig{
			SampleRateHz: v.GetFloat64(KeySampleRateHz),
			BuildTimeout: v.GetDuration(KeyBuildTimeout),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return errors.New("DATA_SERVICE_URL is required")
	}
	if c.Provider.LoadTimeout <= 0 {
		return errors.New("LOAD_TIMEOUT must be positive")
	}
	if c.Provider.TelemetryTimeout <= 0 {
		return errors.New("TELEMETRY_FETCH_TIMEOUT must be positive")
	}
	if c.Telemetry.BuildTimeout <= 0 {
		return errors.New("TELEMETRY_BUILD_TIMEOUT must be positive")
	}
	if rate := c.Telemetry.SampleRateHz; rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("TELEMETRY_SAMPLE_RATE_HZ must be a positive finite number, got %v", rate)
	}
	switch c.Cache.Backend {
	case "disk":
		if c.Cache.Dir == "" {
			return errors.New("CACHE_DIR is required when CACHE_BACKEND=disk")
		}
	case "postgres", "none":
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

// ConnectionString returns the database connection string
func (d *DatabaseConfig) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// splitList splits a comma separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
