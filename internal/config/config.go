package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "POWERP"

	// DefaultBaseURL is the API root used when none is configured.
	DefaultBaseURL = "https://tenant.powerp.app/rt-api/api/"
)

// Config holds all configuration for the client
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Query     QueryConfig     `mapstructure:"query"`
	Transport TransportConfig `mapstructure:"transport"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// APIConfig selects the endpoint and credentials. Exactly one of APIKey or
// the ClientID/ClientSecret pair must be set.
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type QueryConfig struct {
	BlockSize    int           `mapstructure:"block_size"`
	Lookback     time.Duration `mapstructure:"lookback"`
	WindowPeriod string        `mapstructure:"window_period"`
	// MaxWindow limits the lookback of raw-resolution queries (window_period
	// of 1s or less). Coarser window periods are not limited. Zero disables it.
	MaxWindow    time.Duration `mapstructure:"max_window"`
}

type TransportConfig struct {
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type CatalogConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

type SchedulerConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthMode names the configured credential kind.
type AuthMode string

const (
	AuthModeAPIKey            AuthMode = "api_key"
	AuthModeClientCredentials AuthMode = "client_credentials"
)

// Load reads configuration from an optional YAML file and environment
// variables. $VARS inside the file are expanded; POWERP_* variables
// override file values. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded, err := expandEnv(data)
		if err != nil {
			return nil, err
		}

		if len(expanded) > 0 {
			if err := v.ReadConfig(bytes.NewReader(expanded)); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// expandEnv normalizes the YAML and substitutes environment references.
func expandEnv(data []byte) ([]byte, error) {
	// First unmarshal into a map to handle type conversions
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}
	if rawConfig == nil {
		return []byte{}, nil
	}

	normalized, err := yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}

	return []byte(os.ExpandEnv(string(normalized))), nil
}

// bindEnv maps the credential variables that don't follow the
// POWERP_<SECTION>_<KEY> pattern.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"api.api_key":       "POWERP_API_KEY",
		"api.client_id":     "POWERP_CLIENT_ID",
		"api.client_secret": "POWERP_CLIENT_SECRET",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("query.block_size", 10)
	v.SetDefault("query.lookback", "15m")
	v.SetDefault("query.window_period", "200ms")
	v.SetDefault("query.max_window", "30m")

	v.SetDefault("transport.rate_limit", 5.0)
	v.SetDefault("transport.rate_limit_burst", 10)

	v.SetDefault("catalog.cache_size", 10000)

	v.SetDefault("scheduler.schedule", "@every 1m")
	v.SetDefault("scheduler.timeout", "2m")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// AuthMode reports which credentials are configured.
func (c *Config) AuthMode() AuthMode {
	if c.API.APIKey != "" {
		return AuthModeAPIKey
	}
	return AuthModeClientCredentials
}

// Validate checks that the configuration can build a client.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}

	hasKey := c.API.APIKey != ""
	hasID := c.API.ClientID != ""
	hasSecret := c.API.ClientSecret != ""

	switch {
	case hasKey && (hasID || hasSecret):
		return fmt.Errorf("configure either api.api_key or api.client_id/api.client_secret, not both")
	case !hasKey && !hasID && !hasSecret:
		return fmt.Errorf("credentials are required: set POWERP_API_KEY or POWERP_CLIENT_ID and POWERP_CLIENT_SECRET")
	case !hasKey && hasID != hasSecret:
		return fmt.Errorf("api.client_id and api.client_secret must be set together")
	}

	if c.Query.Lookback <= 0 {
		return fmt.Errorf("query.lookback must be positive")
	}
	return nil
}

// NewLogger builds the logger described by the logging section.
func (l LoggingConfig) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()

	switch strings.ToLower(l.Format) {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format: %s", l.Format)
	}

	level := l.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(parsed)

	return logger, nil
}
