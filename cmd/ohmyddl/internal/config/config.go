package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/alias"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load, e.g. OHMYDDL_SESSION_FILE.
const EnvPrefix = "OHMYDDL"

// Config holds the application configuration
type Config struct {
	// Session file used by the CLI
	SessionFile string `mapstructure:"session_file"`

	// Directory holding one session file per server token
	DataDir string `mapstructure:"data_dir"`

	// Cache database DSN. Empty keeps the cache inside the session file.
	// A postgres:// URL or a sqlite path selects the shared bun-backed cache.
	CacheDSN string `mapstructure:"cache_dsn"`

	// Server bind address (host:port)
	ServerAddr string `mapstructure:"server_addr"`

	// Number of restored sessions the server keeps in memory
	SessionCacheSize int `mapstructure:"session_cache_size"`

	// Enable debug logging
	Debug bool `mapstructure:"debug"`

	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`

	TTL sdk.TTLs `mapstructure:"ttl"`

	// URL of the availability notice; empty disables the check
	KillSwitchURL string `mapstructure:"killswitch_url"`

	Aliases []alias.Rule `mapstructure:"aliases"`

	Observability ObservabilityConfig `mapstructure:",squash"`
}

// ObservabilityConfig configures OpenTelemetry export from the server. An empty OTLPEndpoint
// disables it.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
}

// New returns a viper instance carrying the defaults and the environment binding. Callers may
// bind flags or set a config file on it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	def := sdk.DefaultTTLs()

	v.SetDefault("session_file", ".user_data")
	v.SetDefault("data_dir", "data")
	v.SetDefault("cache_dsn", "")
	v.SetDefault("server_addr", "localhost:5986")
	v.SetDefault("session_cache_size", 256)
	v.SetDefault("debug", false)
	v.SetDefault("http_timeout", sdk.DefaultTimeout)
	v.SetDefault("retry_attempts", sdk.DefaultMaxRetries)
	v.SetDefault("retry_delay", sdk.DefaultRetryDelay)
	v.SetDefault("ttl.terms", def.Terms)
	v.SetDefault("ttl.courses", def.Courses)
	v.SetDefault("ttl.works", def.Works)
	v.SetDefault("ttl.unfinished", def.Unfinished)
	v.SetDefault("killswitch_url", "")
	v.SetDefault("aliases", ruleMaps(alias.DefaultRules))
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("otlp_insecure", false)
	v.SetDefault("service_name", "ohmyddl")
	v.SetDefault("environment", "development")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func ruleMaps(rules []alias.Rule) []map[string]any {
	out := make([]map[string]any, 0, len(rules))
	for _, r := range rules {
		out = append(out, map[string]any{"pattern": r.Pattern, "alias": r.Alias})
	}
	return out
}

// Load decodes and validates the configuration. When configFile is set it is read first;
// environment variables and bound flags take precedence over it.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	var errs []error
	if c.SessionFile == "" {
		errs = append(errs, errors.New("session_file is required"))
	}
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server_addr is required"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry_attempts must not be negative, got %d", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay))
	}
	if c.SessionCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("session_cache_size must be positive, got %d", c.SessionCacheSize))
	}
	for i, r := range c.Aliases {
		if r.Pattern == "" || r.Alias == "" {
			errs = append(errs, fmt.Errorf("aliases[%d]: pattern and alias are required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// TransportConfig converts the HTTP settings for the session.
func (c *Config) TransportConfig() sdk.TransportConfig {
	retries := c.RetryAttempts
	if retries == 0 {
		// zero means "use the default" to the transport
		retries = -1
	}
	return sdk.TransportConfig{
		Timeout:    c.HTTPTimeout,
		MaxRetries: retries,
		RetryDelay: c.RetryDelay,
	}
}
