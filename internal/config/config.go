package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DeleteFailurePolicyRetry  = "retry"
	DeleteFailurePolicyManual = "manual"
)

// AppConfig holds application-specific configuration.
type AppConfig struct {
	TargetDomain        string `mapstructure:"target_domain"`
	PollInterval        int    `mapstructure:"poll_interval"`
	DeleteDelay         int    `mapstructure:"delete_delay"`
	RecordTTL           int    `mapstructure:"record_ttl"`
	Concurrency         int    `mapstructure:"concurrency"`
	DeleteFailurePolicy string `mapstructure:"delete_failure_policy"`
	WatchEvents         bool   `mapstructure:"watch_events"`
	LabelPrefix         string `mapstructure:"label_prefix"`
	AdoptExisting       bool   `mapstructure:"adopt_existing"`
}

func (c AppConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c AppConfig) DeleteDelayDuration() time.Duration {
	return time.Duration(c.DeleteDelay) * time.Second
}

// RegistrarConfig holds the DNS registrar credentials and endpoint.
type RegistrarConfig struct {
	Account string `mapstructure:"account"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

func (c RegistrarConfig) CredentialsConfigured() bool {
	return c.Account != "" && c.APIKey != ""
}

func (c RegistrarConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EtcdConfig holds etcd-related configuration. etcd serializes ticks and
// deletions across instances sharing one registrar account. It prevents
// duplicate creates only together with app.adopt_existing.
type EtcdConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	Endpoints         []string `mapstructure:"endpoints"`
	LockKey           string   `mapstructure:"lock_key"`
	LockTTL           float64  `mapstructure:"lock_ttl"`
	LockTimeout       float64  `mapstructure:"lock_timeout"`
	LockRetryInterval float64  `mapstructure:"lock_retry_interval"`
}

// Config is the top-level configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Registrar RegistrarConfig `mapstructure:"registrar"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"log"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
}

// SetDefaults registers the default value of every known key. Keys without a
// default are invisible to AutomaticEnv during Unmarshal, so credentials get an
// empty default too.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.target_domain", "")
	v.SetDefault("app.poll_interval", 30)
	v.SetDefault("app.delete_delay", 300)
	v.SetDefault("app.record_ttl", 3600)
	v.SetDefault("app.concurrency", 4)
	v.SetDefault("app.delete_failure_policy", DeleteFailurePolicyRetry)
	v.SetDefault("app.watch_events", true)
	v.SetDefault("app.label_prefix", "traefik")
	v.SetDefault("app.adopt_existing", true)
	v.SetDefault("registrar.account", "")
	v.SetDefault("registrar.api_key", "")
	v.SetDefault("registrar.base_url", "https://api.name.com/v4")
	v.SetDefault("registrar.timeout", 10)
	v.SetDefault("server.port", 3000)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "console")
	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.lock_key", "/traefik-cname-sync/locks")
	v.SetDefault("etcd.lock_ttl", 5.0)
	v.SetDefault("etcd.lock_timeout", 2.0)
	v.SetDefault("etcd.lock_retry_interval", 0.1)
}

// InitConfig performs the initial configuration: setting defaults, specifying the config file, and reading it.
func InitConfig(v *viper.Viper, configFile string) error {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config") // Looks for config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// If the file is not found, just continue with defaults and env vars.
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// Load unmarshals the configuration into the Config struct.
func Load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &config, nil
}

// Validate reports the first configuration problem found. Missing registrar
// credentials are the only condition the service cannot start without.
func (c *Config) Validate() error {
	if c.Registrar.Account == "" {
		return NewConfigurationError("registrar.account", "registrar account is required")
	}
	if c.Registrar.APIKey == "" {
		return NewConfigurationError("registrar.api_key", "registrar API key is required")
	}
	if c.Registrar.Timeout <= 0 {
		return NewConfigurationError("registrar.timeout", "must be a positive number of seconds")
	}
	if c.App.PollInterval <= 0 {
		return NewConfigurationError("app.poll_interval", "must be a positive number of seconds")
	}
	if c.App.DeleteDelay < 0 {
		return NewConfigurationError("app.delete_delay", "must not be negative")
	}
	if c.App.RecordTTL <= 0 {
		return NewConfigurationError("app.record_ttl", "must be positive")
	}
	if c.App.Concurrency <= 0 {
		return NewConfigurationError("app.concurrency", "must be positive")
	}
	switch c.App.DeleteFailurePolicy {
	case DeleteFailurePolicyRetry, DeleteFailurePolicyManual:
	default:
		return NewConfigurationError("app.delete_failure_policy",
			fmt.Sprintf("unknown policy %q (want %q or %q)", c.App.DeleteFailurePolicy, DeleteFailurePolicyRetry, DeleteFailurePolicyManual))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigurationError("server.port", fmt.Sprintf("invalid port %d", c.Server.Port))
	}
	if c.Etcd.Enabled && len(c.Etcd.Endpoints) == 0 {
		return NewConfigurationError("etcd.endpoints", "at least one endpoint is required when etcd is enabled")
	}
	return nil
}
