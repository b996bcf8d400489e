package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. MAIL_GROOMER_CACHE_TYPE
const EnvPrefix = "MAIL_GROOMER"

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New reads config.yaml from the standard locations. A missing file is not
// an error; defaults and environment overrides apply.
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-groomer/")
	v.AddConfigPath("$HOME/.mail-groomer")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromFile reads the given file, which must exist
func NewFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Groomer defaults
	v.SetDefault("groomer.max_depth", 2)
	v.SetDefault("groomer.message_id_domain", "mail-groomer.local")
	v.SetDefault("groomer.extra_malicious_extensions", []string{})

	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.domain", "localhost")
	v.SetDefault("server.max_message_bytes", 30*1024*1024)
	v.SetDefault("server.process_timeout", "30s")

	// Delivery defaults
	v.SetDefault("delivery.type", "smtp")
	v.SetDefault("delivery.smtp.address", "127.0.0.1")
	v.SetDefault("delivery.smtp.port", 10026)
	v.SetDefault("delivery.smtp.breaker_timeout", "30s")
	v.SetDefault("delivery.smtp.breaker_max_requests", 1)
	v.SetDefault("delivery.directory.path", "./sanitized")
	v.SetDefault("delivery.ses.region", "us-east-1")
	v.SetDefault("delivery.ses.from", "")
	v.SetDefault("delivery.ses.access_key_id", "")
	v.SetDefault("delivery.ses.secret_access_key", "")

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/verdict_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/mail_groomer")
	v.SetDefault("cache.redis_address", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_address", "0.0.0.0:9108")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Set overrides a value, used for command-line flags
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 gets an int64 value from the configuration
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
