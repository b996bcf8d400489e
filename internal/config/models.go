package config

import (
	"time"
)

// GroomerConfig holds the sanitation settings
type GroomerConfig struct {
	MaxDepth                 int
	MessageIDDomain          string
	ExtraMaliciousExtensions []string
}

// ServerConfig holds the content filter listener settings
type ServerConfig struct {
	FilterType      string
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
	ProcessTimeout  time.Duration
}

// SMTPDeliveryConfig holds the relay settings
type SMTPDeliveryConfig struct {
	Address            string
	Port               int
	BreakerTimeout     time.Duration
	BreakerMaxRequests uint32
}

// SESDeliveryConfig holds the Amazon SES settings
type SESDeliveryConfig struct {
	Region          string
	From            string
	AccessKeyID     string
	SecretAccessKey string
}

// DeliveryConfig selects and configures the delivery back-end
type DeliveryConfig struct {
	Type      string
	SMTP      SMTPDeliveryConfig
	Directory string
	SES       SESDeliveryConfig
}

// CacheConfig holds the verdict cache settings
type CacheConfig struct {
	Enabled          bool
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
}

// MetricsConfig holds the Prometheus exposition settings
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// GetGroomer returns the groomer configuration
func (c *Config) GetGroomer() GroomerConfig {
	return GroomerConfig{
		MaxDepth:                 c.GetInt("groomer.max_depth"),
		MessageIDDomain:          c.GetString("groomer.message_id_domain"),
		ExtraMaliciousExtensions: c.GetStringSlice("groomer.extra_malicious_extensions"),
	}
}

// GetServer returns the server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	timeout, err := c.GetDuration("server.process_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		FilterType:      c.GetString("server.filter_type"),
		ListenAddress:   c.GetString("server.listen_address"),
		Domain:          c.GetString("server.domain"),
		MaxMessageBytes: c.GetInt64("server.max_message_bytes"),
		ProcessTimeout:  timeout,
	}, nil
}

// GetDelivery returns the delivery configuration
func (c *Config) GetDelivery() (DeliveryConfig, error) {
	breakerTimeout, err := c.GetDuration("delivery.smtp.breaker_timeout")
	if err != nil {
		return DeliveryConfig{}, err
	}
	return DeliveryConfig{
		Type: c.GetString("delivery.type"),
		SMTP: SMTPDeliveryConfig{
			Address:            c.GetString("delivery.smtp.address"),
			Port:               c.GetInt("delivery.smtp.port"),
			BreakerTimeout:     breakerTimeout,
			BreakerMaxRequests: uint32(c.GetInt("delivery.smtp.breaker_max_requests")),
		},
		Directory: c.GetString("delivery.directory.path"),
		SES: SESDeliveryConfig{
			Region:          c.GetString("delivery.ses.region"),
			From:            c.GetString("delivery.ses.from"),
			AccessKeyID:     c.GetString("delivery.ses.access_key_id"),
			SecretAccessKey: c.GetString("delivery.ses.secret_access_key"),
		},
	}, nil
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Enabled:          c.GetBool("cache.enabled"),
		Type:             c.GetString("cache.type"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisAddress:     c.GetString("cache.redis_address"),
		RedisPassword:    c.GetString("cache.redis_password"),
		RedisDB:          c.GetInt("cache.redis_db"),
	}, nil
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}
