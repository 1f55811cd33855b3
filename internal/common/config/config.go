// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Routing       RoutingConfig      `mapstructure:"routing"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name           string `mapstructure:"name"`
	Version        string `mapstructure:"version"`
	Environment    string `mapstructure:"environment"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	AuditIndex string   `mapstructure:"audit_index"`
}

// RoutingConfig holds the core settings of the routing workflow.
type RoutingConfig struct {
	InstanceID          string `mapstructure:"instance_id"`
	DeliveryTimeout     int    `mapstructure:"delivery_timeout"`      // milliseconds, per attempt
	MaxDeliveryAttempts int    `mapstructure:"max_delivery_attempts"` // total attempts, not retries
	BackoffBase         int    `mapstructure:"backoff_base"`          // milliseconds, doubles per attempt
	ChildContextTimeout int    `mapstructure:"child_context_timeout"` // milliseconds
	RegistryCacheTTL    int    `mapstructure:"registry_cache_ttl"`    // seconds
}

// DeliveryTimeoutDuration returns the per-attempt timeout.
func (r RoutingConfig) DeliveryTimeoutDuration() time.Duration {
	return time.Duration(r.DeliveryTimeout) * time.Millisecond
}

// BackoffBaseDuration returns the initial backoff delay.
func (r RoutingConfig) BackoffBaseDuration() time.Duration {
	return time.Duration(r.BackoffBase) * time.Millisecond
}

// ChildContextTimeoutDuration returns the deadline for one child context lookup.
func (r RoutingConfig) ChildContextTimeoutDuration() time.Duration {
	return time.Duration(r.ChildContextTimeout) * time.Millisecond
}

// NotificationConfig holds settings for the family notification gate.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
