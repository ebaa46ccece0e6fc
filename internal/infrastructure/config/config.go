package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Telemetry source names accepted by engine.telemetry_source.
const (
	TelemetrySourceSQLite   = "sqlite"
	TelemetrySourceInfluxDB = "influxdb"
)

// Config is the root configuration structure for NovaCloud Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Engine       EngineConfig       `yaml:"engine"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Notification NotificationConfig `yaml:"notification"`
}

// SiteConfig contains deployment identity and the local timezone used by
// time-based conditions and the schedule trigger.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path         string `yaml:"path"`
	WALMode      bool   `yaml:"wal_mode"`
	BusyTimeout  int    `yaml:"busy_timeout"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// EngineConfig controls strategy firing.
type EngineConfig struct {
	// Workers bounds how many strategy firings run concurrently per trigger event.
	Workers int `yaml:"workers"`

	// WebhookTimeout is the per-request timeout for call_webhook actions (seconds).
	WebhookTimeout int `yaml:"webhook_timeout"`

	// WebhookResponseLimit is how many characters of a webhook response are kept.
	WebhookResponseLimit int `yaml:"webhook_response_limit"`

	// TelemetrySource selects where latest sensor values are read from:
	// "sqlite" (device registry) or "influxdb".
	TelemetrySource string `yaml:"telemetry_source"`
}

// SchedulerConfig controls the periodic schedule scan and execution log retention.
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ScanSpec      string `yaml:"scan_spec"`
	CleanupSpec   string `yaml:"cleanup_spec"`
	RetentionDays int    `yaml:"retention_days"`
}

// NotificationConfig contains outbound notification settings.
type NotificationConfig struct {
	SMTP                SMTPConfig `yaml:"smtp"`
	PlatformTopicPrefix string     `yaml:"platform_topic_prefix"`
}

// SMTPConfig contains mail relay settings for email notifications.
// An empty host disables email delivery.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NOVACLOUD_SECTION_KEY
// For example: NOVACLOUD_DATABASE_PATH, NOVACLOUD_ENGINE_WORKERS
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "novacloud-001",
			Name:     "NovaCloud",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:         "./data/novacloud.db",
			WALMode:      true,
			BusyTimeout:  5,
			MaxOpenConns: 4,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "novacloud-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Engine: EngineConfig{
			Workers:              8,
			WebhookTimeout:       10,
			WebhookResponseLimit: 1000,
			TelemetrySource:      TelemetrySourceSQLite,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			ScanSpec:      "0 * * * * *",
			CleanupSpec:   "0 0 3 * * *",
			RetentionDays: 30,
		},
		Notification: NotificationConfig{
			SMTP: SMTPConfig{
				Port: 587,
				From: "novacloud@localhost",
			},
			PlatformTopicPrefix: "novacloud/notifications",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NOVACLOUD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("NOVACLOUD_SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}

	// Database
	if v := os.Getenv("NOVACLOUD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("NOVACLOUD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NOVACLOUD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NOVACLOUD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NOVACLOUD_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("NOVACLOUD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Engine
	if v := os.Getenv("NOVACLOUD_ENGINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Workers = n
		}
	}

	// Notification
	if v := os.Getenv("NOVACLOUD_SMTP_PASSWORD"); v != "" {
		cfg.Notification.SMTP.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.MaxOpenConns < 2 {
		// Firings hold one connection while the executor needs another.
		errs = append(errs, "database.max_open_conns must be at least 2")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Engine.Workers < 1 {
		errs = append(errs, "engine.workers must be at least 1")
	}
	if c.Engine.WebhookTimeout < 1 {
		errs = append(errs, "engine.webhook_timeout must be at least 1 second")
	}
	if c.Engine.WebhookResponseLimit < 0 {
		errs = append(errs, "engine.webhook_response_limit must not be negative")
	}
	switch c.Engine.TelemetrySource {
	case TelemetrySourceSQLite:
	case TelemetrySourceInfluxDB:
		if !c.InfluxDB.Enabled {
			errs = append(errs, "engine.telemetry_source influxdb requires influxdb.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("engine.telemetry_source %q must be sqlite or influxdb", c.Engine.TelemetrySource))
	}

	if c.Scheduler.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Scheduler.ScanSpec); err != nil {
			errs = append(errs, fmt.Sprintf("scheduler.scan_spec: %v", err))
		}
		if _, err := parser.Parse(c.Scheduler.CleanupSpec); err != nil {
			errs = append(errs, fmt.Sprintf("scheduler.cleanup_spec: %v", err))
		}
		if c.Scheduler.RetentionDays < 1 {
			errs = append(errs, "scheduler.retention_days must be at least 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the site timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetWebhookTimeout returns the webhook request timeout as a Duration.
func (c *Config) GetWebhookTimeout() time.Duration {
	return time.Duration(c.Engine.WebhookTimeout) * time.Second
}

// GetRetention returns how long execution records are kept.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Scheduler.RetentionDays) * 24 * time.Hour
}
