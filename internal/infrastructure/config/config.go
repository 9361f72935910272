package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for sensorbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Cloud      CloudConfig      `yaml:"cloud"`
	Exclusions ExclusionsConfig `yaml:"exclusions"`
	Health     HealthConfig     `yaml:"health"`
	Database   DatabaseConfig   `yaml:"database"`
	History    HistoryConfig    `yaml:"history"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig identifies this bridge instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// CloudConfig contains the cloud project and service account credentials.
type CloudConfig struct {
	ProjectID string `yaml:"project_id"`

	// Service account key. KeySecret signs the token assertion.
	KeyID          string `yaml:"key_id"`
	KeySecret      string `yaml:"key_secret"`
	ServiceAccount string `yaml:"service_account"`

	APIBase          string `yaml:"api_base"`
	IdentityEndpoint string `yaml:"identity_endpoint"`

	// RequestTimeout bounds each inventory fetch and token exchange.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RefreshInterval is the inventory reconciliation period.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// TokenLifetime is the requested access token lifetime.
	TokenLifetime time.Duration `yaml:"token_lifetime"`
}

// ExclusionsConfig lists type tags and device identifiers that never get an entry.
// Devices may be listed by full resource name or serial number.
type ExclusionsConfig struct {
	Types   []string `yaml:"types"`
	Devices []string `yaml:"devices"`
}

// HealthConfig contains staleness detection settings.
type HealthConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	StaleThreshold    time.Duration `yaml:"stale_threshold"`
	LowBatteryPercent float64       `yaml:"low_battery_percent"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig contains event history retention settings.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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

// WebhookConfig contains inbound event settings.
type WebhookConfig struct {
	// SignatureSecret enables X-Dt-Signature verification when set.
	SignatureSecret string `yaml:"signature_secret"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SENSORBRIDGE_SECTION_KEY
// For example: SENSORBRIDGE_CLOUD_KEY_SECRET, SENSORBRIDGE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "sensorbridge",
			Name: "Sensor Bridge",
		},
		Cloud: CloudConfig{
			APIBase:          "https://api.d21s.com/v2",
			IdentityEndpoint: "https://identity.disruptive-technologies.com/oauth2/token",
			RequestTimeout:   15 * time.Second,
			RefreshInterval:  5 * time.Minute,
			TokenLifetime:    time.Hour,
		},
		Health: HealthConfig{
			SweepInterval:     5 * time.Minute,
			StaleThreshold:    time.Hour,
			LowBatteryPercent: 20,
		},
		Database: DatabaseConfig{
			Path:        "./data/sensorbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 7 * 24 * time.Hour,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sensorbridge",
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
		Webhook: WebhookConfig{
			MaxBodyBytes: 1 << 20,
		},
		WebSocket: WebSocketConfig{
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SENSORBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		key string
		dst *string
	}{
		{"SENSORBRIDGE_CLOUD_PROJECT_ID", &cfg.Cloud.ProjectID},
		{"SENSORBRIDGE_CLOUD_KEY_ID", &cfg.Cloud.KeyID},
		{"SENSORBRIDGE_CLOUD_KEY_SECRET", &cfg.Cloud.KeySecret},
		{"SENSORBRIDGE_CLOUD_SERVICE_ACCOUNT", &cfg.Cloud.ServiceAccount},
		{"SENSORBRIDGE_CLOUD_API_BASE", &cfg.Cloud.APIBase},
		{"SENSORBRIDGE_DATABASE_PATH", &cfg.Database.Path},
		{"SENSORBRIDGE_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"SENSORBRIDGE_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"SENSORBRIDGE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"SENSORBRIDGE_API_HOST", &cfg.API.Host},
		{"SENSORBRIDGE_WEBHOOK_SECRET", &cfg.Webhook.SignatureSecret},
		{"SENSORBRIDGE_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"SENSORBRIDGE_LOG_LEVEL", &cfg.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}

	if v := os.Getenv("SENSORBRIDGE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SENSORBRIDGE_API_PORT: %w", ErrInvalidConfig, err)
		}
		cfg.API.Port = port
	}

	return nil
}

// Validate checks the configuration for errors. Every problem is reported
// in one error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string

	// Cloud credentials are required: without them nothing can be reconciled.
	if c.Cloud.ProjectID == "" {
		errs = append(errs, "cloud.project_id is required")
	}
	if c.Cloud.KeyID == "" {
		errs = append(errs, "cloud.key_id is required")
	}
	if c.Cloud.KeySecret == "" {
		errs = append(errs, "cloud.key_secret is required (set SENSORBRIDGE_CLOUD_KEY_SECRET)")
	}
	if c.Cloud.ServiceAccount == "" {
		errs = append(errs, "cloud.service_account is required")
	}
	if c.Cloud.APIBase == "" {
		errs = append(errs, "cloud.api_base is required")
	}
	if c.Cloud.IdentityEndpoint == "" {
		errs = append(errs, "cloud.identity_endpoint is required")
	}
	if c.Cloud.RefreshInterval <= 0 {
		errs = append(errs, "cloud.refresh_interval must be positive")
	}

	// Health validation
	if c.Health.SweepInterval <= 0 {
		errs = append(errs, "health.sweep_interval must be positive")
	}
	if c.Health.StaleThreshold <= 0 {
		errs = append(errs, "health.stale_threshold must be positive")
	}
	if c.Health.LowBatteryPercent < 0 || c.Health.LowBatteryPercent > 100 {
		errs = append(errs, "health.low_battery_percent must be between 0 and 100")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		errs = append(errs, "webhook.max_body_bytes must be positive")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
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
