package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for rrdc.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Ingest   IngestConfig   `yaml:"ingest"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// DaemonConfig contains rrdcached connection settings.
type DaemonConfig struct {
	// Address is "unix:///path/to/sock" or "tcp://host:port".
	Address string `yaml:"address"`

	// ConnectTimeout bounds the dial (in seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// IOTimeout bounds each command round trip (in seconds). 0 disables it.
	IOTimeout int `yaml:"io_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// IngestConfig contains the MQTT to rrdcached bridge settings.
type IngestConfig struct {
	Enabled bool `yaml:"enabled"`

	// TopicPrefix roots the bridge topics: <prefix>/update/<id> in,
	// <prefix>/error/<id> out.
	TopicPrefix string `yaml:"topic_prefix"`

	// PublishErrors publishes daemon rejections back to the broker.
	PublishErrors bool `yaml:"publish_errors"`
}

// InfluxDBConfig contains InfluxDB connection settings used by export.
type InfluxDBConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	Org       string `yaml:"org"`
	Bucket    string `yaml:"bucket"`
	BatchSize int    `yaml:"batch_size"`

	// Measurement names exported points. Default: "rrd".
	Measurement string `yaml:"measurement"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RRDC_SECTION_KEY
// For example: RRDC_DAEMON_ADDRESS, RRDC_MQTT_HOST
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

// LoadOrDefault behaves like Load, except that an empty path or a missing
// file yields the defaults (with environment overrides applied). The CLI
// uses it so that a config file is optional.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Address:        "unix:///var/run/rrdcached.sock",
			ConnectTimeout: 10,
			IOTimeout:      30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rrdc-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Ingest: IngestConfig{
			TopicPrefix:   "rrdc",
			PublishErrors: true,
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			BatchSize:   500,
			Measurement: "rrd",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RRDC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Daemon
	if v := os.Getenv("RRDC_DAEMON_ADDRESS"); v != "" {
		cfg.Daemon.Address = v
	}

	// Logging
	if v := os.Getenv("RRDC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("RRDC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RRDC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RRDC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("RRDC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Daemon validation
	if c.Daemon.Address == "" {
		errs = append(errs, "daemon.address is required")
	} else if !validAddress(c.Daemon.Address) {
		errs = append(errs, "daemon.address must start with unix://, tcp:// or /")
	}
	if c.Daemon.ConnectTimeout < 0 {
		errs = append(errs, "daemon.connect_timeout must not be negative")
	}
	if c.Daemon.IOTimeout < 0 {
		errs = append(errs, "daemon.io_timeout must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Ingest validation
	if c.Ingest.Enabled {
		if c.Ingest.TopicPrefix == "" || strings.ContainsAny(c.Ingest.TopicPrefix, "#+") {
			errs = append(errs, "ingest.topic_prefix must be non-empty and free of MQTT wildcards")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validAddress(addr string) bool {
	return strings.HasPrefix(addr, "unix://") ||
		strings.HasPrefix(addr, "tcp://") ||
		strings.HasPrefix(addr, "/")
}

// GetConnectTimeout returns the daemon connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Daemon.ConnectTimeout) * time.Second
}

// GetIOTimeout returns the daemon round-trip timeout as a Duration.
func (c *Config) GetIOTimeout() time.Duration {
	return time.Duration(c.Daemon.IOTimeout) * time.Second
}
