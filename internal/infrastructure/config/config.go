package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MQTT protocol versions understood by the transport selector.
const (
	ProtocolV311 = 4
	ProtocolV5   = 5
)

// Config is the root configuration structure for mqttremote.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RemoteConfig contains connection supervision and dispatch settings.
type RemoteConfig struct {
	// ClientID is the device identity. It becomes the MQTT client ID and
	// the prefix of the status topic. Only [a-zA-Z0-9_] is accepted.
	ClientID string `yaml:"client_id"`

	// RetryIntervalMS is the minimum spacing between connect attempts.
	RetryIntervalMS int `yaml:"retry_interval_ms"`

	// TickIntervalMS is how often the supervisor loop runs.
	TickIntervalMS int `yaml:"tick_interval_ms"`

	// ClearSubscriptionsOnReconnect drops every registered subscription
	// before each connect attempt instead of replaying them.
	ClearSubscriptionsOnReconnect bool `yaml:"clear_subscriptions_on_reconnect"`

	// ReceiveVerbose logs every inbound message at info level.
	ReceiveVerbose bool `yaml:"receive_verbose"`

	// MaxMessageSize caps outbound payloads in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// SubscribeQoS is the QoS requested for every subscription.
	SubscribeQoS int `yaml:"subscribe_qos"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// KeepAlive is the keepalive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// ConnectTimeout bounds a single connect attempt, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
//
// Host may carry a scheme (mqtt://, mqtts://, ws://, wss://) which then
// decides the transport; a bare host uses TLS to pick tcp or ssl.
type MQTTBrokerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	TLS             bool   `yaml:"tls"`
	ProtocolVersion int    `yaml:"protocol_version"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
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
// Environment variables follow the pattern: MQTTREMOTE_SECTION_KEY
// For example: MQTTREMOTE_MQTT_HOST, MQTTREMOTE_CLIENT_ID
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

// Default returns the built-in configuration, with environment overrides
// applied but without a YAML file.
func Default() (*Config, error) {
	cfg := defaultConfig()
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
		Remote: RemoteConfig{
			ClientID:        "mqttremote",
			RetryIntervalMS: 3000,
			TickIntervalMS:  250,
			MaxMessageSize:  1 << 20,
			SubscribeQoS:    0,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:            "localhost",
				Port:            1883,
				ProtocolVersion: ProtocolV311,
			},
			QoS:            0,
			KeepAlive:      10,
			ConnectTimeout: 10,
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
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MQTTREMOTE_CLIENT_ID"); v != "" {
		cfg.Remote.ClientID = v
	}

	// MQTT
	if v := os.Getenv("MQTTREMOTE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTTREMOTE_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MQTTREMOTE_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("MQTTREMOTE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTTREMOTE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MQTTREMOTE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("MQTTREMOTE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Remote.ClientID == "" {
		errs = append(errs, "remote.client_id is required")
	}
	if c.Remote.RetryIntervalMS <= 0 {
		errs = append(errs, "remote.retry_interval_ms must be positive")
	}
	if c.Remote.TickIntervalMS <= 0 {
		errs = append(errs, "remote.tick_interval_ms must be positive")
	}
	if c.Remote.MaxMessageSize <= 0 {
		errs = append(errs, "remote.max_message_size must be positive")
	}
	if c.Remote.SubscribeQoS < 0 || c.Remote.SubscribeQoS > 2 {
		errs = append(errs, "remote.subscribe_qos must be 0, 1, or 2")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ProtocolVersion != ProtocolV311 && c.MQTT.Broker.ProtocolVersion != ProtocolV5 {
		errs = append(errs, "mqtt.broker.protocol_version must be 4 (3.1.1) or 5")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keep_alive must not be negative")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}

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

// RetryInterval returns the connect retry interval as a Duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Remote.RetryIntervalMS) * time.Millisecond
}

// TickInterval returns the supervisor tick interval as a Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Remote.TickIntervalMS) * time.Millisecond
}

// KeepAliveDuration returns the MQTT keepalive as a Duration.
func (c *MQTTConfig) KeepAliveDuration() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// ConnectTimeoutDuration returns the per-attempt connect timeout.
func (c *MQTTConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}
