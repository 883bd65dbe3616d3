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

// LoopbackHost is the only address the gateway listens on.
const LoopbackHost = "127.0.0.1"

// DefaultGatewayPort is the TCP port used when neither the config file nor the
// command line provides a valid one.
const DefaultGatewayPort = 7778

// Config is the root configuration structure for the SQL gateway.
// All configuration is loaded from YAML on top of hard-coded defaults.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Admin     AdminConfig     `yaml:"admin"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// GatewayConfig contains the TCP listener settings.
type GatewayConfig struct {
	// Host is forced to LoopbackHost after loading; the field exists so an
	// explicit value in the file is reported by Validate instead of ignored.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadChunkSize is the number of bytes requested per socket read while
	// waiting for a frame terminator.
	ReadChunkSize int `yaml:"read_chunk_size"`

	// EventBuffer is the capacity of the statement event queue.
	EventBuffer int `yaml:"event_buffer"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

	// StatsInterval is how often gateway counters are written (seconds).
	StatsInterval int `yaml:"stats_interval"`
}

// AdminConfig contains the optional HTTP admin server settings.
type AdminConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Host     string             `yaml:"host"`
	Port     int                `yaml:"port"`
	Timeouts AdminTimeoutConfig `yaml:"timeouts"`
}

// AdminTimeoutConfig contains HTTP timeout settings (seconds).
type AdminTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the admin event feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// Load reads configuration from a YAML file over the defaults and validates it.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOptional behaves like Load but returns the defaults when the file does
// not exist. The boolean reports whether a file was read.
func LoadOptional(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	return nil, false, err
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:          LoopbackHost,
			Port:          DefaultGatewayPort,
			ReadChunkSize: 1024,
			EventBuffer:   1024,
		},
		Database: DatabaseConfig{
			Path:        "stomp_server.db",
			WALMode:     false,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sqlgateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
			StatsInterval: 30,
		},
		Admin: AdminConfig{
			Host: LoopbackHost,
			Port: 7779,
			Timeouts: AdminTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.Host != "" && c.Gateway.Host != LoopbackHost {
		errs = append(errs, "gateway.host must be "+LoopbackHost)
	}
	if !ValidPort(c.Gateway.Port) {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Gateway.ReadChunkSize <= 0 {
		errs = append(errs, "gateway.read_chunk_size must be positive")
	}
	if c.Gateway.EventBuffer < 0 {
		errs = append(errs, "gateway.event_buffer must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if c.InfluxDB.StatsInterval < 0 {
		errs = append(errs, "influxdb.stats_interval must not be negative")
	}

	if c.Admin.Enabled {
		if !ValidPort(c.Admin.Port) {
			errs = append(errs, "admin.port must be between 1 and 65535")
		} else if c.Admin.Port == c.Gateway.Port {
			errs = append(errs, "admin.port must differ from gateway.port")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	c.Gateway.Host = LoopbackHost
	return nil
}

// ValidPort reports whether p is a usable TCP port number.
func ValidPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GatewayAddr returns the host:port the gateway listens on.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", LoopbackHost, c.Gateway.Port)
}

// GetReadTimeout returns the admin read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Admin.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the admin write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Admin.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the admin idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Admin.Timeouts.Idle) * time.Second
}
