package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for conmux.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Consoles   []ConsoleConfig  `yaml:"consoles"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// NodeConfig identifies the host this instance runs on.
type NodeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ConsoleConfig describes one console backend to register at startup.
// Type selects the driver: "ns16550", "virtual", "null" or "mqtt".
type ConsoleConfig struct {
	Type  string   `yaml:"type"`
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags"` // "stdin", "stdout"; empty requests the defaults

	// UART settings, used when Type is "ns16550".
	UART UARTConfig `yaml:"uart"`

	// Scrollback buffer size in bytes, used when Type is "virtual".
	Scrollback int `yaml:"scrollback"`

	// MQTT topic bindings, used when Type is "mqtt".
	MQTT ConsoleMQTTConfig `yaml:"mqtt"`
}

// UARTConfig contains 16550 register window settings.
type UARTConfig struct {
	// Window is the path to the memory-mapped register window
	// (a /dev/mem style device node or a file exposing the registers).
	Window string `yaml:"window"`

	// WindowSize is the size of the mapping in bytes.
	WindowSize int `yaml:"window_size"`

	// RegShift is the register stride as a power of two, following the
	// device tree reg-shift convention.
	RegShift uint32 `yaml:"reg_shift"`

	// RegWidth is the access width in bytes: 1, 2 or 4.
	RegWidth uint32 `yaml:"reg_width"`

	// Divisor is the baud rate divisor programmed into DLL/DLM.
	// 0x0001 yields 115200 baud with a 1.8432 MHz reference clock.
	Divisor uint16 `yaml:"divisor"`
}

// ConsoleMQTTConfig binds an MQTT console to its topics.
type ConsoleMQTTConfig struct {
	OutTopic string `yaml:"out_topic"`
	InTopic  string `yaml:"in_topic"`
}

// TranscriptConfig contains transcript persistence settings.
type TranscriptConfig struct {
	Enabled       bool `yaml:"enabled"`
	FlushInterval int  `yaml:"flush_interval"` // seconds
	MaxChunkSize  int  `yaml:"max_chunk_size"` // bytes per stored row
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
	Enabled  bool             `yaml:"enabled"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PollInterval   int    `yaml:"poll_interval"` // milliseconds between console reads
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CONMUX_SECTION_KEY
// For example: CONMUX_DATABASE_PATH, CONMUX_API_HOST
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
		Node: NodeConfig{
			ID:   "node-001",
			Name: "conmux",
		},
		Transcript: TranscriptConfig{
			Enabled:       false,
			FlushInterval: 1,
			MaxChunkSize:  4096,
		},
		Database: DatabaseConfig{
			Path:        "./data/conmux.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "conmux",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
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
			PollInterval:   50,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CONMUX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CONMUX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CONMUX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CONMUX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CONMUX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CONMUX_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CONMUX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("CONMUX_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// consoleTypes lists the backend types Validate accepts.
var consoleTypes = map[string]bool{
	"ns16550": true,
	"virtual": true,
	"null":    true,
	"mqtt":    true,
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}

	for i, con := range c.Consoles {
		prefix := fmt.Sprintf("consoles[%d]", i)
		if !consoleTypes[con.Type] {
			errs = append(errs, prefix+".type must be one of: ns16550, virtual, null, mqtt")
			continue
		}
		for _, f := range con.Flags {
			if f != "stdin" && f != "stdout" {
				errs = append(errs, prefix+".flags entries must be \"stdin\" or \"stdout\"")
			}
		}
		switch con.Type {
		case "ns16550":
			if con.UART.Window == "" {
				errs = append(errs, prefix+".uart.window is required for ns16550 consoles")
			}
			switch con.UART.RegWidth {
			case 0, 1, 2, 4:
			default:
				errs = append(errs, prefix+".uart.reg_width must be 1, 2 or 4")
			}
		case "mqtt":
			if !c.MQTT.Enabled {
				errs = append(errs, prefix+" requires mqtt.enabled")
			}
			// Topics default from the node/name scheme, so a console
			// without explicit topics must carry a name.
			if con.Name == "" && (con.MQTT.OutTopic == "" || con.MQTT.InTopic == "") {
				errs = append(errs, prefix+".name is required when mqtt topics are not set")
			}
		}
	}

	if c.Transcript.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when transcript.enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// JWT secret is required whenever the API is enabled. A guessable
	// secret lets anyone forge tokens and drive guest consoles.
	const minJWTSecretLength = 32
	if c.API.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set CONMUX_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
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
