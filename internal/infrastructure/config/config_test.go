package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a temporary YAML config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conmux.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "node:\n  id: test-node\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.ID != "test-node" {
		t.Errorf("Node.ID = %q, want %q", cfg.Node.ID, "test-node")
	}
	if cfg.Database.Path != "./data/conmux.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if !cfg.Database.WALMode {
		t.Error("Database.WALMode = false, want true by default")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.WebSocket.PollInterval != 50 {
		t.Errorf("WebSocket.PollInterval = %d, want 50", cfg.WebSocket.PollInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
node:
  id: lab-host
database:
  path: /var/lib/conmux/conmux.db
api:
  port: 9090
logging:
  level: debug
consoles:
  - type: virtual
    name: guest0
    flags: [stdin, stdout]
    scrollback: 4096
  - type: "null"
    name: sink
    flags: [stdout]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/conmux/conmux.db" {
		t.Errorf("Database.Path = %q, not overridden", cfg.Database.Path)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if len(cfg.Consoles) != 2 {
		t.Fatalf("len(Consoles) = %d, want 2", len(cfg.Consoles))
	}
	if cfg.Consoles[0].Type != "virtual" || cfg.Consoles[0].Scrollback != 4096 {
		t.Errorf("Consoles[0] = %+v, want virtual with scrollback 4096", cfg.Consoles[0])
	}
	if got := cfg.Consoles[1].Flags; len(got) != 1 || got[0] != "stdout" {
		t.Errorf("Consoles[1].Flags = %v, want [stdout]", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONMUX_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("CONMUX_MQTT_HOST", "broker.example")
	t.Setenv("CONMUX_JWT_SECRET", strings.Repeat("s", 32))

	path := writeConfig(t, `
node:
  id: test-node
database:
  path: ./data/file.db
api:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, env override not applied", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.example" {
		t.Errorf("MQTT.Broker.Host = %q, env override not applied", cfg.MQTT.Broker.Host)
	}
	if cfg.Security.JWT.Secret == "" {
		t.Error("Security.JWT.Secret empty, env override not applied")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() with missing file, want error")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "node: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() with malformed YAML, want error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Node.ID = "test-node"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(*Config) {},
		},
		{
			name:    "missing node id",
			mutate:  func(c *Config) { c.Node.ID = "" },
			wantErr: "node.id",
		},
		{
			name: "unknown console type",
			mutate: func(c *Config) {
				c.Consoles = []ConsoleConfig{{Type: "serial"}}
			},
			wantErr: "consoles[0].type",
		},
		{
			name: "bad console flag",
			mutate: func(c *Config) {
				c.Consoles = []ConsoleConfig{{Type: "null", Flags: []string{"stderr"}}}
			},
			wantErr: "flags",
		},
		{
			name: "ns16550 without window",
			mutate: func(c *Config) {
				c.Consoles = []ConsoleConfig{{Type: "ns16550"}}
			},
			wantErr: "uart.window",
		},
		{
			name: "ns16550 bad reg width",
			mutate: func(c *Config) {
				c.Consoles = []ConsoleConfig{{
					Type: "ns16550",
					UART: UARTConfig{Window: "/dev/mem", RegWidth: 3},
				}}
			},
			wantErr: "reg_width",
		},
		{
			name: "mqtt console without broker",
			mutate: func(c *Config) {
				c.Consoles = []ConsoleConfig{{
					Type: "mqtt",
					MQTT: ConsoleMQTTConfig{OutTopic: "conmux/guest0/out"},
				}}
			},
			wantErr: "mqtt.enabled",
		},
		{
			name: "unnamed mqtt console without topics",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.Consoles = []ConsoleConfig{{Type: "mqtt"}}
			},
			wantErr: "name is required",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "api enabled without jwt secret",
			mutate:  func(c *Config) { c.API.Enabled = true },
			wantErr: "security.jwt.secret",
		},
		{
			name: "api enabled with short jwt secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "short"
			},
			wantErr: "32 characters",
		},
		{
			name: "api enabled with strong jwt secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = strings.Repeat("x", 32)
			},
		},
		{
			name: "transcript without database path",
			mutate: func(c *Config) {
				c.Transcript.Enabled = true
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutAccessors(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %vs, want 60s", got)
	}
}
