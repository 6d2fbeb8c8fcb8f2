package xbee

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the three configurable timeouts, taken from the original
// source's AbstractXBeeDevice constants (DEFAULT_RECEIVE_TIMETOUT,
// TIMEOUT_BEFORE_COMMAND_MODE, TIMEOUT_ENTER_COMMAND_MODE).
const (
	DefaultReceiveTimeout           = 2000 * time.Millisecond
	DefaultEnterCommandModeGuard    = 1200 * time.Millisecond
	DefaultEnterCommandModeTimeout  = 1500 * time.Millisecond
	DefaultBaud                     = 9600
)

// Config is the top-level configuration loaded from YAML.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// DeviceConfig configures the serial link and the device facade's timeouts.
type DeviceConfig struct {
	Port                      string `yaml:"port"`
	Baud                      int    `yaml:"baud"`
	OperatingMode             string `yaml:"operating_mode"`
	ReceiveTimeoutMs          int    `yaml:"receive_timeout_ms"`
	EnterCommandModeGuardMs   int    `yaml:"enter_command_mode_guard_ms"`
	EnterCommandModeTimeoutMs int    `yaml:"enter_command_mode_timeout_ms"`
}

func (d DeviceConfig) ReceiveTimeout() time.Duration {
	return time.Duration(d.ReceiveTimeoutMs) * time.Millisecond
}

func (d DeviceConfig) EnterCommandModeGuard() time.Duration {
	return time.Duration(d.EnterCommandModeGuardMs) * time.Millisecond
}

func (d DeviceConfig) EnterCommandModeTimeout() time.Duration {
	return time.Duration(d.EnterCommandModeTimeoutMs) * time.Millisecond
}

// ParseOperatingMode maps a config string to an OperatingMode.
func ParseOperatingMode(s string) OperatingMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "api":
		return ModeAPI
	case "api_escape", "api-escape":
		return ModeAPIEscape
	case "at":
		return ModeAT
	default:
		return ModeUnknown
	}
}

// LogConfig configures the slog handler cmd/xbeectl builds.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MonitorConfig configures the optional debug WebSocket frame monitor.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig configures the optional MQTT event bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// ApplyDefaults fills every zero-valued field with its documented default.
func (c *Config) ApplyDefaults() {
	if c.Device.Baud == 0 {
		c.Device.Baud = DefaultBaud
	}
	if c.Device.OperatingMode == "" {
		c.Device.OperatingMode = "api_escape"
	}
	if c.Device.ReceiveTimeoutMs == 0 {
		c.Device.ReceiveTimeoutMs = int(DefaultReceiveTimeout / time.Millisecond)
	}
	if c.Device.EnterCommandModeGuardMs == 0 {
		c.Device.EnterCommandModeGuardMs = int(DefaultEnterCommandModeGuard / time.Millisecond)
	}
	if c.Device.EnterCommandModeTimeoutMs == 0 {
		c.Device.EnterCommandModeTimeoutMs = int(DefaultEnterCommandModeTimeout / time.Millisecond)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Monitor.Listen == "" {
		c.Monitor.Listen = "127.0.0.1:8088"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "xbee"
	}
}

// LoadConfig reads and parses a YAML config file, applying defaults to
// every field left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
