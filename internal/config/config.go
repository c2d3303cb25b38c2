// Package config loads the daemon configuration file
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rpedde/nrf24-mqtt/internal/sensor"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its config without -c
const DefaultPath = "/etc/nrf24-mqtt.yaml"

// Radio source kinds
const (
	SourceSimulator = "simulator"
	SourceFrames    = "frames"
)

// FileConfig is the structure of the configuration file
type FileConfig struct {
	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Workers  WorkersConfig  `yaml:"workers" json:"workers"`
	Radio    RadioConfig    `yaml:"radio" json:"radio"`
	Sensors  []SensorConfig `yaml:"sensors" json:"sensors"`
	Retry    RetryConfig    `yaml:"retry" json:"retry"`
	Stats    StatsConfig    `yaml:"stats" json:"stats"`
	Shutdown ShutdownConfig `yaml:"shutdown" json:"shutdown"`
	Debug    DebugConfig    `yaml:"debug" json:"debug"`
}

// MQTTConfig is the broker connection section
type MQTTConfig struct {
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	Keepalive      string `yaml:"keepalive" json:"keepalive"`
	ConnectTimeout string `yaml:"connect_timeout" json:"connect_timeout"`
	ClientIDPrefix string `yaml:"client_id_prefix" json:"client_id_prefix"`
	TopicPrefix    string `yaml:"topic_prefix" json:"topic_prefix"`
	QoS            int    `yaml:"qos" json:"qos"`
	Retain         bool   `yaml:"retain" json:"retain"`
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password" json:"password"`
}

// WorkersConfig is the publisher work queue section
type WorkersConfig struct {
	Count       int   `yaml:"count" json:"count"`
	MaskSignals *bool `yaml:"mask_signals" json:"mask_signals"`
}

// RadioConfig selects where sensor frames come from
type RadioConfig struct {
	ListenAddress string          `yaml:"listen_address" json:"listen_address"`
	Source        string          `yaml:"source" json:"source"`
	Device        string          `yaml:"device" json:"device"`
	Simulator     SimulatorConfig `yaml:"simulator" json:"simulator"`
}

// SimulatorConfig drives the built-in test source
type SimulatorConfig struct {
	Count    int    `yaml:"count" json:"count"`
	Interval string `yaml:"interval" json:"interval"`
	Address  string `yaml:"address" json:"address"`
}

// SensorConfig names one sensor address
type SensorConfig struct {
	Address string `yaml:"address" json:"address"`
	Name    string `yaml:"name" json:"name"`
}

// RetryConfig controls MQTT connect and publish retries
type RetryConfig struct {
	MaxAttempts  int    `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay string `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string `yaml:"max_delay" json:"max_delay"`
}

// StatsConfig controls the stats reporter and metrics endpoint
type StatsConfig struct {
	Interval      string `yaml:"interval" json:"interval"`
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
}

// ShutdownConfig controls how the publisher queue is torn down
type ShutdownConfig struct {
	Abandon bool `yaml:"abandon" json:"abandon"`
}

// DebugConfig holds troubleshooting switches
type DebugConfig struct {
	DeadlockDetection bool   `yaml:"deadlock_detection" json:"deadlock_detection"`
	DeadlockTimeout   string `yaml:"deadlock_timeout" json:"deadlock_timeout"`
}

// Config is the validated, typed configuration
type Config struct {
	MQTT MQTT

	Workers     int
	MaskSignals bool

	ListenAddress *sensor.Address
	Source        string
	Device        string
	Simulator     Simulator

	Sensors map[sensor.Address]string

	Retry Retry

	StatsInterval time.Duration
	MetricsListen string

	Abandon bool

	DeadlockDetection bool
	DeadlockTimeout   time.Duration
}

// MQTT is the typed broker configuration
type MQTT struct {
	Host           string
	Port           int
	Keepalive      time.Duration
	ConnectTimeout time.Duration
	ClientIDPrefix string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	Username       string
	Password       string
}

// BrokerURL returns the paho broker URL
func (m MQTT) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// Simulator is the typed simulator configuration
type Simulator struct {
	Count    int
	Interval time.Duration
	Address  sensor.Address
}

// Retry is the typed retry configuration
type Retry struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Default returns the configuration used for anything the file leaves out
func Default() *Config {
	return &Config{
		MQTT: MQTT{
			Host:           "127.0.0.1",
			Port:           1883,
			Keepalive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ClientIDPrefix: "nrf24-mqtt",
			TopicPrefix:    "nrf24",
		},
		Workers:     2,
		MaskSignals: true,
		Source:      SourceSimulator,
		Device:      "/dev/stdin",
		Simulator: Simulator{
			Count:    100,
			Interval: time.Second,
			Address:  sensor.Address{0xAE, 0xAE, 0xAE, 0xAE, 0x00},
		},
		Sensors: make(map[sensor.Address]string),
		Retry: Retry{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		StatsInterval:   30 * time.Second,
		DeadlockTimeout: 30 * time.Second,
	}
}

// LoadFile reads a YAML or JSON configuration file
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml", ".conf":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Load reads, validates and resolves a configuration file
func Load(path string) (*Config, error) {
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return file.ToConfig()
}

// Validate checks value ranges that do not need parsing
func (f *FileConfig) Validate() error {
	if f.MQTT.Port < 0 || f.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 0 and 65535")
	}
	if f.MQTT.QoS < 0 || f.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if f.Workers.Count < 0 {
		return fmt.Errorf("workers.count must be non-negative")
	}
	if f.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be non-negative")
	}
	if f.Radio.Simulator.Count < 0 {
		return fmt.Errorf("radio.simulator.count must be non-negative")
	}

	switch strings.ToLower(f.Radio.Source) {
	case "", SourceSimulator, SourceFrames:
	default:
		return fmt.Errorf("unknown radio.source: %s", f.Radio.Source)
	}

	for i, s := range f.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensors[%d].name must not be empty", i)
		}
	}

	return nil
}

// ToConfig applies the file on top of Default
func (f *FileConfig) ToConfig() (*Config, error) {
	config := Default()

	if f.MQTT.Host != "" {
		config.MQTT.Host = f.MQTT.Host
	}
	if f.MQTT.Port > 0 {
		config.MQTT.Port = f.MQTT.Port
	}
	if err := parseDuration("mqtt.keepalive", f.MQTT.Keepalive, &config.MQTT.Keepalive); err != nil {
		return nil, err
	}
	if err := parseDuration("mqtt.connect_timeout", f.MQTT.ConnectTimeout, &config.MQTT.ConnectTimeout); err != nil {
		return nil, err
	}
	if f.MQTT.ClientIDPrefix != "" {
		config.MQTT.ClientIDPrefix = f.MQTT.ClientIDPrefix
	}
	if f.MQTT.TopicPrefix != "" {
		config.MQTT.TopicPrefix = f.MQTT.TopicPrefix
	}
	config.MQTT.QoS = byte(f.MQTT.QoS)
	config.MQTT.Retain = f.MQTT.Retain
	config.MQTT.Username = f.MQTT.Username
	config.MQTT.Password = f.MQTT.Password

	if f.Workers.Count > 0 {
		config.Workers = f.Workers.Count
	}
	if f.Workers.MaskSignals != nil {
		config.MaskSignals = *f.Workers.MaskSignals
	}

	if f.Radio.ListenAddress != "" {
		addr, err := sensor.ParseAddress(f.Radio.ListenAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid listen address: %w", err)
		}
		config.ListenAddress = &addr
	}
	if f.Radio.Source != "" {
		config.Source = strings.ToLower(f.Radio.Source)
	}
	if f.Radio.Device != "" {
		config.Device = f.Radio.Device
	}
	if f.Radio.Simulator.Count > 0 {
		config.Simulator.Count = f.Radio.Simulator.Count
	}
	if err := parseDuration("radio.simulator.interval", f.Radio.Simulator.Interval, &config.Simulator.Interval); err != nil {
		return nil, err
	}
	if f.Radio.Simulator.Address != "" {
		addr, err := sensor.ParseAddress(f.Radio.Simulator.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid simulator address: %w", err)
		}
		config.Simulator.Address = addr
	}

	for i, s := range f.Sensors {
		addr, err := sensor.ParseAddress(s.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid sensors[%d].address: %w", i, err)
		}
		config.Sensors[addr] = s.Name
	}

	if f.Retry.MaxAttempts > 0 {
		config.Retry.MaxAttempts = f.Retry.MaxAttempts
	}
	if err := parseDuration("retry.initial_delay", f.Retry.InitialDelay, &config.Retry.InitialDelay); err != nil {
		return nil, err
	}
	if err := parseDuration("retry.max_delay", f.Retry.MaxDelay, &config.Retry.MaxDelay); err != nil {
		return nil, err
	}

	if err := parseDuration("stats.interval", f.Stats.Interval, &config.StatsInterval); err != nil {
		return nil, err
	}
	config.MetricsListen = f.Stats.MetricsListen

	config.Abandon = f.Shutdown.Abandon

	config.DeadlockDetection = f.Debug.DeadlockDetection
	if err := parseDuration("debug.deadlock_timeout", f.Debug.DeadlockTimeout, &config.DeadlockTimeout); err != nil {
		return nil, err
	}

	return config, nil
}

// parseDuration overwrites dst when value is set
func parseDuration(key, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("invalid %s: must be non-negative", key)
	}
	*dst = d
	return nil
}
