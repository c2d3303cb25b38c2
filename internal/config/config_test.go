package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpedde/nrf24-mqtt/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	config := Default()

	assert.Equal(t, "127.0.0.1", config.MQTT.Host)
	assert.Equal(t, 1883, config.MQTT.Port)
	assert.Equal(t, 60*time.Second, config.MQTT.Keepalive)
	assert.Equal(t, 2, config.Workers)
	assert.True(t, config.MaskSignals)
	assert.Equal(t, SourceSimulator, config.Source)
	assert.Nil(t, config.ListenAddress)
	assert.NotNil(t, config.Sensors)
	assert.Equal(t, "tcp://127.0.0.1:1883", config.MQTT.BrokerURL())
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, "nrf24.yaml", `
mqtt:
  host: broker.local
  port: 8883
  keepalive: 30s
  topic_prefix: home/sensors
  qos: 1
  retain: true
workers:
  count: 4
  mask_signals: false
radio:
  listen_address: "AEAEAEAE01"
  source: frames
  device: /tmp/frames
sensors:
  - address: "aeaeaeae00"
    name: porch
  - address: "0102030405"
    name: garage
retry:
  max_attempts: 5
  initial_delay: 50ms
stats:
  interval: 10s
  metrics_listen: ":9108"
shutdown:
  abandon: true
`)

	file, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, file.Validate())

	config, err := file.ToConfig()
	require.NoError(t, err)

	assert.Equal(t, "broker.local", config.MQTT.Host)
	assert.Equal(t, 8883, config.MQTT.Port)
	assert.Equal(t, 30*time.Second, config.MQTT.Keepalive)
	assert.Equal(t, "home/sensors", config.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), config.MQTT.QoS)
	assert.True(t, config.MQTT.Retain)
	assert.Equal(t, 4, config.Workers)
	assert.False(t, config.MaskSignals)

	require.NotNil(t, config.ListenAddress)
	assert.Equal(t, "aeaeaeae01", config.ListenAddress.String())
	assert.Equal(t, SourceFrames, config.Source)
	assert.Equal(t, "/tmp/frames", config.Device)

	assert.Len(t, config.Sensors, 2)
	assert.Equal(t, "porch", config.Sensors[sensor.Address{0xAE, 0xAE, 0xAE, 0xAE, 0x00}])
	assert.Equal(t, "garage", config.Sensors[sensor.Address{1, 2, 3, 4, 5}])

	assert.Equal(t, 5, config.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, config.Retry.InitialDelay)
	assert.Equal(t, 5*time.Second, config.Retry.MaxDelay)

	assert.Equal(t, 10*time.Second, config.StatsInterval)
	assert.Equal(t, ":9108", config.MetricsListen)
	assert.True(t, config.Abandon)
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeConfig(t, "nrf24.json", `{
  "mqtt": {"host": "10.0.0.2"},
  "workers": {"count": 3},
  "sensors": [{"address": "0a0b0c0d0e", "name": "attic"}]
}`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2", config.MQTT.Host)
	assert.Equal(t, 1883, config.MQTT.Port)
	assert.Equal(t, 3, config.Workers)
	assert.True(t, config.MaskSignals)
	assert.Equal(t, "attic", config.Sensors[sensor.Address{0x0a, 0x0b, 0x0c, 0x0d, 0x0e}])
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeConfig(t, "nrf24.toml", "a = 1")
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "unsupported config format")
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := writeConfig(t, "nrf24.yaml", "mqtt: [unclosed")
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "failed to parse YAML")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*FileConfig)
		wantErr string
	}{
		{
			name:   "empty file is valid",
			modify: func(f *FileConfig) {},
		},
		{
			name:    "port out of range",
			modify:  func(f *FileConfig) { f.MQTT.Port = 70000 },
			wantErr: "mqtt.port",
		},
		{
			name:    "bad qos",
			modify:  func(f *FileConfig) { f.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "negative workers",
			modify:  func(f *FileConfig) { f.Workers.Count = -1 },
			wantErr: "workers.count",
		},
		{
			name:    "unknown source",
			modify:  func(f *FileConfig) { f.Radio.Source = "spi" },
			wantErr: "unknown radio.source",
		},
		{
			name: "unnamed sensor",
			modify: func(f *FileConfig) {
				f.Sensors = []SensorConfig{{Address: "0102030405"}}
			},
			wantErr: "sensors[0].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := &FileConfig{}
			tt.modify(file)

			err := file.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestToConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    FileConfig
		wantErr string
	}{
		{
			name:    "bad keepalive",
			file:    FileConfig{MQTT: MQTTConfig{Keepalive: "soon"}},
			wantErr: "mqtt.keepalive",
		},
		{
			name:    "negative interval",
			file:    FileConfig{Stats: StatsConfig{Interval: "-1s"}},
			wantErr: "stats.interval",
		},
		{
			name:    "bad listen address",
			file:    FileConfig{Radio: RadioConfig{ListenAddress: "xyz"}},
			wantErr: "invalid listen address",
		},
		{
			name:    "bad sensor address",
			file:    FileConfig{Sensors: []SensorConfig{{Address: "01", Name: "short"}}},
			wantErr: "sensors[0].address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.file.ToConfig()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
