package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rate_table.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
# test rig config
SERIAL_PORT = /dev/ttyUSB0
AMPLITUDE_DEG = 15
MQTT_BROKER = tcp://localhost:1883
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialPort)
	assert.Equal(t, 15.0, cfg.AmplitudeDeg)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)

	// Untouched keys keep the rig defaults.
	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, 0.3, cfg.FrequencyHz)
	assert.Equal(t, 5.0, cfg.TargetSampleRateHz)
	assert.Equal(t, -30.0, cfg.MinPositionDeg)
	assert.Equal(t, 50.0, cfg.MaxPositionDeg)
	assert.Equal(t, 30.0, cfg.MaxJumpDeg)
}

func TestLoadRequiresSerialPort(t *testing.T) {
	path := writeConfig(t, "AMPLITUDE_DEG = 10\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERIAL_PORT")
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "SERIAL_PORT = /dev/ttyUSB0\nBOGUS = 1\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeConfig(t, "SERIAL_PORT /dev/ttyUSB0\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvertedBounds(t *testing.T) {
	path := writeConfig(t, `
SERIAL_PORT = /dev/ttyUSB0
MIN_POSITION_DEG = 50
MAX_POSITION_DEG = -30
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_POSITION_DEG")
}
