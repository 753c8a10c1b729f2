package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all rig configuration values. Everything is fixed at start;
// nothing is renegotiated during a run.
type Config struct {
	// Serial link
	SerialPort string
	BaudRate   int

	// Position log
	LogFile string

	// Motion profile
	AmplitudeDeg float64
	FrequencyHz  float64
	DurationSec  float64
	NumCycles    int

	// Sampling
	TargetSampleRateHz float64

	// Outlier policy
	MinPositionDeg float64
	MaxPositionDeg float64
	MaxJumpDeg     float64

	// Telemetry (optional; empty broker disables it)
	MQTTBroker    string
	MQTTClientID  string
	TopicPosition string
	TopicState    string

	// Run archive (optional; empty path disables it)
	ArchiveDB string

	// Web viewer
	WebServerPort int
}

// Default returns the configuration the rig has always run with; a config
// file overrides individual keys.
func Default() *Config {
	return &Config{
		BaudRate:           9600,
		LogFile:            "rate_table_sinusoid_test.csv",
		AmplitudeDeg:       20,
		FrequencyHz:        0.3,
		DurationSec:        180,
		NumCycles:          54,
		TargetSampleRateHz: 5,
		MinPositionDeg:     -30,
		MaxPositionDeg:     50,
		MaxJumpDeg:         30,
		MQTTClientID:       "ratetable-rig",
		TopicPosition:      "ratetable/position",
		TopicState:         "ratetable/state",
		WebServerPort:      8080,
	}
}

// Load reads the configuration file over the defaults and validates the
// result.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	case "SERIAL_PORT":
		c.SerialPort = value
	case "BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BAUD_RATE %q: %w", value, err)
		}
		c.BaudRate = rate

	case "LOG_FILE":
		c.LogFile = value

	case "AMPLITUDE_DEG":
		return c.setFloat(&c.AmplitudeDeg, key, value)
	case "FREQUENCY_HZ":
		return c.setFloat(&c.FrequencyHz, key, value)
	case "DURATION_SEC":
		return c.setFloat(&c.DurationSec, key, value)
	case "NUM_CYCLES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NUM_CYCLES %q: %w", value, err)
		}
		c.NumCycles = n

	case "TARGET_SAMPLE_RATE_HZ":
		return c.setFloat(&c.TargetSampleRateHz, key, value)

	case "MIN_POSITION_DEG":
		return c.setFloat(&c.MinPositionDeg, key, value)
	case "MAX_POSITION_DEG":
		return c.setFloat(&c.MaxPositionDeg, key, value)
	case "MAX_JUMP_DEG":
		return c.setFloat(&c.MaxJumpDeg, key, value)

	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_POSITION":
		c.TopicPosition = value
	case "TOPIC_STATE":
		c.TopicState = value

	case "ARCHIVE_DB":
		c.ArchiveDB = value

	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func (c *Config) setFloat(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = f
	return nil
}

// validate checks that the configuration describes a runnable test.
func (c *Config) validate() error {
	if c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("BAUD_RATE must be positive, got %d", c.BaudRate)
	}
	if c.LogFile == "" {
		return fmt.Errorf("LOG_FILE is required")
	}
	if c.AmplitudeDeg <= 0 {
		return fmt.Errorf("AMPLITUDE_DEG must be positive, got %g", c.AmplitudeDeg)
	}
	if c.FrequencyHz <= 0 {
		return fmt.Errorf("FREQUENCY_HZ must be positive, got %g", c.FrequencyHz)
	}
	if c.DurationSec <= 0 {
		return fmt.Errorf("DURATION_SEC must be positive, got %g", c.DurationSec)
	}
	if c.NumCycles <= 0 {
		return fmt.Errorf("NUM_CYCLES must be positive, got %d", c.NumCycles)
	}
	if c.TargetSampleRateHz <= 0 {
		return fmt.Errorf("TARGET_SAMPLE_RATE_HZ must be positive, got %g", c.TargetSampleRateHz)
	}
	if c.MinPositionDeg >= c.MaxPositionDeg {
		return fmt.Errorf("MIN_POSITION_DEG %g must be below MAX_POSITION_DEG %g",
			c.MinPositionDeg, c.MaxPositionDeg)
	}
	if c.MaxJumpDeg <= 0 {
		return fmt.Errorf("MAX_JUMP_DEG must be positive, got %g", c.MaxJumpDeg)
	}
	return nil
}
