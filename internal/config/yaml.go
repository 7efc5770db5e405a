// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"visualizer/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"/etc/visualizer/config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyBarDefaults()

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Audio.Backend {
	case BackendPortAudio, BackendOto, BackendHeadless:
	default:
		return fmt.Errorf("audio.backend '%s' is not one of %s, %s, %s",
			c.Audio.Backend, BackendPortAudio, BackendOto, BackendHeadless)
	}
	if c.Audio.OutputDevice < MinDeviceID {
		return fmt.Errorf("audio.output_device must be >= %d, got %d", MinDeviceID, c.Audio.OutputDevice)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("audio.frames_per_buffer must be positive, got %d", c.Audio.FramesPerBuffer)
	}

	if !bitint.IsPowerOfTwo(c.Analysis.WindowSize) {
		return fmt.Errorf("analysis.window_size must be a power of 2, got %d (next is %d)",
			c.Analysis.WindowSize, bitint.NextPowerOfTwo(c.Analysis.WindowSize))
	}
	if c.Analysis.HopLength <= 0 || c.Analysis.HopLength > c.Analysis.WindowSize {
		return fmt.Errorf("analysis.hop_length must be in (0, %d], got %d", c.Analysis.WindowSize, c.Analysis.HopLength)
	}
	if c.Analysis.Amin <= 0 {
		return fmt.Errorf("analysis.amin must be positive, got %g", c.Analysis.Amin)
	}
	if c.Analysis.TopDB <= 0 {
		return fmt.Errorf("analysis.top_db must be positive, got %g", c.Analysis.TopDB)
	}
	if c.Analysis.MaxFrequency < 0 {
		return fmt.Errorf("analysis.max_frequency must not be negative, got %g", c.Analysis.MaxFrequency)
	}

	switch c.Sync.EndDetection {
	case EndDetectionBusy, EndDetectionPosition:
	default:
		return fmt.Errorf("sync.end_detection '%s' is not one of %s, %s",
			c.Sync.EndDetection, EndDetectionBusy, EndDetectionPosition)
	}
	if c.Sync.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("sync.max_consecutive_failures must be positive, got %d", c.Sync.MaxConsecutiveFailures)
	}
	if c.Sync.MinInterval < 0 {
		return fmt.Errorf("sync.min_interval must not be negative, got %s", c.Sync.MinInterval)
	}

	switch c.Lights.Driver {
	case DriverLog, DriverWebSocket, DriverUDP, DriverTerminal:
	default:
		return fmt.Errorf("lights.driver '%s' is not one of %s, %s, %s, %s",
			c.Lights.Driver, DriverLog, DriverWebSocket, DriverUDP, DriverTerminal)
	}
	if c.Lights.Driver == DriverUDP && !strings.Contains(c.Lights.UDPTargetAddress, ":") {
		return fmt.Errorf("lights.udp_target_address '%s' appears invalid (missing port?)", c.Lights.UDPTargetAddress)
	}
	if c.Lights.Intensity < 0 || c.Lights.Intensity > MaxIntensity {
		return fmt.Errorf("lights.intensity must be in [0, %d], got %d", MaxIntensity, c.Lights.Intensity)
	}
	if len(c.Lights.Bars) == 0 {
		return fmt.Errorf("lights.bars must contain at least one bar")
	}
	for i, bar := range c.Lights.Bars {
		if err := bar.validate(); err != nil {
			return fmt.Errorf("lights.bars[%d]: %w", i, err)
		}
	}

	if c.Bus.QoS > 2 {
		return fmt.Errorf("bus.qos must be 0, 1 or 2, got %d", c.Bus.QoS)
	}
	if c.Bus.Broker != "" && c.Bus.CommandTopic == "" {
		return fmt.Errorf("bus.command_topic must be set when a broker is configured")
	}
	if c.Bus.Primary && c.Bus.MirrorTopic == "" {
		return fmt.Errorf("bus.mirror_topic must be set on a primary node")
	}

	return nil
}

func (b BarConfig) validate() error {
	if b.Channels.From < 0 || b.Channels.To <= b.Channels.From {
		return fmt.Errorf("channels [%d, %d) is empty or negative", b.Channels.From, b.Channels.To)
	}
	if b.StartHz < 0 || b.StopHz <= b.StartHz {
		return fmt.Errorf("frequency range [%d, %d) is empty or negative", b.StartHz, b.StopHz)
	}
	if b.MinDB >= b.MaxDB {
		return fmt.Errorf("min_db %g must be below max_db %g", b.MinDB, b.MaxDB)
	}
	return nil
}

// applyBarDefaults fills in the calibration of bars that leave both bounds unset.
func (c *Config) applyBarDefaults() {
	for i := range c.Lights.Bars {
		bar := &c.Lights.Bars[i]
		if bar.MinDB == 0 && bar.MaxDB == 0 {
			bar.MinDB = DefaultMinDB
			bar.MaxDB = DefaultMaxDB
		}
		if bar.Name == "" {
			bar.Name = fmt.Sprintf("bar%d", i)
		}
	}
}

// applyEnvOverrides applies ENV_* variables on top of file and default values.
// Malformed values are reported and ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			fmt.Printf("configuration: Overriding debug from env: %v\n", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		fmt.Printf("configuration: Overriding log_level from env: %s\n", val)
	}
	// ENV_AUDIO_BACKEND
	if val, ok := os.LookupEnv("ENV_AUDIO_BACKEND"); ok {
		cfg.Audio.Backend = val
		fmt.Printf("configuration: Overriding audio.backend from env: %s\n", val)
	}
	// ENV_LIGHTS_DRIVER
	if val, ok := os.LookupEnv("ENV_LIGHTS_DRIVER"); ok {
		cfg.Lights.Driver = val
		fmt.Printf("configuration: Overriding lights.driver from env: %s\n", val)
	}

	// ENV_BUS_{...}
	// These are specific to the message transport.

	// ENV_BUS_BROKER
	if val, ok := os.LookupEnv("ENV_BUS_BROKER"); ok {
		cfg.Bus.Broker = val
		fmt.Printf("configuration: Overriding bus.broker from env: %s\n", val)
	}
	// ENV_BUS_PRIMARY
	if val, ok := os.LookupEnv("ENV_BUS_PRIMARY"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Bus.Primary = bVal
			fmt.Printf("configuration: Overriding bus.primary from env: %v\n", bVal)
		}
	}
}
