// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the visualizer.
const (
	// Audio playback
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
	BackendHeadless  = "headless"

	DefaultBackend         = BackendPortAudio
	DefaultOutputDevice    = MinDeviceID // System default output
	DefaultFramesPerBuffer = 512
	DefaultFetchTimeout    = 30 * time.Second

	// Spectral analysis; 4x2048 window and 512 hop are the reference values.
	DefaultWindowSize   = 4 * 2048
	DefaultHopLength    = 512
	DefaultWindow       = "hann"
	DefaultAmin         = 1e-5
	DefaultTopDB        = 80.0
	DefaultMaxFrequency = 0.0 // Keep the full spectrum

	// Sync loop
	EndDetectionBusy     = "busy"
	EndDetectionPosition = "position"

	DefaultEndDetection = EndDetectionBusy
	DefaultMinInterval  = time.Duration(0) // Tight poll

	// Error handling configuration
	DefaultMaxConsecutiveWriteFailures = 5 // Max failed frames before stopping

	// Lights
	DriverLog       = "log"
	DriverWebSocket = "websocket"
	DriverUDP       = "udp"
	DriverTerminal  = "terminal"

	DefaultDriver           = DriverLog
	DefaultWebSocketAddress = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultIntensity        = 100
	DefaultMinDB            = -80.0
	DefaultMaxDB            = 0.0

	// Message bus
	DefaultBroker         = "tcp://localhost:1883"
	DefaultClientID       = "audio-visualizer"
	DefaultCommandTopic   = "openlab/audio-visualizer"
	DefaultMirrorTopic    = "openlab/audio-visualizer/mirror"
	DefaultConnectTimeout = 10 * time.Second
	DefaultPublishTimeout = 5 * time.Second

	// Limits
	MinDeviceID  = -1 // -1 represents system default device
	MaxIntensity = 100
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug    bool           `yaml:"debug"`             // Force debug logging.
	LogLevel string         `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	LogFile  string         `yaml:"log_file"`          // Log destination when the terminal driver owns stderr.
	Command  string         `yaml:"command,omitempty"` // A one-off command set by the CLI, never read from file.
	Audio    AudioConfig    `yaml:"audio"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Sync     SyncConfig     `yaml:"sync"`
	Lights   LightsConfig   `yaml:"lights"`
	Bus      BusConfig      `yaml:"bus"`
}

// AudioConfig holds settings for source retrieval and the playback engine.
type AudioConfig struct {
	Backend         string        `yaml:"backend"`           // "portaudio", "oto" or "headless".
	OutputDevice    int           `yaml:"output_device"`     // PortAudio device index (-1 for default).
	FramesPerBuffer int           `yaml:"frames_per_buffer"` // Frames per PortAudio callback.
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`     // Timeout for downloading remote sources.
}

// AnalysisConfig holds the short-time Fourier transform parameters.
type AnalysisConfig struct {
	WindowSize   int     `yaml:"window_size"`   // Samples per transform (power of 2).
	HopLength    int     `yaml:"hop_length"`    // Samples between frames.
	Window       string  `yaml:"window"`        // Window function name (e.g., "hann", "hamming").
	Amin         float64 `yaml:"amin"`          // Magnitude floor before taking the log.
	TopDB        float64 `yaml:"top_db"`        // Dynamic range kept below the loudest cell.
	MaxFrequency float64 `yaml:"max_frequency"` // Highest frequency kept in the grid (0 = Nyquist).
	Workers      int     `yaml:"workers"`       // Parallel transform workers (0 = GOMAXPROCS).
}

// SyncConfig holds settings for the real-time sync loop.
type SyncConfig struct {
	EndDetection           string        `yaml:"end_detection"`            // "busy" or "position".
	MinInterval            time.Duration `yaml:"min_interval"`             // Minimum time between ticks (0 = tight poll).
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"` // Failed frames tolerated before aborting.
}

// LightsConfig holds the output driver and the static bar layout.
type LightsConfig struct {
	Driver           string      `yaml:"driver"`             // "log", "websocket", "udp" or "terminal".
	WebSocketAddress string      `yaml:"websocket_address"`  // Listen address for the simulation viewer.
	UDPTargetAddress string      `yaml:"udp_target_address"` // Light node address for the udp driver.
	Color            ColorConfig `yaml:"color"`              // Color used for lit channels.
	Intensity        int         `yaml:"intensity"`          // Intensity sent with every batch (0-100).
	Bars             []BarConfig `yaml:"bars"`               // Bars in update order.
}

// ColorConfig is an RGBW color.
type ColorConfig struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
	W uint8 `yaml:"w"`
}

// BarConfig binds a frequency band to a column of output channels.
type BarConfig struct {
	Name     string       `yaml:"name"`
	Channels ChannelRange `yaml:"channels"`
	StartHz  int          `yaml:"start_hz"` // Inclusive.
	StopHz   int          `yaml:"stop_hz"`  // Exclusive.
	MinDB    float64      `yaml:"min_db"`
	MaxDB    float64      `yaml:"max_db"`
}

// ChannelRange is the half-open channel interval [From, To), optionally
// lit from To-1 downwards.
type ChannelRange struct {
	From    int  `yaml:"from"`
	To      int  `yaml:"to"`
	Reverse bool `yaml:"reverse"`
}

// Indices expands the range into channel indices in lighting order.
func (r ChannelRange) Indices() []int {
	if r.To <= r.From {
		return nil
	}
	out := make([]int, 0, r.To-r.From)
	for i := r.From; i < r.To; i++ {
		out = append(out, i)
	}
	if r.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// BusConfig holds the message transport settings.
type BusConfig struct {
	Broker         string        `yaml:"broker"`          // MQTT broker URL; empty runs without a bus.
	ClientID       string        `yaml:"client_id"`       // MQTT client identifier.
	CommandTopic   string        `yaml:"command_topic"`   // Topic carrying {"play": ...} commands.
	MirrorTopic    string        `yaml:"mirror_topic"`    // Topic the primary node mirrors play commands to.
	Primary        bool          `yaml:"primary"`         // Mirror playback and mute local audio.
	QoS            byte          `yaml:"qos"`             // MQTT quality of service (0-2).
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // Broker connect timeout.
	PublishTimeout time.Duration `yaml:"publish_timeout"` // Mirror publish timeout.
}

// DefaultBars is the six-column layout of the lab's light wall. Bass bars
// sit on the last three (bottom-up) columns.
func DefaultBars() []BarConfig {
	columns := []ChannelRange{
		{From: 70, To: 82},
		{From: 43, To: 55},
		{From: 16, To: 28},
		{From: 55, To: 70, Reverse: true},
		{From: 28, To: 43, Reverse: true},
		{From: 1, To: 16, Reverse: true},
	}
	bands := []struct {
		name        string
		start, stop int
	}{
		{"sub", 20, 60},
		{"bass", 61, 250},
		{"heavy", 251, 500},
		{"low", 501, 2000},
		{"high", 2000, 4000},
		{"treble", 4000, 6000},
	}

	bars := make([]BarConfig, len(bands))
	for i, band := range bands {
		bars[i] = BarConfig{
			Name:     band.name,
			Channels: columns[len(columns)-1-i],
			StartHz:  band.start,
			StopHz:   band.stop,
			MinDB:    DefaultMinDB,
			MaxDB:    DefaultMaxDB,
		}
	}
	return bars
}

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogFile:  "visualizer.log",
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    DefaultOutputDevice,
			FramesPerBuffer: DefaultFramesPerBuffer,
			FetchTimeout:    DefaultFetchTimeout,
		},
		Analysis: AnalysisConfig{
			WindowSize:   DefaultWindowSize,
			HopLength:    DefaultHopLength,
			Window:       DefaultWindow,
			Amin:         DefaultAmin,
			TopDB:        DefaultTopDB,
			MaxFrequency: DefaultMaxFrequency,
		},
		Sync: SyncConfig{
			EndDetection:           DefaultEndDetection,
			MinInterval:            DefaultMinInterval,
			MaxConsecutiveFailures: DefaultMaxConsecutiveWriteFailures,
		},
		Lights: LightsConfig{
			Driver:           DefaultDriver,
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTargetAddress,
			Color:            ColorConfig{W: 255},
			Intensity:        DefaultIntensity,
			Bars:             DefaultBars(),
		},
		Bus: BusConfig{
			Broker:         DefaultBroker,
			ClientID:       DefaultClientID,
			CommandTopic:   DefaultCommandTopic,
			MirrorTopic:    DefaultMirrorTopic,
			ConnectTimeout: DefaultConnectTimeout,
			PublishTimeout: DefaultPublishTimeout,
		},
	}
}
