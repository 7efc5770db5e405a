// SPDX-License-Identifier: MIT

/*
Package lights drives the output channels of the light array.

A Driver receives whole batches: one SetChannels call per bar change and a
single TurnOff when a session ends. Drivers copy the index slice if they need
it after the call returns; callers reuse it.

Drivers:
- log: writes batches to the debug log (dry runs, tests)
- websocket: broadcasts the latest array state as JSON to simulation viewers
- udp: sends binary packets to a light node (see package udp)
- terminal: renders the array in the terminal (package tui)
*/
package lights

import (
	"errors"
	"fmt"
	"sync"

	"visualizer/internal/config"
	"visualizer/internal/log"
)

var logger = log.New("lights")

// Driver is the output side of the sync loop.
type Driver interface {
	// SetChannels sets every channel in indices to color at intensity
	// (0-100) in one batched write.
	SetChannels(indices []int, color Color, intensity int) error
	// TurnOff switches every channel off.
	TurnOff() error
	Close() error
}

// Color is an RGBW value.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	W uint8 `json:"w"`
}

// Off is the color of an unlit channel.
var Off = Color{}

func ColorFromConfig(c config.ColorConfig) Color {
	return Color{R: c.R, G: c.G, B: c.B, W: c.W}
}

func (c Color) IsOff() bool { return c == Off }

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.W)
}

var (
	ErrClosed     = errors.New("driver is closed")
	ErrOutOfRange = errors.New("channel index out of range")
)

// DriverError reports a failed write to the light array.
type DriverError struct {
	Driver string // Driver name, e.g. "udp".
	Op     string // "set", "off" or "close".
	Err    error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s driver: %s failed: %v", e.Driver, e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Channel is the last value written to one output channel.
type Channel struct {
	Color     Color `json:"color"`
	Intensity int   `json:"intensity"`
}

// Lit reports whether the channel is on.
func (c Channel) Lit() bool { return !c.Color.IsOff() && c.Intensity > 0 }

// State mirrors the light array for drivers that need to replay or render it.
type State struct {
	mu       sync.Mutex
	channels []Channel
}

func NewState(channels int) *State {
	return &State{channels: make([]Channel, channels)}
}

// Set applies a batch. Nothing is changed if any index is out of range.
func (s *State) Set(indices []int, color Color, intensity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= len(s.channels) {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(s.channels))
		}
	}
	for _, i := range indices {
		s.channels[i] = Channel{Color: color, Intensity: intensity}
	}
	return nil
}

func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.channels)
}

// Snapshot returns a copy of every channel.
func (s *State) Snapshot() []Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// LitCount returns the number of channels currently on.
func (s *State) LitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.channels {
		if c.Lit() {
			n++
		}
	}
	return n
}

func (s *State) Len() int { return len(s.channels) }

// ChannelCount returns the size of the array addressed by bars.
func ChannelCount(bars []config.BarConfig) int {
	n := 0
	for _, b := range bars {
		n = max(n, b.Channels.To)
	}
	return n
}

// New builds the driver selected by cfg.Driver. The terminal driver needs
// the UI and is built by the tui package instead.
func New(cfg config.LightsConfig) (Driver, error) {
	channels := ChannelCount(cfg.Bars)
	switch cfg.Driver {
	case config.DriverLog:
		return NewLogDriver(channels), nil
	case config.DriverWebSocket:
		d := NewWebSocketDriver(cfg.WebSocketAddress, channels)
		if err := d.Start(); err != nil {
			d.Close()
			return nil, err
		}
		return d, nil
	case config.DriverUDP:
		return NewUDPDriver(cfg.UDPTargetAddress)
	case config.DriverTerminal:
		return nil, fmt.Errorf("lights driver '%s' is provided by the terminal UI", cfg.Driver)
	default:
		return nil, fmt.Errorf("unknown lights driver '%s'", cfg.Driver)
	}
}
