// SPDX-License-Identifier: MIT
package audio

import "time"

// Device describes a PortAudio device for listing and selection.
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowLatency        time.Duration // Default low output latency.
	HighLatency       time.Duration // Default high output latency.
	IsDefaultOutput   bool
}

// Kind describes the direction(s) a device supports.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "Unavailable"
	}
}

// CanPlay reports whether the device can be used as a playback target.
func (d Device) CanPlay() bool {
	return d.MaxOutputChannels > 0
}
