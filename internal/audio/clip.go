// SPDX-License-Identifier: MIT
/*
Package audio retrieves, decodes and plays audio sources for the visualizer:
- Local paths and http(s) URLs, fully buffered in memory before decoding
- WAV (go-audio) and MP3 (go-mp3) decoding into an interleaved float32 Clip
- Playback engines behind the Player interface: PortAudio, oto and a
  headless wall-clock player for nodes without an audio device

Thread Safety:
- Clips are immutable after decoding and may be shared across goroutines
- Players are safe for concurrent use; position reads are atomic so the
  sync loop can poll them without taking the control mutex
*/
package audio

import (
	"time"
)

// Clip is a decoded audio source held entirely in memory.
type Clip struct {
	Name       string    // Source path or URL.
	SampleRate int       // Frames per second.
	Channels   int       // 1 (mono) or 2 (stereo).
	Samples    []float32 // Interleaved samples in [-1, 1].
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Seconds returns the clip length in seconds.
func (c *Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	return time.Duration(c.Seconds() * float64(time.Second))
}

// Mono averages all channels into a new float64 time series, the input
// the spectral analysis works on.
func (c *Clip) Mono() []float64 {
	frames := c.Frames()
	out := make([]float64, frames)
	if c.Channels == 1 {
		for i := range out {
			out[i] = float64(c.Samples[i])
		}
		return out
	}

	scale := 1 / float64(c.Channels)
	for i := range out {
		var sum float64
		base := i * c.Channels
		for ch := range c.Channels {
			sum += float64(c.Samples[base+ch])
		}
		out[i] = sum * scale
	}
	return out
}
