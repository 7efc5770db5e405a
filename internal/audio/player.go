// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"visualizer/internal/config"
)

// Player is the playback engine driven by the sync loop.
type Player interface {
	// Load queues clip for playback, stopping anything currently playing.
	Load(clip *Clip) error
	// Play starts playback of the loaded clip from the beginning.
	Play() error
	// Stop halts playback. Stopping an idle player is a no-op.
	Stop() error
	// IsBusy reports whether the clip is still playing.
	IsBusy() bool
	// PositionSeconds returns the playback position. It is 0 before playback
	// starts, after Stop, and once the clip has played through, so a drop to
	// 0 after a positive position marks the end of the track.
	PositionSeconds() float64
	// SetMuted silences output without affecting the position.
	SetMuted(muted bool)
	// Close releases the output device.
	Close() error
}

var (
	ErrNoClip       = errors.New("no clip loaded")
	ErrPlayerClosed = errors.New("player is closed")
)

// NewPlayer builds the playback engine selected by cfg.Backend. PortAudio
// must already be initialized for the portaudio backend.
func NewPlayer(cfg config.AudioConfig) (Player, error) {
	switch cfg.Backend {
	case config.BackendPortAudio:
		return NewPortAudioPlayer(cfg.OutputDevice, cfg.FramesPerBuffer), nil
	case config.BackendOto:
		return NewOtoPlayer(), nil
	case config.BackendHeadless:
		return NewHeadlessPlayer(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend '%s'", cfg.Backend)
	}
}

// playhead is the read cursor shared by the device-backed players. The audio
// callback advances it while the sync loop reads the position concurrently.
type playhead struct {
	clip   *Clip
	frame  atomic.Int64 // Next frame to render.
	ended  atomic.Bool
	muted  atomic.Bool
	frames int64
}

func newPlayhead(clip *Clip) *playhead {
	return &playhead{clip: clip, frames: int64(clip.Frames())}
}

// fill renders the next frames into out, which is interleaved with the
// clip's channel count. Past the end it writes silence and marks the head ended.
func (h *playhead) fill(out []float32) {
	channels := h.clip.Channels
	want := int64(len(out) / channels)
	start := h.frame.Load()
	n := min(want, h.frames-start)
	if n < 0 {
		n = 0
	}

	src := h.clip.Samples[start*int64(channels) : (start+n)*int64(channels)]
	if h.muted.Load() {
		clear(out[:len(src)])
	} else {
		copy(out, src)
	}
	clear(out[len(src):])

	h.frame.Store(start + n)
	if start+n >= h.frames {
		h.ended.Store(true)
	}
}

// seconds converts the rendered frame count, less the frames still queued
// in the device, into seconds. It is 0 once the head has ended and the
// device has drained.
func (h *playhead) seconds(queuedFrames int64) float64 {
	if h.ended.Load() && queuedFrames <= 0 {
		return 0
	}
	f := h.frame.Load() - queuedFrames
	if f <= 0 {
		return 0
	}
	return float64(f) / float64(h.clip.SampleRate)
}

func (h *playhead) reset() {
	h.frame.Store(0)
	h.ended.Store(false)
}

// float32Bytes encodes samples as little-endian IEEE floats.
func float32Bytes(dst []byte, samples []float32) {
	for i, s := range samples {
		bits := math.Float32bits(s)
		dst[4*i] = byte(bits)
		dst[4*i+1] = byte(bits >> 8)
		dst[4*i+2] = byte(bits >> 16)
		dst[4*i+3] = byte(bits >> 24)
	}
}
