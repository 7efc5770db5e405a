package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"visualizer/internal/config"
)

func rampClip(frames, channels, sampleRate int) *Clip {
	samples := make([]float32, frames*channels)
	for i := range samples {
		samples[i] = float32(i+1) / float32(len(samples))
	}
	return &Clip{SampleRate: sampleRate, Channels: channels, Samples: samples}
}

func TestPlayheadFill(t *testing.T) {
	clip := rampClip(5, 2, 10)
	h := newPlayhead(clip)

	out := make([]float32, 6) // 3 frames
	h.fill(out)
	for i := range out {
		if out[i] != clip.Samples[i] {
			t.Fatalf("first fill out[%d] = %v, want %v", i, out[i], clip.Samples[i])
		}
	}
	if h.ended.Load() {
		t.Fatal("playhead ended early")
	}
	if got := h.seconds(0); got != 0.3 {
		t.Errorf("seconds(0) = %v, want 0.3", got)
	}
	if got := h.seconds(1); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("seconds(1) = %v, want 0.2", got)
	}

	h.fill(out)
	if out[0] != clip.Samples[6] || out[3] != clip.Samples[9] {
		t.Errorf("second fill copied wrong frames: %v", out)
	}
	if out[4] != 0 || out[5] != 0 {
		t.Errorf("tail past end should be silent: %v", out[4:])
	}
	if !h.ended.Load() {
		t.Error("playhead should be ended")
	}
	if got := h.seconds(0); got != 0 {
		t.Errorf("seconds(0) after end = %v, want 0", got)
	}
	if got := h.seconds(2); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("seconds(2) while draining = %v, want 0.3", got)
	}

	h.fill(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("fill after end out[%d] = %v, want 0", i, v)
		}
	}

	h.reset()
	if h.ended.Load() || h.frame.Load() != 0 {
		t.Error("reset should rewind the playhead")
	}
}

func TestPlayheadMuted(t *testing.T) {
	clip := rampClip(4, 1, 4)
	h := newPlayhead(clip)
	h.muted.Store(true)

	out := make([]float32, 2)
	h.fill(out)
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("muted fill = %v, want silence", out)
	}
	if h.frame.Load() != 2 {
		t.Errorf("muted fill should still advance, frame = %d", h.frame.Load())
	}
}

func TestFloat32Bytes(t *testing.T) {
	samples := []float32{0, 1, -0.5}
	buf := make([]byte, 4*len(samples))
	float32Bytes(buf, samples)
	for i, want := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		if got != want {
			t.Errorf("sample %d = %v, want %v", i, got, want)
		}
	}
}

func TestHeadlessPlayer(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewHeadlessPlayer()
	p.now = func() time.Time { return now }

	if err := p.Play(); err != ErrNoClip {
		t.Fatalf("Play without clip: err = %v, want ErrNoClip", err)
	}
	if err := p.Load(rampClip(20, 1, 10)); err != nil {
		t.Fatal(err)
	}
	if p.IsBusy() || p.PositionSeconds() != 0 {
		t.Fatal("loaded player should be idle at 0")
	}

	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	now = now.Add(500 * time.Millisecond)
	if !p.IsBusy() {
		t.Error("player should be busy mid-clip")
	}
	if got := p.PositionSeconds(); got != 0.5 {
		t.Errorf("position = %v, want 0.5", got)
	}

	now = now.Add(5 * time.Second)
	if p.IsBusy() {
		t.Error("player should finish after the clip length")
	}
	if got := p.PositionSeconds(); got != 0 {
		t.Errorf("position after the end = %v, want 0", got)
	}

	p.Stop()
	if p.PositionSeconds() != 0 {
		t.Error("position should be 0 after Stop")
	}

	p.Close()
	if err := p.Play(); err != ErrPlayerClosed {
		t.Errorf("Play after Close: err = %v, want ErrPlayerClosed", err)
	}
}

func TestNewPlayer(t *testing.T) {
	p, err := NewPlayer(config.AudioConfig{Backend: config.BackendHeadless})
	if err != nil {
		t.Fatalf("NewPlayer(headless) error: %v", err)
	}
	if _, ok := p.(*HeadlessPlayer); !ok {
		t.Errorf("NewPlayer(headless) = %T", p)
	}

	if _, err := NewPlayer(config.AudioConfig{Backend: "alsa"}); err == nil {
		t.Error("unknown backend: expected error")
	}
}
