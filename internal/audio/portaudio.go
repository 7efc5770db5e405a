// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPlayer plays clips through a PortAudio output stream. The stream
// callback runs on PortAudio's thread and only touches the playhead.
type PortAudioPlayer struct {
	deviceID        int
	framesPerBuffer int

	mu      sync.Mutex // Guards stream lifecycle, never held by the callback.
	stream  *portaudio.Stream
	head    *playhead
	muted   bool
	playing atomic.Bool
	closed  bool
}

var _ Player = (*PortAudioPlayer)(nil)

// NewPortAudioPlayer creates a player for the given output device
// (config.MinDeviceID for the system default).
func NewPortAudioPlayer(deviceID, framesPerBuffer int) *PortAudioPlayer {
	return &PortAudioPlayer{deviceID: deviceID, framesPerBuffer: framesPerBuffer}
}

func (p *PortAudioPlayer) Load(clip *Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if err := p.stopLocked(); err != nil {
		return err
	}
	p.head = newPlayhead(clip)
	p.head.muted.Store(p.muted)
	return nil
}

func (p *PortAudioPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if p.head == nil {
		return ErrNoClip
	}
	if err := p.stopLocked(); err != nil {
		return err
	}

	device, err := OutputDevice(p.deviceID)
	if err != nil {
		return err
	}

	params := portaudio.HighLatencyParameters(nil, device)
	params.Output.Channels = p.head.clip.Channels
	params.SampleRate = float64(p.head.clip.SampleRate)
	params.FramesPerBuffer = p.framesPerBuffer

	head := p.head
	head.reset()
	stream, err := portaudio.OpenStream(params, func(out []float32) {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		head.fill(out)
	})
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	p.stream = stream
	p.playing.Store(true)
	return nil
}

func (p *PortAudioPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *PortAudioPlayer) stopLocked() error {
	p.playing.Store(false)
	if p.stream == nil {
		return nil
	}

	stream := p.stream
	p.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close output stream: %w", err)
	}
	if p.head != nil {
		p.head.reset()
	}
	return nil
}

func (p *PortAudioPlayer) IsBusy() bool {
	if !p.playing.Load() {
		return false
	}
	p.mu.Lock()
	head := p.head
	p.mu.Unlock()
	return head != nil && !head.ended.Load()
}

func (p *PortAudioPlayer) PositionSeconds() float64 {
	if !p.playing.Load() {
		return 0
	}
	p.mu.Lock()
	head := p.head
	p.mu.Unlock()
	if head == nil {
		return 0
	}
	return head.seconds(0)
}

func (p *PortAudioPlayer) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	if p.head != nil {
		p.head.muted.Store(muted)
	}
}

func (p *PortAudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.stopLocked()
}
