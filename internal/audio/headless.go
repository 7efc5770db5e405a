// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"time"
)

// HeadlessPlayer advances a wall clock instead of driving a device. It keeps
// lights in sync on nodes where another machine plays the audible track.
type HeadlessPlayer struct {
	mu      sync.Mutex
	now     func() time.Time
	clip    *Clip
	started time.Time
	playing bool
	closed  bool
}

var _ Player = (*HeadlessPlayer)(nil)

func NewHeadlessPlayer() *HeadlessPlayer {
	return &HeadlessPlayer{now: time.Now}
}

func (p *HeadlessPlayer) Load(clip *Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	p.clip = clip
	p.playing = false
	return nil
}

func (p *HeadlessPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.clip == nil {
		return ErrNoClip
	}
	p.started = p.now()
	p.playing = true
	return nil
}

func (p *HeadlessPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *HeadlessPlayer) elapsedLocked() float64 {
	if !p.playing {
		return 0
	}
	return p.now().Sub(p.started).Seconds()
}

func (p *HeadlessPlayer) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && p.elapsedLocked() < p.clip.Seconds()
}

// PositionSeconds returns the elapsed time, or 0 once it reaches the clip
// length.
func (p *HeadlessPlayer) PositionSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.elapsedLocked()
	if p.clip == nil || elapsed >= p.clip.Seconds() {
		return 0
	}
	return elapsed
}

// SetMuted is a no-op; the headless player is always silent.
func (p *HeadlessPlayer) SetMuted(bool) {}

func (p *HeadlessPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.playing = false
	return nil
}
