// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so its format is fixed by the
// first clip played.
var (
	otoMu      sync.Mutex
	otoCtx     *oto.Context
	otoRate    int
	otoChannel int
)

func sharedOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if sampleRate != otoRate || channels != otoChannel {
			return nil, fmt.Errorf("oto context is fixed at %d Hz/%d ch, clip is %d Hz/%d ch",
				otoRate, otoChannel, sampleRate, channels)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx, otoRate, otoChannel = ctx, sampleRate, channels
	return otoCtx, nil
}

// OtoPlayer plays clips through an oto player fed by an io.Reader over the
// playhead.
type OtoPlayer struct {
	mu     sync.Mutex
	player *oto.Player
	head   *playhead
	muted  bool
	closed bool
}

var _ Player = (*OtoPlayer)(nil)

func NewOtoPlayer() *OtoPlayer {
	return &OtoPlayer{}
}

// otoReader renders the playhead as little-endian float32 bytes.
type otoReader struct {
	head *playhead
	buf  []float32
}

func (r *otoReader) Read(p []byte) (int, error) {
	if r.head.ended.Load() {
		return 0, io.EOF
	}
	channels := r.head.clip.Channels
	frameBytes := 4 * channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	n := frames * channels
	if cap(r.buf) < n {
		r.buf = make([]float32, n)
	}
	r.buf = r.buf[:n]
	r.head.fill(r.buf)
	float32Bytes(p, r.buf)
	return n * 4, nil
}

func (p *OtoPlayer) Load(clip *Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	p.stopLocked()
	p.head = newPlayhead(clip)
	p.head.muted.Store(p.muted)
	return nil
}

func (p *OtoPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if p.head == nil {
		return ErrNoClip
	}
	p.stopLocked()

	ctx, err := sharedOtoContext(p.head.clip.SampleRate, p.head.clip.Channels)
	if err != nil {
		return err
	}

	p.head.reset()
	p.player = ctx.NewPlayer(&otoReader{head: p.head})
	p.player.Play()
	return nil
}

func (p *OtoPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *OtoPlayer) stopLocked() {
	if p.player == nil {
		return
	}
	p.player.Pause()
	p.player.Close()
	p.player = nil
	if p.head != nil {
		p.head.reset()
	}
}

func (p *OtoPlayer) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.player != nil && p.player.IsPlaying()
}

func (p *OtoPlayer) PositionSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil || p.head == nil {
		return 0
	}
	queued := int64(p.player.BufferedSize() / (4 * p.head.clip.Channels))
	return p.head.seconds(queued)
}

func (p *OtoPlayer) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	if p.head != nil {
		p.head.muted.Store(muted)
	}
}

func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.stopLocked()
	return nil
}
