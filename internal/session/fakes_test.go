package session

import (
	"errors"
	"sync"

	"visualizer/internal/audio"
	"visualizer/internal/bars"
	"visualizer/internal/lights"
)

// fakePlayer advances its position by step on every PositionSeconds call
// and stays busy until length is reached. A zero length never ends.
type fakePlayer struct {
	mu       sync.Mutex
	step     float64
	length   float64
	pos      float64
	clip     *audio.Clip
	playing  bool
	muted    bool
	stops    int
	playErr  error
	script   []float64 // Positions returned in order before falling back to step.
	alwaysOn bool      // IsBusy stays true regardless of position.
}

var _ audio.Player = (*fakePlayer)(nil)

func (p *fakePlayer) Load(clip *audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clip, p.pos, p.playing = clip, 0, false
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.playing = true
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.stops++
	return nil
}

func (p *fakePlayer) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alwaysOn {
		return p.playing
	}
	return p.playing && (p.length == 0 || p.pos < p.length)
}

func (p *fakePlayer) PositionSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.script) > 0 {
		p.pos, p.script = p.script[0], p.script[1:]
		return p.pos
	}
	p.pos += p.step
	return p.pos
}

func (p *fakePlayer) SetMuted(m bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = m
}

func (p *fakePlayer) Close() error { return nil }

func (p *fakePlayer) isMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *fakePlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// op is one recorded driver call: "off" or a set of n channels.
type op struct {
	off bool
	n   int
	lit bool
}

// recDriver records every call. failSets makes that many SetChannels calls
// fail; a negative value fails all of them.
type recDriver struct {
	mu       sync.Mutex
	ops      []op
	failSets int
}

var _ lights.Driver = (*recDriver)(nil)

var errWrite = errors.New("write failed")

func (d *recDriver) SetChannels(indices []int, color lights.Color, _ int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSets != 0 {
		if d.failSets > 0 {
			d.failSets--
		}
		return &lights.DriverError{Driver: "rec", Op: "set", Err: errWrite}
	}
	d.ops = append(d.ops, op{n: len(indices), lit: !color.IsOff()})
	return nil
}

func (d *recDriver) TurnOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = append(d.ops, op{off: true})
	return nil
}

func (d *recDriver) Close() error { return nil }

func (d *recDriver) snapshot() []op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]op(nil), d.ops...)
}

func (d *recDriver) offs() int {
	n := 0
	for _, o := range d.snapshot() {
		if o.off {
			n++
		}
	}
	return n
}

// constField is a flat spectrum up to maxHz.
type constField struct {
	db    float64
	maxHz float64
	last  float64
}

var errIndex = errors.New("index out of range")

func (f constField) Decibel(_, hz float64) (float64, error) {
	if hz < 0 || hz > f.maxHz {
		return 0, errIndex
	}
	return f.db, nil
}

func (f constField) LastFrameTime() float64 { return f.last }

func testClip() *audio.Clip {
	return &audio.Clip{Name: "test", SampleRate: 10, Channels: 1, Samples: make([]float32, 10)}
}

// testBars is a single 12-channel bar over [100, 200) Hz.
func testBars() ([]*bars.Bar, error) {
	channels := make([]int, 12)
	for i := range channels {
		channels[i] = i
	}
	b, err := bars.New(bars.Spec{Name: "test", Channels: channels, StartHz: 100, StopHz: 200, MinDB: -80, MaxDB: 0},
		lights.Color{W: 255}, 100)
	if err != nil {
		return nil, err
	}
	return []*bars.Bar{b}, nil
}
