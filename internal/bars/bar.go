// SPDX-License-Identifier: MIT

// Package bars maps frequency bands of a decibel field onto columns of
// output channels.
package bars

import (
	"errors"
	"fmt"
	"math"

	"visualizer/internal/config"
	"visualizer/internal/lights"

	"gonum.org/v1/gonum/floats"
)

// Field is the query side of spectral.Field.
type Field interface {
	Decibel(seconds, hz float64) (float64, error)
}

// Spec is the static description of one bar.
type Spec struct {
	Name     string
	Channels []int   // Lighting order: Channels[0] lights first.
	StartHz  int     // Inclusive.
	StopHz   int     // Exclusive.
	MinDB    float64 // Mean at or below this lights nothing.
	MaxDB    float64 // Mean at or above this lights every channel.
}

func (s Spec) validate() error {
	switch {
	case len(s.Channels) == 0:
		return errors.New("no channels")
	case s.StartHz < 0 || s.StartHz >= s.StopHz:
		return fmt.Errorf("invalid frequency range [%d, %d)", s.StartHz, s.StopHz)
	case !(s.MinDB < s.MaxDB):
		return fmt.Errorf("min_db %g must be below max_db %g", s.MinDB, s.MaxDB)
	}
	return nil
}

// Change is a level transition produced by Sample.
type Change struct {
	Prev, Next int
}

// Batch is one driver write. Indices aliases the bar's channel slice and
// must not be modified.
type Batch struct {
	Indices   []int
	Color     lights.Color
	Intensity int
}

func (b Batch) Empty() bool { return len(b.Indices) == 0 }

// Bar tracks the activation level of one band. A Bar is owned by a single
// sync loop and is not safe for concurrent use.
type Bar struct {
	spec      Spec
	color     lights.Color
	intensity int
	level     int
	scratch   []float64 // One slot per Hz in [StartHz, StopHz).
}

// New creates a bar at level 0.
func New(spec Spec, color lights.Color, intensity int) (*Bar, error) {
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("bar '%s': %w", spec.Name, err)
	}
	return &Bar{
		spec:      spec,
		color:     color,
		intensity: intensity,
		scratch:   make([]float64, spec.StopHz-spec.StartHz),
	}, nil
}

func (b *Bar) Name() string { return b.spec.Name }

func (b *Bar) Spec() Spec { return b.spec }

// Level returns the current number of lit channels.
func (b *Bar) Level() int { return b.level }

// Mean averages the field over every integer Hz in [StartHz, StopHz) at seconds.
func (b *Bar) Mean(field Field, seconds float64) (float64, error) {
	for i := range b.scratch {
		db, err := field.Decibel(seconds, float64(b.spec.StartHz+i))
		if err != nil {
			return 0, err
		}
		b.scratch[i] = db
	}
	return floats.Sum(b.scratch) / float64(len(b.scratch)), nil
}

// LevelFor converts a mean decibel value to a level in [0, len(Channels)].
func (b *Bar) LevelFor(mean float64) int {
	n := len(b.spec.Channels)
	if math.IsNaN(mean) {
		return 0
	}
	level := math.Floor((mean - b.spec.MinDB) * float64(n) / (b.spec.MaxDB - b.spec.MinDB))
	return int(min(max(level, 0), float64(n)))
}

// Sample moves the bar to the level of field at seconds and reports the
// transition. On error the level is unchanged.
func (b *Bar) Sample(field Field, seconds float64) (Change, error) {
	mean, err := b.Mean(field, seconds)
	if err != nil {
		return Change{Prev: b.level, Next: b.level}, fmt.Errorf("bar '%s': %w", b.spec.Name, err)
	}
	c := Change{Prev: b.level, Next: b.LevelFor(mean)}
	b.level = c.Next
	return c, nil
}

// ApplyChange returns the single write for c: the channels that went dark
// when the level fell, otherwise every channel up to the new level.
func (b *Bar) ApplyChange(c Change) Batch {
	if c.Next < c.Prev {
		return Batch{Indices: b.spec.Channels[c.Next:c.Prev], Color: lights.Off, Intensity: b.intensity}
	}
	return Batch{Indices: b.spec.Channels[:c.Next], Color: b.color, Intensity: b.intensity}
}

// Rollback restores the level from before c, so the next Sample re-emits the
// transition after a failed write.
func (b *Bar) Rollback(c Change) {
	b.level = c.Prev
}

// Reset returns the bar to level 0.
func (b *Bar) Reset() { b.level = 0 }

// Build creates the bars of a lights configuration in order.
func Build(cfg config.LightsConfig) ([]*Bar, error) {
	if len(cfg.Bars) == 0 {
		return nil, errors.New("no bars configured")
	}
	color := lights.ColorFromConfig(cfg.Color)
	out := make([]*Bar, 0, len(cfg.Bars))
	for _, bc := range cfg.Bars {
		b, err := New(Spec{
			Name:     bc.Name,
			Channels: bc.Channels.Indices(),
			StartHz:  bc.StartHz,
			StopHz:   bc.StopHz,
			MinDB:    bc.MinDB,
			MaxDB:    bc.MaxDB,
		}, color, cfg.Intensity)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Validate checks that every bar's band is addressable in field at t=0. The
// index mapping is monotonic, so the band edges are enough.
func Validate(bars []*Bar, field Field) error {
	for _, b := range bars {
		for _, hz := range []int{b.spec.StartHz, b.spec.StopHz - 1} {
			if _, err := field.Decibel(0, float64(hz)); err != nil {
				return fmt.Errorf("bar '%s' band [%d, %d) does not fit the analysis: %w",
					b.spec.Name, b.spec.StartHz, b.spec.StopHz, err)
			}
		}
	}
	return nil
}

// ResetAll sets every bar back to level 0.
func ResetAll(bars []*Bar) {
	for _, b := range bars {
		b.Reset()
	}
}
