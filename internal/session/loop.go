// SPDX-License-Identifier: MIT

/*
Package session runs playback sessions: one sync loop per track, driven by a
controller that guarantees at most one loop is alive.

Loop lifecycle:

	Idle -> Loaded -> Playing -> Finished | Cancelled -> Idle

Every exit from Playing stops the player and turns the lights off exactly
once before the loop reports Idle again.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"visualizer/internal/audio"
	"visualizer/internal/bars"
	"visualizer/internal/config"
	"visualizer/internal/lights"
	"visualizer/internal/log"
)

var logger = log.New("session")

// State is the position of a Loop in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateLoaded
	StatePlaying
	StateFinished
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	ErrNotLoaded = errors.New("session: nothing loaded")
	ErrBusy      = errors.New("session: loop is not idle")
)

// Field is the part of spectral.Field the loop reads.
type Field interface {
	bars.Field
	LastFrameTime() float64
}

// Options tune the loop.
type Options struct {
	EndDetection           string        // config.EndDetectionBusy or config.EndDetectionPosition.
	MinInterval            time.Duration // Minimum tick period; 0 polls as fast as possible.
	MaxConsecutiveFailures int           // Failed ticks tolerated before aborting.
}

func OptionsFromConfig(cfg config.SyncConfig) Options {
	return Options{
		EndDetection:           cfg.EndDetection,
		MinInterval:            cfg.MinInterval,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}
}

// Loop keeps the bars in step with the player for one track.
type Loop struct {
	player audio.Player
	driver lights.Driver
	opts   Options

	state atomic.Int32
	ticks atomic.Int64

	field Field
	clip  *audio.Clip
	bars  []*bars.Bar
}

func NewLoop(player audio.Player, driver lights.Driver, opts Options) *Loop {
	if opts.EndDetection == "" {
		opts.EndDetection = config.EndDetectionBusy
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = config.DefaultMaxConsecutiveWriteFailures
	}
	return &Loop{player: player, driver: driver, opts: opts}
}

// State returns the current lifecycle state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Ticks returns the number of completed update passes.
func (l *Loop) Ticks() int64 { return l.ticks.Load() }

// Load queues clip on the player and resets bs to level 0.
func (l *Loop) Load(field Field, clip *audio.Clip, bs []*bars.Bar) error {
	if l.State() != StateIdle {
		return ErrBusy
	}
	if field == nil || clip == nil {
		return ErrNotLoaded
	}
	if err := l.player.Load(clip); err != nil {
		return fmt.Errorf("failed to queue '%s': %w", clip.Name, err)
	}
	bars.ResetAll(bs)
	l.field, l.clip, l.bars = field, clip, bs
	l.state.Store(int32(StateLoaded))
	return nil
}

// Run plays the loaded clip and updates the bars until the track ends or
// ctx is cancelled. It returns the terminal state; cancellation is not an
// error. The loop is Idle again when Run returns.
func (l *Loop) Run(ctx context.Context) (State, error) {
	if l.State() != StateLoaded {
		return l.State(), ErrNotLoaded
	}
	if err := l.player.Play(); err != nil {
		l.reset()
		return StateIdle, fmt.Errorf("failed to start playback: %w", err)
	}
	l.state.Store(int32(StatePlaying))
	logger.Infof("playing '%s' (%v, %d bars)", l.clip.Name, l.clip.Duration().Round(time.Millisecond), len(l.bars))

	end, runErr := l.play(ctx)

	if err := l.player.Stop(); err != nil {
		logger.Warnf("stopping player: %v", err)
	}
	if err := l.driver.TurnOff(); err != nil {
		logger.Errorf("turning lights off: %v", err)
		runErr = errors.Join(runErr, err)
	}

	l.state.Store(int32(end))
	logger.Infof("'%s' %s after %d ticks", l.clip.Name, end, l.ticks.Load())
	l.reset()
	return end, runErr
}

func (l *Loop) reset() {
	l.field, l.clip, l.bars = nil, nil, nil
	l.state.Store(int32(StateIdle))
}

// play is the Playing state.
func (l *Loop) play(ctx context.Context) (State, error) {
	var (
		failures   int
		seenPlayed bool
		ticker     *time.Ticker
	)
	if l.opts.MinInterval > 0 {
		ticker = time.NewTicker(l.opts.MinInterval)
		defer ticker.Stop()
	}
	last := l.field.LastFrameTime()

	for {
		if ctx.Err() != nil {
			return StateCancelled, nil
		}

		pos := l.player.PositionSeconds()
		err := l.update(min(max(pos, 0), last))
		l.ticks.Add(1)
		if err != nil {
			var de *lights.DriverError
			if !errors.As(err, &de) {
				return StateFinished, err
			}
			failures++
			logger.Warnf("tick skipped (%d/%d): %v", failures, l.opts.MaxConsecutiveFailures, err)
			if failures >= l.opts.MaxConsecutiveFailures {
				return StateFinished, fmt.Errorf("aborting after %d consecutive output failures: %w", failures, err)
			}
		} else {
			failures = 0
		}

		switch l.opts.EndDetection {
		case config.EndDetectionPosition:
			if pos > 0 {
				seenPlayed = true
			} else if seenPlayed {
				return StateFinished, nil
			}
		default:
			if !l.player.IsBusy() {
				return StateFinished, nil
			}
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return StateCancelled, nil
			case <-ticker.C:
			}
		}
	}
}

// update runs one pass over the bars in configured order. A failed write
// rolls the bar back so the next pass emits it again; the other bars are
// still written. Field errors abort the pass.
func (l *Loop) update(seconds float64) error {
	var writeErr error
	for _, b := range l.bars {
		change, err := b.Sample(l.field, seconds)
		if err != nil {
			return err
		}
		batch := b.ApplyChange(change)
		if batch.Empty() {
			continue
		}
		if err := l.driver.SetChannels(batch.Indices, batch.Color, batch.Intensity); err != nil {
			b.Rollback(change)
			writeErr = wrapDriverError(err)
		}
	}
	return writeErr
}

func wrapDriverError(err error) error {
	var de *lights.DriverError
	if errors.As(err, &de) {
		return err
	}
	return &lights.DriverError{Driver: "unknown", Op: "set", Err: err}
}
