// SPDX-License-Identifier: MIT
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"visualizer/internal/audio"
	"visualizer/internal/bars"
	"visualizer/internal/bus"
	"visualizer/internal/lights"
	"visualizer/internal/spectral"
)

// DefaultQueueSize is the command backlog accepted by Dispatch.
const DefaultQueueSize = 16

// AnalyzeFunc fetches, decodes and analyzes a source. Errors should be
// *spectral.AnalysisError.
type AnalyzeFunc func(ctx context.Context, source string) (Field, *audio.Clip, error)

// SpectralAnalyzer adapts spectral.Load to an AnalyzeFunc.
func SpectralAnalyzer(opts spectral.Options, fetch audio.FetchOptions) AnalyzeFunc {
	return func(ctx context.Context, source string) (Field, *audio.Clip, error) {
		field, clip, err := spectral.Load(ctx, source, opts, fetch)
		if err != nil {
			return nil, nil, err
		}
		return field, clip, nil
	}
}

// ControllerOptions configure a Controller.
type ControllerOptions struct {
	Loop    Options
	Analyze AnalyzeFunc
	// Bars builds a fresh bar set for each session.
	Bars func() ([]*bars.Bar, error)

	// Mirroring. When Primary is set, every session start is republished
	// on MirrorTopic and local audio is muted.
	Bus         bus.Bus
	MirrorTopic string
	Primary     bool

	QueueSize int
}

type activeSession struct {
	source string
	loop   *Loop
	cancel context.CancelFunc
	done   chan struct{}
	err    error // Valid after done is closed.
}

// Controller owns the player and the light driver and runs at most one
// session at a time.
type Controller struct {
	player audio.Player
	driver lights.Driver
	opts   ControllerOptions

	startMu sync.Mutex // Serializes Start.
	mu      sync.Mutex // Protects active.
	active  *activeSession

	commands chan bus.Command
}

func NewController(player audio.Player, driver lights.Driver, opts ControllerOptions) (*Controller, error) {
	if player == nil || driver == nil {
		return nil, errors.New("controller needs a player and a driver")
	}
	if opts.Analyze == nil || opts.Bars == nil {
		return nil, errors.New("controller needs an analyzer and a bar layout")
	}
	if opts.Primary && (opts.Bus == nil || opts.MirrorTopic == "") {
		return nil, errors.New("primary mode needs a bus and a mirror topic")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Controller{
		player:   player,
		driver:   driver,
		opts:     opts,
		commands: make(chan bus.Command, opts.QueueSize),
	}, nil
}

// Start analyzes source and, once that succeeds, replaces the active session
// with a new one. On failure the active session (if any) is left running.
func (c *Controller) Start(ctx context.Context, source string) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	field, clip, err := c.opts.Analyze(ctx, source)
	if err != nil {
		return err
	}
	bs, err := c.opts.Bars()
	if err != nil {
		return fmt.Errorf("failed to build bars: %w", err)
	}
	if err := bars.Validate(bs, field); err != nil {
		return err
	}
	if c.opts.Primary {
		c.mirror(ctx, source)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	loop := NewLoop(c.player, c.driver, c.opts.Loop)
	if err := loop.Load(field, clip, bs); err != nil {
		return err
	}

	c.player.SetMuted(c.opts.Primary)

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &activeSession{source: source, loop: loop, cancel: cancel, done: make(chan struct{})}
	c.active = s

	go func() {
		defer close(s.done)
		defer cancel()
		state, err := loop.Run(sessCtx)
		s.err = err
		if err != nil {
			logger.Errorf("session '%s' ended %s: %v", source, state, err)
		}
		c.mu.Lock()
		if c.active == s {
			c.active = nil
		}
		c.mu.Unlock()
	}()
	return nil
}

// mirror republishes the play command. Failures do not affect the session.
func (c *Controller) mirror(ctx context.Context, source string) {
	payload, err := bus.Play(source).Encode()
	if err == nil {
		err = c.opts.Bus.Publish(ctx, c.opts.MirrorTopic, payload)
	}
	if err != nil {
		logger.Warnf("mirroring '%s' failed: %v", source, err)
		return
	}
	logger.Infof("mirrored '%s' to %s", source, c.opts.MirrorTopic)
}

// Stop cancels the active session and blocks until its lights are off.
// Stopping with no active session is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	s := c.active
	if s == nil {
		return
	}
	logger.Infof("stopping '%s'", s.source)
	s.cancel()
	// The session goroutine takes mu to clear active; release it while waiting.
	c.mu.Unlock()
	<-s.done
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Source returns the source of the active session, or "".
func (c *Controller) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.source
}

// Wait blocks until the active session (if any) ends and returns its error.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch queues cmd for Run without blocking. It returns false when the
// queue is full.
func (c *Controller) Dispatch(cmd bus.Command) bool {
	select {
	case c.commands <- cmd:
		return true
	default:
		logger.Warnf("command queue full, dropping %v", cmd)
		return false
	}
}

// HandleMessage is the bus.Handler for the command topic.
func (c *Controller) HandleMessage(topic string, payload []byte) {
	cmd, ok := bus.ParseCommand(payload)
	if !ok {
		logger.Debugf("ignoring message on %s: %q", topic, payload)
		return
	}
	logger.Infof("received %v on %s", cmd, topic)
	c.Dispatch(cmd)
}

// Run executes dispatched commands in order until ctx is done, then stops
// the active session.
func (c *Controller) Run(ctx context.Context) error {
	defer c.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.commands:
			c.execute(ctx, cmd)
		}
	}
}

func (c *Controller) execute(ctx context.Context, cmd bus.Command) {
	switch cmd.Kind {
	case bus.CommandPlay:
		if err := c.Start(ctx, cmd.Source); err != nil {
			logger.Errorf("play '%s' failed: %v", cmd.Source, err)
		}
	case bus.CommandStop:
		c.Stop()
	}
}

// Close stops the active session.
func (c *Controller) Close() error {
	c.Stop()
	return nil
}
