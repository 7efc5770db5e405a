// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"visualizer/internal/audio"
	"visualizer/internal/bars"
	"visualizer/internal/bus"
	"visualizer/internal/config"
	"visualizer/internal/lights"
	"visualizer/internal/log"
	"visualizer/internal/session"
	"visualizer/internal/spectral"
	"visualizer/internal/tui"

	"golang.org/x/sync/errgroup"
)

var logger = log.New("cmd")

// errQuit ends the service group when the terminal UI is closed by the user.
var errQuit = errors.New("terminal UI closed")

// Execute runs the command selected by ParseArgs until it completes or ctx
// is cancelled.
func Execute(ctx context.Context, req *Request) error {
	switch req.Config.Command {
	case CommandServe:
		return serve(ctx, req.Config)
	case CommandPlay:
		return play(ctx, req.Config, req.Source)
	case CommandAnalyze:
		return analyze(ctx, req.Config, req.Source, req.At, os.Stdout)
	case CommandDevices:
		return devices(req.Interactive, os.Stdout)
	default:
		return fmt.Errorf("unknown command '%s'", req.Config.Command)
	}
}

// engine is everything a session needs, built from the configuration.
type engine struct {
	player     audio.Player
	driver     lights.Driver
	ui         *tui.TerminalDriver // Set for the terminal driver.
	bus        bus.Bus             // Nil without a broker.
	controller *session.Controller
	logFile    *os.File
}

func newEngine(cfg *config.Config, withBus bool) (_ *engine, err error) {
	e := &engine{}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	opts, err := spectral.OptionsFromConfig(cfg.Analysis)
	if err != nil {
		return nil, err
	}

	if e.player, err = audio.NewPlayer(cfg.Audio); err != nil {
		return nil, err
	}

	if cfg.Lights.Driver == config.DriverTerminal {
		// The UI owns the screen from here on.
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file: %w", err)
			}
			e.logFile = f
			log.SetOutput(f)
		} else {
			log.SetOutput(io.Discard)
		}
		e.ui = tui.NewTerminalDriver(cfg.Lights)
		e.driver = e.ui
	} else if e.driver, err = lights.New(cfg.Lights); err != nil {
		return nil, err
	}

	if withBus && cfg.Bus.Broker != "" {
		mq, err := bus.NewMQTT(cfg.Bus)
		if err != nil {
			return nil, err
		}
		e.bus = mq
	}

	ctrlOpts := session.ControllerOptions{
		Loop:    session.OptionsFromConfig(cfg.Sync),
		Analyze: session.SpectralAnalyzer(opts, audio.FetchOptions{Timeout: cfg.Audio.FetchTimeout}),
		Bars: func() ([]*bars.Bar, error) {
			return bars.Build(cfg.Lights)
		},
	}
	if e.bus != nil {
		ctrlOpts.Bus = e.bus
		ctrlOpts.MirrorTopic = cfg.Bus.MirrorTopic
		ctrlOpts.Primary = cfg.Bus.Primary
	} else if cfg.Bus.Primary {
		logger.Warnf("primary mode needs a broker; mirroring disabled")
	}

	if e.controller, err = session.NewController(e.player, e.driver, ctrlOpts); err != nil {
		return nil, err
	}

	if e.ui != nil {
		e.ui.Start()
	}
	return e, nil
}

// uiDone is closed when the terminal UI exits; it is nil (never ready)
// for the other drivers.
func (e *engine) uiDone() <-chan struct{} {
	if e.ui == nil {
		return nil
	}
	return e.ui.Done()
}

// Close stops the session and releases the bus, the driver and the player,
// in that order.
func (e *engine) Close() error {
	var errs []error
	if e.controller != nil {
		errs = append(errs, e.controller.Close())
	}
	if e.bus != nil {
		errs = append(errs, e.bus.Close())
	}
	if e.driver != nil {
		errs = append(errs, e.driver.Close())
	}
	if e.player != nil {
		errs = append(errs, e.player.Close())
	}
	if e.logFile != nil {
		log.SetOutput(os.Stderr)
		errs = append(errs, e.logFile.Close())
	}
	return errors.Join(errs...)
}

// serve runs the controller against the command topic until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	e, err := newEngine(cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
	}()

	if err := e.driver.TurnOff(); err != nil {
		logger.Warnf("initial turn off failed: %v", err)
	}

	if e.bus != nil {
		if err := e.bus.Subscribe(cfg.Bus.CommandTopic, e.controller.HandleMessage); err != nil {
			return err
		}
		logger.Infof("listening for commands on %s", cfg.Bus.CommandTopic)
	} else {
		logger.Warnf("no broker configured; nothing will start a session")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.controller.Run(gctx)
	})
	if e.ui != nil {
		g.Go(func() error {
			select {
			case <-e.uiDone():
				return errQuit
			case <-gctx.Done():
				return nil
			}
		})
	}

	err = g.Wait()
	if errors.Is(err, errQuit) {
		return e.ui.Err()
	}
	return err
}

// play runs a single session without listening to the bus. A primary node
// still mirrors the track.
func play(ctx context.Context, cfg *config.Config, source string) error {
	e, err := newEngine(cfg, cfg.Bus.Primary)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
	}()

	if err := e.driver.TurnOff(); err != nil {
		logger.Warnf("initial turn off failed: %v", err)
	}

	if err := e.controller.Start(ctx, source); err != nil {
		return err
	}
	logger.Infof("playing '%s'", source)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.uiDone():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	err = e.controller.Wait(waitCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// analyze prints what every bar would show at one position of source.
func analyze(ctx context.Context, cfg *config.Config, source string, at float64, w io.Writer) error {
	opts, err := spectral.OptionsFromConfig(cfg.Analysis)
	if err != nil {
		return err
	}
	field, _, err := spectral.Load(ctx, source, opts, audio.FetchOptions{Timeout: cfg.Audio.FetchTimeout})
	if err != nil {
		return err
	}
	bs, err := bars.Build(cfg.Lights)
	if err != nil {
		return err
	}
	if err := bars.Validate(bs, field); err != nil {
		return err
	}
	if at > field.LastFrameTime() {
		return fmt.Errorf("--at %.3fs is past the last frame at %.3fs", at, field.LastFrameTime())
	}
	return writeAnalysis(w, field, bs, at)
}

func writeAnalysis(w io.Writer, field *spectral.Field, bs []*bars.Bar, at float64) error {
	fmt.Fprintf(w, "%s: %d Hz, %s, %d frames x %d bins (%.2f frames/s, up to %.0f Hz)\n\n",
		field.Source(), field.SampleRate(), field.Duration(), field.Frames(), field.Bins(),
		field.FramesPerSecond(), field.MaxFrequency())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "BAR\tBAND\tRANGE\tMEAN\tLEVEL\n")
	for _, b := range bs {
		spec := b.Spec()
		mean, err := b.Mean(field, at)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d-%d Hz\t%.0f..%.0f dB\t%.1f dB\t%d/%d\n",
			b.Name(), spec.StartHz, spec.StopHz, spec.MinDB, spec.MaxDB,
			mean, b.LevelFor(mean), len(spec.Channels))
	}
	return tw.Flush()
}

// devices lists output devices, or runs the picker when interactive.
func devices(interactive bool, w io.Writer) error {
	if !interactive {
		return audio.ListDevices(w)
	}
	id, err := tui.StartDeviceListUI()
	if err != nil {
		return err
	}
	if id == config.MinDeviceID {
		fmt.Fprintln(w, "No device selected.")
		return nil
	}
	fmt.Fprintf(w, "Selected device %d. Set audio.output_device: %d in your configuration.\n", id, id)
	return nil
}
