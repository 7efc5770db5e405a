// SPDX-License-Identifier: MIT

/*
Package spectral turns a decoded clip into a decibel grid indexed by time and
frequency, the way a short-time Fourier transform spectrogram is read.

Grid layout:
- Frames are centered on multiples of the hop length; the signal is zero
  padded by half a window on both sides, so a clip of L samples yields
  1 + L/hop frames
- Each frame holds WindowSize/2 + 1 bins (or fewer when MaxFrequency trims
  the upper spectrum)
- Values are 20*log10(magnitude) relative to the loudest cell of the clip,
  floored at -TopDB, so every stored value is in [-TopDB, 0]

Queries round (half up) seconds and Hz onto the grid using framesPerSecond =
frames / clip duration and binsPerHz = bins / Nyquist. Anything that lands
outside the grid is reported as an IndexError rather than clamped.
*/
package spectral

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"time"

	"visualizer/internal/audio"
	"visualizer/internal/config"
	"visualizer/internal/log"
	"visualizer/pkg/bitint"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

var logger = log.New("spectral")

// Options are the transform parameters.
type Options struct {
	WindowSize   int        // Samples per frame (power of 2).
	HopLength    int        // Samples between frame centers.
	Window       WindowFunc // Analysis window.
	Amin         float64    // Magnitude floor before taking the logarithm.
	TopDB        float64    // Dynamic range kept below the peak (0 = unlimited).
	MaxFrequency float64    // Highest frequency kept in the grid (0 = Nyquist).
	Workers      int        // Parallel frame workers (0 = GOMAXPROCS).
}

// DefaultOptions mirrors the built-in analysis configuration.
func DefaultOptions() Options {
	return Options{
		WindowSize:   config.DefaultWindowSize,
		HopLength:    config.DefaultHopLength,
		Window:       Hann,
		Amin:         config.DefaultAmin,
		TopDB:        config.DefaultTopDB,
		MaxFrequency: config.DefaultMaxFrequency,
	}
}

// OptionsFromConfig converts the analysis section of the configuration.
func OptionsFromConfig(cfg config.AnalysisConfig) (Options, error) {
	win, err := ParseWindowFunc(cfg.Window)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		WindowSize:   cfg.WindowSize,
		HopLength:    cfg.HopLength,
		Window:       win,
		Amin:         cfg.Amin,
		TopDB:        cfg.TopDB,
		MaxFrequency: cfg.MaxFrequency,
		Workers:      cfg.Workers,
	}
	return opts, opts.validate()
}

func (o Options) validate() error {
	switch {
	case !bitint.IsPowerOfTwo(o.WindowSize):
		return fmt.Errorf("window size must be a power of 2, got %d (next is %d)", o.WindowSize, bitint.NextPowerOfTwo(o.WindowSize))
	case o.HopLength <= 0:
		return fmt.Errorf("hop length must be positive, got %d", o.HopLength)
	case o.Amin <= 0:
		return fmt.Errorf("amin must be positive, got %g", o.Amin)
	case o.TopDB < 0:
		return fmt.Errorf("top_db must not be negative, got %g", o.TopDB)
	case o.MaxFrequency < 0:
		return fmt.Errorf("max frequency must not be negative, got %g", o.MaxFrequency)
	}
	return nil
}

func (o Options) workers(frames int) int {
	n := o.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return max(1, min(n, frames))
}

// Field is an immutable decibel grid for one clip. It is safe for
// concurrent readers.
type Field struct {
	source          string
	sampleRate      int
	frames          int
	bins            int // Stored bins per frame.
	duration        float64
	framesPerSecond float64
	binsPerHz       float64
	db              []float32 // Frame-major: db[frame*bins + bin].
}

// Load fetches, decodes and analyzes source. Every failure is reported as
// an *AnalysisError.
func Load(ctx context.Context, source string, opts Options, fetch audio.FetchOptions) (*Field, *audio.Clip, error) {
	clip, err := audio.Open(ctx, source, fetch)
	if err != nil {
		return nil, nil, &AnalysisError{Source: source, Err: err}
	}
	field, err := Analyze(clip, opts)
	if err != nil {
		return nil, nil, err
	}
	return field, clip, nil
}

// Analyze computes the decibel grid of clip's mono mix.
func Analyze(clip *audio.Clip, opts Options) (*Field, error) {
	if clip == nil {
		return nil, &AnalysisError{Err: errors.New("nil clip")}
	}
	fail := func(err error) (*Field, error) {
		return nil, &AnalysisError{Source: clip.Name, Err: err}
	}
	if err := opts.validate(); err != nil {
		return fail(err)
	}
	if clip.SampleRate <= 0 {
		return fail(fmt.Errorf("invalid sample rate %d", clip.SampleRate))
	}
	samples := clip.Mono()
	if len(samples) == 0 {
		return fail(audio.ErrEmptyAudio)
	}

	start := time.Now()
	n, hop := opts.WindowSize, opts.HopLength
	frames := 1 + len(samples)/hop
	totalBins := n/2 + 1
	nyquist := float64(clip.SampleRate) / 2
	binsPerHz := float64(totalBins) / nyquist

	bins := totalBins
	if opts.MaxFrequency > 0 {
		bins = min(totalBins, roundIndex(opts.MaxFrequency*binsPerHz)+1)
	}

	db := make([]float32, frames*bins)
	win := opts.Window.Coefficients(n)
	workers := opts.workers(frames)
	chunk := (frames + workers - 1) / workers
	peaks := make([]float64, workers)

	var g errgroup.Group
	for w := range workers {
		lo, hi := w*chunk, min(frames, (w+1)*chunk)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			fft := fourier.NewFFT(n)
			seq := make([]float64, n)
			coeffs := make([]complex128, totalBins)
			var peak float64
			for t := lo; t < hi; t++ {
				frameSamples(seq, samples, t*hop-n/2, win)
				fft.Coefficients(coeffs, seq)
				row := db[t*bins : (t+1)*bins]
				for k, c := range coeffs {
					m := cmplx.Abs(c)
					if math.IsNaN(m) || math.IsInf(m, 0) {
						return fmt.Errorf("non-finite magnitude in frame %d", t)
					}
					peak = max(peak, m)
					if k < bins {
						row[k] = float32(m)
					}
				}
			}
			peaks[w] = peak
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	// The reference is the loudest cell of the full spectrum, even when the
	// stored grid is trimmed.
	toDecibels(db, floats.Max(peaks), opts.Amin, opts.TopDB)

	duration := clip.Seconds()
	field := &Field{
		source:          clip.Name,
		sampleRate:      clip.SampleRate,
		frames:          frames,
		bins:            bins,
		duration:        duration,
		framesPerSecond: float64(frames) / duration,
		binsPerHz:       binsPerHz,
		db:              db,
	}
	logger.Debugf("analyzed '%s': %d frames x %d bins (%d workers) in %v",
		clip.Name, frames, bins, workers, time.Since(start))
	return field, nil
}

// frameSamples copies the windowed frame starting at sample offset start
// into dst, zero padding outside the signal.
func frameSamples(dst, samples []float64, start int, win []float64) {
	for i := range dst {
		j := start + i
		if j < 0 || j >= len(samples) {
			dst[i] = 0
			continue
		}
		dst[i] = samples[j] * win[i]
	}
}

// toDecibels converts magnitudes in place to dB relative to ref.
func toDecibels(grid []float32, ref, amin, topDB float64) {
	// Stored magnitudes are float32; round the reference the same way so the
	// peak cell comes out at exactly 0 dB.
	refDB := 20 * math.Log10(math.Max(amin, float64(float32(ref))))
	floor := math.Inf(-1)
	if topDB > 0 {
		floor = -topDB
	}
	for i, m := range grid {
		v := 20*math.Log10(math.Max(amin, float64(m))) - refDB
		grid[i] = float32(math.Min(0, math.Max(floor, v)))
	}
}

// roundIndex rounds half up.
func roundIndex(x float64) int {
	return int(math.Floor(x + 0.5))
}

// Decibel returns the stored value nearest to (seconds, hz).
func (f *Field) Decibel(seconds, hz float64) (float64, error) {
	frame, err := f.frameIndex(seconds)
	if err != nil {
		return 0, err
	}
	bin, err := f.binIndex(hz)
	if err != nil {
		return 0, err
	}
	return float64(f.db[frame*f.bins+bin]), nil
}

func (f *Field) frameIndex(seconds float64) (int, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, &IndexError{Axis: AxisTime, Value: seconds, Index: -1, Len: f.frames}
	}
	i := roundIndex(seconds * f.framesPerSecond)
	if i < 0 || i >= f.frames {
		return 0, &IndexError{Axis: AxisTime, Value: seconds, Index: i, Len: f.frames}
	}
	return i, nil
}

func (f *Field) binIndex(hz float64) (int, error) {
	if math.IsNaN(hz) || math.IsInf(hz, 0) {
		return 0, &IndexError{Axis: AxisFrequency, Value: hz, Index: -1, Len: f.bins}
	}
	i := roundIndex(hz * f.binsPerHz)
	if i < 0 || i >= f.bins {
		return 0, &IndexError{Axis: AxisFrequency, Value: hz, Index: i, Len: f.bins}
	}
	return i, nil
}

// Source returns the path or URL the field was analyzed from.
func (f *Field) Source() string { return f.source }

// SampleRate returns the sample rate of the analyzed audio in Hz.
func (f *Field) SampleRate() int { return f.sampleRate }

// Frames returns the number of time frames.
func (f *Field) Frames() int { return f.frames }

// Bins returns the number of stored frequency bins per frame.
func (f *Field) Bins() int { return f.bins }

// Duration returns the length of the analyzed clip.
func (f *Field) Duration() time.Duration {
	return time.Duration(f.duration * float64(time.Second))
}

// Seconds returns the length of the analyzed clip in seconds.
func (f *Field) Seconds() float64 { return f.duration }

// LastFrameTime is the latest time that still maps onto the grid.
func (f *Field) LastFrameTime() float64 {
	return float64(f.frames-1) / f.framesPerSecond
}

// MaxFrequency is the frequency of the highest stored bin.
func (f *Field) MaxFrequency() float64 {
	return float64(f.bins-1) / f.binsPerHz
}

// FramesPerSecond returns how many analysis frames cover one second of audio.
func (f *Field) FramesPerSecond() float64 { return f.framesPerSecond }

// BinsPerHz returns the number of frequency bins per hertz.
func (f *Field) BinsPerHz() float64 { return f.binsPerHz }
