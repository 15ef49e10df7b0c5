package audio

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"
	"time"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/logging"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/metrics"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Sentinel errors returned by the pipeline.
var (
	// ErrPipelineStarted is returned when Start is called twice.
	ErrPipelineStarted = errors.New("audio pipeline already started")

	// ErrPipelineNotStarted is returned when Stop is called before Start.
	ErrPipelineNotStarted = errors.New("audio pipeline not started")
)

// Config controls the analysis pipeline.
type Config struct {
	// FFTSize is the analysis frame length in samples. Must be a
	// power of two. Default: 1024.
	FFTSize int `yaml:"fftSize"`

	// Bands is the number of log-spaced output bands. Default: 8.
	Bands int `yaml:"bands"`

	// MinFreq is the lower edge of the first band in Hz. Default: 40.
	MinFreq float64 `yaml:"minFreq"`

	// PeakDecay is the per-frame multiplier applied to the rolling
	// normalization peak, letting it track falling levels. Default:
	// 0.995.
	PeakDecay float64 `yaml:"peakDecay"`

	// ReopenInterval is the delay between capture device reopen
	// attempts after a failure. Default: 5s.
	ReopenInterval time.Duration `yaml:"reopenInterval"`
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.FFTSize <= 0 {
		c.FFTSize = 1024
	}
	if c.Bands <= 0 {
		c.Bands = 8
	}
	if c.MinFreq <= 0 {
		c.MinFreq = 40
	}
	if c.PeakDecay <= 0 || c.PeakDecay >= 1 {
		c.PeakDecay = 0.995
	}
	if c.ReopenInterval <= 0 {
		c.ReopenInterval = 5 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.FFTSize&(c.FFTSize-1) != 0 {
		return types.NewConfigError("audio.fftSize", "must be a power of two, got %d", c.FFTSize)
	}

	return nil
}

// Pipeline captures audio and publishes band-energy frames.
//
// The newest frame lives in a single atomic slot: Tick-rate consumers
// poll Latest and may observe the same frame twice or skip frames;
// they never block the capture loop.
type Pipeline struct {
	device  CaptureDevice
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	onError func(*types.AudioError)

	latest  atomic.Pointer[types.AudioFrame]
	healthy atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger types.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics sets the pipeline metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(p *Pipeline) { p.metrics = collector }
}

// WithErrorFunc registers a callback invoked on capture failures.
func WithErrorFunc(fn func(*types.AudioError)) Option {
	return func(p *Pipeline) { p.onError = fn }
}

// New creates a Pipeline over the given capture device.
func New(device CaptureDevice, cfg Config, opts ...Option) (*Pipeline, error) {
	if device == nil {
		return nil, types.NewConfigError("audio.device", "capture device is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		device:  device,
		cfg:     cfg,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Start launches the capture loop.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrPipelineStarted
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	_ = ctx

	p.wg.Add(1)
	go p.captureLoop(loopCtx)

	return nil
}

// Stop shuts down the capture loop.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()

		return ErrPipelineNotStarted
	}
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest returns the newest analysis frame, or nil before the first
// frame is produced. The returned frame is immutable.
func (p *Pipeline) Latest() *types.AudioFrame {
	return p.latest.Load()
}

// Healthy reports whether the capture device is currently delivering
// samples. An unhealthy pipeline publishes silence frames.
func (p *Pipeline) Healthy() bool {
	return p.healthy.Load()
}

// captureLoop opens the device and analyzes its stream, reopening on
// failure after the configured interval. While the device is down it
// publishes silence frames so reactive effects fade out instead of
// freezing.
func (p *Pipeline) captureLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		stream, err := p.device.Open(ctx)
		if err != nil {
			p.reportError("open", err)
			if !p.sleepSilence(ctx) {
				return
			}

			continue
		}

		p.healthy.Store(true)
		p.logger.Info("audio capture started", "sample_rate", stream.SampleRate())

		err = p.analyze(ctx, stream)
		_ = stream.Close()
		p.healthy.Store(false)

		if ctx.Err() != nil {
			return
		}
		p.reportError("read", err)
		if !p.sleepSilence(ctx) {
			return
		}
	}
}

// sleepSilence waits out the reopen interval, publishing silence
// frames at roughly tick rate. Returns false when the context ends.
func (p *Pipeline) sleepSilence(ctx context.Context) bool {
	deadline := time.Now().Add(p.cfg.ReopenInterval)
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			p.publish(make([]float64, p.cfg.Bands), 0)
			if time.Now().After(deadline) {
				return true
			}
		}
	}
}

// analyze runs the window/FFT/band fold over the stream until it
// fails or the context ends.
func (p *Pipeline) analyze(ctx context.Context, stream Stream) error {
	fftSize := p.cfg.FFTSize
	hop := fftSize / 2

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return err
	}

	win := window.Generate(window.TypeHann, fftSize, window.WithPeriodic())
	edges := bandEdges(p.cfg.Bands, p.cfg.MinFreq, float64(stream.SampleRate())/2)
	binHz := float64(stream.SampleRate()) / float64(fftSize)

	ring := make([]float64, fftSize)
	fftIn := make([]complex128, fftSize)
	fftOut := make([]complex128, fftSize)
	readBuf := make([]float64, hop)
	energies := make([]float64, p.cfg.Bands)

	var (
		write  int
		filled int
		peak   float64
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := stream.Read(readBuf)
		if err != nil {
			return err
		}

		for _, s := range readBuf[:n] {
			ring[write] = s
			write = (write + 1) % fftSize
			if filled < fftSize {
				filled++
			}
		}
		if filled < fftSize {
			continue
		}

		read := write
		for i := 0; i < fftSize; i++ {
			fftIn[i] = complex(ring[read]*win[i], 0)
			read = (read + 1) % fftSize
		}

		if err := plan.Forward(fftOut, fftIn); err != nil {
			return err
		}

		raw := foldBands(fftOut[:fftSize/2+1], binHz, edges, energies)

		// Rolling peak: decays so falling levels regain dynamic range,
		// floors at a small epsilon so silence maps to zero, not NaN.
		peak *= p.cfg.PeakDecay
		if raw > peak {
			peak = raw
		}
		norm := math.Max(peak, 1e-9)

		out := make([]float64, len(energies))
		for i, e := range energies {
			out[i] = clamp01(e / norm)
		}

		p.publish(out, clamp01(raw/norm))
	}
}

// publish installs a new frame in the latest slot with a strictly
// increasing timestamp.
func (p *Pipeline) publish(energies []float64, peak float64) {
	ts := time.Now()
	if prev := p.latest.Load(); prev != nil && !ts.After(prev.Timestamp) {
		ts = prev.Timestamp.Add(time.Nanosecond)
	}

	p.latest.Store(&types.AudioFrame{
		Timestamp:    ts,
		BandEnergies: energies,
		Peak:         peak,
	})
	p.metrics.RecordAudioFrame(peak)
}

func (p *Pipeline) reportError(op string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	audioErr := &types.AudioError{Op: op, Err: err}
	p.logger.Warn("audio capture failure", "op", op, "error", err)
	if p.onError != nil {
		p.onError(audioErr)
	}
}

// bandEdges returns count+1 log-spaced frequency edges from minFreq
// to nyquist.
func bandEdges(count int, minFreq, nyquist float64) []float64 {
	edges := make([]float64, count+1)
	ratio := nyquist / minFreq
	for i := range edges {
		edges[i] = minFreq * math.Pow(ratio, float64(i)/float64(count))
	}

	return edges
}

// foldBands averages FFT bin magnitudes into the configured bands and
// returns the loudest band's raw energy.
func foldBands(spectrum []complex128, binHz float64, edges []float64, out []float64) float64 {
	counts := make([]int, len(out))
	for i := range out {
		out[i] = 0
	}

	for k := 1; k < len(spectrum); k++ {
		freq := float64(k) * binHz
		band := bandFor(freq, edges)
		if band < 0 {
			continue
		}
		out[band] += cmplx.Abs(spectrum[k])
		counts[band]++
	}

	var maxEnergy float64
	for i := range out {
		if counts[i] > 0 {
			out[i] /= float64(counts[i])
		}
		if out[i] > maxEnergy {
			maxEnergy = out[i]
		}
	}

	return maxEnergy
}

func bandFor(freq float64, edges []float64) int {
	if freq < edges[0] || freq > edges[len(edges)-1] {
		return -1
	}
	for i := 0; i < len(edges)-1; i++ {
		if freq < edges[i+1] {
			return i
		}
	}

	return len(edges) - 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}

	return v
}
