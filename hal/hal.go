package hal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/logging"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/metrics"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/topology"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Sentinel errors returned by the HAL.
var (
	// ErrNotConnected is returned when Commit is called while the
	// channel is Disconnected or still Probing.
	ErrNotConnected = errors.New("hardware channel not connected")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("hal already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("hal not started")
)

// Config controls HAL batching, pacing and retry behavior.
type Config struct {
	// CommitInterval is the minimum spacing between commits; the
	// embedded controller enforces a minimum inter-command interval.
	// Default: 16ms (one commit per 60Hz tick).
	CommitInterval time.Duration `yaml:"commitInterval"`

	// CommitTimeout bounds one whole commit (all zone writes plus
	// retries). A Degraded channel skips frames it cannot apply
	// within this timeout instead of blocking the scheduler.
	// Default: 250ms.
	CommitTimeout time.Duration `yaml:"commitTimeout"`

	// MaxRetries is the retry count for transient failures.
	// Default: 3.
	MaxRetries uint64 `yaml:"maxRetries"`

	// RetryBase is the initial backoff delay. Default: 10ms.
	RetryBase time.Duration `yaml:"retryBase"`

	// DegradedThreshold is the number of consecutive failed commits
	// after which the channel is marked Degraded. Default: 3.
	DegradedThreshold int `yaml:"degradedThreshold"`
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.CommitInterval <= 0 {
		c.CommitInterval = 16 * time.Millisecond
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 250 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 10 * time.Millisecond
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = 3
	}
}

// HAL owns the hardware channel: it diffs frames against the last
// acknowledged one, batches the changed zones, paces and retries
// writes, and tracks the channel state machine.
//
// The last acknowledged frame is exclusively owned by the HAL; no
// other component mutates it.
type HAL struct {
	driver  Driver
	topo    *topology.Topology
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector

	state         atomic.Int32 // types.HALState
	onStateChange func(from, to types.HALState)
	onCommit      func(frame types.Frame)

	mu         sync.Mutex // serializes commits; guards lastAcked
	lastAcked  types.Frame
	lastHash   uint64
	hasAcked   bool
	lastCommit time.Time
	failStreak int

	// submitCh is the bounded backpressure queue (depth 2). When
	// full, the oldest queued frame is dropped: latest frame wins,
	// nothing queues unboundedly.
	submitCh chan types.Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a HAL.
type Option func(*HAL)

// WithLogger sets the HAL logger.
func WithLogger(logger types.Logger) Option {
	return func(h *HAL) { h.logger = logger }
}

// WithMetrics sets the HAL metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(h *HAL) { h.metrics = collector }
}

// WithStateChangeFunc registers a callback invoked synchronously on
// every channel state transition.
func WithStateChangeFunc(fn func(from, to types.HALState)) Option {
	return func(h *HAL) { h.onStateChange = fn }
}

// SetCommitFunc registers a callback invoked with a copy of every
// frame the driver acknowledges. Must be set before Start.
func (h *HAL) SetCommitFunc(fn func(frame types.Frame)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommit = fn
}

// SetStateChangeFunc registers the state transition callback,
// replacing any callback given at construction. Must be set before
// Connect.
func (h *HAL) SetStateChangeFunc(fn func(from, to types.HALState)) {
	h.onStateChange = fn
}

// New creates a HAL over the given driver and topology.
//
// Returns:
//   - *HAL: The initialized HAL in Disconnected state
//   - error: A *types.ConfigError when the topology exceeds the
//     driver's addressable range
func New(driver Driver, topo *topology.Topology, cfg Config, opts ...Option) (*HAL, error) {
	if driver == nil {
		return nil, types.NewConfigError("driver", "driver is required")
	}
	if topo == nil {
		return nil, types.NewConfigError("topology", "topology is required")
	}

	cfg.SetDefaults()

	h := &HAL{
		driver:   driver,
		topo:     topo,
		cfg:      cfg,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		submitCh: make(chan types.Frame, 2),
	}
	for _, opt := range opts {
		opt(h)
	}

	if ranged, ok := driver.(MaxAddressable); ok {
		if err := topo.Validate(ranged.MaxLED()); err != nil {
			return nil, err
		}
	}

	h.state.Store(int32(types.HALDisconnected))

	return h, nil
}

// State returns the current channel state.
func (h *HAL) State() types.HALState {
	return types.HALState(h.state.Load())
}

// Connect probes the driver and brings the channel up.
//
// Returns:
//   - error: A permanent *types.HalError when the probe fails
func (h *HAL) Connect(ctx context.Context) error {
	h.transition(h.State(), types.HALProbing)

	if !h.driver.Probe(ctx) {
		h.transition(types.HALProbing, types.HALDisconnected)

		return types.NewHalError(types.HalPermanent, "probe", errors.New("hardware channel not detected"))
	}

	h.transition(types.HALProbing, types.HALConnected)
	h.logger.Info("hardware channel connected")

	return nil
}

// Start launches the background committer that drains the submit
// queue. Connect should be called first; an unconnected HAL still
// starts, discarding frames until a reconnect succeeds.
func (h *HAL) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.ctx != nil {
		h.mu.Unlock()

		return ErrAlreadyStarted
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.mu.Unlock()

	_ = ctx // lifecycle is owned by Stop, not the caller's context

	h.wg.Add(1)
	go h.committerLoop()

	return nil
}

// Stop shuts down the committer and closes the driver.
func (h *HAL) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.ctx == nil {
		h.mu.Unlock()

		return ErrNotStarted
	}
	h.cancel()
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := h.driver.Close(); err != nil {
		h.logger.Error("driver close failed", "error", err)

		return fmt.Errorf("driver close: %w", err)
	}

	return nil
}

// Submit enqueues a frame for commit without ever blocking the
// caller. Under backpressure the oldest queued frame is dropped.
func (h *HAL) Submit(frame types.Frame) {
	for {
		select {
		case h.submitCh <- frame:
			return
		default:
		}

		// Queue full: evict the oldest and retry.
		select {
		case <-h.submitCh:
			h.metrics.RecordDroppedFrame()
			h.logger.Debug("dropped intermediate frame under backpressure")
		default:
		}
	}
}

// Commit translates a frame into zone writes and waits for driver
// acknowledgment, bounded by the commit timeout.
//
// Only zones whose color differs from the last acknowledged frame are
// written, in topology declaration order. A frame identical to the
// last acknowledged one is skipped entirely.
//
// Returns:
//   - error: ErrNotConnected, or a *types.HalError on failure
func (h *HAL) Commit(ctx context.Context, frame types.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.State() {
	case types.HALDisconnected, types.HALProbing:
		return ErrNotConnected
	case types.HALConnected, types.HALDegraded:
	}

	// Rate limit: the EC enforces a minimum inter-command interval.
	if wait := h.cfg.CommitInterval - time.Since(h.lastCommit); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	hash := frame.Hash()
	if h.hasAcked && hash == h.lastHash {
		return nil
	}

	changed := h.diff(frame)
	start := time.Now()

	for _, zoneID := range changed {
		if err := h.applyWithRetry(ctx, zoneID, frame[zoneID]); err != nil {
			h.metrics.RecordCommit(len(changed), time.Since(start), false)
			h.noteFailure(err)

			return err
		}
	}

	if err := h.driver.Flush(ctx); err != nil {
		err = classifyExecErr("flush", err)
		h.metrics.RecordCommit(len(changed), time.Since(start), false)
		h.noteFailure(err)

		return err
	}

	h.lastAcked = frame.Clone()
	h.lastHash = hash
	h.hasAcked = true
	h.lastCommit = time.Now()
	h.failStreak = 0
	h.metrics.RecordCommit(len(changed), time.Since(start), true)

	if h.State() == types.HALDegraded {
		h.transition(types.HALDegraded, types.HALConnected)
		h.logger.Info("hardware channel recovered")
	}

	if h.onCommit != nil {
		h.onCommit(h.lastAcked.Clone())
	}

	return nil
}

// LastAcknowledged returns a copy of the last frame the driver
// acknowledged, or nil before the first successful commit.
func (h *HAL) LastAcknowledged() types.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.hasAcked {
		return nil
	}

	return h.lastAcked.Clone()
}

// SetBrightness forwards the global brightness to drivers that
// support it; others silently ignore it (the engine scales frames in
// software either way).
func (h *HAL) SetBrightness(ctx context.Context, percent int) error {
	if bs, ok := h.driver.(BrightnessSetter); ok {
		return bs.SetBrightness(ctx, percent)
	}

	return nil
}

// diff returns the zones whose color differs from the last
// acknowledged frame, in topology declaration order.
func (h *HAL) diff(frame types.Frame) []string {
	all := h.topo.AllZones()
	if !h.hasAcked {
		return all
	}

	changed := make([]string, 0, len(all))
	for _, zoneID := range all {
		if frame[zoneID] != h.lastAcked[zoneID] {
			changed = append(changed, zoneID)
		}
	}

	return changed
}

// applyWithRetry writes one zone, retrying transient failures with
// exponential backoff (base RetryBase, MaxRetries attempts after the
// first). Permanent failures abort immediately.
func (h *HAL) applyWithRetry(ctx context.Context, zoneID string, color types.Color) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.cfg.RetryBase
	bo.RandomizationFactor = 0 // deterministic retry spacing

	op := func() error {
		err := h.driver.Apply(ctx, zoneID, color)
		if err == nil {
			return nil
		}

		var halErr *types.HalError
		if errors.As(err, &halErr) && halErr.Kind == types.HalPermanent {
			return backoff.Permanent(err)
		}
		h.logger.Debug("transient apply failure, retrying", "zone", zoneID, "error", err)

		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, h.cfg.MaxRetries), ctx))
	if err == nil {
		return nil
	}

	var halErr *types.HalError
	if !errors.As(err, &halErr) {
		err = types.NewHalError(types.HalTransient, "apply", err)
	}

	return err
}

// noteFailure updates the state machine after a failed commit.
func (h *HAL) noteFailure(err error) {
	var halErr *types.HalError
	if errors.As(err, &halErr) && halErr.Kind == types.HalPermanent {
		h.transition(h.State(), types.HALDisconnected)
		h.logger.Error("permanent hardware failure, channel disconnected", "error", err)

		return
	}

	h.failStreak++
	if h.failStreak >= h.cfg.DegradedThreshold && h.State() == types.HALConnected {
		h.transition(types.HALConnected, types.HALDegraded)
		h.logger.Warn("hardware channel degraded",
			"consecutive_failures", h.failStreak,
			"error", err,
		)
	}
}

// committerLoop drains the submit queue, committing each frame with a
// bounded timeout so a slow channel never stalls the scheduler.
func (h *HAL) committerLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case frame := <-h.submitCh:
			ctx, cancel := context.WithTimeout(h.ctx, h.cfg.CommitTimeout)
			err := h.Commit(ctx, frame)
			cancel()

			switch {
			case err == nil:
			case errors.Is(err, ErrNotConnected):
				// Engine keeps rendering for preview/sync while
				// hardware output is unavailable.
			case errors.Is(err, context.DeadlineExceeded):
				h.logger.Warn("frame skipped: commit timeout")
			default:
				h.logger.Error("frame commit failed", "error", err)
			}
		}
	}
}

// transition moves to a new state if the transition is valid, firing
// the state change callback and metrics.
func (h *HAL) transition(from, to types.HALState) {
	if from == to {
		return
	}
	if !validTransition(from, to) {
		h.logger.Error("invalid HAL state transition attempted",
			"from", from.String(),
			"to", to.String(),
		)

		return
	}

	h.state.Store(int32(to))
	h.logger.Info("HAL state transition", "from", from.String(), "to", to.String())
	h.metrics.RecordHALStateChange(from, to)

	if h.onStateChange != nil {
		h.onStateChange(from, to)
	}
}

// validTransition validates the channel state machine.
func validTransition(from, to types.HALState) bool {
	valid := map[types.HALState][]types.HALState{
		types.HALDisconnected: {types.HALProbing},
		types.HALProbing:      {types.HALConnected, types.HALDisconnected},
		types.HALConnected:    {types.HALDegraded, types.HALDisconnected},
		types.HALDegraded:     {types.HALConnected, types.HALDisconnected},
	}

	for _, allowed := range valid[from] {
		if allowed == to {
			return true
		}
	}

	return false
}
