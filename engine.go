package rgbkbd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/audio"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/effects"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/hal"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/logging"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/metrics"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/plugin"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/topology"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Engine lifecycle states.
const (
	engineInit int32 = iota
	engineRunning
	engineStopped
)

// instance is one active effect on the composition stack.
type instance struct {
	id        string
	kind      types.EffectKind
	gen       effects.Generator
	zones     []string
	priority  int
	blend     types.BlendMode
	secondary types.BlendMode
	owner     string

	// seq orders instances with equal priority: later activation
	// renders later, so it wins under Replace.
	seq uint64

	// startedAt is the effect-time at activation; effect-local time
	// is effectTime - startedAt.
	startedAt time.Duration
}

// Engine is the effect scheduler: a fixed-rate tick loop composing
// active effect instances into frames for the HAL.
//
// All mutable composition state (instances, pressed keys, brightness,
// speed) is owned by the tick goroutine; external surfaces talk to it
// through the command queue and see changes applied atomically at the
// next tick boundary.
type Engine struct {
	cfg     Config
	topo    *topology.Topology
	channel *hal.HAL
	opts    engineOptions
	logger  types.Logger
	metrics types.MetricsCollector

	state atomic.Int32

	// settingsRestored guards the one-time settings restore across
	// Start retries.
	settingsRestored bool

	cmdCh chan types.Command

	// Global scalars, readable from any goroutine.
	brightness  atomic.Int32
	speedBits   atomic.Uint64
	activeCount atomic.Int32

	// Tick-goroutine state.
	instances    []*instance
	nextSeq      uint64
	pressed      map[types.LedIndex]bool
	pressedZones map[string]bool
	effectTime   time.Duration
	lastFrame    types.Frame
	lastUserFX   *types.ActivateEffect

	hostMu sync.Mutex
	host   *plugin.Host

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an Engine over the given topology and HAL.
//
// Parameters:
//   - cfg: Engine configuration (zero value uses defaults)
//   - topo: The zone topology
//   - channel: The hardware abstraction layer
//   - opts: Optional dependencies (logger, metrics, hooks, audio, relay)
//
// Returns:
//   - *Engine: The initialized engine in Init state
//   - error: Configuration or wiring errors
func NewEngine(cfg Config, topo *topology.Topology, channel *hal.HAL, opts ...Option) (*Engine, error) {
	if topo == nil {
		return nil, ErrTopologyRequired
	}
	if channel == nil {
		return nil, ErrHALRequired
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		topo:         topo,
		channel:      channel,
		logger:       logging.NewNop(),
		metrics:      metrics.NewNop(),
		cmdCh:        make(chan types.Command, cfg.CommandQueueSize),
		pressed:      make(map[types.LedIndex]bool),
		pressedZones: make(map[string]bool),
		lastFrame:    make(types.Frame, len(topo.AllZones())),
	}
	e.brightness.Store(int32(cfg.Brightness))
	e.speedBits.Store(math.Float64bits(cfg.Speed))
	for _, opt := range opts {
		opt(&e.opts)
	}
	if e.opts.logger != nil {
		e.logger = e.opts.logger
	}
	if e.opts.metrics != nil {
		e.metrics = e.opts.metrics
	}

	// Frames cover every zone from the first tick on.
	for _, zoneID := range topo.AllZones() {
		e.lastFrame[zoneID] = types.Color{}
	}

	return e, nil
}

// Start brings the engine up: settings are restored, the HAL is
// connected and started, optional subsystems launch, and the tick
// loop begins.
//
// A failed HAL probe is not fatal; the engine renders frames for the
// relay and preview surfaces and the HAL keeps the channel
// Disconnected until a later reconnect.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(engineInit, engineRunning) {
		return ErrAlreadyStarted
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())

	if !e.settingsRestored {
		e.restoreSettings()
		e.settingsRestored = true
	}

	e.channel.SetCommitFunc(func(frame types.Frame) {
		e.fireHook(func(hookCtx context.Context, h *Hooks) error {
			if h.OnFrameCommitted == nil {
				return nil
			}

			return h.OnFrameCommitted(hookCtx, frame)
		})
	})
	e.channel.SetStateChangeFunc(func(from, to types.HALState) {
		e.fireHook(func(hookCtx context.Context, h *Hooks) error {
			if h.OnHALStateChanged == nil {
				return nil
			}

			return h.OnHALStateChanged(hookCtx, from, to)
		})
	})
	if e.opts.relay != nil {
		e.opts.relay.SetStatusFunc(func(err error) {
			e.fireHook(func(hookCtx context.Context, h *Hooks) error {
				if h.OnSyncStatus == nil {
					return nil
				}

				return h.OnSyncStatus(hookCtx, err)
			})
		})
	}

	if err := e.channel.Connect(ctx); err != nil {
		e.logger.Warn("hardware channel unavailable, rendering without output", "error", err)
	}
	// Subsystems already running from an earlier failed Start are
	// reused by the retry.
	if err := e.channel.Start(ctx); err != nil && !errors.Is(err, hal.ErrAlreadyStarted) {
		return e.abortStart(fmt.Errorf("start hal: %w", err))
	}

	if e.opts.audio != nil {
		if err := e.opts.audio.Start(ctx); err != nil && !errors.Is(err, audio.ErrPipelineStarted) {
			return e.abortStart(fmt.Errorf("start audio pipeline: %w", err))
		}
	}

	if e.opts.relay != nil {
		err := e.opts.relay.SubscribeCommands(func(cmd types.Command) {
			if err := e.Submit(cmd); err != nil {
				e.logger.Warn("dropping remote command", "error", err)
			}
		})
		if err != nil {
			return e.abortStart(fmt.Errorf("subscribe relay commands: %w", err))
		}
	}

	e.wg.Add(1)
	go e.tickLoop()

	e.logger.Info("engine started",
		"tick_rate", e.cfg.TickRate,
		"zones", len(e.topo.AllZones()),
	)

	return nil
}

// abortStart unwinds a failed Start back to Init so Start can be
// retried; subsystems that already came up stay up for the retry.
func (e *Engine) abortStart(err error) error {
	e.cancel()
	e.state.Store(engineInit)

	return err
}

// Stop shuts the engine down: the tick loop ends, settings are
// persisted, and the audio pipeline, HAL and relay are released.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.state.CompareAndSwap(engineRunning, engineStopped) {
		return ErrNotStarted
	}

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.saveSettings()

	var firstErr error
	if e.opts.audio != nil {
		if err := e.opts.audio.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop audio pipeline: %w", err)
		}
	}
	if err := e.channel.Stop(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("stop hal: %w", err)
	}
	if e.opts.relay != nil {
		if err := e.opts.relay.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close relay: %w", err)
		}
	}

	e.logger.Info("engine stopped")

	return firstErr
}

// Submit enqueues a command for the next tick boundary. It never
// blocks; a full queue rejects the command.
func (e *Engine) Submit(cmd types.Command) error {
	select {
	case e.cmdCh <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// ActivateEffect validates and enqueues an effect activation,
// returning the instance ID the effect will run under.
//
// Validation (unknown kind, unknown target zone) happens here,
// synchronously; the instance joins the composition stack at the next
// tick boundary.
func (e *Engine) ActivateEffect(act types.ActivateEffect) (string, error) {
	if _, err := effects.New(act.Kind, act.Params); err != nil {
		return "", err
	}
	for _, zoneID := range act.ZoneTargets {
		if !e.topo.Contains(zoneID) {
			return "", types.NewConfigError("effect.zones", "unknown zone %q", zoneID)
		}
	}
	if act.InstanceID == "" {
		act.InstanceID = uuid.NewString()
	}

	err := e.Submit(types.Command{Type: types.CmdActivateEffect, Activate: &act})
	if err != nil {
		return "", err
	}

	return act.InstanceID, nil
}

// DeactivateEffect enqueues the removal of an effect instance.
func (e *Engine) DeactivateEffect(instanceID string) error {
	return e.Submit(types.Command{
		Type:       types.CmdDeactivateEffect,
		Deactivate: &types.DeactivateEffect{InstanceID: instanceID},
	})
}

// PluginHost returns the engine's plugin host, creating it on first
// use. Plugins registered through it activate effects like any other
// command source.
func (e *Engine) PluginHost() *plugin.Host {
	e.hostMu.Lock()
	defer e.hostMu.Unlock()

	if e.host == nil {
		e.host = plugin.NewHost(e, e.topo,
			plugin.WithLogger(e.logger),
			plugin.WithMetrics(e.metrics),
			plugin.WithAudioSource(e.audioLatest),
			plugin.WithFaultFunc(func(fault *types.PluginFault) {
				e.fireHook(func(hookCtx context.Context, h *Hooks) error {
					if h.OnPluginFault == nil {
						return nil
					}

					return h.OnPluginFault(hookCtx, fault)
				})
			}),
		)
	}

	return e.host
}

// LoadPlugin loads a plugin directory into the engine's plugin host.
func (e *Engine) LoadPlugin(dir string) (*plugin.Handle, error) {
	return e.PluginHost().LoadDir(dir)
}

// LastFrame returns a copy of the most recently committed frame, nil
// before the first commit.
func (e *Engine) LastFrame() types.Frame {
	return e.channel.LastAcknowledged()
}

var _ plugin.EffectRegistrar = (*Engine)(nil)

// Brightness returns the current global brightness percentage.
func (e *Engine) Brightness() int {
	return int(e.brightness.Load())
}

// Speed returns the current global speed multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speedBits.Load())
}

// ActiveEffects returns the number of effect instances on the
// composition stack.
func (e *Engine) ActiveEffects() int {
	return int(e.activeCount.Load())
}

// tickLoop is the scheduler: drain commands, advance effect time,
// tick plugins, compose, hand off.
func (e *Engine) tickLoop() {
	defer e.wg.Done()

	interval := time.Second / time.Duration(e.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.tick(interval)
		}
	}
}

func (e *Engine) tick(interval time.Duration) {
	start := time.Now()

	e.drainCommands()

	// Effect time advances by speed-scaled wall time, so a speed
	// change accelerates running effects without restarting them.
	e.effectTime += time.Duration(float64(interval) * e.Speed())

	e.hostMu.Lock()
	host := e.host
	e.hostMu.Unlock()
	if host != nil {
		host.Tick(interval)
		e.drainCommands()
	}

	frame := e.compose()
	e.lastFrame = frame

	scaled := make(types.Frame, len(frame))
	for zoneID, c := range frame {
		scaled[zoneID] = c.Scaled(float64(e.Brightness()) / 100)
	}

	e.channel.Submit(scaled)

	if e.opts.relay != nil {
		if err := e.opts.relay.PublishFrame(scaled); err != nil {
			e.logger.Debug("relay publish failed", "error", err)
		}
	}

	e.metrics.RecordTick(time.Since(start), len(e.instances))
}

// compose folds the active instances, in (priority, activation)
// order, over the carried frame. A faulting generator is deactivated
// and the tick proceeds with the rest.
func (e *Engine) compose() types.Frame {
	audioFrame := e.audioLatest()
	tctx := effects.TickContext{
		Audio:        audioFrame,
		PressedZones: e.pressedZones,
	}

	peak := 0.0
	if audioFrame != nil {
		peak = audioFrame.Peak
	}

	acc := e.lastFrame.Clone()

	kept := e.instances[:0]
	for _, inst := range e.instances {
		tctx.Elapsed = e.effectTime - inst.startedAt

		out, err := renderSafe(inst, tctx)
		if err != nil {
			fault := &types.EffectFault{InstanceID: inst.id, Kind: inst.kind, Err: err}
			e.logger.Warn("effect fault, deactivating instance",
				"instance", inst.id,
				"kind", inst.kind,
				"error", err,
			)
			e.metrics.RecordEffectFault(inst.kind)
			e.fireHook(func(hookCtx context.Context, h *Hooks) error {
				if h.OnEffectFault == nil {
					return nil
				}

				return h.OnEffectFault(hookCtx, fault)
			})
			e.activeCount.Add(-1)

			continue
		}
		kept = append(kept, inst)

		effects.Apply(acc, out, inst.blend, inst.secondary, peak)
	}
	e.instances = kept

	return acc
}

// renderSafe calls the generator with panic containment.
func renderSafe(inst *instance, tctx effects.TickContext) (out map[string]types.Color, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()

	return inst.gen.Render(tctx, inst.zones)
}

// drainCommands applies every queued command. Commands are applied in
// arrival order, atomically with respect to composition.
func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.cmdCh:
			e.apply(cmd)
		default:
			return
		}
	}
}

func (e *Engine) apply(cmd types.Command) {
	switch cmd.Type {
	case types.CmdActivateEffect:
		if cmd.Activate != nil {
			e.applyActivate(*cmd.Activate)
		}
	case types.CmdDeactivateEffect:
		if cmd.Deactivate != nil {
			e.applyDeactivate(cmd.Deactivate.InstanceID)
		}
	case types.CmdSetBrightness:
		if cmd.Brightness != nil {
			e.applyBrightness(cmd.Brightness.Percent)
		}
	case types.CmdSetSpeed:
		if cmd.Speed != nil {
			e.applySpeed(cmd.Speed.Multiplier)
		}
	case types.CmdKeyEvent:
		if cmd.Key != nil {
			e.applyKeyEvent(*cmd.Key)
		}
	default:
		e.logger.Warn("ignoring unknown command", "type", cmd.Type)
	}
}

func (e *Engine) applyActivate(act types.ActivateEffect) {
	gen, err := effects.New(act.Kind, act.Params)
	if err != nil {
		// Submit paths validate already; remote commands may not.
		e.logger.Warn("rejecting effect activation", "kind", act.Kind, "error", err)

		return
	}

	zones := act.ZoneTargets
	if len(zones) == 0 {
		zones = e.topo.AllZones()
	}

	if act.InstanceID == "" {
		act.InstanceID = uuid.NewString()
	}

	e.nextSeq++
	e.instances = append(e.instances, &instance{
		id:        act.InstanceID,
		kind:      act.Kind,
		gen:       gen,
		zones:     zones,
		priority:  act.Priority,
		blend:     act.Blend,
		secondary: act.Secondary,
		owner:     act.Owner,
		seq:       e.nextSeq,
		startedAt: e.effectTime,
	})
	sort.SliceStable(e.instances, func(i, j int) bool {
		if e.instances[i].priority != e.instances[j].priority {
			return e.instances[i].priority < e.instances[j].priority
		}

		return e.instances[i].seq < e.instances[j].seq
	})

	e.activeCount.Add(1)

	if act.Owner == "" {
		e.lastUserFX = &act
	}

	e.logger.Info("effect activated",
		"instance", act.InstanceID,
		"kind", act.Kind,
		"priority", act.Priority,
		"zones", len(zones),
	)
}

func (e *Engine) applyDeactivate(instanceID string) {
	for i, inst := range e.instances {
		if inst.id == instanceID {
			e.instances = append(e.instances[:i], e.instances[i+1:]...)
			e.activeCount.Add(-1)
			e.logger.Info("effect deactivated", "instance", instanceID, "kind", inst.kind)

			return
		}
	}

	e.logger.Debug("deactivate for unknown instance", "instance", instanceID)
}

func (e *Engine) applyBrightness(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	e.brightness.Store(int32(percent))

	parent := e.ctx
	if parent == nil {
		parent = context.Background()
	}

	// Hardware brightness is best-effort and off the tick path.
	go func() {
		ctx, cancel := context.WithTimeout(parent, 2*time.Second)
		defer cancel()
		if err := e.channel.SetBrightness(ctx, percent); err != nil {
			e.logger.Warn("hardware brightness update failed", "error", err)
		}
	}()
}

func (e *Engine) applySpeed(multiplier float64) {
	if multiplier < 0.1 {
		multiplier = 0.1
	}
	if multiplier > 10 {
		multiplier = 10
	}
	e.speedBits.Store(math.Float64bits(multiplier))
}

func (e *Engine) applyKeyEvent(ev types.KeyEvent) {
	if ev.Pressed {
		e.pressed[ev.Key] = true
	} else {
		delete(e.pressed, ev.Key)
	}

	pressedZones := make(map[string]bool, len(e.pressed))
	for key := range e.pressed {
		pressedZones[e.topo.ZoneForKey(key)] = true
	}
	e.pressedZones = pressedZones
}

// audioLatest snapshots the newest audio frame, nil without a
// pipeline.
func (e *Engine) audioLatest() *types.AudioFrame {
	if e.opts.audio == nil {
		return nil
	}

	return e.opts.audio.Latest()
}

// restoreSettings applies persisted settings at startup.
func (e *Engine) restoreSettings() {
	if e.cfg.SettingsPath == "" {
		return
	}

	settings, err := LoadSettings(e.cfg.SettingsPath)
	if err != nil {
		e.logger.Warn("loading settings failed, using defaults", "error", err)

		return
	}
	if settings == nil {
		return
	}

	e.applyBrightness(settings.Brightness)
	if settings.Speed > 0 {
		e.applySpeed(settings.Speed)
	}
	if settings.LastEffect != nil {
		if _, err := e.ActivateEffect(*settings.LastEffect); err != nil {
			e.logger.Warn("restoring last effect failed", "error", err)
		}
	}

	e.logger.Info("settings restored",
		"brightness", settings.Brightness,
		"speed", settings.Speed,
	)
}

// saveSettings persists the current user state at shutdown.
func (e *Engine) saveSettings() {
	if e.cfg.SettingsPath == "" {
		return
	}

	settings := &Settings{
		Brightness: e.Brightness(),
		Speed:      e.Speed(),
		LastEffect: e.lastUserFX,
	}
	if err := settings.Save(e.cfg.SettingsPath); err != nil {
		e.logger.Warn("saving settings failed", "error", err)
	}
}

// fireHook runs one hook callback in the background. Hook errors are
// logged, never propagated.
func (e *Engine) fireHook(call func(ctx context.Context, h *Hooks) error) {
	if e.opts.hooks == nil {
		return
	}

	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		if err := call(ctx, e.opts.hooks); err != nil {
			e.logger.Warn("hook returned error", "error", err)
		}
	}()
}
