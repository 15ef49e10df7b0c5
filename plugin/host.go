package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	lua "github.com/yuin/gopher-lua"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/logging"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/metrics"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/watchdog"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/topology"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Defaults for the tick watchdog.
const (
	// DefaultTickBudget is the per-tick wall-clock budget for one
	// plugin's tick callback.
	DefaultTickBudget = 2 * time.Millisecond

	// DefaultFaultStrikes is the number of consecutive budget
	// overruns that fault a plugin.
	DefaultFaultStrikes = 5
)

// ErrPluginExists is returned when loading a plugin whose ID is
// already registered.
var ErrPluginExists = errors.New("plugin id already loaded")

// EffectRegistrar is the host's path into the effect engine. The
// engine implements it; plugin effect registrations become ordinary
// engine commands.
type EffectRegistrar interface {
	// ActivateEffect starts an effect instance and returns its ID.
	ActivateEffect(act types.ActivateEffect) (string, error)

	// DeactivateEffect stops an effect instance.
	DeactivateEffect(instanceID string) error
}

// Host loads and ticks Lua plugins.
//
// Load, Tick and Unload must be called from the engine's tick
// goroutine; lookup methods are safe anywhere.
type Host struct {
	registrar EffectRegistrar
	topo      *topology.Topology
	audio     func() *types.AudioFrame
	logger    types.Logger
	metrics   types.MetricsCollector
	onFault   func(*types.PluginFault)

	budget  time.Duration
	strikes int

	plugins *xsync.Map[string, *Handle]
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(logger types.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// WithMetrics sets the host metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(h *Host) { h.metrics = collector }
}

// WithAudioSource provides the audio snapshot read by api.audio.
func WithAudioSource(fn func() *types.AudioFrame) Option {
	return func(h *Host) { h.audio = fn }
}

// WithFaultFunc registers a callback invoked when a plugin faults.
func WithFaultFunc(fn func(*types.PluginFault)) Option {
	return func(h *Host) { h.onFault = fn }
}

// WithTickBudget overrides the per-tick wall-clock budget.
func WithTickBudget(budget time.Duration) Option {
	return func(h *Host) { h.budget = budget }
}

// WithFaultStrikes overrides the consecutive-overrun limit.
func WithFaultStrikes(strikes int) Option {
	return func(h *Host) { h.strikes = strikes }
}

// NewHost creates a plugin host.
func NewHost(registrar EffectRegistrar, topo *topology.Topology, opts ...Option) *Host {
	h := &Host{
		registrar: registrar,
		topo:      topo,
		logger:    logging.NewNop(),
		metrics:   metrics.NewNop(),
		budget:    DefaultTickBudget,
		strikes:   DefaultFaultStrikes,
		plugins:   xsync.NewMap[string, *Handle](),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Load compiles a plugin's entry script, builds its capability-scoped
// API and runs setup(api).
//
// Returns:
//   - *Handle: The loaded plugin; Running if setup registered an
//     effect, Loaded otherwise
//   - error: Validation, compile or setup failure; the plugin is not
//     registered on error
func (h *Host) Load(manifest *Manifest, script string) (*Handle, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	if _, exists := h.plugins.Load(manifest.ID); exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginExists, manifest.ID)
	}

	handle := &Handle{
		manifest: manifest,
		grants:   newGrantSet(manifest.Capabilities),
		dog:      watchdog.New(h.budget, h.strikes),
	}

	ls := lua.NewState(lua.Options{SkipOpenLibs: true})
	handle.ls = ls
	openSandboxLibs(ls)
	handle.api = h.buildAPI(ls, handle)

	if err := ls.DoString(script); err != nil {
		ls.Close()

		return nil, &types.PluginFault{
			PluginID: manifest.ID,
			Kind:     types.FaultPanic,
			Err:      fmt.Errorf("compile: %w", err),
		}
	}

	setup, ok := ls.GetGlobal("setup").(*lua.LFunction)
	if !ok {
		ls.Close()

		return nil, types.NewConfigError("plugin.entry", "plugin %s defines no setup function", manifest.ID)
	}

	err := ls.CallByParam(lua.P{Fn: setup, NRet: 0, Protect: true}, handle.api)
	if fault := h.checkCallResult(handle, err, "setup"); fault != nil {
		h.teardown(handle)
		ls.Close()

		return nil, fault
	}

	if tickFn, ok := ls.GetGlobal("tick").(*lua.LFunction); ok {
		handle.tickFn = tickFn
	}

	if len(handle.instances) > 0 {
		handle.setState(types.PluginRunning)
	}
	h.plugins.Store(manifest.ID, handle)
	h.logger.Info("plugin loaded",
		"plugin", manifest.ID,
		"state", handle.State().String(),
		"instances", len(handle.instances),
	)

	return handle, nil
}

// LoadDir loads a plugin from a directory containing manifest.yaml
// and its entry script.
func (h *Host) LoadDir(dir string) (*Handle, error) {
	manifest, script, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	return h.Load(manifest, script)
}

// Plugin returns the handle for the given plugin ID.
func (h *Host) Plugin(id string) (*Handle, bool) {
	return h.plugins.Load(id)
}

// Tick runs every live plugin's tick callback under the watchdog
// budget. dt is the effect-time delta since the previous tick.
//
// Loaded plugins tick too: a plugin whose setup registers nothing may
// still register effects from its timer callback.
func (h *Host) Tick(dt time.Duration) {
	h.plugins.Range(func(_ string, handle *Handle) bool {
		h.tickOne(handle, dt)

		return true
	})
}

func (h *Host) tickOne(handle *Handle, dt time.Duration) {
	state := handle.State()
	if (state != types.PluginRunning && state != types.PluginLoaded) || handle.tickFn == nil {
		return
	}

	handle.violation = nil

	// The deadline context aborts runaway Lua mid-execution; the
	// watchdog decides whether the overrun faults the plugin.
	ctx, cancel := context.WithTimeout(context.Background(), handle.dog.Budget())
	handle.ls.SetContext(ctx)

	start := time.Now()
	err := handle.ls.CallByParam(
		lua.P{Fn: handle.tickFn, NRet: 0, Protect: true},
		handle.api, lua.LNumber(dt.Seconds()),
	)
	elapsed := time.Since(start)

	cancel()
	handle.ls.RemoveContext()

	if handle.violation != nil {
		h.fault(handle, handle.violation)

		return
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && elapsed <= handle.dog.Budget() {
		elapsed = handle.dog.Budget() + time.Microsecond
	}
	overran := elapsed > handle.dog.Budget()
	if handle.dog.Observe(elapsed) {
		h.fault(handle, &types.PluginFault{
			PluginID: handle.ID(),
			Kind:     types.FaultTimeoutExceeded,
			Err:      fmt.Errorf("tick exceeded %v budget %d times", handle.dog.Budget(), handle.dog.Streak()),
		})

		return
	}
	if overran {
		// Aborted mid-tick by the deadline; not yet a fault.
		return
	}

	if err != nil {
		h.fault(handle, &types.PluginFault{
			PluginID: handle.ID(),
			Kind:     types.FaultPanic,
			Err:      err,
		})
	}
}

// Unload tears down a plugin: its effect instances are deactivated
// and its Lua state closed. Unloaded is terminal.
func (h *Host) Unload(id string) error {
	handle, ok := h.plugins.Load(id)
	if !ok {
		return fmt.Errorf("plugin %s not loaded", id)
	}

	h.teardown(handle)
	handle.state.Store(int32(types.PluginUnloaded))
	handle.ls.Close()
	h.plugins.Delete(id)
	h.logger.Info("plugin unloaded", "plugin", id)

	return nil
}

// checkCallResult maps a Lua call outcome onto the fault taxonomy.
func (h *Host) checkCallResult(handle *Handle, err error, op string) *types.PluginFault {
	if handle.violation != nil {
		return handle.violation
	}
	if err != nil {
		return &types.PluginFault{
			PluginID: handle.ID(),
			Kind:     types.FaultPanic,
			Err:      fmt.Errorf("%s: %w", op, err),
		}
	}

	return nil
}

// fault moves a plugin to Faulted, deactivates its instances and
// reports the fault. The Lua state stays allocated but is never
// re-entered.
func (h *Host) fault(handle *Handle, fault *types.PluginFault) {
	if !handle.setState(types.PluginFaulted) {
		return
	}

	h.teardown(handle)
	h.logger.Warn("plugin faulted",
		"plugin", handle.ID(),
		"kind", fault.Kind.String(),
		"error", fault.Err,
	)
	h.metrics.RecordPluginFault(handle.ID(), fault.Kind)
	if h.onFault != nil {
		h.onFault(fault)
	}
}

// teardown deactivates every effect instance the plugin registered.
func (h *Host) teardown(handle *Handle) {
	for _, instanceID := range handle.instances {
		if err := h.registrar.DeactivateEffect(instanceID); err != nil {
			h.logger.Warn("deactivating plugin effect failed",
				"plugin", handle.ID(),
				"instance", instanceID,
				"error", err,
			)
		}
	}
	handle.instances = nil
}

// openSandboxLibs opens the safe subset of the Lua standard library:
// base, table, math and string. No io, os or package loading.
func openSandboxLibs(ls *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
	} {
		ls.Push(ls.NewFunction(lib.open))
		ls.Push(lua.LString(lib.name))
		ls.Call(1, 0)
	}
}
