package plugin

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/topology"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// fakeRegistrar records effect activations and hands out sequential
// instance IDs.
type fakeRegistrar struct {
	activated   []types.ActivateEffect
	deactivated []string
	next        int
}

func (r *fakeRegistrar) ActivateEffect(act types.ActivateEffect) (string, error) {
	r.next++
	r.activated = append(r.activated, act)

	return fmt.Sprintf("instance-%d", r.next), nil
}

func (r *fakeRegistrar) DeactivateEffect(instanceID string) error {
	r.deactivated = append(r.deactivated, instanceID)

	return nil
}

func fullManifest(id string) *Manifest {
	return &Manifest{
		ID:           id,
		Capabilities: []Capability{CapRegisterEffect, CapReadAudio, CapReadTopology},
		Entry:        "main.lua",
	}
}

const breathingPlugin = `
function setup(api)
    api.register_effect({
        kind = "breathing",
        zones = {"zone-1", "zone-2"},
        params = {speed = 7, color = "#00ff00"},
        priority = 10,
        blend = "additive",
    })
end
`

func TestHost_LoadRegistersEffect(t *testing.T) {
	registrar := &fakeRegistrar{}
	host := NewHost(registrar, topology.Default())

	handle, err := host.Load(fullManifest("glow"), breathingPlugin)
	require.NoError(t, err)
	require.Equal(t, types.PluginRunning, handle.State())
	require.Equal(t, []string{"instance-1"}, handle.Instances())

	require.Len(t, registrar.activated, 1)
	act := registrar.activated[0]
	require.Equal(t, types.EffectBreathing, act.Kind)
	require.Equal(t, []string{"zone-1", "zone-2"}, act.ZoneTargets)
	require.Equal(t, 10, act.Priority)
	require.Equal(t, types.BlendAdditive, act.Blend)
	require.Equal(t, "glow", act.Owner)
	require.Equal(t, 7.0, act.Params.Float("speed", 0))
}

func TestHost_LoadWithoutSetupFails(t *testing.T) {
	host := NewHost(&fakeRegistrar{}, topology.Default())

	_, err := host.Load(fullManifest("empty"), `local x = 1`)
	require.Error(t, err)

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestHost_LoadDuplicateID(t *testing.T) {
	host := NewHost(&fakeRegistrar{}, topology.Default())

	_, err := host.Load(fullManifest("dup"), breathingPlugin)
	require.NoError(t, err)

	_, err = host.Load(fullManifest("dup"), breathingPlugin)
	require.ErrorIs(t, err, ErrPluginExists)
}

func TestHost_CapabilityViolationAtSetup(t *testing.T) {
	registrar := &fakeRegistrar{}
	host := NewHost(registrar, topology.Default())

	manifest := &Manifest{
		ID:           "nosy",
		Capabilities: []Capability{CapRegisterEffect}, // no read:audio
		Entry:        "main.lua",
	}
	script := `
function setup(api)
    api.register_effect({kind = "static"})
    api.audio()
end
`

	_, err := host.Load(manifest, script)
	require.Error(t, err)

	var fault *types.PluginFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, types.FaultCapabilityViolation, fault.Kind)

	// The effect registered before the violation is torn down.
	require.Equal(t, []string{"instance-1"}, registrar.deactivated)
}

func TestHost_ZoneScopeViolation(t *testing.T) {
	host := NewHost(&fakeRegistrar{}, topology.Default())

	manifest := fullManifest("scoped")
	manifest.Zones = []string{"zone-1"}
	script := `
function setup(api)
    api.register_effect({kind = "static", zones = {"zone-2"}})
end
`

	_, err := host.Load(manifest, script)
	require.Error(t, err)

	var fault *types.PluginFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, types.FaultCapabilityViolation, fault.Kind)
}

func TestHost_DefaultZonesFollowManifestScope(t *testing.T) {
	registrar := &fakeRegistrar{}
	host := NewHost(registrar, topology.Default())

	manifest := fullManifest("scoped")
	manifest.Zones = []string{"zone-3", "zone-4"}
	script := `
function setup(api)
    api.register_effect({kind = "static"})
end
`

	_, err := host.Load(manifest, script)
	require.NoError(t, err)
	require.Equal(t, []string{"zone-3", "zone-4"}, registrar.activated[0].ZoneTargets)
}

func TestHost_TickViolationFaultsPlugin(t *testing.T) {
	registrar := &fakeRegistrar{}

	var faults []*types.PluginFault
	host := NewHost(registrar, topology.Default(),
		WithFaultFunc(func(f *types.PluginFault) { faults = append(faults, f) }),
	)

	manifest := &Manifest{
		ID:           "sneaky",
		Capabilities: []Capability{CapRegisterEffect}, // no read:topology
		Entry:        "main.lua",
	}
	script := `
ticks = 0
function setup(api)
    api.register_effect({kind = "static"})
end
function tick(api, dt)
    ticks = ticks + 1
    if ticks >= 2 then
        api.zones()
    end
end
`

	handle, err := host.Load(manifest, script)
	require.NoError(t, err)

	host.Tick(16 * time.Millisecond)
	require.Equal(t, types.PluginRunning, handle.State())

	host.Tick(16 * time.Millisecond)
	require.Equal(t, types.PluginFaulted, handle.State())
	require.Len(t, faults, 1)
	require.Equal(t, types.FaultCapabilityViolation, faults[0].Kind)
	require.Equal(t, []string{"instance-1"}, registrar.deactivated)

	// A faulted plugin's Lua state is never re-entered.
	ticksBefore := handle.ls.GetGlobal("ticks")
	host.Tick(16 * time.Millisecond)
	require.Equal(t, ticksBefore, handle.ls.GetGlobal("ticks"))
}

func TestHost_TimeoutFaultsAfterConsecutiveOverruns(t *testing.T) {
	registrar := &fakeRegistrar{}

	var faults []*types.PluginFault
	host := NewHost(registrar, topology.Default(),
		WithTickBudget(time.Millisecond),
		WithFaultFunc(func(f *types.PluginFault) { faults = append(faults, f) }),
	)

	script := `
function setup(api)
    api.register_effect({kind = "static"})
end
function tick(api, dt)
    while true do end
end
`

	handle, err := host.Load(fullManifest("spinner"), script)
	require.NoError(t, err)

	for i := range DefaultFaultStrikes - 1 {
		host.Tick(16 * time.Millisecond)
		require.Equal(t, types.PluginRunning, handle.State(), "tick %d", i+1)
	}

	host.Tick(16 * time.Millisecond)
	require.Equal(t, types.PluginFaulted, handle.State())
	require.Len(t, faults, 1)
	require.Equal(t, types.FaultTimeoutExceeded, faults[0].Kind)
}

func TestHost_LuaErrorFaultsAsPanic(t *testing.T) {
	var faults []*types.PluginFault
	host := NewHost(&fakeRegistrar{}, topology.Default(),
		WithFaultFunc(func(f *types.PluginFault) { faults = append(faults, f) }),
	)

	script := `
function setup(api)
    api.register_effect({kind = "static"})
end
function tick(api, dt)
    error("boom")
end
`

	handle, err := host.Load(fullManifest("crasher"), script)
	require.NoError(t, err)

	host.Tick(16 * time.Millisecond)
	require.Equal(t, types.PluginFaulted, handle.State())
	require.Len(t, faults, 1)
	require.Equal(t, types.FaultPanic, faults[0].Kind)
}

func TestHost_DeregisterForeignInstanceIsViolation(t *testing.T) {
	host := NewHost(&fakeRegistrar{}, topology.Default())

	script := `
function setup(api)
    api.register_effect({kind = "static"})
    api.deregister_effect("instance-999")
end
`

	_, err := host.Load(fullManifest("thief"), script)
	require.Error(t, err)

	var fault *types.PluginFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, types.FaultCapabilityViolation, fault.Kind)
}

func TestHost_AudioSurface(t *testing.T) {
	registrar := &fakeRegistrar{}
	frame := &types.AudioFrame{
		Timestamp:    time.Now(),
		BandEnergies: []float64{0.1, 0.9},
		Peak:         0.9,
	}
	host := NewHost(registrar, topology.Default(),
		WithAudioSource(func() *types.AudioFrame { return frame }),
	)

	// The script folds the loudest band into an effect's speed.
	script := `
function setup(api)
    local a = api.audio()
    api.register_effect({kind = "breathing", params = {speed = 1 + a.peak * 9, bands = #a.bands}})
end
`

	_, err := host.Load(fullManifest("listener"), script)
	require.NoError(t, err)

	params := registrar.activated[0].Params
	require.InDelta(t, 9.1, params.Float("speed", 0), 0.001)
	require.Equal(t, 2, params.Int("bands", 0))
}

func TestHost_Unload(t *testing.T) {
	registrar := &fakeRegistrar{}
	host := NewHost(registrar, topology.Default())

	handle, err := host.Load(fullManifest("gone"), breathingPlugin)
	require.NoError(t, err)

	require.NoError(t, host.Unload("gone"))
	require.Equal(t, types.PluginUnloaded, handle.State())
	require.Equal(t, []string{"instance-1"}, registrar.deactivated)

	_, ok := host.Plugin("gone")
	require.False(t, ok)

	require.Error(t, host.Unload("gone"))
}

func TestHost_LoadedPluginRegistersFromTick(t *testing.T) {
	registrar := &fakeRegistrar{}
	host := NewHost(registrar, topology.Default())

	// setup registers nothing; the first timer callback does.
	script := `
registered = false
function setup(api)
end
function tick(api, dt)
    if not registered then
        api.register_effect({kind = "static", zones = {"zone-1"}})
        registered = true
    end
end
`

	handle, err := host.Load(fullManifest("lazy"), script)
	require.NoError(t, err)
	require.Equal(t, types.PluginLoaded, handle.State())

	host.Tick(16 * time.Millisecond)
	require.Equal(t, types.PluginRunning, handle.State())
	require.Equal(t, []string{"instance-1"}, handle.Instances())
	require.Len(t, registrar.activated, 1)

	host.Tick(16 * time.Millisecond)
	require.Len(t, registrar.activated, 1)
}
