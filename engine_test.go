package rgbkbd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/effects"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/hal"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/plugin"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/relay"
	rgbtest "github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/testing"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/topology"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

func fastHALConfig() hal.Config {
	return hal.Config{
		CommitInterval: time.Millisecond,
		CommitTimeout:  time.Second,
		MaxRetries:     3,
		RetryBase:      time.Millisecond,
	}
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *hal.MemoryDriver) {
	t.Helper()

	topo := topology.Default()
	driver := hal.NewMemoryDriver(topo.MaxLED())
	channel, err := hal.New(driver, topo, fastHALConfig())
	require.NoError(t, err)

	engine, err := NewEngine(cfg, topo, channel, opts...)
	require.NoError(t, err)

	return engine, driver
}

func startTestEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *hal.MemoryDriver) {
	t.Helper()

	engine, driver := newTestEngine(t, cfg, opts...)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Stop(ctx)
	})

	return engine, driver
}

func TestNewEngine_Validation(t *testing.T) {
	topo := topology.Default()
	driver := hal.NewMemoryDriver(topo.MaxLED())
	channel, err := hal.New(driver, topo, fastHALConfig())
	require.NoError(t, err)

	t.Run("nil topology", func(t *testing.T) {
		_, err := NewEngine(Config{}, nil, channel)
		require.ErrorIs(t, err, ErrTopologyRequired)
	})

	t.Run("nil hal", func(t *testing.T) {
		_, err := NewEngine(Config{}, topo, nil)
		require.ErrorIs(t, err, ErrHALRequired)
	})

	t.Run("invalid brightness", func(t *testing.T) {
		_, err := NewEngine(Config{Brightness: 150}, topo, channel)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("tick rate clamps instead of failing", func(t *testing.T) {
		e, err := NewEngine(Config{TickRate: 10_000}, topo, channel)
		require.NoError(t, err)
		require.Equal(t, MaxTickRate, e.cfg.TickRate)

		e, err = NewEngine(Config{TickRate: -3}, topo, channel)
		require.NoError(t, err)
		require.Equal(t, MinTickRate, e.cfg.TickRate)
	})
}

func TestEngine_Lifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, Config{TickRate: 240})

	require.ErrorIs(t, engine.Stop(context.Background()), ErrNotStarted)
	require.NoError(t, engine.Start(context.Background()))
	require.ErrorIs(t, engine.Start(context.Background()), ErrAlreadyStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(ctx))
	require.ErrorIs(t, engine.Stop(ctx), ErrNotStarted)
}

func TestEngine_FailedStartIsRetryable(t *testing.T) {
	_, nc := rgbtest.StartEmbeddedNATS(t)
	r, err := relay.New(relay.Config{}, relay.WithConn(nc))
	require.NoError(t, err)

	// A dead transport makes the relay subscription fail during Start.
	nc.Close()

	engine, _ := newTestEngine(t, Config{TickRate: 240}, WithRelay(r))
	t.Cleanup(func() { _ = engine.channel.Stop(context.Background()) })

	err = engine.Start(context.Background())
	require.Error(t, err)

	// The failed start unwinds the lifecycle: there is nothing to stop
	// and a retry reaches the same subsystem failure instead of
	// reporting the engine as already started.
	require.ErrorIs(t, engine.Stop(context.Background()), ErrNotStarted)

	err = engine.Start(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyStarted)
}

func TestEngine_StaticEffectReachesHardware(t *testing.T) {
	engine, driver := startTestEngine(t, Config{TickRate: 240})

	_, err := engine.ActivateEffect(ActivateEffect{
		Kind:   EffectStatic,
		Params: Params{"color": "#ff0000"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok := driver.ZoneColor("zone-1")

		return ok && c == Color{R: 255}
	}, 2*time.Second, 5*time.Millisecond)

	// Frames cover every zone.
	for _, zoneID := range []string{"zone-2", "zone-3", "zone-4"} {
		c, ok := driver.ZoneColor(zoneID)
		require.True(t, ok, zoneID)
		require.Equal(t, Color{R: 255}, c)
	}
}

func TestEngine_StaticOverridesBreathingOnItsZones(t *testing.T) {
	engine, driver := startTestEngine(t, Config{TickRate: 240})

	_, err := engine.ActivateEffect(ActivateEffect{
		Kind:     EffectBreathing,
		Priority: 0,
		Params:   Params{"color": "#0000ff", "speed": 10.0},
	})
	require.NoError(t, err)

	_, err = engine.ActivateEffect(ActivateEffect{
		Kind:        EffectStatic,
		ZoneTargets: []string{"zone-1"},
		Priority:    10,
		Params:      Params{"color": "#ff0000"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok := driver.ZoneColor("zone-1")

		return ok && c == Color{R: 255}
	}, 2*time.Second, 5*time.Millisecond)

	// The static zone never shows the breathing color while both
	// run; sample it repeatedly.
	for range 20 {
		time.Sleep(5 * time.Millisecond)
		c, ok := driver.ZoneColor("zone-1")
		require.True(t, ok)
		require.Equal(t, Color{R: 255}, c)
	}
}

func TestEngine_ActivateValidation(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := engine.ActivateEffect(ActivateEffect{Kind: "nope"})
		require.Error(t, err)
	})

	t.Run("unknown zone", func(t *testing.T) {
		_, err := engine.ActivateEffect(ActivateEffect{
			Kind:        EffectStatic,
			ZoneTargets: []string{"zone-99"},
		})
		require.Error(t, err)

		var cfgErr *types.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("instance id assigned", func(t *testing.T) {
		id, err := engine.ActivateEffect(ActivateEffect{Kind: EffectStatic})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	})
}

func TestCompose_CoversEveryZone(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	frame := engine.compose()
	require.Len(t, frame, len(engine.topo.AllZones()))
	for _, zoneID := range engine.topo.AllZones() {
		require.Contains(t, frame, zoneID)
	}
}

func TestCompose_TieBreakLaterActivationWins(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	engine.applyActivate(ActivateEffect{
		Kind:        EffectStatic,
		ZoneTargets: []string{"zone-1"},
		Priority:    5,
		Params:      Params{"color": "#ff0000"},
	})
	engine.applyActivate(ActivateEffect{
		Kind:        EffectStatic,
		ZoneTargets: []string{"zone-1"},
		Priority:    5,
		Params:      Params{"color": "#00ff00"},
	})

	frame := engine.compose()
	require.Equal(t, Color{G: 255}, frame["zone-1"])
}

func TestCompose_PriorityOrdersBlending(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	// Higher priority activated first must still render last.
	engine.applyActivate(ActivateEffect{
		Kind:        EffectStatic,
		ZoneTargets: []string{"zone-1"},
		Priority:    10,
		Params:      Params{"color": "#0000ff"},
	})
	engine.applyActivate(ActivateEffect{
		Kind:        EffectStatic,
		ZoneTargets: []string{"zone-1"},
		Priority:    1,
		Params:      Params{"color": "#ff0000"},
	})

	frame := engine.compose()
	require.Equal(t, Color{B: 255}, frame["zone-1"])
}

func TestCompose_Deterministic(t *testing.T) {
	build := func() *Engine {
		engine, _ := newTestEngine(t, Config{})
		engine.applyActivate(ActivateEffect{
			Kind:   EffectWave,
			Params: Params{"speed": 7.0},
		})
		engine.applyActivate(ActivateEffect{
			Kind:     EffectStarlight,
			Priority: 3,
			Blend:    BlendMax,
			Params:   Params{"seed": 11},
		})
		engine.effectTime = 1717 * time.Millisecond

		return engine
	}

	f1 := build().compose()
	f2 := build().compose()
	require.True(t, f1.Equal(f2))
}

func TestCompose_FaultingGeneratorIsContained(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	engine.applyActivate(ActivateEffect{
		Kind:        EffectStatic,
		ZoneTargets: []string{"zone-2"},
		Params:      Params{"color": "#00ff00"},
	})

	// Inject a panicking generator alongside the healthy one.
	engine.nextSeq++
	engine.instances = append(engine.instances, &instance{
		id:   "boom",
		kind: EffectStatic,
		gen:  panicGen{},
		seq:  engine.nextSeq,
	})

	frame := engine.compose()
	require.Equal(t, Color{G: 255}, frame["zone-2"])
	require.Len(t, engine.instances, 1)
	require.Equal(t, types.EffectKind(EffectStatic), engine.instances[0].kind)
	require.NotEqual(t, "boom", engine.instances[0].id)
}

type panicGen struct{}

func (panicGen) Render(effects.TickContext, []string) (map[string]types.Color, error) {
	panic("unstable generator")
}

func TestEngine_BrightnessScalesOutput(t *testing.T) {
	engine, driver := newTestEngine(t, Config{})

	engine.applyActivate(ActivateEffect{
		Kind:   EffectStatic,
		Params: Params{"color": "#ffffff"},
	})
	engine.applyBrightness(50)
	engine.tick(time.Millisecond)

	// The submitted frame is scaled; the carried frame is not, so
	// brightness never compounds across ticks.
	require.Equal(t, Color{R: 255, G: 255, B: 255}, engine.lastFrame["zone-1"])

	ctx := context.Background()
	require.NoError(t, engine.channel.Connect(ctx))
	require.NoError(t, engine.channel.Start(ctx))
	t.Cleanup(func() { _ = engine.channel.Stop(context.Background()) })

	engine.tick(time.Millisecond)
	require.Eventually(t, func() bool {
		c, ok := driver.ZoneColor("zone-1")

		return ok && c == Color{R: 128, G: 128, B: 128}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_KeyEventsMapToZones(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	// LED 4 belongs to zone-2 in the default topology.
	engine.applyKeyEvent(KeyEvent{Key: 4, Pressed: true})
	require.True(t, engine.pressedZones["zone-2"])

	engine.applyKeyEvent(KeyEvent{Key: 4, Pressed: false})
	require.False(t, engine.pressedZones["zone-2"])

	// Keys past the last zone clamp to it.
	engine.applyKeyEvent(KeyEvent{Key: 999, Pressed: true})
	require.True(t, engine.pressedZones["zone-4"])
}

func TestEngine_CommandQueueFull(t *testing.T) {
	engine, _ := newTestEngine(t, Config{CommandQueueSize: 1})

	require.NoError(t, engine.Submit(Command{Type: types.CmdSetSpeed, Speed: &SetSpeed{Multiplier: 2}}))
	require.ErrorIs(t,
		engine.Submit(Command{Type: types.CmdSetSpeed, Speed: &SetSpeed{Multiplier: 3}}),
		ErrCommandQueueFull,
	)
}

func TestEngine_SettingsPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	engine, _ := newTestEngine(t, Config{TickRate: 240, SettingsPath: path})
	require.NoError(t, engine.Start(context.Background()))

	_, err := engine.ActivateEffect(ActivateEffect{
		Kind:   EffectBreathing,
		Params: Params{"color": "#00ffff"},
	})
	require.NoError(t, err)
	require.NoError(t, engine.Submit(Command{
		Type:       types.CmdSetBrightness,
		Brightness: &SetBrightness{Percent: 40},
	}))

	// Let the tick loop apply the queued commands before stopping.
	require.Eventually(t, func() bool {
		return engine.Brightness() == 40
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(ctx))

	saved, err := LoadSettings(path)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, 40, saved.Brightness)
	require.NotNil(t, saved.LastEffect)
	require.Equal(t, types.EffectKind(EffectBreathing), saved.LastEffect.Kind)

	// A fresh engine restores the persisted state.
	restored, _ := newTestEngine(t, Config{TickRate: 240, SettingsPath: path})
	require.NoError(t, restored.Start(context.Background()))
	t.Cleanup(func() { _ = restored.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		return restored.Brightness() == 40 && restored.ActiveEffects() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_PluginEffectFlowsThroughQueue(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	host := engine.PluginHost()
	manifest := &plugin.Manifest{
		ID:           "painter",
		Capabilities: []plugin.Capability{plugin.CapRegisterEffect},
		Entry:        "main.lua",
	}
	_, err := host.Load(manifest, `
function setup(api)
    api.register_effect({kind = "static", zones = {"zone-3"}, priority = 20, params = {color = "#123456"}})
end
`)
	require.NoError(t, err)

	engine.tick(time.Millisecond)
	frame := engine.lastFrame
	require.Equal(t, Color{R: 0x12, G: 0x34, B: 0x56}, frame["zone-3"])
}

func TestSettings_MissingFileIsNotAnError(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Nil(t, s)
}
