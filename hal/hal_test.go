package hal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/topology"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

func fastConfig() Config {
	return Config{
		CommitInterval: time.Millisecond,
		CommitTimeout:  time.Second,
		MaxRetries:     3,
		RetryBase:      time.Millisecond,
	}
}

func fullFrame(topo *topology.Topology, c types.Color) types.Frame {
	f := make(types.Frame)
	for _, zoneID := range topo.AllZones() {
		f[zoneID] = c
	}

	return f
}

func TestHAL_ConnectAndState(t *testing.T) {
	topo := topology.Default()

	t.Run("successful probe reaches Connected", func(t *testing.T) {
		driver := NewMemoryDriver(topo.MaxLED())
		h, err := New(driver, topo, fastConfig())
		require.NoError(t, err)
		require.Equal(t, types.HALDisconnected, h.State())

		require.NoError(t, h.Connect(context.Background()))
		require.Equal(t, types.HALConnected, h.State())
	})

	t.Run("failed probe falls back to Disconnected", func(t *testing.T) {
		driver := NewMemoryDriver(topo.MaxLED())
		driver.SetProbeResult(false)
		h, err := New(driver, topo, fastConfig())
		require.NoError(t, err)

		err = h.Connect(context.Background())
		require.Error(t, err)
		require.Equal(t, types.HALDisconnected, h.State())

		var halErr *types.HalError
		require.ErrorAs(t, err, &halErr)
		require.Equal(t, types.HalPermanent, halErr.Kind)
	})

	t.Run("commit before connect is rejected", func(t *testing.T) {
		driver := NewMemoryDriver(topo.MaxLED())
		h, err := New(driver, topo, fastConfig())
		require.NoError(t, err)

		err = h.Commit(context.Background(), fullFrame(topo, types.Color{R: 255}))
		require.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestHAL_CommitDiffing(t *testing.T) {
	topo := topology.Default()
	driver := NewMemoryDriver(topo.MaxLED())
	h, err := New(driver, topo, fastConfig())
	require.NoError(t, err)
	require.NoError(t, h.Connect(context.Background()))

	red := fullFrame(topo, types.Color{R: 255})
	require.NoError(t, h.Commit(context.Background(), red))
	require.Len(t, driver.Applies(), len(topo.AllZones()))

	t.Run("identical frame is skipped", func(t *testing.T) {
		before := len(driver.Applies())
		require.NoError(t, h.Commit(context.Background(), red.Clone()))
		require.Len(t, driver.Applies(), before)
	})

	t.Run("only changed zones are written", func(t *testing.T) {
		before := len(driver.Applies())

		next := red.Clone()
		next["zone-2"] = types.Color{G: 255}
		require.NoError(t, h.Commit(context.Background(), next))

		applies := driver.Applies()
		require.Len(t, applies, before+1)
		require.Equal(t, "zone-2", applies[before].ZoneID)
		require.Equal(t, types.Color{G: 255}, applies[before].Color)
	})

	t.Run("changed zones follow declaration order", func(t *testing.T) {
		before := len(driver.Applies())

		next := make(types.Frame)
		for _, zoneID := range topo.AllZones() {
			next[zoneID] = types.Color{B: 128}
		}
		require.NoError(t, h.Commit(context.Background(), next))

		applies := driver.Applies()[before:]
		require.Equal(t, topo.AllZones(), appliedZoneIDs(applies))
	})

	t.Run("last acknowledged frame tracks commits", func(t *testing.T) {
		acked := h.LastAcknowledged()
		require.NotNil(t, acked)
		require.Equal(t, types.Color{B: 128}, acked["zone-1"])
	})
}

func appliedZoneIDs(applies []AppliedWrite) []string {
	ids := make([]string, len(applies))
	for i, a := range applies {
		ids[i] = a.ZoneID
	}

	return ids
}

func TestHAL_RetryTransientFailures(t *testing.T) {
	topo := topology.Default()

	t.Run("two transient failures then success yields one write", func(t *testing.T) {
		driver := NewMemoryDriver(topo.MaxLED())
		h, err := New(driver, topo, fastConfig())
		require.NoError(t, err)
		require.NoError(t, h.Connect(context.Background()))

		// Establish an acknowledged baseline; the next commit then
		// diffs down to the single changed zone.
		require.NoError(t, h.Commit(context.Background(), fullFrame(topo, types.Color{})))
		baseline := len(driver.Applies())

		driver.FailNext(
			types.NewHalError(types.HalTransient, "apply", errors.New("ec busy")),
			types.NewHalError(types.HalTransient, "apply", errors.New("ec busy")),
		)

		next := fullFrame(topo, types.Color{})
		next["zone-1"] = types.Color{R: 255}
		require.NoError(t, h.Commit(context.Background(), next))

		applies := driver.Applies()[baseline:]
		require.Len(t, applies, 1)
		require.Equal(t, "zone-1", applies[0].ZoneID)
		require.Equal(t, types.Color{R: 255}, applies[0].Color)
		require.Equal(t, types.HALConnected, h.State())
	})

	t.Run("exhausted retries surface the error", func(t *testing.T) {
		driver := NewMemoryDriver(topo.MaxLED())
		h, err := New(driver, topo, fastConfig())
		require.NoError(t, err)
		require.NoError(t, h.Connect(context.Background()))

		busy := types.NewHalError(types.HalTransient, "apply", errors.New("ec busy"))
		driver.FailNext(busy, busy, busy, busy)

		err = h.Commit(context.Background(), types.Frame{"zone-1": types.Color{R: 255}})
		require.Error(t, err)

		var halErr *types.HalError
		require.ErrorAs(t, err, &halErr)
		require.Equal(t, types.HalTransient, halErr.Kind)
		require.Empty(t, driver.Applies())
	})

	t.Run("permanent failure disconnects immediately", func(t *testing.T) {
		driver := NewMemoryDriver(topo.MaxLED())
		h, err := New(driver, topo, fastConfig())
		require.NoError(t, err)
		require.NoError(t, h.Connect(context.Background()))

		driver.FailNext(types.NewHalError(types.HalPermanent, "apply", errors.New("ectool missing")))

		err = h.Commit(context.Background(), types.Frame{"zone-1": types.Color{R: 255}})
		require.Error(t, err)
		require.Equal(t, types.HALDisconnected, h.State())
		require.Empty(t, driver.Applies())
	})
}

func TestHAL_DegradedAndRecovery(t *testing.T) {
	topo := topology.Default()
	driver := NewMemoryDriver(topo.MaxLED())

	cfg := fastConfig()
	cfg.DegradedThreshold = 2
	h, err := New(driver, topo, cfg)
	require.NoError(t, err)
	require.NoError(t, h.Connect(context.Background()))

	var transitions []types.HALState
	h.onStateChange = func(_, to types.HALState) {
		transitions = append(transitions, to)
	}

	busy := types.NewHalError(types.HalTransient, "apply", errors.New("ec busy"))
	frame := types.Frame{"zone-1": types.Color{R: 255}}

	// Two commits in a row exhaust retries (4 attempts each).
	for range 2 {
		driver.FailNext(busy, busy, busy, busy)
		require.Error(t, h.Commit(context.Background(), frame))
	}
	require.Equal(t, types.HALDegraded, h.State())

	// A clean commit recovers the channel.
	require.NoError(t, h.Commit(context.Background(), frame))
	require.Equal(t, types.HALConnected, h.State())
	require.Equal(t, []types.HALState{types.HALDegraded, types.HALConnected}, transitions)
}

func TestHAL_SubmitLatestWins(t *testing.T) {
	topo := topology.Default()
	driver := NewMemoryDriver(topo.MaxLED())
	h, err := New(driver, topo, fastConfig())
	require.NoError(t, err)

	// Committer not started: submits queue up and the oldest frames
	// are evicted once the depth-2 queue fills.
	for i := range 10 {
		h.Submit(types.Frame{"zone-1": types.Color{R: uint8(i)}})
	}

	require.Len(t, h.submitCh, 2)
	first := <-h.submitCh
	second := <-h.submitCh
	require.Equal(t, types.Color{R: 8}, first["zone-1"])
	require.Equal(t, types.Color{R: 9}, second["zone-1"])
}

func TestHAL_StartStop(t *testing.T) {
	topo := topology.Default()
	driver := NewMemoryDriver(topo.MaxLED())
	h, err := New(driver, topo, fastConfig())
	require.NoError(t, err)
	require.NoError(t, h.Connect(context.Background()))

	require.NoError(t, h.Start(context.Background()))
	require.ErrorIs(t, h.Start(context.Background()), ErrAlreadyStarted)

	h.Submit(types.Frame{"zone-1": types.Color{R: 255}})

	require.Eventually(t, func() bool {
		c, ok := driver.ZoneColor("zone-1")

		return ok && c == types.Color{R: 255}
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
}

func TestHAL_SetBrightnessPassthrough(t *testing.T) {
	topo := topology.Default()

	// MemoryDriver has no brightness control: passthrough is a no-op.
	h, err := New(NewMemoryDriver(topo.MaxLED()), topo, fastConfig())
	require.NoError(t, err)
	require.NoError(t, h.SetBrightness(context.Background(), 50))
}

func TestHAL_TopologyRangeValidation(t *testing.T) {
	topo, err := topology.New([]types.Zone{
		{ID: "wide", MemberLEDs: []types.LedIndex{0, 1, 2, 99}},
	})
	require.NoError(t, err)

	_, err = New(NewMemoryDriver(3), topo, fastConfig())
	require.Error(t, err)

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
