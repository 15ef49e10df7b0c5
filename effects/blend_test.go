package effects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

func TestApply_Replace(t *testing.T) {
	acc := types.Frame{"a": {R: 10}, "b": {G: 20}}
	Apply(acc, map[string]types.Color{"a": {B: 30}}, types.BlendReplace, types.BlendReplace, 0)

	require.Equal(t, types.Color{B: 30}, acc["a"])
	require.Equal(t, types.Color{G: 20}, acc["b"])
}

func TestApply_AdditiveClamps(t *testing.T) {
	acc := types.Frame{"a": {R: 200, G: 100}}
	Apply(acc, map[string]types.Color{"a": {R: 100, G: 50, B: 5}}, types.BlendAdditive, types.BlendReplace, 0)

	require.Equal(t, types.Color{R: 255, G: 150, B: 5}, acc["a"])
}

func TestApply_MaxPerChannel(t *testing.T) {
	acc := types.Frame{"a": {R: 200, G: 10}}
	Apply(acc, map[string]types.Color{"a": {R: 50, G: 99, B: 1}}, types.BlendMax, types.BlendReplace, 0)

	require.Equal(t, types.Color{R: 200, G: 99, B: 1}, acc["a"])
}

func TestApply_AdditiveCommutes(t *testing.T) {
	a := map[string]types.Color{"a": {R: 200, G: 30}, "b": {B: 40}}
	b := map[string]types.Color{"a": {R: 100, G: 60}, "b": {B: 250}}

	ab := types.Frame{"a": {}, "b": {}}
	Apply(ab, a, types.BlendAdditive, types.BlendReplace, 0)
	Apply(ab, b, types.BlendAdditive, types.BlendReplace, 0)

	ba := types.Frame{"a": {}, "b": {}}
	Apply(ba, b, types.BlendAdditive, types.BlendReplace, 0)
	Apply(ba, a, types.BlendAdditive, types.BlendReplace, 0)

	// Saturating addition commutes, clamping included.
	require.True(t, ab.Equal(ba))
	require.Equal(t, types.Color{R: 255, G: 90}, ab["a"])
	require.Equal(t, types.Color{B: 255}, ab["b"])
}

func TestApply_AdditiveAssociates(t *testing.T) {
	a := map[string]types.Color{"a": {R: 120}}
	b := map[string]types.Color{"a": {R: 100}}
	c := map[string]types.Color{"a": {R: 90}}

	// ((acc+a)+b)+c against (acc+a)+(b+c) pre-combined.
	left := types.Frame{"a": {}}
	for _, overlay := range []map[string]types.Color{a, b, c} {
		Apply(left, overlay, types.BlendAdditive, types.BlendReplace, 0)
	}

	bc := types.Frame{"a": b["a"]}
	Apply(bc, c, types.BlendAdditive, types.BlendReplace, 0)
	right := types.Frame{"a": {}}
	Apply(right, a, types.BlendAdditive, types.BlendReplace, 0)
	Apply(right, map[string]types.Color{"a": bc["a"]}, types.BlendAdditive, types.BlendReplace, 0)

	require.True(t, left.Equal(right))
	require.Equal(t, types.Color{R: 255}, left["a"])
}

func TestApply_MaxIdempotentAndCommutes(t *testing.T) {
	overlay := map[string]types.Color{"a": {R: 200, G: 10, B: 5}}

	once := types.Frame{"a": {R: 50, G: 99}}
	Apply(once, overlay, types.BlendMax, types.BlendReplace, 0)
	twice := once.Clone()
	Apply(twice, overlay, types.BlendMax, types.BlendReplace, 0)

	// Max against the same overlay is a fixed point.
	require.True(t, once.Equal(twice))

	other := map[string]types.Color{"a": {R: 100, G: 200}}
	ab := types.Frame{"a": {}}
	Apply(ab, overlay, types.BlendMax, types.BlendReplace, 0)
	Apply(ab, other, types.BlendMax, types.BlendReplace, 0)
	ba := types.Frame{"a": {}}
	Apply(ba, other, types.BlendMax, types.BlendReplace, 0)
	Apply(ba, overlay, types.BlendMax, types.BlendReplace, 0)

	require.True(t, ab.Equal(ba))
	require.Equal(t, types.Color{R: 200, G: 200, B: 5}, ab["a"])
}

func TestApply_AudioModulated(t *testing.T) {
	t.Run("scales by peak then applies secondary", func(t *testing.T) {
		acc := types.Frame{"a": {R: 100}}
		Apply(acc, map[string]types.Color{"a": {R: 200}}, types.BlendAudioModulated, types.BlendAdditive, 0.5)

		require.Equal(t, types.Color{R: 200}, acc["a"])
	})

	t.Run("zero peak contributes nothing additively", func(t *testing.T) {
		acc := types.Frame{"a": {R: 100}}
		Apply(acc, map[string]types.Color{"a": {R: 200}}, types.BlendAudioModulated, types.BlendAdditive, 0)

		require.Equal(t, types.Color{R: 100}, acc["a"])
	})

	t.Run("audio-modulated secondary falls back to replace", func(t *testing.T) {
		acc := types.Frame{"a": {R: 100}}
		Apply(acc, map[string]types.Color{"a": {R: 200}}, types.BlendAudioModulated, types.BlendAudioModulated, 1)

		require.Equal(t, types.Color{R: 200}, acc["a"])
	})
}
