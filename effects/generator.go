package effects

import (
	"time"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// TickContext carries the per-tick inputs shared by all generators.
type TickContext struct {
	// Elapsed is effect-local time since activation, already scaled
	// by the global speed multiplier.
	Elapsed time.Duration

	// Audio is the newest analysis frame, nil when the audio
	// pipeline is disabled.
	Audio *types.AudioFrame

	// PressedZones holds the zones currently containing a held key.
	PressedZones map[string]bool
}

// Generator computes colors for its target zones at a point in
// effect-local time.
//
// Render returns a color for every requested zone; a missing entry
// means the zone is untouched this tick. Generators must not retain
// or mutate the TickContext.
type Generator interface {
	Render(tctx TickContext, zones []string) (map[string]types.Color, error)
}

// New creates a generator for the given kind.
//
// Returns:
//   - Generator: The initialized generator
//   - error: A *types.ConfigError for unknown kinds
func New(kind types.EffectKind, params types.Params) (Generator, error) {
	if params == nil {
		params = types.Params{}
	}

	switch kind {
	case types.EffectStatic:
		return newStatic(params), nil
	case types.EffectBreathing, types.EffectPulse:
		return newBreathing(params, 1), nil
	case types.EffectStrobe:
		// Strobe is Breathing driven four times faster.
		return newBreathing(params, 4), nil
	case types.EffectColorCycle:
		return newColorCycle(params), nil
	case types.EffectWave:
		return newWave(params, params.Bool("rainbow", false)), nil
	case types.EffectRipple:
		return newWave(params, true), nil
	case types.EffectZoneChase, types.EffectScanner:
		return newZoneChase(params, params.Bool("rainbow", false)), nil
	case types.EffectStarlight:
		return newStarlight(params, params.Bool("rainbow", false)), nil
	case types.EffectRaindrop:
		return newStarlight(params, true), nil
	case types.EffectReactive:
		return newReactive(params, false), nil
	case types.EffectAntiReactive:
		return newReactive(params, true), nil
	default:
		return nil, types.NewConfigError("effect.kind", "unknown effect kind %q", kind)
	}
}

// defaultPalette is the zone color rotation used when an effect is
// activated without an explicit color.
var defaultPalette = []types.Color{
	{R: 255},         // red
	{G: 255},         // green
	{B: 255},         // blue
	{R: 255, G: 255}, // yellow
}

// paletteColor returns the default color for the i-th target zone.
func paletteColor(i int) types.Color {
	return defaultPalette[i%len(defaultPalette)]
}

// stepDelay converts the 1-10 speed parameter into the base step
// interval: 200ms at speed 1 down to 20ms at speed 10.
func stepDelay(params types.Params) time.Duration {
	speed := params.Float("speed", 5)
	if speed < 1 {
		speed = 1
	}
	if speed > 10 {
		speed = 10
	}

	return time.Duration(0.2 / speed * float64(time.Second))
}

// cyclePeriod is the duration of one full effect cycle: 100 steps.
func cyclePeriod(params types.Params) time.Duration {
	return 100 * stepDelay(params)
}

// phase returns the 0..1 position within the cycle.
func phase(elapsed, period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	p := float64(elapsed%period) / float64(period)
	if p < 0 {
		p += 1
	}

	return p
}

// colorParam reads the "color" parameter, falling back to the palette
// for the i-th zone.
func colorParam(params types.Params, i int) types.Color {
	if _, ok := params["color"]; ok {
		return params.Color("color", paletteColor(i))
	}

	return paletteColor(i)
}
