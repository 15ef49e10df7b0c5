package effects

import (
	"math"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// breathing fades all target zones through a sine brightness curve.
// Pulse is the same generator; Strobe drives it with a 4x rate
// factor. With rainbow set the base color walks the hue circle one
// step per cycle.
type breathing struct {
	params  types.Params
	rate    float64
	rainbow bool
}

func newBreathing(params types.Params, rate float64) *breathing {
	return &breathing{
		params:  params,
		rate:    rate,
		rainbow: params.Bool("rainbow", false),
	}
}

func (b *breathing) Render(tctx TickContext, zones []string) (map[string]types.Color, error) {
	period := cyclePeriod(b.params)
	p := phase(tctx.Elapsed, period) * b.rate
	p -= math.Floor(p)

	// Full cycle: dark, bright, dark.
	level := (1 - math.Cos(2*math.Pi*p)) / 2

	out := make(map[string]types.Color, len(zones))
	for i, zoneID := range zones {
		base := colorParam(b.params, i)
		if b.rainbow {
			cycle := math.Floor(float64(tctx.Elapsed) / float64(period) * b.rate)
			base = types.FromHSV(math.Mod(cycle*36, 360), 1, 1)
		}
		out[zoneID] = base.Scaled(level)
	}

	return out, nil
}
