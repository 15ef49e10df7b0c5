package effects

import (
	"math"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// wave sends a brightness crest traveling across the target zones in
// order. Plain waves modulate the configured color; rainbow waves
// (Ripple) spread the hue circle across the zones and rotate it.
type wave struct {
	params  types.Params
	rainbow bool
}

func newWave(params types.Params, rainbow bool) *wave {
	return &wave{params: params, rainbow: rainbow}
}

func (w *wave) Render(tctx TickContext, zones []string) (map[string]types.Color, error) {
	if len(zones) == 0 {
		return map[string]types.Color{}, nil
	}

	p := phase(tctx.Elapsed, cyclePeriod(w.params))
	crest := p * float64(len(zones))

	out := make(map[string]types.Color, len(zones))
	for i, zoneID := range zones {
		// Distance from the crest, wrapping around the strip.
		dist := math.Abs(float64(i) - crest)
		if wrapped := float64(len(zones)) - dist; wrapped < dist {
			dist = wrapped
		}
		level := math.Max(0, 1-dist)

		if w.rainbow {
			hue := math.Mod(p*360+float64(i)*360/float64(len(zones)), 360)
			out[zoneID] = types.FromHSV(hue, 1, 1).Scaled(0.3 + 0.7*level)
		} else {
			out[zoneID] = colorParam(w.params, i).Scaled(level)
		}
	}

	return out, nil
}
