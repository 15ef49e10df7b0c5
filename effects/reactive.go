package effects

import (
	"time"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// reactive lights the zone under each held key and fades it out after
// release. The inverted variant (AntiReactive) keeps every zone lit
// and darkens the pressed ones instead.
type reactive struct {
	params   types.Params
	inverted bool
	rainbow  bool

	// lastActive tracks, per zone, the effect-local time the zone
	// was last pressed, driving the release fade.
	lastActive map[string]time.Duration
}

func newReactive(params types.Params, inverted bool) *reactive {
	return &reactive{
		params:     params,
		inverted:   inverted,
		rainbow:    params.Bool("rainbow", false),
		lastActive: make(map[string]time.Duration),
	}
}

func (r *reactive) Render(tctx TickContext, zones []string) (map[string]types.Color, error) {
	fade := 10 * stepDelay(r.params)

	out := make(map[string]types.Color, len(zones))
	for i, zoneID := range zones {
		if tctx.PressedZones[zoneID] {
			r.lastActive[zoneID] = tctx.Elapsed
		}

		level := 0.0
		if last, ok := r.lastActive[zoneID]; ok {
			if since := tctx.Elapsed - last; since < fade {
				level = 1 - float64(since)/float64(fade)
			} else {
				delete(r.lastActive, zoneID)
			}
		}

		base := colorParam(r.params, i)
		if r.rainbow {
			base = types.FromHSV(phase(tctx.Elapsed, cyclePeriod(r.params))*360, 1, 1)
		}

		if r.inverted {
			out[zoneID] = base.Scaled(1 - level)
		} else {
			out[zoneID] = base.Scaled(level)
		}
	}

	return out, nil
}
