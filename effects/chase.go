package effects

import (
	"math"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// zoneChase lights one zone at a time, advancing through the targets
// at the step rate. Scanner is the same generator.
type zoneChase struct {
	params  types.Params
	rainbow bool
}

func newZoneChase(params types.Params, rainbow bool) *zoneChase {
	return &zoneChase{params: params, rainbow: rainbow}
}

func (z *zoneChase) Render(tctx TickContext, zones []string) (map[string]types.Color, error) {
	if len(zones) == 0 {
		return map[string]types.Color{}, nil
	}

	step := int(tctx.Elapsed / stepDelay(z.params))
	active := step % len(zones)

	out := make(map[string]types.Color, len(zones))
	for i, zoneID := range zones {
		if i != active {
			out[zoneID] = types.Color{}
			continue
		}
		if z.rainbow {
			hue := math.Mod(float64(step)*36, 360)
			out[zoneID] = types.FromHSV(hue, 1, 1)
		} else {
			out[zoneID] = colorParam(z.params, i)
		}
	}

	return out, nil
}
