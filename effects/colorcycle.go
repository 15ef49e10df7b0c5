package effects

import "github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"

// colorCycle sweeps every target zone through the hue circle in
// unison.
type colorCycle struct {
	params types.Params
}

func newColorCycle(params types.Params) *colorCycle {
	return &colorCycle{params: params}
}

func (c *colorCycle) Render(tctx TickContext, zones []string) (map[string]types.Color, error) {
	hue := phase(tctx.Elapsed, cyclePeriod(c.params)) * 360
	color := types.FromHSV(hue, 1, 1)

	out := make(map[string]types.Color, len(zones))
	for _, zoneID := range zones {
		out[zoneID] = color
	}

	return out, nil
}
