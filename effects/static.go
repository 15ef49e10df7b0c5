package effects

import "github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"

// static holds each target zone at a fixed color. Without an explicit
// color parameter it applies the classic four-color palette across
// the targets.
type static struct {
	params types.Params
}

func newStatic(params types.Params) *static {
	return &static{params: params}
}

func (s *static) Render(_ TickContext, zones []string) (map[string]types.Color, error) {
	out := make(map[string]types.Color, len(zones))
	for i, zoneID := range zones {
		out[zoneID] = colorParam(s.params, i)
	}

	return out, nil
}
