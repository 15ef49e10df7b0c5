package effects

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// starlight twinkles zones at pseudo-random moments. Every choice is
// a hash of (seed, zone, step), so playback is fully deterministic
// for a given seed. Raindrop is the rainbow variant.
type starlight struct {
	params  types.Params
	rainbow bool
	seed    uint64
}

func newStarlight(params types.Params, rainbow bool) *starlight {
	return &starlight{
		params:  params,
		rainbow: rainbow,
		seed:    uint64(params.Int("seed", 1)),
	}
}

// twinkleChance is the per-step probability of a zone lighting up.
const twinkleChance = 0.3

func (s *starlight) Render(tctx TickContext, zones []string) (map[string]types.Color, error) {
	// Twinkles last several base steps so they fade visibly.
	twinkle := 8 * stepDelay(s.params)
	step := uint64(tctx.Elapsed / twinkle)
	frac := phase(tctx.Elapsed, twinkle)

	out := make(map[string]types.Color, len(zones))
	for i, zoneID := range zones {
		r := s.roll(zoneID, step)
		if r > twinkleChance {
			out[zoneID] = types.Color{}
			continue
		}

		// Rise fast, fade slow.
		level := 1 - frac
		if frac < 0.2 {
			level = frac / 0.2
		}

		if s.rainbow {
			hue := s.roll(zoneID+"#hue", step) * 360
			out[zoneID] = types.FromHSV(hue, 1, 1).Scaled(level)
		} else {
			out[zoneID] = colorParam(s.params, i).Scaled(level)
		}
	}

	return out, nil
}

// roll returns a deterministic 0..1 value for (seed, key, step).
func (s *starlight) roll(key string, step uint64) float64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], s.seed)
	binary.LittleEndian.PutUint64(buf[8:], step)

	h := xxh3.New()
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(key)

	return float64(h.Sum64()) / float64(math.MaxUint64)
}
