package effects

import "github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"

// Apply folds one generator's output into the accumulated frame.
//
// BlendAudioModulated scales the overlay by the current audio peak
// first, then applies the secondary mode (Replace when the secondary
// is unset or itself AudioModulated).
func Apply(acc types.Frame, overlay map[string]types.Color, mode, secondary types.BlendMode, audioPeak float64) {
	if mode == types.BlendAudioModulated {
		scaled := make(map[string]types.Color, len(overlay))
		for zoneID, c := range overlay {
			scaled[zoneID] = c.Scaled(audioPeak)
		}
		if secondary == types.BlendAudioModulated {
			secondary = types.BlendReplace
		}
		Apply(acc, scaled, secondary, types.BlendReplace, audioPeak)

		return
	}

	for zoneID, c := range overlay {
		switch mode {
		case types.BlendAdditive:
			acc[zoneID] = acc[zoneID].Add(c)
		case types.BlendMax:
			acc[zoneID] = acc[zoneID].Max(c)
		default:
			acc[zoneID] = c
		}
	}
}
