package types

import "fmt"

// EffectKind identifies a built-in effect generator.
type EffectKind string

const (
	EffectStatic       EffectKind = "static"
	EffectBreathing    EffectKind = "breathing"
	EffectColorCycle   EffectKind = "color-cycle"
	EffectWave         EffectKind = "wave"
	EffectPulse        EffectKind = "pulse"
	EffectZoneChase    EffectKind = "zone-chase"
	EffectStarlight    EffectKind = "starlight"
	EffectScanner      EffectKind = "scanner"
	EffectStrobe       EffectKind = "strobe"
	EffectRipple       EffectKind = "ripple"
	EffectRaindrop     EffectKind = "raindrop"
	EffectReactive     EffectKind = "reactive"
	EffectAntiReactive EffectKind = "anti-reactive"
)

// AllEffectKinds returns every built-in effect kind.
func AllEffectKinds() []EffectKind {
	return []EffectKind{
		EffectStatic,
		EffectBreathing,
		EffectColorCycle,
		EffectWave,
		EffectPulse,
		EffectZoneChase,
		EffectStarlight,
		EffectScanner,
		EffectStrobe,
		EffectRipple,
		EffectRaindrop,
		EffectReactive,
		EffectAntiReactive,
	}
}

// BlendMode controls how an effect instance's output combines with
// the frame accumulated from lower-priority instances.
type BlendMode int

const (
	// BlendReplace overwrites the accumulated color on the
	// instance's target zones.
	BlendReplace BlendMode = iota

	// BlendAdditive adds channel-wise, clamped to 255.
	BlendAdditive

	// BlendMax takes the channel-wise maximum.
	BlendMax

	// BlendAudioModulated scales the instance's output by the
	// current audio peak before applying a secondary mode.
	BlendAudioModulated
)

// String returns the string representation of the blend mode.
func (m BlendMode) String() string {
	switch m {
	case BlendReplace:
		return "replace"
	case BlendAdditive:
		return "additive"
	case BlendMax:
		return "max"
	case BlendAudioModulated:
		return "audio-modulated"
	default:
		return "unknown"
	}
}

// ParseBlendMode parses the string form of a blend mode.
func ParseBlendMode(s string) (BlendMode, error) {
	switch s {
	case "replace":
		return BlendReplace, nil
	case "additive":
		return BlendAdditive, nil
	case "max":
		return BlendMax, nil
	case "audio-modulated":
		return BlendAudioModulated, nil
	default:
		return 0, fmt.Errorf("unknown blend mode %q", s)
	}
}

// Params carries effect-specific parameters. Accessors return the
// given default when the key is absent or has the wrong type, so
// generators never fail on malformed input.
type Params map[string]any

// Float returns the float64 value of key, accepting int for
// convenience.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// Int returns the int value of key, accepting float64 with an
// integral value.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Bool returns the bool value of key.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}

	return def
}

// Color returns the Color value of key, accepting a Color or a hex
// string.
func (p Params) Color(key string, def Color) Color {
	switch v := p[key].(type) {
	case Color:
		return v
	case string:
		if c, err := FromHex(v); err == nil {
			return c
		}

		return def
	default:
		return def
	}
}
