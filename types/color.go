package types

import (
	"fmt"
	"math"
	"regexp"
)

// Color is an 8-bit-per-channel RGB color.
type Color struct {
	R uint8 `yaml:"r" msgpack:"r"`
	G uint8 `yaml:"g" msgpack:"g"`
	B uint8 `yaml:"b" msgpack:"b"`
}

var hexColorRe = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)

// NewColor creates a Color, clamping each channel into 0..255.
func NewColor(r, g, b int) Color {
	return Color{R: clampChannel(r), G: clampChannel(g), B: clampChannel(b)}
}

// FromHSV converts hue (degrees, wraps), saturation and value (0..1)
// to RGB.
func FromHSV(h, s, v float64) Color {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = clamp01(s)
	v = clamp01(v)

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return Color{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
	}
}

// FromHex parses "#rrggbb" or "rrggbb".
func FromHex(s string) (Color, error) {
	m := hexColorRe.FindStringSubmatch(s)
	if m == nil {
		return Color{}, fmt.Errorf("invalid hex color %q", s)
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(m[1], "%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}

	return Color{R: r, G: g, B: b}, nil
}

// Hex returns the "#rrggbb" representation.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Packed returns the color packed as r<<16 | g<<8 | b, the wire form
// the ectool rgbkbd command consumes.
func (c Color) Packed() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Scaled returns the color with every channel multiplied by factor
// (clamped to 0..1).
func (c Color) Scaled(factor float64) Color {
	factor = clamp01(factor)

	return Color{
		R: uint8(math.Round(float64(c.R) * factor)),
		G: uint8(math.Round(float64(c.G) * factor)),
		B: uint8(math.Round(float64(c.B) * factor)),
	}
}

// Lerp linearly interpolates from c to other by t in 0..1.
func (c Color) Lerp(other Color, t float64) Color {
	t = clamp01(t)

	return Color{
		R: uint8(math.Round(float64(c.R) + (float64(other.R)-float64(c.R))*t)),
		G: uint8(math.Round(float64(c.G) + (float64(other.G)-float64(c.G))*t)),
		B: uint8(math.Round(float64(c.B) + (float64(other.B)-float64(c.B))*t)),
	}
}

// Add returns the channel-wise sum, clamped to 255.
func (c Color) Add(other Color) Color {
	return Color{
		R: clampChannel(int(c.R) + int(other.R)),
		G: clampChannel(int(c.G) + int(other.G)),
		B: clampChannel(int(c.B) + int(other.B)),
	}
}

// Max returns the channel-wise maximum.
func (c Color) Max(other Color) Color {
	out := c
	if other.R > out.R {
		out.R = other.R
	}
	if other.G > out.G {
		out.G = other.G
	}
	if other.B > out.B {
		out.B = other.B
	}

	return out
}

// IsZero reports whether the color is black.
func (c Color) IsZero() bool {
	return c == Color{}
}

func clampChannel(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}

	return uint8(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}

	return v
}
