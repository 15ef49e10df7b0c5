package hal

import (
	"context"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Driver abstracts the embedded-controller command channel.
//
// Implementations translate zone-level color writes into
// driver-specific commands; exact command syntax is not part of this
// contract. Errors must be classified as *types.HalError so the HAL
// can distinguish transient from permanent failures; any other error
// is treated as transient.
type Driver interface {
	// Probe reports whether the hardware channel is usable. Called
	// once during connection and again after a disconnect.
	Probe(ctx context.Context) bool

	// Apply stages the color for one zone. Drivers may write
	// immediately or buffer until Flush.
	Apply(ctx context.Context, zoneID string, color types.Color) error

	// Flush completes any buffered writes for the current batch.
	Flush(ctx context.Context) error

	// Close releases the channel. Drivers should restore a sane
	// hardware state (effects off, LEDs cleared) where possible.
	Close() error
}

// MaxAddressable is implemented by drivers that know their highest
// addressable LED index; the topology is validated against it.
type MaxAddressable interface {
	MaxLED() types.LedIndex
}

// BrightnessSetter is implemented by drivers whose hardware exposes a
// global backlight brightness control (ectool pwmsetkblight).
type BrightnessSetter interface {
	SetBrightness(ctx context.Context, percent int) error
}
