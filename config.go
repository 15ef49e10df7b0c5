package rgbkbd

import (
	"fmt"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Limits for engine configuration.
const (
	// MinTickRate and MaxTickRate bound the scheduler frequency.
	MinTickRate = 1
	MaxTickRate = 240

	// DefaultTickRate is one tick per 60Hz display frame.
	DefaultTickRate = 60

	// DefaultCommandQueueSize bounds the MPSC command queue.
	DefaultCommandQueueSize = 256
)

// Config holds engine-level settings. HAL, audio and relay carry
// their own Config types in their packages.
type Config struct {
	// TickRate is the scheduler frequency in Hz, clamped to 1-240.
	// Default: 60.
	TickRate int `yaml:"tickRate"`

	// Brightness is the initial global brightness percent, 0-100.
	// Default: 100.
	Brightness int `yaml:"brightness"`

	// Speed is the initial global speed multiplier applied to effect
	// time. Default: 1.0.
	Speed float64 `yaml:"speed"`

	// CommandQueueSize bounds the inbound command queue. Default: 256.
	CommandQueueSize int `yaml:"commandQueueSize"`

	// SettingsPath, when set, enables settings persistence:
	// brightness, speed and the last activated effect are loaded at
	// Start and saved at Stop.
	SettingsPath string `yaml:"settingsPath,omitempty"`
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.TickRate == 0 {
		c.TickRate = DefaultTickRate
	}
	if c.Brightness == 0 {
		c.Brightness = 100
	}
	if c.Speed == 0 {
		c.Speed = 1.0
	}
	if c.CommandQueueSize == 0 {
		c.CommandQueueSize = DefaultCommandQueueSize
	}
}

// Validate checks the configuration, clamping the tick rate into its
// supported range rather than failing on it.
func (c *Config) Validate() error {
	if c.TickRate < MinTickRate {
		c.TickRate = MinTickRate
	}
	if c.TickRate > MaxTickRate {
		c.TickRate = MaxTickRate
	}

	if c.Brightness < 0 || c.Brightness > 100 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig,
			types.NewConfigError("brightness", "must be 0-100, got %d", c.Brightness))
	}
	if c.Speed < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig,
			types.NewConfigError("speed", "must be positive, got %v", c.Speed))
	}
	if c.CommandQueueSize < 1 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig,
			types.NewConfigError("commandQueueSize", "must be at least 1, got %d", c.CommandQueueSize))
	}

	return nil
}
