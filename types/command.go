package types

// Command is an inbound control event for the effect engine.
//
// Commands flow top-down from external surfaces (UI, voice, network
// peers) into the engine's multi-producer queue and are applied
// atomically at the next tick boundary, never mid-computation.
// Exactly one of the pointer fields is set, discriminated by Type.
type Command struct {
	Type CommandType `msgpack:"type"`

	Activate   *ActivateEffect   `msgpack:"activate,omitempty"`
	Deactivate *DeactivateEffect `msgpack:"deactivate,omitempty"`
	Brightness *SetBrightness    `msgpack:"brightness,omitempty"`
	Speed      *SetSpeed         `msgpack:"speed,omitempty"`
	Key        *KeyEvent         `msgpack:"key,omitempty"`
}

// CommandType discriminates Command variants.
type CommandType string

const (
	CmdActivateEffect   CommandType = "activate-effect"
	CmdDeactivateEffect CommandType = "deactivate-effect"
	CmdSetBrightness    CommandType = "set-brightness"
	CmdSetSpeed         CommandType = "set-speed"
	CmdKeyEvent         CommandType = "key-event"
)

// ActivateEffect starts a new effect instance.
type ActivateEffect struct {
	Kind        EffectKind `msgpack:"kind"`
	ZoneTargets []string   `msgpack:"zones"` // empty means all zones
	Params      Params     `msgpack:"params,omitempty"`
	Priority    int        `msgpack:"priority"`
	Blend       BlendMode  `msgpack:"blend"`

	// Secondary is the mode an AudioModulated instance blends with
	// after intensity scaling. Ignored for other blend modes.
	Secondary BlendMode `msgpack:"secondary,omitempty"`

	// Owner is the plugin ID for sandbox-registered instances,
	// empty for local/remote user commands.
	Owner string `msgpack:"owner,omitempty"`

	// InstanceID optionally fixes the instance ID (used by plugins
	// so they can deregister later). When empty the engine assigns
	// a fresh UUID.
	InstanceID string `msgpack:"instance_id,omitempty"`
}

// DeactivateEffect stops a running effect instance.
type DeactivateEffect struct {
	InstanceID string `msgpack:"instance_id"`
}

// SetBrightness sets the global brightness scalar, 0-100.
type SetBrightness struct {
	Percent int `msgpack:"percent"`
}

// SetSpeed sets the global speed multiplier applied to effect time.
type SetSpeed struct {
	Multiplier float64 `msgpack:"multiplier"`
}

// KeyEvent reports a physical key press or release. It feeds the
// Reactive and AntiReactive effects.
type KeyEvent struct {
	Key     LedIndex `msgpack:"key"`
	Pressed bool     `msgpack:"pressed"`
}
