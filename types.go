package rgbkbd

import "github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"

// Re-export types from the types subpackage.
//
// Subpackages (hal, audio, effects, plugin, relay) depend on `types`
// without importing the root package; type aliases keep the
// convenient rgbkbd.Color, rgbkbd.Frame spelling for users.
type (
	Color      = types.Color
	Frame      = types.Frame
	AudioFrame = types.AudioFrame
	Zone       = types.Zone
	LedIndex   = types.LedIndex
	EffectKind = types.EffectKind
	BlendMode  = types.BlendMode
	Params     = types.Params
	Command    = types.Command
	HALState   = types.HALState
)

// Re-export command payloads.
type (
	ActivateEffect   = types.ActivateEffect
	DeactivateEffect = types.DeactivateEffect
	SetBrightness    = types.SetBrightness
	SetSpeed         = types.SetSpeed
	KeyEvent         = types.KeyEvent
)

// Re-export interfaces and fault reports.
type (
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
	Hooks            = types.Hooks
	EffectFault      = types.EffectFault
	PluginFault      = types.PluginFault
)

// Re-export effect kinds.
const (
	EffectStatic       = types.EffectStatic
	EffectBreathing    = types.EffectBreathing
	EffectColorCycle   = types.EffectColorCycle
	EffectWave         = types.EffectWave
	EffectPulse        = types.EffectPulse
	EffectZoneChase    = types.EffectZoneChase
	EffectStarlight    = types.EffectStarlight
	EffectScanner      = types.EffectScanner
	EffectStrobe       = types.EffectStrobe
	EffectRipple       = types.EffectRipple
	EffectRaindrop     = types.EffectRaindrop
	EffectReactive     = types.EffectReactive
	EffectAntiReactive = types.EffectAntiReactive
)

// Re-export blend modes.
const (
	BlendReplace        = types.BlendReplace
	BlendAdditive       = types.BlendAdditive
	BlendMax            = types.BlendMax
	BlendAudioModulated = types.BlendAudioModulated
)
