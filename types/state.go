package types

// HALState represents the hardware channel lifecycle state.
//
// Normal progression:
//
//	HALDisconnected → HALProbing → HALConnected
//
// Repeated transient commit failures degrade the channel; a permanent
// failure disconnects it:
//
//	HALConnected ⇄ HALDegraded → HALDisconnected
type HALState int

const (
	// HALDisconnected means no usable hardware channel. Commits are
	// rejected but the engine keeps computing frames.
	HALDisconnected HALState = iota

	// HALProbing means driver detection is in progress.
	HALProbing

	// HALConnected means the channel is healthy and applying frames.
	HALConnected

	// HALDegraded means commits are still accepted but frames that
	// cannot be applied within the timeout are logged and skipped.
	HALDegraded
)

// String returns the string representation of the HAL state.
func (s HALState) String() string {
	switch s {
	case HALDisconnected:
		return "Disconnected"
	case HALProbing:
		return "Probing"
	case HALConnected:
		return "Connected"
	case HALDegraded:
		return "Degraded"
	default:
		return "Unknown"
	}
}

// PluginState represents the sandbox lifecycle state of a plugin.
//
// Lifecycle:
//
//	PluginLoaded → PluginRunning → PluginFaulted → PluginUnloaded
//
// Unloaded is terminal and irreversible; recovering a plugin requires
// a fresh load.
type PluginState int

const (
	// PluginLoaded means the manifest was read and the entry point
	// compiled, but no effect instance is registered yet. The timer
	// callback still runs so the plugin can register later.
	PluginLoaded PluginState = iota

	// PluginRunning means the plugin has registered at least one
	// effect instance.
	PluginRunning

	// PluginFaulted means the plugin violated a capability grant,
	// exhausted its tick budget repeatedly, or panicked. Its effect
	// instances are removed and its callbacks are never re-entered.
	PluginFaulted

	// PluginUnloaded means the plugin was removed.
	PluginUnloaded
)

// String returns the string representation of the plugin state.
func (s PluginState) String() string {
	switch s {
	case PluginLoaded:
		return "Loaded"
	case PluginRunning:
		return "Running"
	case PluginFaulted:
		return "Faulted"
	case PluginUnloaded:
		return "Unloaded"
	default:
		return "Unknown"
	}
}
