package plugin

import (
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/watchdog"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Handle is one loaded plugin: its Lua state, capability grants and
// registered effect instances.
//
// The Lua state is confined to the host's tick goroutine; Handle's
// exported methods are safe to call from anywhere.
type Handle struct {
	manifest *Manifest
	grants   grantSet

	state atomic.Int32 // types.PluginState

	ls     *lua.LState
	api    *lua.LTable
	tickFn *lua.LFunction
	dog    *watchdog.Watchdog

	// instances holds the effect instance IDs the plugin owns, in
	// registration order.
	instances []string

	// violation is set by a capability stub during a Lua call and
	// checked by the host when the call returns.
	violation *types.PluginFault
}

// ID returns the plugin's manifest ID.
func (h *Handle) ID() string {
	return h.manifest.ID
}

// State returns the plugin lifecycle state.
func (h *Handle) State() types.PluginState {
	return types.PluginState(h.state.Load())
}

// Instances returns the effect instance IDs the plugin has
// registered, in registration order.
func (h *Handle) Instances() []string {
	return append([]string(nil), h.instances...)
}

// setState moves the handle to a new lifecycle state. Faulted and
// Unloaded are terminal: no transition leaves them.
func (h *Handle) setState(to types.PluginState) bool {
	for {
		cur := types.PluginState(h.state.Load())
		if cur == types.PluginFaulted || cur == types.PluginUnloaded {
			return false
		}
		if h.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

// zoneAllowed reports whether the plugin may target the given zone.
func (h *Handle) zoneAllowed(zoneID string) bool {
	if len(h.manifest.Zones) == 0 {
		return true
	}
	for _, z := range h.manifest.Zones {
		if z == zoneID {
			return true
		}
	}

	return false
}
