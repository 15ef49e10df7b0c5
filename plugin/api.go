package plugin

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// buildAPI assembles the plugin's api table. Every function is either
// the real implementation or a violation trap, decided by the
// manifest's grants at load time.
func (h *Host) buildAPI(ls *lua.LState, handle *Handle) *lua.LTable {
	api := ls.NewTable()

	h.register(ls, api, handle, "register_effect", CapRegisterEffect, h.luaRegisterEffect(handle))
	h.register(ls, api, handle, "deregister_effect", CapRegisterEffect, h.luaDeregisterEffect(handle))
	h.register(ls, api, handle, "audio", CapReadAudio, h.luaAudio())
	h.register(ls, api, handle, "zones", CapReadTopology, h.luaZones())

	// log needs no grant.
	ls.SetField(api, "log", ls.NewFunction(func(L *lua.LState) int {
		h.logger.Info("plugin log", "plugin", handle.ID(), "message", L.CheckString(1))

		return 0
	}))

	return api
}

// register installs fn under name when the capability is granted, or
// a trap that faults the plugin on first touch.
func (h *Host) register(ls *lua.LState, api *lua.LTable, handle *Handle, name string, required Capability, fn lua.LGFunction) {
	if handle.grants.Has(required) {
		ls.SetField(api, name, ls.NewFunction(fn))

		return
	}

	ls.SetField(api, name, ls.NewFunction(func(L *lua.LState) int {
		handle.violation = &types.PluginFault{
			PluginID: handle.ID(),
			Kind:     types.FaultCapabilityViolation,
			Err:      fmt.Errorf("api.%s requires capability %q", name, required),
		}
		L.RaiseError("capability %s not granted", required)

		return 0
	}))
}

// luaRegisterEffect implements api.register_effect(spec).
//
// spec is a table: kind (required), zones, params, priority, blend,
// secondary. Returns the new instance ID.
func (h *Host) luaRegisterEffect(handle *Handle) lua.LGFunction {
	return func(L *lua.LState) int {
		spec := L.CheckTable(1)

		kind := lua.LVAsString(L.GetField(spec, "kind"))
		if kind == "" {
			L.ArgError(1, "spec.kind is required")

			return 0
		}

		zones, err := h.targetZones(handle, L.GetField(spec, "zones"))
		if err != nil {
			handle.violation = &types.PluginFault{
				PluginID: handle.ID(),
				Kind:     types.FaultCapabilityViolation,
				Err:      err,
			}
			L.RaiseError("%s", err.Error())

			return 0
		}

		act := types.ActivateEffect{
			Kind:        types.EffectKind(kind),
			ZoneTargets: zones,
			Params:      luaParams(L.GetField(spec, "params")),
			Priority:    int(lua.LVAsNumber(L.GetField(spec, "priority"))),
			Owner:       handle.ID(),
		}
		if blend := lua.LVAsString(L.GetField(spec, "blend")); blend != "" {
			mode, err := types.ParseBlendMode(blend)
			if err != nil {
				L.ArgError(1, err.Error())

				return 0
			}
			act.Blend = mode
		}
		if secondary := lua.LVAsString(L.GetField(spec, "secondary")); secondary != "" {
			mode, err := types.ParseBlendMode(secondary)
			if err != nil {
				L.ArgError(1, err.Error())

				return 0
			}
			act.Secondary = mode
		}

		instanceID, err := h.registrar.ActivateEffect(act)
		if err != nil {
			L.RaiseError("register_effect: %s", err.Error())

			return 0
		}
		handle.instances = append(handle.instances, instanceID)
		if handle.State() == types.PluginLoaded {
			handle.setState(types.PluginRunning)
		}

		L.Push(lua.LString(instanceID))

		return 1
	}
}

// luaDeregisterEffect implements api.deregister_effect(id). Plugins
// may only deregister instances they own.
func (h *Host) luaDeregisterEffect(handle *Handle) lua.LGFunction {
	return func(L *lua.LState) int {
		instanceID := L.CheckString(1)

		owned := -1
		for i, id := range handle.instances {
			if id == instanceID {
				owned = i
				break
			}
		}
		if owned < 0 {
			handle.violation = &types.PluginFault{
				PluginID: handle.ID(),
				Kind:     types.FaultCapabilityViolation,
				Err:      fmt.Errorf("deregister of foreign effect instance %s", instanceID),
			}
			L.RaiseError("effect instance %s is not owned by this plugin", instanceID)

			return 0
		}

		if err := h.registrar.DeactivateEffect(instanceID); err != nil {
			L.RaiseError("deregister_effect: %s", err.Error())

			return 0
		}
		handle.instances = append(handle.instances[:owned], handle.instances[owned+1:]...)

		return 0
	}
}

// luaAudio implements api.audio(): returns {peak, bands} from the
// newest analysis frame, zeros when no audio pipeline runs.
func (h *Host) luaAudio() lua.LGFunction {
	return func(L *lua.LState) int {
		out := L.NewTable()
		bands := L.NewTable()

		var frame *types.AudioFrame
		if h.audio != nil {
			frame = h.audio()
		}
		if frame != nil {
			L.SetField(out, "peak", lua.LNumber(frame.Peak))
			for _, e := range frame.BandEnergies {
				bands.Append(lua.LNumber(e))
			}
		} else {
			L.SetField(out, "peak", lua.LNumber(0))
		}
		L.SetField(out, "bands", bands)

		L.Push(out)

		return 1
	}
}

// luaZones implements api.zones(): the zone IDs in declaration order.
func (h *Host) luaZones() lua.LGFunction {
	return func(L *lua.LState) int {
		out := L.NewTable()
		for _, zoneID := range h.topo.AllZones() {
			out.Append(lua.LString(zoneID))
		}
		L.Push(out)

		return 1
	}
}

// targetZones resolves a spec.zones value against the plugin's
// declared writable zones. Nil means every writable zone.
func (h *Host) targetZones(handle *Handle, v lua.LValue) ([]string, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		if len(handle.manifest.Zones) > 0 {
			return append([]string(nil), handle.manifest.Zones...), nil
		}

		return h.topo.AllZones(), nil
	}

	var zones []string
	var badZone error
	tbl.ForEach(func(_, value lua.LValue) {
		zoneID := lua.LVAsString(value)
		if !handle.zoneAllowed(zoneID) {
			badZone = fmt.Errorf("zone %q is outside the plugin's declared zones", zoneID)

			return
		}
		zones = append(zones, zoneID)
	})
	if badZone != nil {
		return nil, badZone
	}

	return zones, nil
}

// luaParams converts a Lua table into effect Params.
func luaParams(v lua.LValue) types.Params {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}

	params := types.Params{}
	tbl.ForEach(func(key, value lua.LValue) {
		name := lua.LVAsString(key)
		switch tv := value.(type) {
		case lua.LNumber:
			params[name] = float64(tv)
		case lua.LString:
			params[name] = string(tv)
		case lua.LBool:
			params[name] = bool(tv)
		}
	})

	return params
}
