// Package plugin hosts Lua effect plugins in a capability-scoped
// sandbox.
//
// A plugin ships a YAML manifest declaring its identity, capability
// grants and writable zones, plus a Lua entry point defining setup()
// and optionally tick(). The host exposes only the API surface the
// manifest grants; touching anything else faults the plugin
// immediately. Tick callbacks run under a wall-clock watchdog, and a
// faulted plugin's Lua state is never re-entered.
package plugin
