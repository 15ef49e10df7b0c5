// Package topology provides the static zone model: named addressable
// regions mapping to physical LED indices.
//
// A Topology is loaded once at startup (from YAML or the built-in
// default layout), validated against the driver's addressable range,
// and immutable afterwards. It is safe for concurrent reads from
// every other component.
package topology
