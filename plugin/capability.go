package plugin

// Capability names one grantable slice of the host API.
type Capability string

const (
	// CapRegisterEffect allows api.register_effect and
	// api.deregister_effect.
	CapRegisterEffect Capability = "effects:register"

	// CapReadAudio allows api.audio.
	CapReadAudio Capability = "read:audio"

	// CapReadTopology allows api.zones.
	CapReadTopology Capability = "read:topology"
)

// knownCapabilities is the set a manifest may request.
var knownCapabilities = map[Capability]bool{
	CapRegisterEffect: true,
	CapReadAudio:      true,
	CapReadTopology:   true,
}

// grantSet is an immutable capability lookup.
type grantSet map[Capability]bool

func newGrantSet(caps []Capability) grantSet {
	g := make(grantSet, len(caps))
	for _, c := range caps {
		g[c] = true
	}

	return g
}

// Has reports whether the capability was granted.
func (g grantSet) Has(c Capability) bool {
	return g[c]
}
