package topology

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Default layout constants, matching the four-segment keyboards the
// ectool rgbkbd interface addresses: four logical zones of three LEDs.
const (
	DefaultNumZones    = 4
	DefaultLedsPerZone = 3
)

// Topology is the immutable zone model.
//
// Zone declaration order is significant: it defines the deterministic
// write order the HAL uses within a frame, which makes overlapping
// zone writes reproducible.
type Topology struct {
	zones  []types.Zone
	byID   map[string]int
	maxLED types.LedIndex
}

type topologyFile struct {
	Zones []types.Zone `yaml:"zones"`
}

// New creates a Topology from the given zones.
//
// Returns:
//   - *Topology: The validated, immutable topology
//   - error: A *types.ConfigError for empty, duplicate, or LED-less zones
func New(zones []types.Zone) (*Topology, error) {
	if len(zones) == 0 {
		return nil, types.NewConfigError("zones", "topology must declare at least one zone")
	}

	t := &Topology{
		zones: make([]types.Zone, len(zones)),
		byID:  make(map[string]int, len(zones)),
	}

	for i, z := range zones {
		if z.ID == "" {
			return nil, types.NewConfigError("zones", "zone %d has an empty id", i)
		}
		if _, dup := t.byID[z.ID]; dup {
			return nil, types.NewConfigError("zones", "duplicate zone id %q", z.ID)
		}
		if len(z.MemberLEDs) == 0 {
			return nil, types.NewConfigError("zones", "zone %q has no member LEDs", z.ID)
		}
		for _, led := range z.MemberLEDs {
			if led < 0 {
				return nil, types.NewConfigError("zones", "zone %q references negative LED index %d", z.ID, led)
			}
			if led > t.maxLED {
				t.maxLED = led
			}
		}

		// Defensive copy: callers keep no handle into our slices.
		cp := types.Zone{
			ID:         z.ID,
			MemberLEDs: append([]types.LedIndex(nil), z.MemberLEDs...),
			GroupTags:  append([]string(nil), z.GroupTags...),
		}
		t.zones[i] = cp
		t.byID[z.ID] = i
	}

	return t, nil
}

// Load reads a topology from a YAML file.
//
// Example file:
//
//	zones:
//	  - id: zone-1
//	    leds: [0, 1, 2]
//	    tags: [left]
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewConfigError("topology", "read %s: %v", path, err)
	}

	return Parse(data)
}

// Parse reads a topology from YAML bytes.
func Parse(data []byte) (*Topology, error) {
	var f topologyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, types.NewConfigError("topology", "parse: %v", err)
	}

	return New(f.Zones)
}

// Default returns the built-in four-zone layout ("zone-1".."zone-4",
// three LEDs each) used when no topology file is provided.
func Default() *Topology {
	zones := make([]types.Zone, DefaultNumZones)
	for i := range zones {
		leds := make([]types.LedIndex, DefaultLedsPerZone)
		for j := range leds {
			leds[j] = types.LedIndex(i*DefaultLedsPerZone + j)
		}
		zones[i] = types.Zone{
			ID:         fmt.Sprintf("zone-%d", i+1),
			MemberLEDs: leds,
			GroupTags:  []string{"main"},
		}
	}

	t, err := New(zones)
	if err != nil {
		// The built-in layout is statically valid.
		panic(err)
	}

	return t
}

// Resolve returns the ordered LED indices of the given zone.
//
// Returns:
//   - []types.LedIndex: LED indices in write order (a copy)
//   - bool: false if the zone does not exist
func (t *Topology) Resolve(zoneID string) ([]types.LedIndex, bool) {
	i, ok := t.byID[zoneID]
	if !ok {
		return nil, false
	}

	return append([]types.LedIndex(nil), t.zones[i].MemberLEDs...), true
}

// AllZones returns the set of zone IDs in declaration order.
func (t *Topology) AllZones() []string {
	ids := make([]string, len(t.zones))
	for i, z := range t.zones {
		ids[i] = z.ID
	}

	return ids
}

// Zones returns the zones in declaration order.
func (t *Topology) Zones() []types.Zone {
	return append([]types.Zone(nil), t.zones...)
}

// Zone returns the zone with the given ID.
func (t *Topology) Zone(zoneID string) (types.Zone, bool) {
	i, ok := t.byID[zoneID]
	if !ok {
		return types.Zone{}, false
	}

	return t.zones[i], true
}

// Contains reports whether the topology declares the given zone.
func (t *Topology) Contains(zoneID string) bool {
	_, ok := t.byID[zoneID]

	return ok
}

// ZonesByTag returns the IDs of every zone carrying the given tag, in
// declaration order.
func (t *Topology) ZonesByTag(tag string) []string {
	var ids []string
	for _, z := range t.zones {
		if z.HasTag(tag) {
			ids = append(ids, z.ID)
		}
	}

	return ids
}

// MaxLED returns the highest LED index referenced by any zone.
func (t *Topology) MaxLED() types.LedIndex {
	return t.maxLED
}

// ZoneForKey maps a physical key LED index to the zone containing it,
// used by the Reactive effects. When the key is past the last zone it
// clamps to the final zone, matching the controller's key-to-zone
// arithmetic.
func (t *Topology) ZoneForKey(key types.LedIndex) string {
	for _, z := range t.zones {
		for _, led := range z.MemberLEDs {
			if led == key {
				return z.ID
			}
		}
	}

	return t.zones[len(t.zones)-1].ID
}

// Validate checks every referenced LED index against the driver's
// addressable range.
//
// Parameters:
//   - maxAddressable: Highest LED index the driver can address
//
// Returns:
//   - error: A *types.ConfigError when any zone exceeds the range
func (t *Topology) Validate(maxAddressable types.LedIndex) error {
	for _, z := range t.zones {
		for _, led := range z.MemberLEDs {
			if led > maxAddressable {
				return types.NewConfigError("topology",
					"zone %q references LED %d outside the driver's addressable range (max %d)",
					z.ID, led, maxAddressable)
			}
		}
	}

	return nil
}
