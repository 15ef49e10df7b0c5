package topology

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		zones []types.Zone
	}{
		{"empty", nil},
		{"empty id", []types.Zone{{ID: "", MemberLEDs: []types.LedIndex{0}}}},
		{"duplicate id", []types.Zone{
			{ID: "a", MemberLEDs: []types.LedIndex{0}},
			{ID: "a", MemberLEDs: []types.LedIndex{1}},
		}},
		{"no leds", []types.Zone{{ID: "a"}}},
		{"negative led", []types.Zone{{ID: "a", MemberLEDs: []types.LedIndex{-1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.zones)
			require.Error(t, err)

			var cfgErr *types.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestDefault(t *testing.T) {
	topo := Default()

	require.Equal(t, []string{"zone-1", "zone-2", "zone-3", "zone-4"}, topo.AllZones())
	require.Equal(t, types.LedIndex(11), topo.MaxLED())

	leds, ok := topo.Resolve("zone-2")
	require.True(t, ok)
	require.Equal(t, []types.LedIndex{3, 4, 5}, leds)

	_, ok = topo.Resolve("zone-9")
	require.False(t, ok)
}

func TestParse(t *testing.T) {
	topo, err := Parse([]byte(`
zones:
  - id: left
    leds: [0, 1]
    tags: [edge]
  - id: right
    leds: [2, 3]
`))
	require.NoError(t, err)

	require.Equal(t, []string{"left", "right"}, topo.AllZones())
	require.Equal(t, []string{"left"}, topo.ZonesByTag("edge"))
	require.True(t, topo.Contains("right"))
	require.False(t, topo.Contains("center"))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`zones: {not: a list}`))
	require.Error(t, err)
}

func TestZoneForKey(t *testing.T) {
	topo := Default()

	require.Equal(t, "zone-1", topo.ZoneForKey(0))
	require.Equal(t, "zone-2", topo.ZoneForKey(4))
	require.Equal(t, "zone-4", topo.ZoneForKey(11))

	// Keys outside every zone clamp to the last zone.
	require.Equal(t, "zone-4", topo.ZoneForKey(999))
}

func TestValidate_AddressableRange(t *testing.T) {
	topo := Default()

	require.NoError(t, topo.Validate(11))
	require.Error(t, topo.Validate(7))
}

func TestImmutability(t *testing.T) {
	zones := []types.Zone{{ID: "a", MemberLEDs: []types.LedIndex{0, 1}}}
	topo, err := New(zones)
	require.NoError(t, err)

	// Mutating the input or a resolved copy must not leak inside.
	zones[0].MemberLEDs[0] = 99
	leds, _ := topo.Resolve("a")
	leds[1] = 99

	leds, _ = topo.Resolve("a")
	require.Equal(t, []types.LedIndex{0, 1}, leds)
}
