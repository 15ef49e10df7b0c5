package types

// LedIndex addresses one physical LED on the lighting controller.
type LedIndex int

// Zone is a named group of LEDs driven as a unit. Zones may overlap;
// write order within a frame resolves overlapping members.
type Zone struct {
	ID         string     `yaml:"id"`
	MemberLEDs []LedIndex `yaml:"leds"`
	GroupTags  []string   `yaml:"tags,omitempty"`
}

// HasTag reports whether the zone carries the given group tag.
func (z Zone) HasTag(tag string) bool {
	for _, t := range z.GroupTags {
		if t == tag {
			return true
		}
	}

	return false
}
