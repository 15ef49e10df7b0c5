package types

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/zeebo/xxh3"
)

// Frame is one complete lighting state: a color for every zone.
type Frame map[string]Color

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	for zoneID, c := range f {
		out[zoneID] = c
	}

	return out
}

// Equal reports whether both frames assign identical colors to
// identical zones.
func (f Frame) Equal(other Frame) bool {
	if len(f) != len(other) {
		return false
	}
	for zoneID, c := range f {
		oc, ok := other[zoneID]
		if !ok || oc != c {
			return false
		}
	}

	return true
}

// Hash returns a content hash of the frame, independent of map
// iteration order. The HAL uses it to skip no-op commits.
func (f Frame) Hash() uint64 {
	zoneIDs := make([]string, 0, len(f))
	for zoneID := range f {
		zoneIDs = append(zoneIDs, zoneID)
	}
	sort.Strings(zoneIDs)

	h := xxh3.New()
	var packed [4]byte
	for _, zoneID := range zoneIDs {
		_, _ = h.WriteString(zoneID)
		binary.LittleEndian.PutUint32(packed[:], f[zoneID].Packed())
		_, _ = h.Write(packed[:])
	}

	return h.Sum64()
}

// AudioFrame is one analyzed slice of the capture stream.
type AudioFrame struct {
	// Timestamp is strictly increasing across frames from one
	// pipeline.
	Timestamp time.Time

	// BandEnergies holds normalized 0..1 energies, low to high
	// frequency.
	BandEnergies []float64

	// Peak is the loudest band's normalized energy.
	Peak float64
}

// Band returns the energy of band i, or 0 when out of range.
func (f *AudioFrame) Band(i int) float64 {
	if f == nil || i < 0 || i >= len(f.BandEnergies) {
		return 0
	}

	return f.BandEnergies[i]
}
