package hal

import (
	"context"
	"sync"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// MemoryDriver is an in-process driver backing tests and the desktop
// preview. It records every Apply in order and supports scripted
// failure injection.
type MemoryDriver struct {
	mu sync.Mutex

	colors  map[string]types.Color
	applies []AppliedWrite
	flushes int

	probeOK  bool
	maxLED   types.LedIndex
	failNext []error // consumed front-first by Apply
}

// AppliedWrite is one recorded Apply call.
type AppliedWrite struct {
	ZoneID string
	Color  types.Color
}

// NewMemoryDriver creates a memory driver addressing LEDs 0..maxLED.
func NewMemoryDriver(maxLED types.LedIndex) *MemoryDriver {
	return &MemoryDriver{
		colors:  make(map[string]types.Color),
		probeOK: true,
		maxLED:  maxLED,
	}
}

// Probe reports the scripted probe result (default true).
func (d *MemoryDriver) Probe(_ context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.probeOK
}

// SetProbeResult scripts the next Probe results.
func (d *MemoryDriver) SetProbeResult(ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probeOK = ok
}

// FailNext queues errors to be returned by the next Apply calls, in
// order. A nil entry means that call succeeds.
func (d *MemoryDriver) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = append(d.failNext, errs...)
}

// Apply records the write, honoring any scripted failure.
func (d *MemoryDriver) Apply(_ context.Context, zoneID string, color types.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.failNext) > 0 {
		err := d.failNext[0]
		d.failNext = d.failNext[1:]
		if err != nil {
			return err
		}
	}

	d.colors[zoneID] = color
	d.applies = append(d.applies, AppliedWrite{ZoneID: zoneID, Color: color})

	return nil
}

// Flush records the batch boundary.
func (d *MemoryDriver) Flush(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++

	return nil
}

// Close is a no-op.
func (d *MemoryDriver) Close() error {
	return nil
}

// MaxLED returns the configured addressable range.
func (d *MemoryDriver) MaxLED() types.LedIndex {
	return d.maxLED
}

// ZoneColor returns the last color applied to a zone.
func (d *MemoryDriver) ZoneColor(zoneID string) (types.Color, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.colors[zoneID]

	return c, ok
}

// Applies returns a copy of every recorded Apply, in call order.
func (d *MemoryDriver) Applies() []AppliedWrite {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]AppliedWrite(nil), d.applies...)
}

// Flushes returns the number of Flush calls observed.
func (d *MemoryDriver) Flushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.flushes
}
