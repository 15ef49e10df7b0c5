package audio

import (
	"context"
	"math"
	"sync"
)

// SynthDevice is a deterministic capture device producing a sum of
// sine tones. It backs tests and the desktop demo mode where no real
// capture source exists.
type SynthDevice struct {
	sampleRate int
	tones      []SynthTone

	mu       sync.Mutex
	openErrs []error // consumed front-first by Open
}

// SynthTone is one sinusoidal component of the synthesized signal.
type SynthTone struct {
	Freq      float64 // Hz
	Amplitude float64 // 0..1
}

// NewSynthDevice creates a synth producing the given tones.
func NewSynthDevice(sampleRate int, tones ...SynthTone) *SynthDevice {
	if sampleRate <= 0 {
		sampleRate = 44100
	}

	return &SynthDevice{sampleRate: sampleRate, tones: tones}
}

// FailNextOpen queues errors to be returned by the next Open calls,
// simulating an unavailable capture source.
func (d *SynthDevice) FailNextOpen(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErrs = append(d.openErrs, errs...)
}

// Open starts a fresh stream with phase zero, so identical devices
// produce identical sample sequences.
func (d *SynthDevice) Open(_ context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.openErrs) > 0 {
		err := d.openErrs[0]
		d.openErrs = d.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	return &synthStream{device: d}, nil
}

type synthStream struct {
	device *SynthDevice

	mu     sync.Mutex
	n      uint64 // samples produced
	closed bool
}

func (s *synthStream) Read(buf []float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, context.Canceled
	}

	rate := float64(s.device.sampleRate)
	for i := range buf {
		t := float64(s.n) / rate
		var v float64
		for _, tone := range s.device.tones {
			v += tone.Amplitude * math.Sin(2*math.Pi*tone.Freq*t)
		}
		buf[i] = v
		s.n++
	}

	return len(buf), nil
}

func (s *synthStream) SampleRate() int {
	return s.device.sampleRate
}

func (s *synthStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	return nil
}
