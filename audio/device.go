package audio

import "context"

// CaptureDevice opens mono sample streams. Implementations wrap a
// platform capture source (a PulseAudio monitor, a file, a synth).
type CaptureDevice interface {
	// Open starts capture and returns a stream of mono samples.
	Open(ctx context.Context) (Stream, error)
}

// Stream delivers mono float samples in the -1..1 range.
type Stream interface {
	// Read fills buf with samples, blocking until at least one is
	// available. Returns the number of samples written.
	Read(buf []float64) (int, error)

	// SampleRate returns the stream's sample rate in Hz.
	SampleRate() int

	// Close stops capture.
	Close() error
}
