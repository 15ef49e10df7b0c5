// Package audio turns a mono capture stream into per-band energy
// frames for sound-reactive effects.
//
// The pipeline windows the signal (Hann), runs a forward FFT, folds
// the magnitude spectrum into logarithmically spaced bands, and
// normalizes against a decaying rolling peak so quiet and loud
// sources fill the same 0..1 range. Consumers poll Latest for the
// newest frame; the pipeline never blocks on slow consumers.
//
// A failed capture device degrades to silence frames while the
// pipeline retries the device on a timer.
package audio
