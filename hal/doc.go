// Package hal mediates all writes to the physical lighting
// controller.
//
// The HAL owns the "last acknowledged frame" used for per-zone
// diffing, batches and rate-limits writes to the slow embedded
// controller channel, retries transient failures with exponential
// backoff, and tracks the channel state machine
// (Disconnected → Probing → Connected ⇄ Degraded → Disconnected).
//
// Concrete drivers implement the Driver interface; EctoolDriver
// shells out to the platform's ectool utility, MemoryDriver backs
// tests and the desktop preview.
package hal
