package types

import "time"

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations must be non-blocking and thread-safe; all methods
// are called from internal goroutines, some on the hot tick path.
type MetricsCollector interface {
	// RecordTick records one scheduler tick and its computation time.
	RecordTick(duration time.Duration, activeEffects int)

	// RecordCommit records a HAL commit attempt.
	RecordCommit(zonesChanged int, duration time.Duration, success bool)

	// RecordHALStateChange records a hardware channel state change.
	RecordHALStateChange(from, to HALState)

	// RecordEffectFault records a contained effect generator fault.
	RecordEffectFault(kind EffectKind)

	// RecordPluginFault records a sandbox fault.
	RecordPluginFault(pluginID string, kind PluginFaultKind)

	// RecordAudioFrame records an analyzed audio frame and its peak.
	RecordAudioFrame(peak float64)

	// RecordSyncPublish records a relay publish attempt.
	RecordSyncPublish(success bool)

	// RecordDroppedFrame records a frame dropped under HAL
	// backpressure (latest-frame-wins policy).
	RecordDroppedFrame()
}
