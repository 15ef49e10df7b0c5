package metrics

import (
	"time"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is not wired up.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordTick discards the tick metric.
func (n *NopMetrics) RecordTick(_ /* duration */ time.Duration, _ /* activeEffects */ int) {
	// No-op
}

// RecordCommit discards the commit metric.
func (n *NopMetrics) RecordCommit(_ /* zonesChanged */ int, _ /* duration */ time.Duration, _ /* success */ bool) {
	// No-op
}

// RecordHALStateChange discards the HAL state change metric.
func (n *NopMetrics) RecordHALStateChange(_ /* from */, _ /* to */ types.HALState) {
	// No-op
}

// RecordEffectFault discards the effect fault metric.
func (n *NopMetrics) RecordEffectFault(_ /* kind */ types.EffectKind) {
	// No-op
}

// RecordPluginFault discards the plugin fault metric.
func (n *NopMetrics) RecordPluginFault(_ /* pluginID */ string, _ /* kind */ types.PluginFaultKind) {
	// No-op
}

// RecordAudioFrame discards the audio frame metric.
func (n *NopMetrics) RecordAudioFrame(_ /* peak */ float64) {
	// No-op
}

// RecordSyncPublish discards the sync publish metric.
func (n *NopMetrics) RecordSyncPublish(_ /* success */ bool) {
	// No-op
}

// RecordDroppedFrame discards the dropped frame metric.
func (n *NopMetrics) RecordDroppedFrame() {
	// No-op
}
