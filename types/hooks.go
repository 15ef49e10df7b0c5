package types

import "context"

// Hooks defines callbacks for engine lifecycle and fault events.
//
// All hooks are optional and called asynchronously in background
// goroutines so they can never block the tick loop. Hooks receive the
// engine's lifecycle context, which is cancelled during shutdown.
//
// Hook errors are logged but never fail engine operations. Keep hook
// bodies quick, respect context cancellation, and make them
// idempotent.
type Hooks struct {
	// OnFrameCommitted is called after the HAL acknowledges a frame.
	OnFrameCommitted func(ctx context.Context, frame Frame) error

	// OnHALStateChanged is called when the hardware channel changes
	// state (e.g. Connected → Degraded).
	OnHALStateChanged func(ctx context.Context, from, to HALState) error

	// OnEffectFault is called when a generator is deactivated after
	// a contained fault.
	OnEffectFault func(ctx context.Context, fault *EffectFault) error

	// OnPluginFault is called when a plugin transitions to Faulted.
	OnPluginFault func(ctx context.Context, fault *PluginFault) error

	// OnSyncStatus is called when the relay transitions between
	// connected and local-only operation. err is nil on recovery.
	OnSyncStatus func(ctx context.Context, err error) error

	// OnError is called for any other recoverable error.
	OnError func(ctx context.Context, err error) error
}
