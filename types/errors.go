package types

import (
	"errors"
	"fmt"
)

// The error taxonomy mirrors the containment policy: everything below
// the engine boundary is contained and reported through hooks and
// metrics; only a ConfigError at startup or a permanent HAL failure
// with no fallback driver surfaces as unrecoverable.

// ConfigError reports invalid topology or configuration. It is fatal
// at startup.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Reason)
	}

	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// HalErrorKind classifies hardware channel failures.
type HalErrorKind int

const (
	// HalTransient is a retryable I/O failure (timeout, busy
	// controller). The HAL retries with exponential backoff.
	HalTransient HalErrorKind = iota

	// HalPermanent is an unrecoverable failure (device absent,
	// permission denied). The HAL disconnects without retry.
	HalPermanent
)

// String returns the string representation of the kind.
func (k HalErrorKind) String() string {
	if k == HalPermanent {
		return "Permanent"
	}

	return "Transient"
}

// HalError reports a hardware channel failure.
type HalError struct {
	Kind HalErrorKind
	Op   string // "apply", "flush", "probe"
	Err  error
}

// Error implements the error interface.
func (e *HalError) Error() string {
	return fmt.Sprintf("hal %s: %s failure: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *HalError) Unwrap() error { return e.Err }

// Is reports taxonomy membership: a *HalError matches another
// *HalError with the same Kind regardless of Op and cause.
func (e *HalError) Is(target error) bool {
	var other *HalError
	if !errors.As(target, &other) {
		return false
	}

	return e.Kind == other.Kind
}

// NewHalError wraps err as a HAL failure of the given kind.
func NewHalError(kind HalErrorKind, op string, err error) *HalError {
	return &HalError{Kind: kind, Op: op, Err: err}
}

// AudioError reports a recoverable audio capture failure. The
// pipeline self-heals by retrying the capture device on a timer and
// emitting silence frames in the meantime.
type AudioError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *AudioError) Error() string {
	return fmt.Sprintf("audio %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *AudioError) Unwrap() error { return e.Err }

// EffectFault reports a malfunctioning effect generator. The instance
// is deactivated; the tick proceeds with the remaining instances.
type EffectFault struct {
	InstanceID string
	Kind       EffectKind
	Err        error
}

// Error implements the error interface.
func (e *EffectFault) Error() string {
	return fmt.Sprintf("effect fault: %s instance %s: %v", e.Kind, e.InstanceID, e.Err)
}

// Unwrap returns the underlying error.
func (e *EffectFault) Unwrap() error { return e.Err }

// PluginFaultKind classifies sandbox faults.
type PluginFaultKind int

const (
	// FaultCapabilityViolation is an attempted access outside the
	// plugin's granted capability set. Fatal for the plugin.
	FaultCapabilityViolation PluginFaultKind = iota

	// FaultTimeoutExceeded means the plugin exceeded its per-tick
	// wall-clock budget for N consecutive ticks.
	FaultTimeoutExceeded

	// FaultPanic is an unhandled failure inside the plugin callback.
	FaultPanic
)

// String returns the string representation of the fault kind.
func (k PluginFaultKind) String() string {
	switch k {
	case FaultCapabilityViolation:
		return "CapabilityViolation"
	case FaultTimeoutExceeded:
		return "TimeoutExceeded"
	case FaultPanic:
		return "Panic"
	default:
		return "Unknown"
	}
}

// PluginFault reports a sandbox fault. Faults are isolated: one
// plugin's fault never corrupts state owned by another plugin, the
// engine, or the HAL.
type PluginFault struct {
	PluginID string
	Kind     PluginFaultKind
	Err      error
}

// Error implements the error interface.
func (e *PluginFault) Error() string {
	return fmt.Sprintf("plugin %s fault (%s): %v", e.PluginID, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *PluginFault) Unwrap() error { return e.Err }

// SyncError reports a pub/sub transport failure. Sync is best-effort:
// the engine degrades to local-only operation and resumes publishing
// once the transport reconnects.
type SyncError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error { return e.Err }
