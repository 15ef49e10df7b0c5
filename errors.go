package rgbkbd

import "errors"

// Sentinel errors returned by the Engine.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrHALRequired is returned when the HAL is nil.
	ErrHALRequired = errors.New("hardware abstraction layer is required")

	// ErrTopologyRequired is returned when the topology is nil.
	ErrTopologyRequired = errors.New("topology is required")

	// ErrAlreadyStarted is returned when Start is called on a running engine.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrNotStarted is returned when Stop is called on an engine that hasn't been started.
	ErrNotStarted = errors.New("engine not started")

	// ErrCommandQueueFull is returned when the command queue cannot
	// accept another command this tick.
	ErrCommandQueueFull = errors.New("command queue full")
)
