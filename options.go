package rgbkbd

import (
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/audio"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/relay"
)

// Option configures an Engine with optional dependencies.
type Option func(*engineOptions)

// engineOptions holds optional Engine configuration.
type engineOptions struct {
	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks
	audio   *audio.Pipeline
	relay   *relay.Relay
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewEngine
func WithLogger(logger Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *engineOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets lifecycle event hooks.
//
// Example:
//
//	hooks := &rgbkbd.Hooks{
//	    OnHALStateChanged: func(ctx context.Context, from, to rgbkbd.HALState) error {
//	        notifyTray(to)
//	        return nil
//	    },
//	}
//	engine, err := rgbkbd.NewEngine(cfg, topo, channel, rgbkbd.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *engineOptions) {
		o.hooks = hooks
	}
}

// WithAudio attaches an audio analysis pipeline. The engine starts
// and stops the pipeline with its own lifecycle and feeds its frames
// to audio-modulated blending, sound-reactive effects and plugins.
func WithAudio(pipeline *audio.Pipeline) Option {
	return func(o *engineOptions) {
		o.audio = pipeline
	}
}

// WithRelay attaches a sync relay. Committed frames are published
// through it and remote commands are injected into the engine's
// command queue. The relay is closed when the engine stops.
func WithRelay(r *relay.Relay) Option {
	return func(o *engineOptions) {
		o.relay = r
	}
}
