package relay

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/logging"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/internal/metrics"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// DefaultSubjectPrefix is the subject namespace for relay traffic.
const DefaultSubjectPrefix = "rgbkbd"

// ErrClosed is returned when publishing through a closed relay.
var ErrClosed = errors.New("relay closed")

// Config controls the relay connection and addressing.
type Config struct {
	// URL is the NATS server URL. Ignored when a connection is
	// injected with WithConn.
	URL string `yaml:"url"`

	// SubjectPrefix namespaces all relay subjects. Default: "rgbkbd".
	SubjectPrefix string `yaml:"subjectPrefix"`

	// DeviceID identifies this device on the wire. Default: a
	// random UUID per process.
	DeviceID string `yaml:"deviceId"`

	// ConnectTimeout bounds the initial connection attempt.
	// Default: 2s.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.DeviceID == "" {
		c.DeviceID = uuid.NewString()
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 2 * time.Second
	}
}

// frameMessage is the wire form of a committed frame.
type frameMessage struct {
	Device string                 `msgpack:"device"`
	SentAt time.Time              `msgpack:"sent_at"`
	Zones  map[string]types.Color `msgpack:"zones"`
}

// Relay is the NATS-backed sync layer.
type Relay struct {
	cfg     Config
	conn    *nats.Conn
	owned   bool // whether Close owns the connection
	logger  types.Logger
	metrics types.MetricsCollector

	healthy  atomic.Bool
	closed   atomic.Bool
	onStatus func(err error)

	subs []*nats.Subscription
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger types.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithMetrics sets the relay metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(r *Relay) { r.metrics = collector }
}

// WithStatusFunc registers a callback fired when the relay loses or
// regains its transport; err is nil on recovery.
func WithStatusFunc(fn func(err error)) Option {
	return func(r *Relay) { r.onStatus = fn }
}

// WithConn injects an existing NATS connection. The relay will not
// close it.
func WithConn(conn *nats.Conn) Option {
	return func(r *Relay) {
		r.conn = conn
		r.owned = false
	}
}

// New creates a Relay and connects it.
//
// Connection loss is not fatal at any point: the client reconnects
// forever in the background and the relay reports health through
// Healthy and the status callback.
func New(cfg Config, opts ...Option) (*Relay, error) {
	cfg.SetDefaults()

	r := &Relay{
		cfg:     cfg,
		owned:   true,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.conn == nil {
		if cfg.URL == "" {
			return nil, types.NewConfigError("relay.url", "NATS URL is required")
		}

		conn, err := nats.Connect(cfg.URL,
			nats.Timeout(cfg.ConnectTimeout),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				r.setHealthy(false, err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				r.setHealthy(true, nil)
			}),
		)
		if err != nil {
			return nil, &types.SyncError{Op: "connect", Err: err}
		}
		r.conn = conn
	}

	r.healthy.Store(r.conn.Status() == nats.CONNECTED)

	return r, nil
}

// SetStatusFunc registers the health transition callback, replacing
// any callback given at construction. Must be set before the relay is
// used for traffic.
func (r *Relay) SetStatusFunc(fn func(err error)) {
	r.onStatus = fn
}

// DeviceID returns this relay's wire identity.
func (r *Relay) DeviceID() string {
	return r.cfg.DeviceID
}

// Healthy reports whether the transport is currently usable.
func (r *Relay) Healthy() bool {
	return r.healthy.Load()
}

// PublishFrame publishes a committed frame on
// <prefix>.frames.<device>. Best-effort: a failure marks the relay
// unhealthy and is reported through the status callback.
func (r *Relay) PublishFrame(frame types.Frame) error {
	if r.closed.Load() {
		return ErrClosed
	}

	msg := frameMessage{
		Device: r.cfg.DeviceID,
		SentAt: time.Now(),
		Zones:  frame,
	}
	data, err := msgpack.Marshal(&msg)
	if err != nil {
		return &types.SyncError{Op: "encode frame", Err: err}
	}

	subject := fmt.Sprintf("%s.frames.%s", r.cfg.SubjectPrefix, r.cfg.DeviceID)
	if err := r.conn.Publish(subject, data); err != nil {
		r.metrics.RecordSyncPublish(false)
		r.setHealthy(false, err)

		return &types.SyncError{Op: "publish frame", Err: err}
	}

	r.metrics.RecordSyncPublish(true)
	r.setHealthy(true, nil)

	return nil
}

// PublishCommand sends a control command to another device on
// <prefix>.commands.<device>.
func (r *Relay) PublishCommand(deviceID string, cmd types.Command) error {
	if r.closed.Load() {
		return ErrClosed
	}

	data, err := msgpack.Marshal(&cmd)
	if err != nil {
		return &types.SyncError{Op: "encode command", Err: err}
	}

	subject := fmt.Sprintf("%s.commands.%s", r.cfg.SubjectPrefix, deviceID)
	if err := r.conn.Publish(subject, data); err != nil {
		r.metrics.RecordSyncPublish(false)
		r.setHealthy(false, err)

		return &types.SyncError{Op: "publish command", Err: err}
	}

	r.metrics.RecordSyncPublish(true)

	return nil
}

// SubscribeCommands delivers remote commands addressed to this
// device. Malformed payloads are logged and dropped.
func (r *Relay) SubscribeCommands(handler func(types.Command)) error {
	subject := fmt.Sprintf("%s.commands.%s", r.cfg.SubjectPrefix, r.cfg.DeviceID)

	sub, err := r.conn.Subscribe(subject, func(msg *nats.Msg) {
		var cmd types.Command
		if err := msgpack.Unmarshal(msg.Data, &cmd); err != nil {
			r.logger.Warn("dropping malformed remote command", "error", err)

			return
		}
		handler(cmd)
	})
	if err != nil {
		return &types.SyncError{Op: "subscribe commands", Err: err}
	}
	r.subs = append(r.subs, sub)

	return nil
}

// SubscribeFrames delivers frames published by other devices, for
// mirroring. The local device's own frames are filtered out.
func (r *Relay) SubscribeFrames(handler func(deviceID string, frame types.Frame)) error {
	subject := fmt.Sprintf("%s.frames.*", r.cfg.SubjectPrefix)

	sub, err := r.conn.Subscribe(subject, func(msg *nats.Msg) {
		var fm frameMessage
		if err := msgpack.Unmarshal(msg.Data, &fm); err != nil {
			r.logger.Warn("dropping malformed remote frame", "error", err)

			return
		}
		if fm.Device == r.cfg.DeviceID {
			return
		}
		handler(fm.Device, types.Frame(fm.Zones))
	})
	if err != nil {
		return &types.SyncError{Op: "subscribe frames", Err: err}
	}
	r.subs = append(r.subs, sub)

	return nil
}

// Close drains subscriptions and, when the relay owns the
// connection, closes it.
func (r *Relay) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.owned {
		r.conn.Close()
	}

	return firstErr
}

// setHealthy flips the health flag, reporting edges through the
// status callback.
func (r *Relay) setHealthy(healthy bool, err error) {
	if r.healthy.Swap(healthy) == healthy {
		return
	}

	if healthy {
		r.logger.Info("sync transport recovered")
		if r.onStatus != nil {
			r.onStatus(nil)
		}

		return
	}

	syncErr := &types.SyncError{Op: "transport", Err: err}
	r.logger.Warn("sync transport lost, continuing local-only", "error", err)
	if r.onStatus != nil {
		r.onStatus(syncErr)
	}
}
