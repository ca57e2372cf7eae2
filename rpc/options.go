package rpc

import (
	"time"

	"github.com/go-logr/logr"

	"nvim-rpc/codec"
)

type options struct {
	codec             codec.Codec
	log               logr.Logger
	metrics           *Metrics
	notificationLimit int
	closeTimeout      time.Duration
}

// Option configures a Conn.
type Option func(*options)

// WithCodec replaces the default msgpack codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics shares a metrics set, e.g. one registered with Prometheus.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithNotificationLimit bounds the inbox. Notifications that arrive while n are
// already queued are dropped and counted. Zero means unbounded.
func WithNotificationLimit(n int) Option {
	return func(o *options) { o.notificationLimit = n }
}

// WithCloseTimeout bounds how long Close waits for the reader to stop.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) { o.closeTimeout = d }
}
