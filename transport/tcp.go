package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/juju/errors"
)

// TCP is a socket connected to an editor started with --listen host:port.
type TCP struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

type dialOptions struct {
	timeout  time.Duration // Per-attempt dial timeout
	retryFor time.Duration // Total time to keep retrying; 0 means a single attempt
	log      logr.Logger
}

// DialOption configures DialTCP.
type DialOption func(*dialOptions)

// WithDialTimeout bounds a single connection attempt.
func WithDialTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.timeout = d }
}

// WithRetry keeps retrying with exponential back-off for up to d. Useful right
// after launching an editor that has not opened its listen socket yet.
func WithRetry(d time.Duration) DialOption {
	return func(o *dialOptions) { o.retryFor = d }
}

// WithDialLogger reports failed attempts while retrying.
func WithDialLogger(log logr.Logger) DialOption {
	return func(o *dialOptions) { o.log = log }
}

// DialTCP connects to address. The context bounds the whole operation,
// including retries.
func DialTCP(ctx context.Context, address string, opts ...DialOption) (*TCP, error) {
	o := dialOptions{
		timeout: 5 * time.Second,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &net.Dialer{Timeout: o.timeout}
	dial := func() (net.Conn, error) {
		return d.DialContext(ctx, "tcp", address)
	}

	var conn net.Conn
	var err error
	if o.retryFor <= 0 {
		conn, err = dial()
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxElapsedTime = o.retryFor
		conn, err = backoff.RetryNotifyWithData(dial, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
			o.log.V(1).Info("connect attempt failed", "address", address, "retryIn", next, "error", err.Error())
		})
	}
	if err != nil {
		return nil, errors.Annotatef(err, "connecting to %s", address)
	}
	return &TCP{conn: conn}, nil
}

func (t *TCP) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *TCP) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *TCP) Kind() Kind                  { return KindTCP }

// RemoteAddr is the editor's address.
func (t *TCP) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

func (t *TCP) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
