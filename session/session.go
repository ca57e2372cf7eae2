// Package session is the entry point of the library: it connects to an editor
// over one of the supported transports, performs the handshake and exposes
// calls and notifications.
//
// Every constructor returns either a Session whose metadata has been
// validated, or an error with the transport already torn down.
package session

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
	"github.com/rs/xid"

	"nvim-rpc/loadbalance"
	"nvim-rpc/message"
	"nvim-rpc/metadata"
	"nvim-rpc/middleware"
	"nvim-rpc/registry"
	"nvim-rpc/rpc"
	"nvim-rpc/transport"
)

// EmbedFlag is appended to a child editor's arguments so that it speaks the
// protocol on its standard streams.
const EmbedFlag = "--embed"

// Session is a handshaken connection to one editor. It is safe for concurrent
// use.
type Session struct {
	id       xid.ID
	kind     transport.Kind
	conn     *rpc.Conn
	metadata metadata.Metadata
	channel  int64
	call     middleware.CallFunc
	log      logr.Logger
}

// NewTCP connects to an editor started with --listen address.
func NewTCP(ctx context.Context, address string, opts ...Option) (*Session, error) {
	cfg := newConfig(opts)
	t, err := transport.DialTCP(ctx, address, append([]transport.DialOption{transport.WithDialLogger(cfg.Logger)}, cfg.DialOptions...)...)
	if err != nil {
		return nil, err
	}
	return newSession(ctx, t, cfg)
}

// NewStdio talks to the editor on this process's standard streams, which is
// how a plugin host started by the editor is connected.
func NewStdio(ctx context.Context, opts ...Option) (*Session, error) {
	return newSession(ctx, transport.Stdio(), newConfig(opts))
}

// MustStdio is NewStdio for programs that cannot do anything useful without
// the editor. It panics on failure.
func MustStdio(ctx context.Context, opts ...Option) *Session {
	s, err := NewStdio(ctx, opts...)
	if err != nil {
		panic(errors.Annotate(err, "connecting to the editor on stdio"))
	}
	return s
}

// NewChild starts an embedded editor with args followed by --embed. The child
// is stopped when the Session is closed.
func NewChild(ctx context.Context, args []string, opts ...Option) (*Session, error) {
	cfg := newConfig(opts)
	exe := transport.Executable(cfg.Executable)
	argv := append(append(make([]string, 0, len(args)+1), args...), EmbedFlag)

	spawnOpts := append([]transport.SpawnOption{transport.WithSpawnLogger(cfg.Logger)}, cfg.SpawnOptions...)
	child, err := transport.SpawnChild(ctx, exe, argv, spawnOpts...)
	if err != nil {
		return nil, err
	}
	return newSession(ctx, child, cfg)
}

// NewUnix would connect to a socket created by --listen path.
func NewUnix(ctx context.Context, path string, opts ...Option) (*Session, error) {
	t, err := transport.DialUnix(ctx, path)
	if err != nil {
		return nil, err
	}
	return newSession(ctx, t, newConfig(opts))
}

// NewFromRegistry looks up editors registered under name, lets balancer choose
// one and connects to it over TCP.
func NewFromRegistry(ctx context.Context, reg registry.Registry, name string, balancer loadbalance.Balancer, opts ...Option) (*Session, error) {
	endpoints, err := reg.Discover(ctx, name)
	if err != nil {
		return nil, errors.Annotatef(err, "finding editor %q", name)
	}
	ep, err := balancer.Pick(endpoints)
	if err != nil {
		return nil, errors.Annotatef(err, "choosing editor %q", name)
	}
	return NewTCP(ctx, ep.Addr, opts...)
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// newSession owns t from here on: if the handshake fails, t is closed before
// returning.
func newSession(ctx context.Context, t transport.Transport, cfg Config) (*Session, error) {
	id := xid.New()
	log := cfg.Logger.WithValues("session", id.String(), "transport", t.Kind().String())

	conn := rpc.NewConn(t, append([]rpc.Option{rpc.WithLogger(log)}, cfg.ConnOptions...)...)
	result, err := conn.CallSync(ctx, cfg.HandshakeMethod, []any{})
	if err == nil {
		s := &Session{id: id, kind: t.Kind(), conn: conn, log: log}
		s.metadata, s.channel, err = metadata.FromHandshake(result)
		if err == nil {
			s.call = middleware.Chain(cfg.Middlewares...)(conn.CallSync)
			log.V(1).Info("session established", "channel", s.channel, "metadata", s.metadata)
			return s, nil
		}
	}

	if closeErr := conn.Close(); closeErr != nil {
		log.V(1).Info("closing transport after failed handshake", "error", closeErr.Error())
	}
	return nil, errors.Annotatef(err, "handshake (%s)", cfg.HandshakeMethod)
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id.String()
}

// Kind says which transport the session runs over.
func (s *Session) Kind() transport.Kind {
	return s.kind
}

// Metadata is the handle type information from the handshake.
func (s *Session) Metadata() metadata.Metadata {
	return s.metadata
}

// Channel is the id the editor assigned to this client.
func (s *Session) Channel() int64 {
	return s.channel
}

// Call sends a request and returns at once with a handle to wait on. It goes
// straight to the connection; the middleware chain only wraps CallSync.
func (s *Session) Call(ctx context.Context, method string, params ...any) (*rpc.Call, error) {
	return s.conn.Call(ctx, method, nonNil(params))
}

// CallSync sends a request through the middleware chain and waits for the
// answer. An error from the editor is an *rpc.Error; a broken or closed
// session yields an error matching rpc.ErrClosed.
func (s *Session) CallSync(ctx context.Context, method string, params ...any) (any, error) {
	return s.call(ctx, method, nonNil(params))
}

// Notify sends a notification; the editor never answers it.
func (s *Session) Notify(method string, params ...any) error {
	return s.conn.Notify(method, nonNil(params))
}

// Notifications delivers what the editor pushes, e.g. after nvim_subscribe.
func (s *Session) Notifications() <-chan *message.Notification {
	return s.conn.Notifications()
}

// Done is closed once the session can no longer receive anything.
func (s *Session) Done() <-chan struct{} {
	return s.conn.Done()
}

// Err reports why the session stopped, or nil while it is usable.
func (s *Session) Err() error {
	return s.conn.Err()
}

// Close tears the session down. Pending calls fail with rpc.ErrClosed and a
// child editor is stopped and reaped.
func (s *Session) Close() error {
	s.log.V(1).Info("closing session")
	return s.conn.Close()
}

func nonNil(params []any) []any {
	if params == nil {
		return []any{}
	}
	return params
}
