package session

import (
	"github.com/go-logr/logr"

	"nvim-rpc/metadata"
	"nvim-rpc/middleware"
	"nvim-rpc/rpc"
	"nvim-rpc/transport"
)

// Config collects what the constructors need besides the transport address.
type Config struct {
	// Executable is the editor started by NewChild. Empty means $NVIM_BIN,
	// then "nvim".
	Executable string
	// HandshakeMethod is sent right after connecting; its answer must be
	// [channel, capability map].
	HandshakeMethod string

	Logger      logr.Logger
	Middlewares []middleware.Middleware

	ConnOptions  []rpc.Option
	DialOptions  []transport.DialOption
	SpawnOptions []transport.SpawnOption
}

// Option configures a Session.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		HandshakeMethod: metadata.HandshakeMethod,
		Logger:          logr.Discard(),
	}
}

func WithExecutable(path string) Option {
	return func(c *Config) { c.Executable = path }
}

// WithHandshakeMethod replaces nvim_get_api_info, e.g. for peers that only
// know an older name.
func WithHandshakeMethod(method string) Option {
	return func(c *Config) { c.HandshakeMethod = method }
}

func WithLogger(log logr.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

// WithMiddleware appends to the chain CallSync goes through. The first
// middleware given is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Config) { c.Middlewares = append(c.Middlewares, mws...) }
}

// WithConnOptions passes options to the underlying rpc.Conn.
func WithConnOptions(opts ...rpc.Option) Option {
	return func(c *Config) { c.ConnOptions = append(c.ConnOptions, opts...) }
}

// WithDialOptions passes options to the TCP dialer.
func WithDialOptions(opts ...transport.DialOption) Option {
	return func(c *Config) { c.DialOptions = append(c.DialOptions, opts...) }
}

// WithSpawnOptions passes options used when starting a child editor.
func WithSpawnOptions(opts ...transport.SpawnOption) Option {
	return func(c *Config) { c.SpawnOptions = append(c.SpawnOptions, opts...) }
}
