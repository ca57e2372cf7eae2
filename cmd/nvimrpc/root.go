package main

import (
	"context"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"nvim-rpc/loadbalance"
	"nvim-rpc/middleware"
	"nvim-rpc/registry"
	"nvim-rpc/rpc"
	"nvim-rpc/session"
	"nvim-rpc/transport"
)

// Configuration keys. Each can also be set as NVIMRPC_<KEY> in the
// environment, with dashes turned into underscores.
const (
	keyServer    = "server"
	keyNvim      = "nvim"
	keyNvimArgs  = "nvim-arg"
	keyTimeout   = "timeout"
	keyRetry     = "connect-retry"
	keyRate      = "rate"
	keyVerbosity = "verbosity"
	keyEtcd      = "etcd"
	keyName      = "name"
	keyBalancer  = "balancer"
	keyKey       = "key"
)

type app struct {
	v       *viper.Viper
	log     logr.Logger
	flush   func()
	metrics *rpc.Metrics
}

func newRootCmd() (*cobra.Command, error) {
	a := &app{v: viper.New(), log: logr.Discard(), flush: func() {}, metrics: rpc.NewMetrics()}

	rootCmd := &cobra.Command{
		Use:   "nvimrpc",
		Short: "Talks to a running or embedded editor over msgpack-RPC",
		Long: `nvimrpc connects to an editor and issues API calls.

	Without --server or --etcd an editor is started as a child with --embed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.log, a.flush = newLogger(a.v.GetInt(keyVerbosity))
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.flush()
		},
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	fs := rootCmd.PersistentFlags()
	addConnectionFlags(fs)

	if err := a.v.BindPFlags(fs); err != nil {
		return nil, errors.Annotate(err, "binding flags")
	}
	a.v.SetEnvPrefix("nvimrpc")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	for _, newCmd := range []func(*app) *cobra.Command{
		newCallCommand,
		newListenCommand,
		newAPIInfoCommand,
		newRegisterCommand,
		newVersionCommand,
	} {
		rootCmd.AddCommand(newCmd(a))
	}
	return rootCmd, nil
}

// addConnectionFlags declares the settings every subcommand shares.
func addConnectionFlags(fs *pflag.FlagSet) {
	fs.StringP(keyServer, "s", "", "TCP address of an editor started with --listen")
	fs.String(keyNvim, "", "editor executable for embedded sessions (default $NVIM_BIN, then nvim)")
	fs.StringSlice(keyNvimArgs, nil, "extra argument for an embedded editor, repeatable")
	fs.Duration(keyTimeout, 10*time.Second, "limit for each call")
	fs.Duration(keyRetry, 0, "keep retrying the TCP connection for this long")
	fs.Float64(keyRate, 0, "maximum calls per second, 0 for no limit")
	fs.IntP(keyVerbosity, "v", 0, "log verbosity")
	fs.StringSlice(keyEtcd, nil, "etcd endpoints of the editor registry")
	fs.String(keyName, "editor", "registry name of the editor to connect to")
	fs.String(keyBalancer, "round-robin", "how to choose among registered editors: round-robin, weighted-random or consistent-hash")
	fs.String(keyKey, "", "affinity key for consistent-hash, e.g. a workspace path")
}

func (a *app) sessionOptions() []session.Option {
	mws := []middleware.Middleware{
		middleware.Logging(a.log.WithName("call")),
		middleware.Timeout(a.v.GetDuration(keyTimeout)),
	}
	if r := a.v.GetFloat64(keyRate); r > 0 {
		mws = append(mws, middleware.Retry(3, 100*time.Millisecond), middleware.RateLimit(r, 1))
	}

	return []session.Option{
		session.WithLogger(a.log),
		session.WithExecutable(a.v.GetString(keyNvim)),
		session.WithMiddleware(mws...),
		session.WithConnOptions(rpc.WithMetrics(a.metrics)),
		session.WithDialOptions(transport.WithRetry(a.v.GetDuration(keyRetry))),
	}
}

// connect picks the transport from the configuration: the registry, a TCP
// address, or else a child editor.
func (a *app) connect(ctx context.Context) (*session.Session, error) {
	opts := a.sessionOptions()

	if endpoints := a.v.GetStringSlice(keyEtcd); len(endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(endpoints, a.log.WithName("registry"))
		if err != nil {
			return nil, err
		}
		defer reg.Close()

		b, err := loadbalance.New(a.v.GetString(keyBalancer), a.v.GetString(keyKey))
		if err != nil {
			return nil, err
		}
		return session.NewFromRegistry(ctx, reg, a.v.GetString(keyName), b, opts...)
	}

	if addr := a.v.GetString(keyServer); addr != "" {
		return session.NewTCP(ctx, addr, opts...)
	}
	return session.NewChild(ctx, a.v.GetStringSlice(keyNvimArgs), opts...)
}
