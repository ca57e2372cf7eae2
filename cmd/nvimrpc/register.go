package main

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"nvim-rpc/registry"
)

func newRegisterCommand(a *app) *cobra.Command {
	var (
		addr    string
		weight  int
		version string
		ttl     int64
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Announces an editor in the registry until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoints := a.v.GetStringSlice(keyEtcd)
			if len(endpoints) == 0 {
				return errors.NotValidf("register without --etcd")
			}
			reg, err := registry.NewEtcdRegistry(endpoints, a.log.WithName("registry"))
			if err != nil {
				return err
			}
			defer reg.Close()

			ctx := cmd.Context()
			ep := registry.Endpoint{Name: a.v.GetString(keyName), Addr: addr, Weight: weight, Version: version}
			if err := reg.Register(ctx, ep, ttl); err != nil {
				return err
			}
			a.log.Info("registered", "name", ep.Name, "address", ep.Addr)

			<-ctx.Done()
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return reg.Deregister(dctx, ep.Name, ep.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address the editor listens on")
	cmd.Flags().IntVar(&weight, "weight", 1, "weight for weighted-random balancing")
	cmd.Flags().StringVar(&version, "editor-version", "", "editor version to advertise")
	cmd.Flags().Int64Var(&ttl, "ttl", 10, "lease TTL in seconds")
	_ = cmd.MarkFlagRequired("addr")
	return cmd
}
