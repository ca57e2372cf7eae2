package main

import (
	"fmt"
	"runtime/debug"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"nvim-rpc/codec"
)

// Version is set with -ldflags "-X main.Version=...".
var Version = "dev"

func newVersionCommand(a *app) *cobra.Command {
	var clientOnly bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Prints the client version and the editor's version",
		Long: `Prints the client version, then connects to the editor (--server, --etcd,
or else a child started with --embed) and prints its version variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			goVersion := "unknown"
			if info, ok := debug.ReadBuildInfo(); ok {
				goVersion = info.GoVersion
			}
			fmt.Fprintf(cmd.OutOrStdout(), "nvimrpc %s (%s)\n", Version, goVersion)
			if clientOnly {
				return nil
			}

			ctx := cmd.Context()
			s, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			v, err := s.CallSync(ctx, "nvim_get_vvar", "version")
			if err != nil {
				return errors.Annotate(err, "reading the editor version")
			}
			n, ok := codec.AsInt64(v)
			if !ok {
				return errors.Errorf("editor version is %T, not an integer", v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "editor version %d\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clientOnly, "client-only", false, "only print the client version")
	return cmd
}
