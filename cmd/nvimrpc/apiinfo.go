package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nvim-rpc/metadata"
)

func newAPIInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "api-info",
		Short: "Lists the editor's API functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := metadata.LoadAPIInfo(cmd.Context(), a.v.GetString(keyNvim))
			if err != nil {
				return err
			}
			for _, f := range info.Functions {
				fmt.Fprintln(cmd.OutOrStdout(), f.String())
			}
			return nil
		},
	}
}
