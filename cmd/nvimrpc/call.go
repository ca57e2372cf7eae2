package main

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

func newCallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "call METHOD [ARG...]",
		Short: "Calls an API function and prints the result as JSON",
		Long: `Calls an API function and prints the result as JSON.

	Each ARG is parsed as JSON; anything that is not valid JSON is passed as a string.`,
		Example: `  nvimrpc call nvim_eval '"1+1"'
  nvimrpc --server 127.0.0.1:6666 call nvim_buf_get_lines 0 0 -1 false`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.CallSync(ctx, args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(jsonValue(result, s.Metadata()), "", "  ")
			if err != nil {
				return errors.Annotate(err, "formatting result")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func parseArgs(args []string) []any {
	params := make([]any, len(args))
	for i, arg := range args {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			params[i] = arg
			continue
		}
		// Whole numbers are sent as integers, which is what the API expects.
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			v = int64(f)
		}
		params[i] = v
	}
	return params
}
