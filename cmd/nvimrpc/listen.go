package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newListenCommand(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen EVENT...",
		Short: "Subscribes to events and prints each notification as a JSON line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, events []string) error {
			ctx := cmd.Context()

			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				if err := a.metrics.Register(reg); err != nil {
					return err
				}
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error(err, "metrics server stopped", "address", metricsAddr)
					}
				}()
				defer srv.Close()
			}

			s, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, event := range events {
				if _, err := s.CallSync(ctx, "nvim_subscribe", event); err != nil {
					return err
				}
			}
			a.log.Info("listening", "session", s.ID(), "events", events)

			out := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case n, ok := <-s.Notifications():
					if !ok {
						return s.Err()
					}
					line := map[string]any{"method": n.Method, "params": jsonValue(n.Params, s.Metadata())}
					if err := out.Encode(line); err != nil {
						return errors.Annotate(err, "writing notification")
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
