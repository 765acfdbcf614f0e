package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/edudashpro/sessionctl"
	"github.com/edudashpro/sessionctl/metrics/export/prometheus"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print every session state change until interrupted",
		Long: `Print every session state change until interrupted.

With Redis configured, revocations published by a sign-out on another device
end this session as well. --metrics-addr serves the controller's counters in
the Prometheus text format while watching.

Examples:
  sessionctl watch --metrics-addr 127.0.0.1:9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.sessions != nil {
				if err := a.provider.WatchRevocations(ctx); err != nil {
					return err
				}
			}

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           metricsMux(a.controller),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics listener stopped", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.logger.Info("serving metrics", "addr", metricsAddr)
			}

			out := cmd.OutOrStdout()
			for s := range a.controller.Watch(ctx) {
				if s.Loading {
					fmt.Fprintln(out, "... loading")
					continue
				}
				if err := printState(out, s, opts.json); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while watching")
	return cmd
}

func metricsMux(c *sessionctl.Controller) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewExporter(c).Handler())
	return mux
}

func newMetricsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Restore the session and print the controller metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := awaitSettled(cmd.Context(), a.controller, opts.timeout); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a.controller.MetricsSnapshot())
			}
			_, err = fmt.Fprint(out, prometheus.NewExporter(a.controller).Render())
			return err
		},
	}
}
