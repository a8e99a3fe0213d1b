package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/canopy/internal/cli"
	"github.com/aretw0/canopy/internal/observability"
	httpAdapter "github.com/aretw0/canopy/pkg/adapters/http"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the Canopy engine as a JSON API over HTTP, with Server-Sent Events per session.
Prometheus metrics are exposed on a separate port unless --metrics-port is 0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("metrics-port") {
			cfg.Server.MetricsPort, _ = cmd.Flags().GetInt("metrics-port")
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := observability.NewMetrics(reg)

		stack, err := buildStack(cli.WithHooks(metrics.Hooks()))
		if err != nil {
			return err
		}
		defer stack.Close()
		logger := stack.Logger

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		servers := []*http.Server{{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           httpAdapter.NewHandler(stack.Engine, httpAdapter.WithLogger(logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}}
		if cfg.Server.MetricsPort > 0 {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			servers = append(servers, &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, srv := range servers {
			g.Go(func() error {
				logger.Info("Listening", "address", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			var errs []error
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		})

		if err := g.Wait(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("Canopy server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Int("metrics-port", 9090, "Port for /metrics (0 disables)")
}
