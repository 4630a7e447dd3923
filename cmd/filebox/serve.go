package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/filebox/pkg/events"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Hold the store open and serve metrics and health endpoints",
	Long: `Open the store and keep it open, serving /metrics, /health and /ready.

The store is given up when a newer filebox asks for it (see the release
request file next to the database); it is reopened on the next sample.`,
	Args: cobra.NoArgs,
	RunE: withApp(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("metrics-addr", "", "Listen address for metrics and health (overrides config)")
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	logger := log.WithComponent("serve")

	metrics.SetVersion(Version)
	if err := a.mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	sub := a.broker.Subscribe(events.StoreEvents...)
	defer a.broker.Unsubscribe(sub)
	go logEvents(sub)

	collector := metrics.NewCollector(a.repo, cfg.Metrics.Interval)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	fmt.Printf("✓ Store open: %s (schema v%d)\n", a.mgr.Path(), a.mgr.SchemaVersion())
	fmt.Printf("✓ Serving metrics on http://%s/metrics\n", addr)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	var serveErr error
	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("Metrics server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Error shutting down metrics server")
	}
	if n := a.broker.Dropped(); n > 0 {
		logger.Warn().Uint64("dropped", n).Msg("Events dropped for slow subscribers")
	}
	return serveErr
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for ev := range sub {
		logger.Info().
			Str("type", string(ev.Type)).
			Str("file_id", ev.FileID).
			Str("message", ev.Message).
			Msg("Event")
	}
}
