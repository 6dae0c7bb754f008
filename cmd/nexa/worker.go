package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/edgard/nexa/internal/api"
	"github.com/edgard/nexa/internal/app"
	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/metrics"
)

func workerCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the dispatch queue and generate reply suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")
	return cmd
}

func runWorker(ctx context.Context, metricsAddr string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireWorker(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	db, store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer database.CloseDB(db)

	broker, err := newBroker(ctx, cfg.Queue, log)
	if err != nil {
		return err
	}
	defer broker.Close()

	consumer, err := newConsumer(ctx, cfg, broker, store, m, log)
	if err != nil {
		return err
	}

	components := []app.Component{{Name: "consumer", Run: consumer.Run}}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: cfg.HTTP.ReadTimeout}
		components = append(components, app.Component{Name: "metrics", Run: func(ctx context.Context) error {
			return api.ListenAndServe(ctx, srv, cfg.HTTP.ShutdownTimeout, log)
		}})
	}

	return app.Run(ctx, log, components...)
}
