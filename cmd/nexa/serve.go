package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/edgard/nexa/internal/api"
	"github.com/edgard/nexa/internal/app"
	"github.com/edgard/nexa/internal/app/tasks"
	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/inbox"
	"github.com/edgard/nexa/internal/ingest"
	"github.com/edgard/nexa/internal/linking"
	"github.com/edgard/nexa/internal/metrics"
	"github.com/edgard/nexa/internal/queue"
	"github.com/edgard/nexa/internal/telegram"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the backend API, webhooks and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireServe(); err != nil {
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

	replies, tgBot, err := newReplies(cfg, log)
	if err != nil {
		return err
	}

	dispatcher := queue.NewDispatcher(broker, cfg.Queue.Name, log, m)
	linker := linking.NewService(store, replies, cfg.Linking, log)

	server := api.NewServer(cfg.HTTP, cfg.Telegram.WebhookSecret, cfg.Personal.BackendSecret, api.Deps{
		Store:    store,
		Ingest:   ingest.NewService(store, linker, dispatcher, log, m),
		Linking:  linker,
		Inbox:    inbox.NewService(store, replies, log, m),
		Gatherer: reg,
		Logger:   log,
	})

	sched, err := app.NewScheduler(log, cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:     log,
		Store:      store,
		Dispatcher: dispatcher,
		Config:     cfg.Scheduler,
	}), m)
	if err != nil {
		return err
	}

	components := []app.Component{
		{Name: "http", Run: server.Run},
		{Name: "scheduler", Run: sched.Run},
	}

	if cfg.Worker.Embedded {
		consumer, err := newConsumer(ctx, cfg, broker, store, m, log)
		if err != nil {
			return err
		}
		components = append(components, app.Component{Name: "consumer", Run: consumer.Run})
	}

	if cfg.Telegram.WebhookURL != "" && tgBot != nil {
		if err := telegram.SetWebhook(ctx, tgBot, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret, log); err != nil {
			return err
		}
	}

	return app.Run(ctx, log, components...)
}
