package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/nexa/internal/config"
	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/metrics"
	"github.com/edgard/nexa/internal/personal"
	"github.com/edgard/nexa/internal/queue"
	"github.com/edgard/nexa/internal/reply"
	"github.com/edgard/nexa/internal/suggest"
	"github.com/edgard/nexa/internal/telegram"
	"github.com/edgard/nexa/internal/worker"
)

// memoryQueueSize bounds the embedded broker.
const memoryQueueSize = 1024

func openStore(cfg *config.Config, log *slog.Logger) (*sqlx.DB, database.Store, error) {
	db, err := database.NewDB(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, database.NewStore(db, log), nil
}

func newBroker(ctx context.Context, cfg config.QueueConfig, log *slog.Logger) (queue.Broker, error) {
	if cfg.Driver == "memory" {
		log.Info("Using in-memory dispatch queue", "queue", cfg.Name)
		return queue.NewMemoryBroker(memoryQueueSize), nil
	}

	b, err := queue.NewRedisBroker(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to Redis dispatch queue", "queue", cfg.Name)
	return b, nil
}

// newReplies registers a sender for every platform with credentials. The
// returned bot is nil when no bot token is configured.
func newReplies(cfg *config.Config, log *slog.Logger) (*reply.Registry, *bot.Bot, error) {
	registry := reply.NewRegistry()

	var tgBot *bot.Bot
	if cfg.Telegram.BotToken != "" {
		b, err := telegram.NewTelegramBot(cfg.Telegram.BotToken, log)
		if err != nil {
			return nil, nil, err
		}
		tgBot = b
		registry.Register(database.PlatformTelegram, telegram.NewBotSender(b, cfg.Telegram.SendRate, log))
	} else {
		log.Warn("No telegram.bot_token configured, bot replies are disabled")
	}

	if cfg.Personal.ListenerURL != "" {
		registry.Register(database.PlatformPersonal,
			personal.NewClient(cfg.Personal.ListenerURL, cfg.Personal.Secret, cfg.Personal.ForwardTimeout))
	} else {
		log.Warn("No personal.listener_url configured, personal replies are disabled")
	}

	log.Info("Reply senders registered", "platforms", registry.Platforms())
	return registry, tgBot, nil
}

// newConsumer wires the worker entry point to the dispatch queue.
func newConsumer(ctx context.Context, cfg *config.Config, broker queue.Broker, store database.Store, m *metrics.Metrics, log *slog.Logger) (*queue.Consumer, error) {
	provider, err := suggest.NewProvider(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	if provider == nil {
		log.Warn("No ai.api_key configured, messages will be processed without suggestions")
	}

	processor := worker.NewProcessor(store, suggest.New(provider, cfg.AI, log, m), log)

	consumer := queue.NewConsumer(broker, queue.ConsumerConfig{
		Queue:         cfg.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PopTimeout:    cfg.Queue.PopTimeout,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
	}, log)
	if err := consumer.Register(queue.TaskProcessMessage, processor.ProcessMessage); err != nil {
		return nil, err
	}
	return consumer, nil
}
