// Package ingest turns webhook updates into stored messages and dispatch
// tasks.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/errs"
	"github.com/edgard/nexa/internal/metrics"
	"github.com/edgard/nexa/internal/normalize"
)

// Linker consumes link codes found in message text.
type Linker interface {
	TryLink(ctx context.Context, platform string, msg normalize.Message) (bool, error)
}

// Dispatcher schedules asynchronous processing of a stored message.
type Dispatcher interface {
	Dispatch(ctx context.Context, messageID int64) error
}

// Result describes what happened to one update. At most one of Skipped,
// Linked or StoredID is set.
type Result struct {
	Skipped   bool
	Linked    bool
	StoredID  int64
	Duplicate bool
}

type Service struct {
	store      database.Store
	linker     Linker
	dispatcher Dispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(store database.Store, linker Linker, dispatcher Dispatcher, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:      store,
		linker:     linker,
		dispatcher: dispatcher,
		log:        log.With("component", "ingest"),
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one update from platform. Only storage and linking errors
// are returned; a failed dispatch is left to the redispatch sweeper.
func (s *Service) Handle(ctx context.Context, platform string, update map[string]any) (Result, error) {
	if !database.ValidPlatform(platform) {
		return Result{}, errs.NewValidation("unsupported platform "+platform, nil)
	}

	msg, ok := normalize.Normalize(update)
	if !ok {
		s.log.DebugContext(ctx, "Update has no message, skipping", "platform", platform)
		s.metrics.ObserveIngest(platform, "skipped")
		return Result{Skipped: true}, nil
	}

	if s.linker != nil {
		linked, err := s.linker.TryLink(ctx, platform, msg)
		if err != nil {
			s.metrics.ObserveIngest(platform, "error")
			return Result{}, errs.NewDatabase("failed to process link code", err)
		}
		if linked {
			s.metrics.ObserveIngest(platform, "linked")
			return Result{Linked: true}, nil
		}
	}

	record := &database.Message{
		Platform:          platform,
		PlatformThreadID:  orUnknown(msg.ThreadID),
		PlatformMessageID: orUnknown(msg.MessageID),
		SenderID:          database.NullString(msg.SenderID),
		SenderName:        database.NullString(msg.SenderName),
		Text:              msg.Text,
		RawPayload:        database.JSONMap(msg.Raw),
		CreatedAt:         s.now(),
		Status:            database.StatusPending,
	}

	id, inserted, err := s.store.InsertMessage(ctx, record)
	if err != nil {
		s.metrics.ObserveIngest(platform, "error")
		return Result{}, errs.NewDatabase("failed to store message", err)
	}
	if !inserted {
		s.log.InfoContext(ctx, "Duplicate update ignored", "platform", platform, "message_id", id,
			"platform_message_id", record.PlatformMessageID)
		s.metrics.ObserveIngest(platform, "duplicate")
		return Result{StoredID: id, Duplicate: true}, nil
	}

	s.log.InfoContext(ctx, "Message stored", "platform", platform, "message_id", id, "thread_id", record.PlatformThreadID)
	s.metrics.ObserveIngest(platform, "stored")

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, id); err != nil {
			s.log.ErrorContext(ctx, "Failed to dispatch message", "message_id", id, "error", err)
		}
	}
	return Result{StoredID: id}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return database.UnknownRef
	}
	return s
}
