// Package worker holds the task handler that turns a stored message into
// reply suggestions.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/suggest"
)

// Suggester generates reply suggestions for a message text.
type Suggester interface {
	Suggest(ctx context.Context, text, sender string) (suggest.Result, error)
}

type Processor struct {
	store     database.Store
	suggester Suggester
	log       *slog.Logger
}

func NewProcessor(store database.Store, suggester Suggester, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		store:     store,
		suggester: suggester,
		log:       log.With("component", "worker"),
	}
}

// ProcessMessage runs the suggestion call for messageID and records the
// result. Missing and already processed messages are no-ops. A failed
// suggestion call still marks the message processed; only storage errors and
// cancellation are returned, so the task can be redelivered.
func (p *Processor) ProcessMessage(ctx context.Context, messageID int64) error {
	log := p.log.With("message_id", messageID)

	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load message %d: %w", messageID, err)
	}
	if msg == nil {
		log.WarnContext(ctx, "Message not found, nothing to process")
		return nil
	}
	if msg.Processed {
		log.DebugContext(ctx, "Message already processed")
		return nil
	}

	sender := msg.SenderName.String
	if sender == "" {
		sender = msg.SenderID.String
	}

	var suggestions []database.Suggestion
	result, err := p.suggester.Suggest(ctx, msg.Text, sender)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		log.WarnContext(ctx, "Suggestion call failed, storing none", "error", err)
	default:
		for _, line := range result.Lines {
			suggestions = append(suggestions, database.Suggestion{Model: result.Model, Text: line})
		}
	}

	recorded, err := p.store.CompleteProcessing(ctx, messageID, suggestions)
	if err != nil {
		return fmt.Errorf("failed to record processing: %w", err)
	}
	if !recorded {
		log.InfoContext(ctx, "Message was processed concurrently, result discarded")
		return nil
	}

	log.InfoContext(ctx, "Message processed", "suggestions", len(suggestions), "model", result.Model)
	return nil
}
