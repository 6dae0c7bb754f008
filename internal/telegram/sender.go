package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// BotSender sends replies through the Bot API.
// Sends are paced by a shared limiter; failed sends are not retried.
type BotSender struct {
	bot     *bot.Bot
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewBotSender creates a sender allowing perSecond messages per second.
func NewBotSender(b *bot.Bot, perSecond float64, logger *slog.Logger) *BotSender {
	if logger == nil {
		logger = slog.Default()
	}
	if perSecond <= 0 {
		perSecond = 25
	}
	return &BotSender{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		log:     logger.With("component", "telegram_sender"),
	}
}

// Send delivers text to chatID (numeric id or @username).
func (s *BotSender) Send(ctx context.Context, chatID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram send rate wait: %w", err)
	}

	msg, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatTarget(chatID),
		Text:   text,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to send telegram message", "chat_id", chatID, "error", err)
		return fmt.Errorf("telegram send to %s: %w", chatID, err)
	}

	s.log.DebugContext(ctx, "Telegram message sent", "chat_id", chatID, "message_id", msg.ID)
	return nil
}

func chatTarget(chatID string) any {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return id
	}
	return chatID
}
