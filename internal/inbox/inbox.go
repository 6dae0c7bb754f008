// Package inbox is the operator view of pending messages and the reply path
// back to the sender.
package inbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/errs"
	"github.com/edgard/nexa/internal/metrics"
	"github.com/edgard/nexa/internal/reply"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Item is a pending message with its stored suggestions.
type Item struct {
	ID                int64     `json:"id"`
	Platform          string    `json:"platform"`
	PlatformThreadID  string    `json:"platform_thread_id"`
	PlatformMessageID string    `json:"platform_message_id"`
	SenderID          *string   `json:"sender_id"`
	SenderName        *string   `json:"sender_name"`
	Text              string    `json:"text"`
	CreatedAt         time.Time `json:"created_at"`
	Processed         bool      `json:"processed"`
	Status            string    `json:"status"`
	Suggestions       []string  `json:"suggestions"`
}

// ReplyResult is returned after an operator reply was delivered.
type ReplyResult struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
}

type Service struct {
	store   database.Store
	replies *reply.Registry
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewService(store database.Store, replies *reply.Registry, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:   store,
		replies: replies,
		log:      log.With("component", "inbox"),
		metrics:  m,
		inflight: make(map[int64]struct{}),
	}
}

// ListPending returns pending messages newest first. limit is clamped to
// [1, MaxLimit]; zero or negative means DefaultLimit.
func (s *Service) ListPending(ctx context.Context, limit int) ([]Item, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	messages, err := s.store.ListPendingMessages(ctx, limit)
	if err != nil {
		return nil, errs.NewDatabase("failed to list pending messages", err)
	}

	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	suggestions, err := s.store.ListSuggestions(ctx, ids)
	if err != nil {
		return nil, errs.NewDatabase("failed to list suggestions", err)
	}

	items := make([]Item, 0, len(messages))
	for _, m := range messages {
		item := Item{
			ID:                m.ID,
			Platform:          m.Platform,
			PlatformThreadID:  m.PlatformThreadID,
			PlatformMessageID: m.PlatformMessageID,
			SenderID:          nullable(m.SenderID.String, m.SenderID.Valid),
			SenderName:        nullable(m.SenderName.String, m.SenderName.Valid),
			Text:              m.Text,
			CreatedAt:         m.CreatedAt,
			Processed:         m.Processed,
			Status:            m.Status,
			Suggestions:       []string{},
		}
		for _, sg := range suggestions[m.ID] {
			item.Suggestions = append(item.Suggestions, sg.Text)
		}
		items = append(items, item)
	}
	return items, nil
}

// Reply sends text to the sender of message id and marks it responded.
// A message that was already answered, or has a reply in flight, is rejected
// without sending.
func (s *Service) Reply(ctx context.Context, id int64, text string) (ReplyResult, error) {
	if strings.TrimSpace(text) == "" {
		return ReplyResult{}, errs.NewValidation("text required", nil)
	}

	if !s.claim(id) {
		return ReplyResult{}, errs.NewConflict("reply already in progress")
	}
	defer s.release(id)

	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return ReplyResult{}, errs.NewDatabase("failed to load message", err)
	}
	if msg == nil {
		return ReplyResult{}, errs.NewNotFound("message not found")
	}
	if msg.Status == database.StatusResponded {
		return ReplyResult{}, errs.NewConflict("message already responded")
	}

	chatID, err := s.target(ctx, msg)
	if err != nil {
		return ReplyResult{}, err
	}

	log := s.log.With("message_id", id, "platform", msg.Platform, "chat_id", chatID)

	err = s.replies.Send(ctx, msg.Platform, chatID, text)
	s.metrics.ObserveReply(msg.Platform, err)
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err)
		return ReplyResult{}, err
	}

	updated, err := s.store.MarkResponded(ctx, id)
	if err != nil {
		return ReplyResult{}, errs.NewDatabase("failed to update message status", err)
	}
	if !updated {
		log.WarnContext(ctx, "Message was marked responded concurrently")
		return ReplyResult{}, errs.NewConflict("message already responded")
	}

	log.InfoContext(ctx, "Reply sent")
	return ReplyResult{MessageID: id, Status: database.StatusResponded}, nil
}

func (s *Service) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) release(id int64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// target prefers the chat of a linked account for the sender and falls back
// to the thread the message arrived in.
func (s *Service) target(ctx context.Context, msg *database.Message) (string, error) {
	if msg.SenderID.Valid && msg.SenderID.String != "" {
		account, err := s.store.FindAccountByIdentity(ctx, msg.Platform, msg.SenderID.String)
		if err != nil {
			return "", errs.NewDatabase("failed to look up sender account", err)
		}
		if account != nil && account.PlatformChatID.Valid && account.PlatformChatID.String != "" {
			return account.PlatformChatID.String, nil
		}
	}

	if msg.PlatformThreadID == "" || msg.PlatformThreadID == database.UnknownRef {
		return "", errs.NewValidation(fmt.Sprintf("message %d has no reply target", msg.ID), nil)
	}
	return msg.PlatformThreadID, nil
}

func nullable(s string, valid bool) *string {
	if !valid {
		return nil
	}
	return &s
}
