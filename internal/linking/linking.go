// Package linking binds external platform identities to Nexa users with
// short-lived verification codes.
package linking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/nexa/internal/config"
	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/errs"
	"github.com/edgard/nexa/internal/normalize"
	"github.com/edgard/nexa/internal/reply"
)

// maxCodeAttempts bounds regeneration after a code collision.
const maxCodeAttempts = 5

// ErrCodeSpaceExhausted is returned when every generated code collided.
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique link code")

// Issued is the result of a link request.
type Issued struct {
	Code         string    `json:"code"`
	Instructions string    `json:"instructions"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Service implements code issuance, code consumption and account management.
type Service struct {
	store   database.Store
	replies *reply.Registry
	cfg     config.LinkingConfig
	log     *slog.Logger

	now      func() time.Time
	generate func(length int) (string, error)
}

func NewService(store database.Store, replies *reply.Registry, cfg config.LinkingConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:    store,
		replies:  replies,
		cfg:      cfg,
		log:      log.With("component", "linking"),
		now:      func() time.Time { return time.Now().UTC() },
		generate: GenerateCode,
	}
}

// TryLink treats the message text as a candidate code. When it matches an
// eligible code for the platform, the code is consumed and the sender is bound
// to the code's user; the caller must then stop processing the message.
// A code lost to a concurrent consumer yields false.
func (s *Service) TryLink(ctx context.Context, platform string, msg normalize.Message) (bool, error) {
	code := strings.TrimSpace(msg.Text)
	if code == "" {
		return false, nil
	}

	now := s.now()
	vc, err := s.store.FindEligibleCode(ctx, platform, code, now)
	if err != nil {
		return false, fmt.Errorf("failed to look up link code: %w", err)
	}
	if vc == nil {
		return false, nil
	}

	senderID := msg.SenderID
	if senderID == "" {
		senderID = database.UnknownRef
	}
	account := &database.Account{
		UserID:         vc.UserID,
		Platform:       platform,
		PlatformUserID: senderID,
		PlatformChatID: database.NullString(msg.ThreadID),
		Credentials:    database.JSONMap{},
	}

	linked, err := s.store.ConsumeCodeAndLink(ctx, vc.ID, now, account)
	if err != nil {
		return false, fmt.Errorf("failed to link account: %w", err)
	}
	if !linked {
		return false, nil
	}

	s.log.InfoContext(ctx, "Account linked", "user_id", vc.UserID, "platform", platform, "platform_user_id", senderID)

	if msg.ThreadID != "" && s.replies != nil {
		if err := s.replies.Send(ctx, platform, msg.ThreadID, s.cfg.Confirmation); err != nil {
			s.log.WarnContext(ctx, "Failed to send link confirmation", "platform", platform, "chat_id", msg.ThreadID, "error", err)
		}
	}
	return true, nil
}

// Issue creates a verification code for userID on platform.
func (s *Service) Issue(ctx context.Context, userID int64, platform string) (Issued, error) {
	if !database.ValidPlatform(platform) {
		return Issued{}, errs.NewValidation(fmt.Sprintf("unsupported platform %q", platform), nil)
	}

	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return Issued{}, errs.NewDatabase("failed to look up user", err)
	}
	if !exists {
		return Issued{}, errs.NewNotFound("user not found")
	}

	now := s.now()
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.generate(s.cfg.CodeLength)
		if err != nil {
			return Issued{}, err
		}

		vc := &database.VerificationCode{
			UserID:    userID,
			Platform:  platform,
			Code:      code,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.CodeTTL),
		}
		created, err := s.store.CreateVerificationCode(ctx, vc)
		if err != nil {
			return Issued{}, errs.NewDatabase("failed to store link code", err)
		}
		if !created {
			s.log.WarnContext(ctx, "Link code collision, regenerating", "attempt", attempt)
			continue
		}

		s.log.InfoContext(ctx, "Link code issued", "user_id", userID, "platform", platform, "expires_at", vc.ExpiresAt)
		return Issued{
			Code:         code,
			Instructions: strings.Replace(s.cfg.Instructions, "%s", code, 1),
			ExpiresAt:    vc.ExpiresAt,
		}, nil
	}

	return Issued{}, ErrCodeSpaceExhausted
}

// SendToUser delivers text to the chat bound to userID on platform.
func (s *Service) SendToUser(ctx context.Context, userID int64, platform, text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.NewValidation("text required", nil)
	}

	account, err := s.store.GetAccount(ctx, userID, platform)
	if err != nil {
		return errs.NewDatabase("failed to look up account", err)
	}
	if account == nil || !account.PlatformChatID.Valid || account.PlatformChatID.String == "" {
		return errs.NewNotFound(fmt.Sprintf("%s account not linked", platform))
	}

	return s.replies.Send(ctx, platform, account.PlatformChatID.String, text)
}

// Unlink removes the binding of userID on platform.
func (s *Service) Unlink(ctx context.Context, userID int64, platform string) error {
	deleted, err := s.store.DeleteAccount(ctx, userID, platform)
	if err != nil {
		return errs.NewDatabase("failed to unlink account", err)
	}
	if !deleted {
		return errs.NewNotFound("not linked")
	}

	s.log.InfoContext(ctx, "Account unlinked", "user_id", userID, "platform", platform)
	return nil
}
