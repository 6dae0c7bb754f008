package inbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/errs"
	"github.com/edgard/nexa/internal/logger"
	"github.com/edgard/nexa/internal/reply"
)

type sent struct{ chatID, text string }

type fixture struct {
	svc   *Service
	store database.Store
	sent  []sent
	err   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewDB("sqlite://"+filepath.Join(t.TempDir(), "inbox.db"), 1)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	f := &fixture{store: database.NewStore(db, logger.Discard())}
	registry := reply.NewRegistry()
	registry.Register(database.PlatformTelegram, reply.SenderFunc(func(_ context.Context, chatID, text string) error {
		f.sent = append(f.sent, sent{chatID, text})
		return f.err
	}))
	f.svc = NewService(f.store, registry, logger.Discard(), nil)
	return f
}

func (f *fixture) insert(t *testing.T, ref, sender string, at time.Time) int64 {
	t.Helper()
	id, _, err := f.store.InsertMessage(context.Background(), &database.Message{
		Platform:          database.PlatformTelegram,
		PlatformThreadID:  "100",
		PlatformMessageID: ref,
		SenderID:          database.NullString(sender),
		Text:              "msg " + ref,
		CreatedAt:         at,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestListPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := f.insert(t, "1", "42", base)
	newer := f.insert(t, "2", "", base.Add(time.Minute))

	if ok, err := f.store.CompleteProcessing(ctx, older, []database.Suggestion{{Model: "m", Text: "Sure"}, {Model: "m", Text: "No"}}); err != nil || !ok {
		t.Fatalf("CompleteProcessing() = %v, %v", ok, err)
	}

	items, err := f.svc.ListPending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != newer || items[1].ID != older {
		t.Fatalf("items = %+v", items)
	}
	if items[0].SenderID != nil || len(items[0].Suggestions) != 0 {
		t.Errorf("newer item = %+v, want null sender and no suggestions", items[0])
	}
	if items[1].SenderID == nil || *items[1].SenderID != "42" {
		t.Errorf("older sender = %v", items[1].SenderID)
	}
	if got := items[1].Suggestions; len(got) != 2 || got[0] != "Sure" || got[1] != "No" {
		t.Errorf("suggestions = %v", got)
	}

	limited, err := f.svc.ListPending(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("ListPending(1) = %d items, %v", len(limited), err)
	}
}

func TestReplyUsesThreadAndRejectsSecondReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.insert(t, "1", "42", time.Now())

	res, err := f.svc.Reply(ctx, id, "thanks!")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if res.Status != database.StatusResponded || res.MessageID != id {
		t.Errorf("Reply() = %+v", res)
	}
	if len(f.sent) != 1 || f.sent[0].chatID != "100" || f.sent[0].text != "thanks!" {
		t.Errorf("sent = %+v", f.sent)
	}

	if _, err := f.svc.Reply(ctx, id, "again"); !errs.Is(err, errs.CodeConflict) {
		t.Errorf("second Reply() error = %v, want conflict", err)
	}
	if len(f.sent) != 1 {
		t.Errorf("second reply sent %d messages, want none", len(f.sent)-1)
	}

	items, _ := f.svc.ListPending(ctx, 0)
	if len(items) != 0 {
		t.Errorf("pending after reply = %+v", items)
	}
}

func TestReplyPrefersLinkedChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	userID, _ := f.store.CreateUser(ctx, "")
	now := time.Now().UTC()
	vc := &database.VerificationCode{UserID: userID, Platform: database.PlatformTelegram, Code: "LINK01", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	if _, err := f.store.CreateVerificationCode(ctx, vc); err != nil {
		t.Fatal(err)
	}
	account := &database.Account{UserID: userID, Platform: database.PlatformTelegram, PlatformUserID: "42", PlatformChatID: database.NullString("555")}
	if _, err := f.store.ConsumeCodeAndLink(ctx, vc.ID, now, account); err != nil {
		t.Fatal(err)
	}

	id := f.insert(t, "9", "42", now)
	if _, err := f.svc.Reply(ctx, id, "hi"); err != nil {
		t.Fatal(err)
	}
	if len(f.sent) != 1 || f.sent[0].chatID != "555" {
		t.Errorf("sent = %+v, want linked chat 555", f.sent)
	}
}

func TestReplyErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Reply(ctx, 404, "hi"); !errs.Is(err, errs.CodeNotFound) {
		t.Errorf("Reply(missing) error = %v, want not found", err)
	}

	id := f.insert(t, "1", "", time.Now())
	if _, err := f.svc.Reply(ctx, id, "  "); !errs.Is(err, errs.CodeValidation) {
		t.Errorf("Reply(blank) error = %v, want validation", err)
	}

	f.err = errors.New("forbidden")
	if _, err := f.svc.Reply(ctx, id, "hi"); !errs.Is(err, errs.CodeUpstream) {
		t.Errorf("Reply(send failure) error = %v, want upstream", err)
	}
	msg, _ := f.store.GetMessage(ctx, id)
	if msg.Status != database.StatusPending {
		t.Errorf("status after failed send = %q, want pending", msg.Status)
	}
}

func TestReplyInFlightIsRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.insert(t, "1", "42", time.Now())

	started := make(chan struct{})
	release := make(chan struct{})
	var sends atomic.Int32
	registry := reply.NewRegistry()
	registry.Register(database.PlatformTelegram, reply.SenderFunc(func(context.Context, string, string) error {
		if sends.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}))
	svc := NewService(f.store, registry, logger.Discard(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Reply(ctx, id, "first")
		done <- err
	}()
	<-started

	if _, err := svc.Reply(ctx, id, "second"); !errs.Is(err, errs.CodeConflict) {
		t.Errorf("concurrent Reply() error = %v, want conflict", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Reply() error = %v", err)
	}
	if got := sends.Load(); got != 1 {
		t.Errorf("sends = %d, want 1", got)
	}
}

// lostStatusStore reports that another writer flipped the status first.
type lostStatusStore struct {
	database.Store
}

func (lostStatusStore) MarkResponded(context.Context, int64) (bool, error) {
	return false, nil
}

func TestReplyLostStatusRaceIsConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id := f.insert(t, "1", "42", time.Now())

	registry := reply.NewRegistry()
	registry.Register(database.PlatformTelegram, reply.SenderFunc(func(context.Context, string, string) error { return nil }))
	svc := NewService(lostStatusStore{f.store}, registry, logger.Discard(), nil)

	if _, err := svc.Reply(ctx, id, "hi"); !errs.Is(err, errs.CodeConflict) {
		t.Errorf("Reply() error = %v, want conflict", err)
	}
}
