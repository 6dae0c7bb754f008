package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/logger"
	"github.com/edgard/nexa/internal/suggest"
)

type fakeSuggester struct {
	calls  int
	sender string
	result suggest.Result
	err    error
}

func (f *fakeSuggester) Suggest(_ context.Context, _, sender string) (suggest.Result, error) {
	f.calls++
	f.sender = sender
	return f.result, f.err
}

func newTestStore(t *testing.T) database.Store {
	t.Helper()
	db, err := database.NewDB("sqlite://"+filepath.Join(t.TempDir(), "worker.db"), 1)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	return database.NewStore(db, logger.Discard())
}

func insertMessage(t *testing.T, store database.Store) int64 {
	t.Helper()
	id, _, err := store.InsertMessage(context.Background(), &database.Message{
		Platform:          database.PlatformTelegram,
		PlatformThreadID:  "1",
		PlatformMessageID: "2",
		SenderID:          database.NullString("42"),
		SenderName:        database.NullString("Ann"),
		Text:              "are you free tomorrow?",
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestProcessMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		suggester *fakeSuggester
		wantTexts []string
	}{
		{
			name:      "stores suggestions",
			suggester: &fakeSuggester{result: suggest.Result{Model: "gpt-4o", Lines: []string{"Yes.", "Sure, what time?"}}},
			wantTexts: []string{"Yes.", "Sure, what time?"},
		},
		{
			name:      "exhausted call stores none",
			suggester: &fakeSuggester{err: errors.New("exhausted")},
		},
		{
			name:      "disabled provider stores none",
			suggester: &fakeSuggester{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := newTestStore(t)
			id := insertMessage(t, store)

			p := NewProcessor(store, tt.suggester, logger.Discard())
			if err := p.ProcessMessage(ctx, id); err != nil {
				t.Fatalf("ProcessMessage() error = %v", err)
			}

			msg, _ := store.GetMessage(ctx, id)
			if !msg.Processed {
				t.Error("message not marked processed")
			}
			if tt.suggester.sender != "Ann" {
				t.Errorf("sender = %q, want Ann", tt.suggester.sender)
			}

			stored, _ := store.ListSuggestions(ctx, []int64{id})
			if len(stored[id]) != len(tt.wantTexts) {
				t.Fatalf("stored %d suggestions, want %d", len(stored[id]), len(tt.wantTexts))
			}
			for i, want := range tt.wantTexts {
				if stored[id][i].Text != want || stored[id][i].Model != "gpt-4o" {
					t.Errorf("suggestion %d = %+v", i, stored[id][i])
				}
			}
		})
	}
}

func TestProcessMessageIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	id := insertMessage(t, store)

	s := &fakeSuggester{result: suggest.Result{Model: "m", Lines: []string{"ok"}}}
	p := NewProcessor(store, s, logger.Discard())

	for i := 0; i < 2; i++ {
		if err := p.ProcessMessage(ctx, id); err != nil {
			t.Fatalf("run %d error = %v", i, err)
		}
	}
	if s.calls != 1 {
		t.Errorf("suggester called %d times, want 1", s.calls)
	}

	if err := p.ProcessMessage(ctx, 9999); err != nil {
		t.Errorf("ProcessMessage(missing) error = %v", err)
	}
	if s.calls != 1 {
		t.Errorf("missing message triggered a suggestion call")
	}
}

func TestProcessMessageCancelledLeavesUnprocessed(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id := insertMessage(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSuggester{err: context.Canceled}
	p := NewProcessor(store, suggesterFunc(func(c context.Context, text, sender string) (suggest.Result, error) {
		cancel()
		return s.Suggest(c, text, sender)
	}), logger.Discard())

	if err := p.ProcessMessage(ctx, id); !errors.Is(err, context.Canceled) {
		t.Fatalf("ProcessMessage() error = %v, want context.Canceled", err)
	}

	msg, _ := store.GetMessage(context.Background(), id)
	if msg.Processed {
		t.Error("cancelled run marked the message processed")
	}
}

type suggesterFunc func(ctx context.Context, text, sender string) (suggest.Result, error)

func (f suggesterFunc) Suggest(ctx context.Context, text, sender string) (suggest.Result, error) {
	return f(ctx, text, sender)
}
