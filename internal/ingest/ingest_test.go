package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/errs"
	"github.com/edgard/nexa/internal/logger"
	"github.com/edgard/nexa/internal/normalize"
)

type fakeLinker struct {
	code string
	err  error
}

func (f *fakeLinker) TryLink(_ context.Context, _ string, msg normalize.Message) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.code != "" && msg.Text == f.code, nil
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.err
}

func newTestService(t *testing.T, linker Linker) (*Service, database.Store, *fakeDispatcher) {
	t.Helper()

	db, err := database.NewDB("sqlite://"+filepath.Join(t.TempDir(), "ingest.db"), 1)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, logger.Discard())

	d := &fakeDispatcher{}
	return NewService(store, linker, d, logger.Discard(), nil), store, d
}

func update(text string) map[string]any {
	return map[string]any{
		"update_id": float64(10),
		"message": map[string]any{
			"message_id": float64(7),
			"chat":       map[string]any{"id": float64(100)},
			"from":       map[string]any{"id": float64(42), "first_name": "Ann"},
			"text":       text,
		},
	}
}

func TestHandle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		update       map[string]any
		want         Result
		wantDispatch int
	}{
		{"skips update without message", map[string]any{"update_id": float64(1)}, Result{Skipped: true}, 0},
		{"skips non-object message", map[string]any{"message": "hi"}, Result{Skipped: true}, 0},
		{"short-circuits link code", update("ABC123"), Result{Linked: true}, 0},
		{"stores plain message", update("hello"), Result{StoredID: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _, d := newTestService(t, &fakeLinker{code: "ABC123"})

			got, err := svc.Handle(context.Background(), database.PlatformTelegram, tt.update)
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Handle() = %+v, want %+v", got, tt.want)
			}
			if len(d.ids) != tt.wantDispatch {
				t.Errorf("dispatched %v, want %d", d.ids, tt.wantDispatch)
			}
		})
	}
}

func TestHandleStoresNormalizedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	res, err := svc.Handle(ctx, database.PlatformPersonal, map[string]any{
		"edited_message": map[string]any{"caption": "a photo"},
	})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := store.GetMessage(ctx, res.StoredID)
	if err != nil || msg == nil {
		t.Fatalf("GetMessage() = %v, %v", msg, err)
	}
	if msg.PlatformThreadID != database.UnknownRef || msg.PlatformMessageID != database.UnknownRef {
		t.Errorf("ids = %q/%q, want unknown", msg.PlatformThreadID, msg.PlatformMessageID)
	}
	if msg.SenderID.Valid || msg.SenderName.Valid {
		t.Errorf("sender = %v/%v, want null", msg.SenderID, msg.SenderName)
	}
	if msg.Text != "a photo" || msg.Platform != database.PlatformPersonal {
		t.Errorf("message = %+v", msg)
	}
	if _, ok := msg.RawPayload["edited_message"]; !ok {
		t.Errorf("raw payload = %v, want original update", msg.RawPayload)
	}
}

func TestHandleDuplicateIsNotRedispatched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, d := newTestService(t, nil)

	first, err := svc.Handle(ctx, database.PlatformTelegram, update("hello"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Handle(ctx, database.PlatformTelegram, update("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate || second.StoredID != first.StoredID {
		t.Errorf("second = %+v, want duplicate of %d", second, first.StoredID)
	}
	if len(d.ids) != 1 {
		t.Errorf("dispatched %v, want once", d.ids)
	}
}

func TestHandleDispatchFailureStillStores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, d := newTestService(t, nil)
	d.err = errors.New("redis down")

	res, err := svc.Handle(ctx, database.PlatformTelegram, update("hello"))
	if err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}
	msg, err := store.GetMessage(ctx, res.StoredID)
	if err != nil || msg == nil || msg.Processed {
		t.Errorf("stored message = %+v, %v, want unprocessed row", msg, err)
	}
}

func TestHandleErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newTestService(t, &fakeLinker{err: errors.New("db gone")})
	if _, err := svc.Handle(ctx, database.PlatformTelegram, update("x")); err == nil {
		t.Error("Handle() with failing linker returned nil error")
	}
	if _, err := svc.Handle(ctx, "slack", update("x")); !errs.Is(err, errs.CodeValidation) {
		t.Errorf("Handle(bad platform) error = %v, want validation", err)
	}
}
