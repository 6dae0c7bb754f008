package personal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gotd/td/tg"

	"github.com/edgard/nexa/internal/logger"
	"github.com/edgard/nexa/internal/outbound"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	payload := BuildPayload(Event{
		MessageID: 5, SenderID: 42, FirstName: "Ann", Private: true, Date: 1700000000, Text: "hi",
	})
	if payload["update_id"] != nil {
		t.Errorf("update_id = %v, want nil", payload["update_id"])
	}
	msg := payload["message"].(map[string]any)
	chat := msg["chat"].(map[string]any)
	from := msg["from"].(map[string]any)
	if chat["id"] != int64(42) || chat["type"] != "private" {
		t.Errorf("chat = %v, want sender id fallback and private", chat)
	}
	if from["username"] != nil || from["first_name"] != "Ann" || from["is_bot"] != false {
		t.Errorf("from = %v", from)
	}
	if msg["raw"] != nil || msg["date"] != 1700000000 || msg["text"] != "hi" {
		t.Errorf("message = %v", msg)
	}

	group := BuildPayload(Event{MessageID: 1, SenderID: 1, ChatID: 99})
	if c := group["message"].(map[string]any)["chat"].(map[string]any); c["id"] != int64(99) || c["type"] != "group" {
		t.Errorf("group chat = %v", c)
	}
}

func TestEventFromMessage(t *testing.T) {
	t.Parallel()

	entities := tg.Entities{
		Users: map[int64]*tg.User{42: {ID: 42, AccessHash: 777, FirstName: "Ann", Username: "ann"}},
	}
	msg := &tg.Message{ID: 9, Date: 1700000000, Message: "hello", PeerID: &tg.PeerUser{UserID: 42}}

	ev := eventFromMessage(msg, entities)
	if ev.SenderID != 42 || ev.ChatID != 42 || !ev.Private || ev.Username != "ann" || ev.Text != "hello" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Raw["peer"] != "peerUser" || ev.Raw["id"] != 9 {
		t.Errorf("raw = %v", ev.Raw)
	}

	cache := newPeerCache()
	cache.remember(entities)
	peer, ok := cache.lookup(42)
	if !ok {
		t.Fatal("peer 42 not cached")
	}
	if u, ok := peer.(*tg.InputPeerUser); !ok || u.AccessHash != 777 {
		t.Errorf("peer = %#v", peer)
	}
	if _, ok := cache.lookup(1); ok {
		t.Error("unexpected peer 1")
	}

	group := &tg.Message{ID: 1, PeerID: &tg.PeerChat{ChatID: 500}}
	group.SetFromID(&tg.PeerUser{UserID: 42})
	ev = eventFromMessage(group, entities)
	if ev.Private || ev.ChatID != 500 || ev.SenderID != 42 {
		t.Errorf("group event = %+v", ev)
	}
}

func TestPeerCacheFromDialogs(t *testing.T) {
	t.Parallel()

	cache := newPeerCache()
	dialogs := &tg.MessagesDialogsSlice{
		Count: 10,
		Users: []tg.UserClass{&tg.User{ID: 42, AccessHash: 777}, &tg.UserEmpty{ID: 43}},
		Chats: []tg.ChatClass{&tg.Chat{ID: 500}, &tg.Channel{ID: 600, AccessHash: 66}, &tg.ChatForbidden{ID: 700}},
	}
	if n := cache.rememberDialogs(dialogs); n != 3 {
		t.Errorf("rememberDialogs() = %d, want 3", n)
	}

	tests := []struct {
		id   int64
		want tg.InputPeerClass
	}{
		{42, &tg.InputPeerUser{UserID: 42, AccessHash: 777}},
		{500, &tg.InputPeerChat{ChatID: 500}},
		{600, &tg.InputPeerChannel{ChannelID: 600, AccessHash: 66}},
	}
	for _, tt := range tests {
		got, ok := cache.lookup(tt.id)
		if !ok {
			t.Errorf("lookup(%d) missing", tt.id)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("lookup(%d) = %v, want %v", tt.id, got, tt.want)
		}
	}
	for _, id := range []int64{43, 700} {
		if _, ok := cache.lookup(id); ok {
			t.Errorf("lookup(%d) found an unusable peer", id)
		}
	}

	if n := cache.rememberDialogs(&tg.MessagesDialogsNotModified{Count: 3}); n != 0 {
		t.Errorf("rememberDialogs(not modified) = %d, want 0", n)
	}
}

func TestClassifyForward(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want outbound.Verdict
	}{
		{"transport", errors.New("connection refused"), outbound.Retry},
		{"rate limited", &StatusError{Status: 429}, outbound.Retry},
		{"server error", &StatusError{Status: 503}, outbound.Retry},
		{"bad request", &StatusError{Status: 400}, outbound.Fatal},
		{"unauthorized", &StatusError{Status: 401}, outbound.Fatal},
		{"cancelled", context.Canceled, outbound.Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyForward(tt.err).Verdict; got != tt.want {
				t.Errorf("ClassifyForward() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestForwarder(url string) (*Forwarder, *[]time.Duration) {
	f := NewForwarder(ForwarderConfig{
		URL: url, Secret: "s3cret", Timeout: time.Second, Step: 1500 * time.Millisecond, Attempts: 3, QueueSize: 1,
	}, logger.Discard(), nil)
	var waits []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return f, &waits
}

func TestForwardRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(ListenerSecretHeader) != "s3cret" {
			t.Errorf("secret header = %q", r.Header.Get(ListenerSecretHeader))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, waits := newTestForwarder(srv.URL)
	if err := f.Forward(context.Background(), BuildPayload(Event{MessageID: 1})); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(*waits) != 2 || (*waits)[0] != 1500*time.Millisecond || (*waits)[1] != 3*time.Second {
		t.Errorf("waits = %v, want [1.5s 3s]", *waits)
	}
}

func TestForwardGivesUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"client error is fatal", http.StatusBadRequest, 1},
		{"server error exhausts", http.StatusInternalServerError, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			f, waits := newTestForwarder(srv.URL)
			if err := f.Forward(context.Background(), BuildPayload(Event{})); err == nil {
				t.Fatal("Forward() error = nil")
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if int32(len(*waits)) != tt.wantCalls-1 {
				t.Errorf("waits = %v", *waits)
			}
		})
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	t.Parallel()

	f, _ := newTestForwarder("http://127.0.0.1:0")
	if !f.Enqueue(BuildPayload(Event{MessageID: 1})) {
		t.Fatal("first Enqueue() = false")
	}
	if f.Enqueue(BuildPayload(Event{MessageID: 2})) {
		t.Error("Enqueue() on full queue = true, want drop")
	}
}

func TestForwarderRunDelivers(t *testing.T) {
	t.Parallel()

	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body
	}))
	defer srv.Close()

	f, _ := newTestForwarder(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	f.Enqueue(BuildPayload(Event{MessageID: 77, Text: "hey"}))
	select {
	case body := <-got:
		if body["message"].(map[string]any)["message_id"] != float64(77) {
			t.Errorf("body = %v", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("payload not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

type fakeTextSender struct {
	chatID, text string
	err          error
}

func (f *fakeTextSender) SendText(_ context.Context, chatID, text string) error {
	f.chatID, f.text = chatID, text
	return f.err
}

func TestSendReplyHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		secret     string
		body       string
		sendErr    error
		wantStatus int
		wantBody   string
	}{
		{"missing secret", "", `{"chat_id":"1","text":"x"}`, nil, http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"wrong secret", "nope", `{"chat_id":"1","text":"x"}`, nil, http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"invalid json", "s3cret", `{`, nil, http.StatusBadRequest, `{"error":"invalid json"}`},
		{"missing text", "s3cret", `{"chat_id":"1"}`, nil, http.StatusBadRequest, `{"error":"text required"}`},
		{"missing chat", "s3cret", `{"text":"x"}`, nil, http.StatusBadRequest, `{"error":"chat_id required"}`},
		{"send failure", "s3cret", `{"chat_id":"1","text":"x"}`, errors.New("peer flood"), http.StatusInternalServerError, `{"error":"peer flood"}`},
		{"numeric chat", "s3cret", `{"chat_id":12345,"text":"x"}`, nil, http.StatusOK, `{"ok":true}`},
		{"ok", "s3cret", `{"chat_id":"42","text":"x"}`, nil, http.StatusOK, `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sender := &fakeTextSender{err: tt.sendErr}
			router := NewRouter(sender, "s3cret", logger.Discard())

			req := httptest.NewRequest(http.MethodPost, "/send_reply", strings.NewReader(tt.body))
			if tt.secret != "" {
				req.Header.Set(ReplySecretHeader, tt.secret)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
				t.Errorf("body = %s, want %s", got, tt.wantBody)
			}
		})
	}
}

func TestClientSendsThroughListener(t *testing.T) {
	t.Parallel()

	sender := &fakeTextSender{}
	srv := httptest.NewServer(NewRouter(sender, "s3cret", logger.Discard()))
	defer srv.Close()

	if err := NewClient(srv.URL+"/", "s3cret", time.Second).Send(context.Background(), "42", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sender.chatID != "42" || sender.text != "hello" {
		t.Errorf("listener got %q/%q", sender.chatID, sender.text)
	}

	err := NewClient(srv.URL, "wrong", time.Second).Send(context.Background(), "42", "hello")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnauthorized {
		t.Errorf("Send(wrong secret) error = %v, want 401", err)
	}
}
