package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"

	"github.com/edgard/nexa/internal/logger"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	requests map[string]string
	fail     bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests[method] = string(body)
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	switch method {
	case "sendMessage":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":100,"type":"private"}}}`))
	case "setWebhook":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}
}

func (f *fakeBotAPI) body(method string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method]
}

func newTestBot(t *testing.T) (*bot.Bot, *fakeBotAPI) {
	t.Helper()

	api := &fakeBotAPI{requests: map[string]string{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := NewTelegramBot("123456:TEST-TOKEN", logger.Discard(), bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	if err != nil {
		t.Fatalf("NewTelegramBot() error = %v", err)
	}
	return b, api
}

func TestBotSenderSend(t *testing.T) {
	t.Parallel()

	b, api := newTestBot(t)
	sender := NewBotSender(b, 100, logger.Discard())

	if err := sender.Send(context.Background(), "100", "NEXA: linked"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	body := api.body("sendMessage")
	if !strings.Contains(body, "NEXA: linked") || !strings.Contains(body, "100") {
		t.Errorf("sendMessage body = %q", body)
	}
}

func TestBotSenderSendFailure(t *testing.T) {
	t.Parallel()

	b, api := newTestBot(t)
	api.mu.Lock()
	api.fail = true
	api.mu.Unlock()

	if err := NewBotSender(b, 100, logger.Discard()).Send(context.Background(), "100", "x"); err == nil {
		t.Fatal("Send() error = nil, want failure")
	}
}

func TestSetWebhook(t *testing.T) {
	t.Parallel()

	b, api := newTestBot(t)
	if err := SetWebhook(context.Background(), b, "https://nexa.example/connectors/telegram/webhook", "s3cret", logger.Discard()); err != nil {
		t.Fatalf("SetWebhook() error = %v", err)
	}
	if body := api.body("setWebhook"); !strings.Contains(body, "s3cret") {
		t.Errorf("setWebhook body = %q", body)
	}
}

func TestChatTarget(t *testing.T) {
	t.Parallel()

	if got, ok := chatTarget("-1001").(int64); !ok || got != -1001 {
		t.Errorf("chatTarget(-1001) = %v", chatTarget("-1001"))
	}
	if got := chatTarget("@nexa"); got != "@nexa" {
		t.Errorf("chatTarget(@nexa) = %v", got)
	}
	raw, _ := json.Marshal(map[string]any{"chat_id": chatTarget("42")})
	if string(raw) != `{"chat_id":42}` {
		t.Errorf("marshal = %s", raw)
	}
}

func TestNewTelegramBotRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	if _, err := NewTelegramBot("", nil); err == nil {
		t.Fatal("NewTelegramBot(\"\") error = nil")
	}
	if got := tokenPrefix("short"); got != "***" {
		t.Errorf("tokenPrefix(short) = %q", got)
	}
}
