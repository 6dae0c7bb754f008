package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgard/nexa/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Linking.CodeLength != 6 {
		t.Errorf("CodeLength = %d, want 6", cfg.Linking.CodeLength)
	}
	if cfg.Linking.CodeTTL != 15*time.Minute {
		t.Errorf("CodeTTL = %v, want 15m", cfg.Linking.CodeTTL)
	}
	if cfg.Queue.Name != "nexa_default" {
		t.Errorf("Queue.Name = %q, want nexa_default", cfg.Queue.Name)
	}
	if cfg.AI.MaxTokens != 200 {
		t.Errorf("AI.MaxTokens = %d, want 200", cfg.AI.MaxTokens)
	}
	if cfg.AI.Model != "" || len(cfg.AI.Fallbacks) != 0 {
		t.Errorf("AI model = %q fallbacks = %v, want provider defaults", cfg.AI.Model, cfg.AI.Fallbacks)
	}
	if cfg.Personal.ForwardStep != 1500*time.Millisecond {
		t.Errorf("ForwardStep = %v, want 1.5s", cfg.Personal.ForwardStep)
	}
	if task, ok := cfg.Scheduler.Tasks["redispatch_unprocessed"]; !ok || !task.Enabled {
		t.Errorf("redispatch_unprocessed task = %+v, want enabled", task)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
logger:
  level: debug
  format: text
database:
  dsn: sqlite://` + filepath.Join(dir, "test.db") + `
ai:
  model: gpt-4o
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NEXA_AI_MODEL", "gpt-4")
	t.Setenv("NEXA_TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logger.Level != "debug" || cfg.Logger.JSON() {
		t.Errorf("Logger = %+v, want debug text", cfg.Logger)
	}
	if cfg.AI.Model != "gpt-4" {
		t.Errorf("AI.Model = %q, want env override gpt-4", cfg.AI.Model)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("Telegram.BotToken = %q", cfg.Telegram.BotToken)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("NEXA_LOGGER_LEVEL", "verbose")

	_, err := config.Load("")
	if !errors.Is(err, config.ErrValidation) {
		t.Fatalf("Load() error = %v, want ErrValidation", err)
	}
}

func TestRequireChecks(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := cfg.RequireListener(); !errors.Is(err, config.ErrValidation) {
		t.Errorf("RequireListener() error = %v, want ErrValidation", err)
	}

	cfg.Personal.APIID = 1
	cfg.Personal.APIHash = "hash"
	cfg.Personal.Phone = "+100"
	cfg.Personal.Secret = "s3cret"
	if err := cfg.RequireListener(); err != nil {
		t.Errorf("RequireListener() error = %v, want nil", err)
	}

	cfg.Queue.Driver = "memory"
	if err := cfg.RequireServe(); !errors.Is(err, config.ErrValidation) {
		t.Errorf("RequireServe() error = %v, want ErrValidation", err)
	}
	cfg.Worker.Embedded = true
	if err := cfg.RequireServe(); err != nil {
		t.Errorf("RequireServe() error = %v, want nil", err)
	}
	if err := cfg.RequireWorker(); !errors.Is(err, config.ErrValidation) {
		t.Errorf("RequireWorker() error = %v, want ErrValidation", err)
	}
}
