package suggest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/nexa/internal/config"
	"github.com/edgard/nexa/internal/metrics"
	"github.com/edgard/nexa/internal/outbound"
)

const promptTemplate = "User message: %s\nSender: %s\n" +
	"Give 3 short reply suggestions in different tones (direct, friendly, professional)."

// Prompt renders the suggestion prompt for a message.
func Prompt(text, sender string) string {
	if sender == "" {
		sender = "unknown"
	}
	return fmt.Sprintf(promptTemplate, text, sender)
}

// Result is a successful suggestion call.
type Result struct {
	Model string
	Lines []string
}

// Suggester produces reply suggestions. A nil provider disables it: Suggest
// then returns an empty Result without any outbound call.
type Suggester struct {
	provider Provider
	cfg      config.AIConfig
	log      *slog.Logger
	metrics  *metrics.Metrics

	// Sleep overrides the backoff wait; nil waits on the real clock.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Suggester. Pass a nil provider when no API key is configured.
func New(provider Provider, cfg config.AIConfig, log *slog.Logger, m *metrics.Metrics) *Suggester {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Suggester{
		provider: provider,
		cfg:      cfg,
		log:      log.With("component", "suggester"),
		metrics:  m,
	}
}

// NewProvider builds the configured provider, or returns nil when no API key is set.
func NewProvider(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey)
	default:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Timeout), nil
	}
}

// Enabled reports whether suggestions will be requested at all.
func (s *Suggester) Enabled() bool {
	return s.provider != nil
}

// Suggest asks the provider for reply suggestions, falling back across
// models. The error is non-nil when every candidate failed or a fatal
// response ended the call; callers treat that as "no suggestions".
func (s *Suggester) Suggest(ctx context.Context, text, sender string) (Result, error) {
	if !s.Enabled() {
		s.log.DebugContext(ctx, "No AI provider configured, skipping suggestions")
		return Result{}, nil
	}

	available, err := s.listModels(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "Model listing failed, using static order", "error", err)
	}
	ranked, static := fallbackModels(s.cfg)
	candidates := Candidates(s.cfg.Model, ranked, static, s.provider.Family(), available, s.cfg.MaxCandidates)

	policy := outbound.Policy{
		Name:     "ai_suggest",
		Attempts: s.cfg.Attempts,
		Backoff:  outbound.Exponential{Base: s.cfg.Backoff, Jitter: s.cfg.Jitter},
		Classify: Classify,
		Sleep:    s.Sleep,
		Logger:   s.log,
		OnAttempt: func(a outbound.Attempt) {
			s.metrics.ObserveAttempt(a.Name, a.Err, a.Verdict.String())
		},
	}

	prompt := Prompt(text, sender)
	lines, model, err := outbound.Do(ctx, policy, candidates, func(ctx context.Context, model string) ([]string, error) {
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()
		out, err := s.provider.Complete(ctx, model, prompt, s.cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return ParseLines(out), nil
	})
	if err != nil {
		s.metrics.ObserveSuggestion("failed")
		return Result{}, err
	}

	s.metrics.ObserveSuggestion("ok")
	s.log.InfoContext(ctx, "Suggestions generated", "model", model, "count", len(lines))
	return Result{Model: model, Lines: lines}, nil
}

func (s *Suggester) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.provider.ListModels(ctx)
}

func (s *Suggester) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}
