package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider uses the Google Gen AI SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini API client for apiKey.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Family() string { return "gemini" }

func (p *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, fmt.Errorf("gemini: list models: %w", geminiError(err))
	}

	var models []string
	for {
		for _, m := range page.Items {
			if m == nil || m.Name == "" {
				continue
			}
			models = append(models, strings.TrimPrefix(m.Name, "models/"))
		}

		page, err = page.Next(ctx)
		if errors.Is(err, genai.ErrPageDone) {
			return models, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gemini: list models: %w", geminiError(err))
		}
	}
}

func (p *GeminiProvider) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens), //nolint:gosec // bounded by config validation
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", geminiError(err))
	}
	return resp.Text(), nil
}

// geminiError converts SDK API errors into HTTPError so Classify treats both
// providers the same way.
func geminiError(err error) error {
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &HTTPError{Status: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{Status: apiErr.Code, Body: apiErr.Message}
	}
	return err
}
