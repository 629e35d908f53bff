package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"signal-trading-bot/internal/llm"
	"signal-trading-bot/internal/trace"
	"signal-trading-bot/internal/types"
)

const DefaultModel = "gemini-2.0-flash"

type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider extracts signals with the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini provider: api key missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	return &Provider{
		client: client,
		model:  cfg.Model,
		config: &genai.GenerateContentConfig{
			Temperature:       genai.Ptr(float32(cfg.Temperature)),
			MaxOutputTokens:   int32(cfg.MaxTokens),
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(llm.SystemPrompt, genai.RoleUser),
		},
	}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	ctx, span := trace.StartSpan(ctx, "gemini-generate-content")
	defer span.End()

	resp, err := p.client.Models.GenerateContent(ctx, p.model, []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(llm.UserPrompt(text))},
		},
	}, p.config)
	if err != nil {
		if llm.IsRateLimitError(err) {
			return types.NoSignal(p.Name()), fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
		}
		return types.NoSignal(p.Name()), fmt.Errorf("gemini generate: %w", err)
	}

	reply := resp.Text()
	if reply == "" {
		return types.NoSignal(p.Name()), fmt.Errorf("%w: empty gemini reply", llm.ErrInvalidResponse)
	}
	return llm.Decode(reply, p.Name())
}
