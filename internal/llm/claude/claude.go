package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"signal-trading-bot/internal/llm"
	"signal-trading-bot/internal/trace"
	"signal-trading-bot/internal/types"
)

const DefaultModel = "claude-3-5-haiku-latest"

type Config struct {
	APIKey      string
	BaseURL     string // proxy or gateway endpoint; empty for the public API
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider extracts signals with the Anthropic Messages API.
type Provider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("claude provider: api key missing")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	return &Provider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

func (p *Provider) Name() string { return "claude" }

func (p *Provider) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
		System:      []anthropic.TextBlockParam{{Text: llm.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(llm.UserPrompt(text))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return types.NoSignal(p.Name()), fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
		}
		return types.NoSignal(p.Name()), fmt.Errorf("claude messages: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return types.NoSignal(p.Name()), fmt.Errorf("%w: empty claude reply", llm.ErrInvalidResponse)
	}
	return llm.Decode(out.String(), p.Name())
}
