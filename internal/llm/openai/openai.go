package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"signal-trading-bot/internal/api"
	"signal-trading-bot/internal/llm"
	"signal-trading-bot/internal/trace"
	"signal-trading-bot/internal/types"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	JSONMode    bool // send response_format=json_object; not every server accepts it
	Timeout     time.Duration
}

// Provider extracts signals through any OpenAI-compatible chat endpoint.
type Provider struct {
	cfg    Config
	client *api.Client
}

func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai provider: model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := api.NewClient(
		api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		api.WithBearer(cfg.APIKey),
		api.WithTimeout(cfg.Timeout),
		api.WithLogging(true),
	)
	return &Provider{cfg: cfg, client: client}, nil
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	ctx, span := trace.StartSpan(ctx, "openai-chat-completion")
	defer span.End()

	req := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: llm.SystemPrompt},
			{Role: "user", Content: llm.UserPrompt(text)},
		},
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	if p.cfg.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	resp, err := p.client.POST(ctx, "/chat/completions", req)
	if err != nil {
		if api.IsStatus(err, http.StatusTooManyRequests) {
			return types.NoSignal(p.Name()), fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
		}
		return types.NoSignal(p.Name()), err
	}

	var r chatResponse
	if err := resp.ParseJSON(&r); err != nil {
		return types.NoSignal(p.Name()), err
	}
	if len(r.Choices) == 0 {
		return types.NoSignal(p.Name()), fmt.Errorf("%w: no choices", llm.ErrInvalidResponse)
	}
	return llm.Decode(r.Choices[0].Message.Content, p.Name())
}
