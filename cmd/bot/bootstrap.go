package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"signal-trading-bot/internal/engine"
	"signal-trading-bot/internal/engine/engineobs"
	"signal-trading-bot/internal/execution"
	"signal-trading-bot/internal/extract"
	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/journal"
	"signal-trading-bot/internal/llm"
	"signal-trading-bot/internal/llm/claude"
	"signal-trading-bot/internal/llm/gemini"
	"signal-trading-bot/internal/llm/llmobs"
	"signal-trading-bot/internal/llm/noop"
	"signal-trading-bot/internal/llm/openai"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/metrics"
	"signal-trading-bot/internal/normalize"
	"signal-trading-bot/internal/orchestrator"
	"signal-trading-bot/internal/risk"
	"signal-trading-bot/internal/source"
	"signal-trading-bot/internal/store"
	"signal-trading-bot/internal/symbols"
	"signal-trading-bot/internal/trace"
	"signal-trading-bot/internal/whitelist"
)

// app holds every wired component. Fields are nil when a command does not
// need them.
type app struct {
	cfg      *store.Config
	metrics  *metrics.Recorder
	oracle   interfaces.SymbolOracle
	symbols  *symbols.Oracle // set only for the binance oracle
	cache    *whitelist.Cache
	pool     *llm.Pool
	parser   *orchestrator.Orchestrator
	sentinel *risk.Sentinel
	paper    *execution.Paper
	prices   execution.PriceSource
	journal  *journal.Journal
	engine   interfaces.Engine
}

// initializeSystem loads env, logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	if trace.Enabled() {
		logger.Debug(context.Background(), "Tracing enabled")
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if os.IsNotExist(err) {
		logger.Warn(ctx, "Config file not found, using defaults", "path", path)
		return store.Default()
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// buildParser wires the symbol oracle, whitelist cache, AI pool and
// orchestrator.
func buildParser(ctx context.Context, cfg *store.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	a.oracle = initializeOracle(ctx, a)

	ws, err := initializeWhitelistStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.cache = whitelist.New(cfg.WhitelistPolicy(), ws)
	if err := a.cache.Load(ctx); err != nil {
		logger.Warn(ctx, "Starting with an empty whitelist cache", "error", err)
	}

	a.pool = initializeAI(ctx, cfg, a.metrics)

	norm := normalize.New()
	norm.NoiseFloor = cfg.Parser.NoiseFloor
	rules := extract.New(a.oracle,
		extract.WithNormalizer(norm),
		extract.WithRejectWords(cfg.Parser.RejectWords...),
	)

	a.parser = orchestrator.New(orchestrator.Config{
		RuleThreshold:  cfg.Parser.RuleThreshold,
		ProbationFloor: cfg.Parser.ProbationFloor,
		AITimeout:      cfg.Parser.AITimeout,
	}, rules,
		orchestrator.WithCache(a.cache),
		orchestrator.WithAI(a.pool),
		orchestrator.WithOracle(a.oracle),
		orchestrator.WithRecorder(a.metrics),
	)
	return a, nil
}

// buildPipeline adds the risk gate, paper executor, journal and engine.
func buildPipeline(ctx context.Context, cfg *store.Config) (*app, error) {
	a, err := buildParser(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.sentinel = initializeSentinel(ctx, cfg)
	a.paper = execution.NewPaper(a.sentinel)
	a.prices = symbols.NewExchangeFetcher(cfg.Symbols.BaseURL)
	a.journal = journal.New(cfg.Journal.Dir)
	a.paper.OnClose(a.recordClose)

	if cfg.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - signals are validated and sized but not executed")
	}
	eng := engine.New(engine.Options{
		MinConfidence:   cfg.Parser.MinConfidence,
		DefaultLeverage: cfg.Risk.DefaultLeverage,
		DedupWindow:     cfg.Parser.DedupWindow,
		DryRun:          cfg.DryRun(),
	}, a.parser, a.sentinel, a.paper,
		engine.WithJournal(a.journal),
		engine.WithRecorder(a.metrics),
	)
	a.engine = engineobs.Wrap(eng)
	return a, nil
}

// recordClose journals a realised paper trade and refreshes the account gauges.
func (a *app) recordClose(ctx context.Context, tr execution.ClosedTrade) {
	err := a.journal.AppendTrade(journal.TradeEntry{
		Symbol:  tr.Symbol,
		Side:    string(tr.Side),
		OrderID: tr.OrderID,
		Action:  "CLOSE",
		Qty:     tr.Quantity,
		Price:   tr.ExitPrice,
		PnL:     tr.PnL,
		Reason:  tr.Reason,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal closed trade", err, "symbol", tr.Symbol)
	}
	m := a.sentinel.Metrics()
	a.metrics.SetAccount(m.Equity, len(a.paper.OpenPositions()), m.CircuitBreaker)
}

func initializeOracle(ctx context.Context, a *app) interfaces.SymbolOracle {
	cfg := a.cfg.Symbols
	switch cfg.Oracle {
	case "static":
		return symbols.NewStatic(cfg.Static...)
	case "any":
		logger.Warn(ctx, "Symbol oracle disabled - every candidate symbol is accepted")
		return symbols.AllowAll{}
	default:
		o := symbols.NewOracle(symbols.NewExchangeFetcher(cfg.BaseURL),
			symbols.WithCacheFile(cfg.CacheFile),
			symbols.WithTTL(cfg.TTL),
		)
		o.Load(ctx)
		a.symbols = o
		return o
	}
}

func initializeWhitelistStore(ctx context.Context, cfg *store.Config) (whitelist.Store, error) {
	w := cfg.Whitelist
	switch w.Backend {
	case "redis":
		rs := whitelist.NewRedisStore(whitelist.RedisOptions{
			Addr:     w.RedisAddr,
			Password: os.Getenv(w.PasswordEnv),
			DB:       w.RedisDB,
			Key:      w.RedisKey,
		})
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("whitelist redis %s: %w", w.RedisAddr, err)
		}
		logger.Info(ctx, "Whitelist backed by redis", "addr", w.RedisAddr, "key", w.RedisKey)
		return rs, nil
	case "memory":
		return &whitelist.MemoryStore{}, nil
	default:
		if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
			return nil, err
		}
		return whitelist.NewFileStore(w.Path), nil
	}
}

// initializeAI builds the provider pool in configured order. Providers whose
// key is missing are skipped with a warning.
func initializeAI(ctx context.Context, cfg *store.Config, rec llmobs.Recorder) *llm.Pool {
	pool := llm.NewPool(cfg.AI.FailureThreshold, cfg.Parser.AITimeout)
	for _, p := range cfg.AI.Providers {
		if p.Disabled {
			continue
		}
		ext, err := newProvider(ctx, p)
		if err != nil {
			logger.Warn(ctx, "Skipping AI provider", "provider", p.Name, "error", err)
			continue
		}
		pool.Add(llm.Member{Extractor: llmobs.Wrap(ext, rec), RPM: p.RPM, Timeout: p.Timeout})
		logger.Info(ctx, "AI provider enabled", "provider", p.Name, "kind", p.Kind, "model", p.Model)
	}
	if pool.Len() == 0 {
		logger.Warn(ctx, "No AI provider configured - using noop extractor (never finds a signal)")
		pool.Add(llm.Member{Extractor: noop.New()})
	}
	return pool
}

func newProvider(ctx context.Context, p store.AIProvider) (interfaces.AIExtractor, error) {
	switch p.Kind {
	case "claude":
		return claude.New(claude.Config{
			APIKey:      p.APIKey(),
			BaseURL:     p.BaseURL,
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
		})
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:      p.APIKey(),
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
		})
	default:
		return openai.New(openai.Config{
			Name:        p.Name,
			BaseURL:     p.BaseURL,
			APIKey:      p.APIKey(),
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			JSONMode:    p.JSONMode,
			Timeout:     p.Timeout,
		})
	}
}

func initializeSentinel(ctx context.Context, cfg *store.Config) *risk.Sentinel {
	return risk.New(ctx, risk.Options{
		InitialEquity:  cfg.Risk.InitialEquity,
		Limits:         cfg.RiskLimits(),
		KillSwitchPath: cfg.Risk.KillSwitchPath,
		ListConfigPath: cfg.Risk.ListsPath,
	})
}

func openSource(ctx context.Context, cfg *store.Config) (interfaces.MessageSource, error) {
	s := cfg.Source
	if s.Kind == "kafka" {
		logger.Info(ctx, "Consuming messages from kafka", "brokers", s.Brokers, "topic", s.Topic, "group", s.GroupID)
		return source.NewKafka(source.KafkaConfig{Brokers: s.Brokers, Topic: s.Topic, GroupID: s.GroupID})
	}
	logger.Info(ctx, "Replaying messages from file", "path", s.Path)
	return source.OpenJSONL(s.Path, s.Channel)
}

// shutdown flushes the cache and stops the tracer.
func (a *app) shutdown(ctx context.Context) {
	if a.cache != nil {
		if err := a.cache.Close(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Failed to flush whitelist on shutdown", err)
		}
	}
	if err := trace.Shutdown(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to stop tracer", err)
	}
}
