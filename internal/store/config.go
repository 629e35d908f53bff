package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"signal-trading-bot/internal/risk"
	"signal-trading-bot/internal/whitelist"
)

const (
	ModeDryRun = "DRY_RUN"
	ModePaper  = "PAPER"
)

var validate = validator.New()

type Config struct {
	Mode string `yaml:"mode" default:"DRY_RUN" validate:"oneof=DRY_RUN PAPER"`

	Parser struct {
		RuleThreshold  float64       `yaml:"rule_threshold" default:"0.75" validate:"gt=0,lte=1"`
		ProbationFloor float64       `yaml:"probation_floor" default:"0.6" validate:"gte=0,lte=1"`
		AITimeout      time.Duration `yaml:"ai_timeout" default:"30s"`
		NoiseFloor     float64       `yaml:"noise_floor" default:"0.000001" validate:"gte=0"`
		RejectWords    []string      `yaml:"reject_words"`
		MinConfidence  float64       `yaml:"min_confidence" default:"0.6" validate:"gte=0,lte=1"`
		DedupWindow    time.Duration `yaml:"dedup_window" default:"5m"`
	} `yaml:"parser"`

	Whitelist struct {
		Backend        string        `yaml:"backend" default:"file" validate:"oneof=file redis memory"`
		Path           string        `yaml:"path" default:"data/whitelist.json"`
		RedisAddr      string        `yaml:"redis_addr" default:"localhost:6379"`
		RedisKey       string        `yaml:"redis_key" default:"signalbot:whitelist"`
		RedisDB        int           `yaml:"redis_db"`
		PasswordEnv    string        `yaml:"password_env" default:"REDIS_PASSWORD"`
		ServeThreshold float64       `yaml:"serve_threshold" default:"0.7"`
		ProbationSeed  float64       `yaml:"probation_seed" default:"0.6"`
		LearnIncrement float64       `yaml:"learn_increment" default:"0.05"`
		HitIncrement   float64       `yaml:"hit_increment" default:"0.01"`
		Capacity       int           `yaml:"capacity" default:"1000" validate:"gt=0"`
		EvictFraction  float64       `yaml:"evict_fraction" default:"0.1"`
		StaleAfter     time.Duration `yaml:"stale_after" default:"720h"`
		DecayRate      float64       `yaml:"decay_rate" default:"0.95"`
		DecayPeriod    time.Duration `yaml:"decay_period" default:"168h"`
		FlushEvery     int           `yaml:"flush_every" default:"10" validate:"gte=0"`
	} `yaml:"whitelist"`

	AI struct {
		FailureThreshold int          `yaml:"failure_threshold" default:"3" validate:"gt=0"`
		Providers        []AIProvider `yaml:"providers" validate:"dive"`
	} `yaml:"ai"`

	Symbols struct {
		Oracle    string        `yaml:"oracle" default:"binance" validate:"oneof=binance static any"`
		TTL       time.Duration `yaml:"ttl" default:"24h"`
		CacheFile string        `yaml:"cache_file" default:"data/symbols.json"`
		BaseURL   string        `yaml:"base_url"`
		Static    []string      `yaml:"static"`
	} `yaml:"symbols"`

	Risk struct {
		InitialEquity          float64 `yaml:"initial_equity" default:"10000" validate:"gt=0"`
		DailyLossPct           float64 `yaml:"daily_loss_pct" default:"0.05" validate:"gt=0,lt=1"`
		WeeklyLossPct          float64 `yaml:"weekly_loss_pct" default:"0.10" validate:"gt=0,lt=1"`
		RiskPct                float64 `yaml:"risk_pct" default:"0.01" validate:"gt=0,lt=1"`
		MaxOpenPositions       int     `yaml:"max_open_positions" default:"5" validate:"gte=0"`
		MaxPositionPct         float64 `yaml:"max_position_pct" default:"0.2" validate:"gte=0,lte=1"`
		MaxPerCorrelationGroup int     `yaml:"max_per_correlation_group" default:"2" validate:"gte=0"`
		MinRewardRisk          float64 `yaml:"min_reward_risk" default:"1.5" validate:"gte=0"`
		WideStopPct            float64 `yaml:"wide_stop_pct" default:"0.1" validate:"gte=0"`
		DefaultLeverage        int     `yaml:"default_leverage" default:"1" validate:"gte=1,lte=125"`
		KillSwitchPath         string  `yaml:"kill_switch_path" default:"STOP_TRADING"`
		ListsPath              string  `yaml:"lists_path" default:"config/risk_lists.json"`
	} `yaml:"risk"`

	Source struct {
		Kind    string   `yaml:"kind" default:"jsonl" validate:"oneof=jsonl kafka"`
		Path    string   `yaml:"path" default:"data/messages.jsonl"`
		Channel string   `yaml:"channel" default:"replay"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic" default:"telegram.signals"`
		GroupID string   `yaml:"group_id" default:"signal-trading-bot"`
	} `yaml:"source"`

	Server struct {
		Addr string `yaml:"addr" default:":8080"`
	} `yaml:"server"`

	Journal struct {
		Dir           string `yaml:"dir" default:"logs"`
		RetentionDays int    `yaml:"retention_days" default:"7" validate:"gte=0"`
	} `yaml:"journal"`

	Schedule struct {
		WhitelistFlush  string `yaml:"whitelist_flush" default:"@every 5m"`
		SymbolRefresh   string `yaml:"symbol_refresh" default:"@every 1h"`
		JournalCompress string `yaml:"journal_compress" default:"@daily"`
		PositionMark    string `yaml:"position_mark" default:"@every 1m"`
	} `yaml:"schedule"`
}

// AIProvider is one entry of the ordered fallback list.
type AIProvider struct {
	Name        string        `yaml:"name" validate:"required"`
	Kind        string        `yaml:"kind" validate:"oneof=openai claude gemini"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	MaxTokens   int           `yaml:"max_tokens" default:"500"`
	Temperature float64       `yaml:"temperature" default:"0.1"`
	RPM         int           `yaml:"rpm" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout"`
	JSONMode    bool          `yaml:"json_mode"`
	Disabled    bool          `yaml:"disabled"`
}

// APIKey resolves the provider key from the environment.
func (p AIProvider) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Validate checks what struct tags cannot express.
func (c *Config) Validate() error {
	if c.Parser.ProbationFloor > c.Parser.RuleThreshold {
		return fmt.Errorf("parser.probation_floor (%.2f) must not exceed parser.rule_threshold (%.2f)",
			c.Parser.ProbationFloor, c.Parser.RuleThreshold)
	}
	if c.Risk.DailyLossPct > c.Risk.WeeklyLossPct {
		return fmt.Errorf("risk.daily_loss_pct (%.2f) must not exceed risk.weekly_loss_pct (%.2f)",
			c.Risk.DailyLossPct, c.Risk.WeeklyLossPct)
	}
	if err := c.WhitelistPolicy().Validate(); err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}
	if c.Symbols.Oracle == "static" && len(c.Symbols.Static) == 0 {
		return errors.New("symbols.static cannot be empty when symbols.oracle is 'static'")
	}
	if c.Source.Kind == "kafka" && len(c.Source.Brokers) == 0 {
		return errors.New("source.brokers cannot be empty when source.kind is 'kafka'")
	}
	seen := map[string]bool{}
	for _, p := range c.AI.Providers {
		if seen[p.Name] {
			return fmt.Errorf("ai provider %q listed twice", p.Name)
		}
		seen[p.Name] = true
		if p.Kind == "openai" && p.Model == "" {
			return fmt.Errorf("ai provider %q: model is required", p.Name)
		}
	}
	return nil
}

func (c *Config) DryRun() bool { return c.Mode == ModeDryRun }

func (c *Config) WhitelistPolicy() whitelist.Policy {
	w := c.Whitelist
	return whitelist.Policy{
		ServeThreshold: w.ServeThreshold,
		ProbationSeed:  w.ProbationSeed,
		LearnIncrement: w.LearnIncrement,
		HitIncrement:   w.HitIncrement,
		Capacity:       w.Capacity,
		EvictFraction:  w.EvictFraction,
		StaleAfter:     w.StaleAfter,
		DecayRate:      w.DecayRate,
		DecayPeriod:    w.DecayPeriod,
		FlushEvery:     w.FlushEvery,
	}
}

func (c *Config) RiskLimits() risk.Limits {
	r := c.Risk
	return risk.Limits{
		DailyLossPct:           r.DailyLossPct,
		WeeklyLossPct:          r.WeeklyLossPct,
		RiskPct:                r.RiskPct,
		MaxOpenPositions:       r.MaxOpenPositions,
		MaxPositionPct:         r.MaxPositionPct,
		MaxPerCorrelationGroup: r.MaxPerCorrelationGroup,
		MinRewardRisk:          r.MinRewardRisk,
		WideStopPct:            r.WideStopPct,
	}
}

// Default returns a config with every default applied, as if loaded from an
// empty file.
func Default() (*Config, error) {
	return Parse(nil)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	// list elements are not covered by the top-level defaults pass
	for i := range c.AI.Providers {
		if err := defaults.Set(&c.AI.Providers[i]); err != nil {
			return nil, fmt.Errorf("apply defaults: %w", err)
		}
	}
	c.Mode = strings.ToUpper(c.Mode)

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}
