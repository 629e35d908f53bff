package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/types"
)

// Health is a provider's standing in the pool.
type Health string

const (
	Healthy  Health = "healthy"
	Degraded Health = "degraded" // failing, still tried
	Disabled Health = "disabled" // skipped for the rest of the session
)

// Member configures one provider slot.
type Member struct {
	Extractor interfaces.AIExtractor
	RPM       int           // requests per minute; 0 means unlimited
	Timeout   time.Duration // per call; 0 uses the pool default
}

type member struct {
	ext     interfaces.AIExtractor
	limiter *rate.Limiter
	timeout time.Duration

	mu        sync.Mutex
	health    Health
	failures  int
	successes int
	lastError string
	changedAt time.Time
}

// ProviderStatus is a snapshot of one member for reporting.
type ProviderStatus struct {
	Name      string    `json:"name"`
	Health    Health    `json:"health"`
	Failures  int       `json:"consecutive_failures"`
	Successes int       `json:"successes"`
	LastError string    `json:"last_error,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Pool tries providers in order. A provider that fails becomes degraded; after
// FailureThreshold consecutive failures, or any rate-limit error, it is
// disabled. One success returns it to healthy.
type Pool struct {
	members          []*member
	failureThreshold int
	timeout          time.Duration
	now              func() time.Time
}

var _ interfaces.AIExtractor = (*Pool)(nil)

func NewPool(failureThreshold int, timeout time.Duration, members ...Member) *Pool {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := &Pool{failureThreshold: failureThreshold, timeout: timeout, now: time.Now}
	for _, m := range members {
		p.Add(m)
	}
	return p
}

func (p *Pool) Add(m Member) {
	limit := rate.Inf
	burst := 1
	if m.RPM > 0 {
		limit = rate.Every(time.Minute / time.Duration(m.RPM))
		burst = max(1, m.RPM/10)
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	p.members = append(p.members, &member{
		ext:       m.Extractor,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   timeout,
		health:    Healthy,
		changedAt: p.now(),
	})
}

func (p *Pool) Name() string {
	names := make([]string, 0, len(p.members))
	for _, m := range p.members {
		names = append(names, m.ext.Name())
	}
	return "pool[" + strings.Join(names, ",") + "]"
}

func (p *Pool) Len() int { return len(p.members) }

// Available reports whether at least one provider is not disabled.
func (p *Pool) Available() bool {
	for _, m := range p.members {
		if m.state() != Disabled {
			return true
		}
	}
	return false
}

// Extract asks each usable provider in turn and returns the first answer,
// positive or negative. Providers over their rate budget are skipped, not
// waited for. When every attempt fails the result is the negative shape
// together with the last error.
func (p *Pool) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	if strings.TrimSpace(text) == "" {
		return types.NoSignal(p.Name()), nil
	}

	var lastErr error
	for _, m := range p.members {
		if m.state() == Disabled {
			continue
		}
		if !m.limiter.Allow() {
			logger.Debug(ctx, "AI provider over rate budget, skipping", "provider", m.ext.Name())
			lastErr = fmt.Errorf("%s: %w", m.ext.Name(), ErrRateLimited)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		ext, err := m.ext.Extract(callCtx, text)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", m.ext.Name(), err)
			p.recordFailure(ctx, m, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		p.recordSuccess(m)
		if ext.Provider == "" {
			ext.Provider = m.ext.Name()
		}
		return ext, nil
	}

	if lastErr == nil {
		lastErr = ErrNoProviders
	}
	return types.NoSignal(p.Name()), lastErr
}

func (p *Pool) recordSuccess(m *member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
	m.failures = 0
	m.lastError = ""
	if m.health != Healthy {
		m.health = Healthy
		m.changedAt = p.now()
	}
}

func (p *Pool) recordFailure(ctx context.Context, m *member, err error) {
	m.mu.Lock()
	m.failures++
	m.lastError = err.Error()
	prev := m.health
	switch {
	case IsRateLimitError(err), m.failures >= p.failureThreshold:
		m.health = Disabled
	default:
		m.health = Degraded
	}
	if m.health != prev {
		m.changedAt = p.now()
	}
	health, failures := m.health, m.failures
	m.mu.Unlock()

	if health == Disabled && prev != Disabled {
		logger.Warn(ctx, "AI provider disabled", "provider", m.ext.Name(), "failures", failures, "error", err.Error())
		return
	}
	logger.Debug(ctx, "AI provider call failed", "provider", m.ext.Name(), "failures", failures, "error", err.Error())
}

// Reset returns every provider to healthy.
func (p *Pool) Reset() {
	for _, m := range p.members {
		m.mu.Lock()
		m.health, m.failures, m.lastError, m.changedAt = Healthy, 0, "", p.now()
		m.mu.Unlock()
	}
}

func (p *Pool) Status() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(p.members))
	for _, m := range p.members {
		m.mu.Lock()
		out = append(out, ProviderStatus{
			Name:      m.ext.Name(),
			Health:    m.health,
			Failures:  m.failures,
			Successes: m.successes,
			LastError: m.lastError,
			ChangedAt: m.changedAt,
		})
		m.mu.Unlock()
	}
	return out
}

func (m *member) state() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// IsTimeout reports whether err came from a call deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
