package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"signal-trading-bot/internal/logger"
)

// startScheduler registers the housekeeping jobs. An empty spec disables a
// job.
func (a *app) startScheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	s := a.cfg.Schedule

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"whitelist-flush", s.WhitelistFlush, func() {
			if err := a.cache.Flush(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Scheduled whitelist flush failed", err)
			}
		}},
		{"symbol-refresh", s.SymbolRefresh, func() {
			if a.symbols != nil {
				a.symbols.RefreshIfStale(ctx)
			}
		}},
		{"journal-compress", s.JournalCompress, func() {
			if a.journal == nil {
				return
			}
			n, err := a.journal.CompressOlder(a.cfg.Journal.RetentionDays)
			if err != nil {
				logger.ErrorWithErr(ctx, "Journal compression failed", err)
				return
			}
			if n > 0 {
				logger.Info(ctx, "Compressed old journal files", "files", n)
			}
		}},
		{"position-mark", s.PositionMark, func() {
			if a.paper == nil || a.prices == nil {
				return
			}
			n, err := a.paper.MarkAll(ctx, a.prices)
			if err != nil {
				logger.ErrorWithErr(ctx, "Marking open positions failed", err)
			}
			if n > 0 {
				logger.Info(ctx, "Closed paper positions at market", "closed", n)
			}
		}},
	}

	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := c.AddFunc(j.spec, j.run); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		logger.Debug(ctx, "Scheduled job", "job", j.name, "spec", j.spec)
	}
	c.Start()
	return c, nil
}
