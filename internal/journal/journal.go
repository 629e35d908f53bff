// Package journal appends pipeline outcomes and risk decisions to daily
// JSONL files (UTC dates) and gzips files past the retention window.
package journal

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"signal-trading-bot/internal/types"
)

type OutcomeEntry struct {
	Time string `json:"time"`
	types.Outcome
}

type DecisionEntry struct {
	Time     string   `json:"time"`
	Symbol   string   `json:"symbol"`
	Side     string   `json:"side"`
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason"`
	Warnings []string `json:"warnings,omitempty"`
	Entry    float64  `json:"entry"`
	Tier     string   `json:"tier"`
}

type TradeEntry struct {
	Time    string         `json:"time"`
	Symbol  string         `json:"symbol"`
	Side    string         `json:"side"`
	OrderID string         `json:"order_id"`
	Action  string         `json:"action"` // OPEN or CLOSE
	Qty     float64        `json:"qty"`
	Price   float64        `json:"price"`
	PnL     float64        `json:"pnl,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type Journal struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func New(dir string) *Journal {
	if dir == "" {
		dir = "logs"
	}
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) AppendOutcome(o types.Outcome) error {
	now := j.now().UTC()
	return j.append(filepath.Join(j.dir, "signals"), now, OutcomeEntry{Time: stamp(now), Outcome: o})
}

func (j *Journal) AppendDecision(e DecisionEntry) error {
	now := j.now().UTC()
	e.Time = stamp(now)
	return j.append(filepath.Join(j.dir, "decisions"), now, e)
}

func (j *Journal) AppendTrade(e TradeEntry) error {
	now := j.now().UTC()
	e.Time = stamp(now)
	return j.append(filepath.Join(j.dir, "trades"), now, e)
}

func (j *Journal) append(dir string, now time.Time, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	p := filepath.Join(dir, now.Format(time.DateOnly)+".jsonl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal files last written before the retention
// window and removes the originals. It returns the number compressed.
func (j *Journal) CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	n := 0
	err := filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		n++
		return os.Remove(p)
	})
	if os.IsNotExist(err) {
		return n, nil
	}
	return n, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func stamp(t time.Time) string { return t.Format(time.RFC3339) }
