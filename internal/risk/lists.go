package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListConfig is the persisted symbol-list document.
type ListConfig struct {
	Whitelist         []string            `json:"whitelist"`
	Blacklist         []string            `json:"blacklist"`
	CorrelationGroups map[string][]string `json:"correlation_groups"`
}

// DefaultListConfig allows every symbol and groups the usual movers.
func DefaultListConfig() ListConfig {
	return ListConfig{
		Whitelist: []string{},
		Blacklist: []string{},
		CorrelationGroups: map[string][]string{
			"majors": {"BTCUSDT", "ETHUSDT"},
			"layer1": {"SOLUSDT", "AVAXUSDT", "ADAUSDT", "DOTUSDT", "NEARUSDT", "ATOMUSDT"},
			"layer2": {"ARBUSDT", "OPUSDT", "MATICUSDT", "POLUSDT"},
			"meme":   {"DOGEUSDT", "SHIBUSDT", "PEPEUSDT", "FLOKIUSDT", "BONKUSDT", "WIFUSDT"},
		},
	}
}

func LoadListConfig(path string) (ListConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ListConfig{}, err
	}
	var cfg ListConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ListConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// SaveListConfig writes cfg as one JSON document, replacing the file
// atomically.
func SaveListConfig(path string, cfg ListConfig) error {
	cfg.normalize()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *ListConfig) normalize() {
	c.Whitelist = normalizeList(c.Whitelist)
	c.Blacklist = normalizeList(c.Blacklist)
	if c.CorrelationGroups == nil {
		c.CorrelationGroups = map[string][]string{}
	}
	for g, members := range c.CorrelationGroups {
		c.CorrelationGroups[g] = normalizeList(members)
	}
}

func normalizeList(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NormalizeSymbol upper-cases a pair and drops separators, so "btc/usdt",
// "BTC_USDT" and "BTCUSDT" compare equal.
func NormalizeSymbol(s string) string {
	r := strings.NewReplacer("/", "", "_", "", "-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(s)))
}

func contains(list []string, s string) bool {
	i := sort.SearchStrings(list, s)
	return i < len(list) && list[i] == s
}

func insert(list []string, s string) ([]string, bool) {
	if contains(list, s) {
		return list, false
	}
	list = append(list, s)
	sort.Strings(list)
	return list, true
}

func remove(list []string, s string) ([]string, bool) {
	i := sort.SearchStrings(list, s)
	if i >= len(list) || list[i] != s {
		return list, false
	}
	return append(list[:i], list[i+1:]...), true
}
