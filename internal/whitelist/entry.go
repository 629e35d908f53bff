package whitelist

import (
	"time"

	"signal-trading-bot/internal/fingerprint"
	"signal-trading-bot/internal/types"
)

// Entry is one learned message structure and the extraction cached for it.
type Entry struct {
	StructureHash     string                  `json:"structure_hash"`
	Symbol            string                  `json:"symbol"`
	Fingerprint       fingerprint.Fingerprint `json:"fingerprint"`
	SuccessCount      int                     `json:"success_count"`
	Confidence        float64                 `json:"confidence"`
	FirstSeen         time.Time               `json:"first_seen"`
	LastSeen          time.Time               `json:"last_seen"`
	LastDecay         time.Time               `json:"last_decay,omitempty"`
	Language          types.Locale            `json:"language"`
	FormatShape       fingerprint.Shape       `json:"format_shape"`
	CachedEntries     []float64               `json:"cached_entries"`
	CachedTakeProfits []float64               `json:"cached_take_profits"`
	CachedStopLoss    *float64                `json:"cached_stop_loss,omitempty"`
	CachedLeverage    int                     `json:"cached_leverage,omitempty"`
}

func (e *Entry) clone() Entry {
	out := *e
	out.CachedEntries = append([]float64(nil), e.CachedEntries...)
	out.CachedTakeProfits = append([]float64(nil), e.CachedTakeProfits...)
	if e.CachedStopLoss != nil {
		sl := *e.CachedStopLoss
		out.CachedStopLoss = &sl
	}
	return out
}

// Observation is a successful extraction offered to the cache.
type Observation struct {
	Text        string
	Symbol      string
	Entries     []float64
	TakeProfits []float64
	StopLoss    *float64
	Leverage    int
	Language    types.Locale
}

// Document is the persisted form of the whole cache.
type Document struct {
	Version int              `json:"version"`
	SavedAt time.Time        `json:"saved_at"`
	Entries map[string]Entry `json:"entries"`
}

const documentVersion = 1
