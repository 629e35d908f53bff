package whitelist

import (
	"fmt"
	"time"
)

// Policy holds the tunable numbers of the cache lifecycle.
type Policy struct {
	ServeThreshold float64       // lookups below this are misses
	ProbationSeed  float64       // confidence of a newly learned structure
	LearnIncrement float64       // bump per repeated Learn
	HitIncrement   float64       // bump per RecordUsage
	Capacity       int           // entries kept before eviction
	EvictFraction  float64       // share removed when over capacity
	StaleAfter     time.Duration // last_seen age at which decay starts
	DecayRate      float64       // multiplier per DecayPeriod of staleness
	DecayPeriod    time.Duration
	FlushEvery     int // mutations between automatic flushes; 0 disables
}

func DefaultPolicy() Policy {
	return Policy{
		ServeThreshold: 0.7,
		ProbationSeed:  0.6,
		LearnIncrement: 0.05,
		HitIncrement:   0.01,
		Capacity:       1000,
		EvictFraction:  0.1,
		StaleAfter:     30 * 24 * time.Hour,
		DecayRate:      0.95,
		DecayPeriod:    7 * 24 * time.Hour,
		FlushEvery:     10,
	}
}

func (p Policy) Validate() error {
	if p.ServeThreshold <= 0 || p.ServeThreshold > 1 {
		return fmt.Errorf("serve threshold must be in (0,1], got %.2f", p.ServeThreshold)
	}
	if p.ProbationSeed < 0 || p.ProbationSeed > 1 {
		return fmt.Errorf("probation seed must be in [0,1], got %.2f", p.ProbationSeed)
	}
	if p.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", p.Capacity)
	}
	if p.EvictFraction <= 0 || p.EvictFraction > 1 {
		return fmt.Errorf("evict fraction must be in (0,1], got %.2f", p.EvictFraction)
	}
	if p.DecayRate <= 0 || p.DecayRate > 1 {
		return fmt.Errorf("decay rate must be in (0,1], got %.2f", p.DecayRate)
	}
	if p.DecayPeriod <= 0 {
		return fmt.Errorf("decay period must be positive, got %s", p.DecayPeriod)
	}
	return nil
}
