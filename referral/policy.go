/*
policy.go - Level qualification and the commission rate table

PURPOSE:

	Decides whether an ancestor earns a payout at a given level, and at what
	rate. The rule is configuration, not derived from data: an explicit small
	ordered table mapping level 1..5 to a rate, loaded once at startup.

QUALIFICATION RULE:

	An ancestor qualifies for level L's payout iff its own direct-referral
	count >= L. Referral depth alone grants nothing - each ancestor must have
	recruited at least L direct referrals to earn level L. A non-qualifying
	level pays rate zero: no credit, no record.

WHY JSON CONFIG?
  - Operators can change rates without code changes
  - The table ships with a compiled-in default (flat 2% per level)
  - Malformed tables are rejected at startup, not at distribution time

JSON SCHEMA:

	{
	  "rates": {"1": 0.02, "2": 0.02, "3": 0.02, "4": 0.02, "5": 0.02}
	}
*/
package referral

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// MaxLevel caps upward traversal. The platform pays five ancestor levels.
const MaxLevel = 5

// =============================================================================
// RATE TABLE
// =============================================================================

// RateTable maps level (1..MaxLevel) to a commission rate. Immutable after
// construction; safe for concurrent reads.
type RateTable struct {
	rates [MaxLevel + 1]decimal.Decimal // index 0 unused
}

// DefaultRateTable is a flat 2% across all five levels, matching the
// platform's production settings.
func DefaultRateTable() RateTable {
	var t RateTable
	flat := decimal.NewFromFloat(0.02)
	for level := 1; level <= MaxLevel; level++ {
		t.rates[level] = flat
	}
	return t
}

// NewRateTable builds a table from per-level rates keyed 1..MaxLevel.
// Every level must be present, with 0 <= rate <= 1.
func NewRateTable(rates map[int]decimal.Decimal) (RateTable, error) {
	var t RateTable
	for level := 1; level <= MaxLevel; level++ {
		rate, ok := rates[level]
		if !ok {
			return RateTable{}, fmt.Errorf("%w: level %d missing", ErrInvalidRateTable, level)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return RateTable{}, fmt.Errorf("%w: level %d rate %s out of [0,1]", ErrInvalidRateTable, level, rate)
		}
		t.rates[level] = rate
	}
	return t, nil
}

// LevelRate returns the configured rate for a level regardless of
// qualification. Out-of-range levels rate zero.
func (t RateTable) LevelRate(level int) decimal.Decimal {
	if level < 1 || level > MaxLevel {
		return decimal.Zero
	}
	return t.rates[level]
}

// RateFor applies the qualification rule: the level's rate iff the
// ancestor's direct-referral count reaches the level, else zero.
func (t RateTable) RateFor(level, directCount int) decimal.Decimal {
	if directCount < level {
		return decimal.Zero
	}
	return t.LevelRate(level)
}

// =============================================================================
// JSON CONFIG
// =============================================================================

type rateTableJSON struct {
	Rates map[string]float64 `json:"rates"`
}

// ParseRateTable builds a RateTable from its JSON representation.
func ParseRateTable(data []byte) (RateTable, error) {
	var cfg rateTableJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RateTable{}, fmt.Errorf("%w: %v", ErrInvalidRateTable, err)
	}

	rates := make(map[int]decimal.Decimal, len(cfg.Rates))
	for k, v := range cfg.Rates {
		level, err := strconv.Atoi(k)
		if err != nil {
			return RateTable{}, fmt.Errorf("%w: level key %q", ErrInvalidRateTable, k)
		}
		if level < 1 || level > MaxLevel {
			return RateTable{}, fmt.Errorf("%w: level %d out of range 1..%d", ErrInvalidRateTable, level, MaxLevel)
		}
		rates[level] = decimal.NewFromFloat(v)
	}
	return NewRateTable(rates)
}
