package model

import (
	"fmt"
)

// PairKey is an ordered currency pair. (A,B) and (B,A) are distinct.
type PairKey struct {
	From CurrencyID
	To   CurrencyID
}

func (p PairKey) String() string {
	return fmt.Sprintf("%d-%d", p.From, p.To)
}

func (p PairKey) IsIdentity() bool {
	return p.From == p.To
}

// RateSample is a single observation in a pair's series.
type RateSample struct {
	Date Date
	Rate float64
}

// RateRow is one row of the rate feed, also used to dump the cache.
type RateRow struct {
	From CurrencyID `json:"from_id"`
	To   CurrencyID `json:"to_id"`
	Date Date       `json:"date"`
	Rate float64    `json:"rate"`
}

func (r RateRow) Pair() PairKey {
	return PairKey{From: r.From, To: r.To}
}

// CacheStats summarises what a populated cache holds.
type CacheStats struct {
	State      CacheState `json:"state"`
	Currencies int        `json:"currencies"`
	Pairs      int        `json:"pairs"`
	Entries    int        `json:"entries"`
	Generation uint64     `json:"generation"`
}
