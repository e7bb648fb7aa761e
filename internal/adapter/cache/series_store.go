package cache

import (
	"cmp"
	"fmt"
	"slices"

	"fx-rate-cache/internal/asof"
	"fx-rate-cache/internal/domain/model"
)

type series struct {
	samples []model.RateSample
}

// SeriesStore holds one bounded, date-ascending rate series per currency
// pair. Series are appended to during a load and must be sorted with Sort
// before they are read.
type SeriesStore struct {
	pairs      *BoundedMap[model.PairKey, *series]
	maxEntries int
	entries    int
}

func NewSeriesStore(maxPairs, maxEntries int) *SeriesStore {
	return &SeriesStore{
		pairs:      NewBoundedMap[model.PairKey, *series](maxPairs),
		maxEntries: maxEntries,
	}
}

func (s *SeriesStore) Append(row model.RateRow) error {
	key := row.Pair()
	ser, ok := s.pairs.Get(key)
	if !ok {
		ser = &series{}
		if err := s.pairs.Insert(key, ser); err != nil {
			return fmt.Errorf("pair %s: %w", key, err)
		}
	}
	if len(ser.samples) >= s.maxEntries {
		return fmt.Errorf("%w: pair %s already holds %d rates", model.ErrCapacityExceeded, key, s.maxEntries)
	}

	ser.samples = append(ser.samples, model.RateSample{Date: row.Date, Rate: row.Rate})
	s.entries++
	return nil
}

// Sort orders every series by date. Samples sharing a date keep the order
// they were appended in.
func (s *SeriesStore) Sort() {
	s.pairs.Range(func(_ model.PairKey, ser *series) bool {
		slices.SortStableFunc(ser.samples, func(a, b model.RateSample) int {
			return cmp.Compare(a.Date, b.Date)
		})
		return true
	})
}

// Lookup returns the rate of pair effective at date.
func (s *SeriesStore) Lookup(pair model.PairKey, date model.Date) (float64, bool) {
	ser, ok := s.pairs.Get(pair)
	if !ok {
		return 0, false
	}
	return asof.Lookup(ser.samples, date, 0)
}

// Rows copies out every stored sample ordered by pair and date.
func (s *SeriesStore) Rows() []model.RateRow {
	rows := make([]model.RateRow, 0, s.entries)
	s.pairs.Range(func(key model.PairKey, ser *series) bool {
		for _, sample := range ser.samples {
			rows = append(rows, model.RateRow{From: key.From, To: key.To, Date: sample.Date, Rate: sample.Rate})
		}
		return true
	})

	slices.SortStableFunc(rows, func(a, b model.RateRow) int {
		return cmp.Or(
			cmp.Compare(a.From, b.From),
			cmp.Compare(a.To, b.To),
			cmp.Compare(a.Date, b.Date),
		)
	})
	return rows
}

func (s *SeriesStore) Pairs() int {
	return s.pairs.Len()
}

func (s *SeriesStore) Entries() int {
	return s.entries
}

func (s *SeriesStore) Clear() {
	s.pairs.Clear()
	s.entries = 0
}
