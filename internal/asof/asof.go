// Package asof resolves the value effective at a date from a date-ascending
// series of observations: the latest observation on or before the date,
// forward-filled past the last one and undefined before the first one.
package asof

import (
	"fmt"
	"sort"

	"fx-rate-cache/internal/domain/model"
)

// Point pairs a date with a value.
type Point[V any] struct {
	Date  model.Date `json:"date"`
	Value V          `json:"value"`
}

// Index returns the position of the sample effective at d in a series of n
// date-ascending samples, or -1 when there is none. dateAt(i) must return
// the date of sample i.
func Index(n int, dateAt func(i int) model.Date, d model.Date) int {
	if n == 0 || d < dateAt(0) {
		return -1
	}
	if d >= dateAt(n-1) {
		return n - 1
	}

	i := sort.Search(n, func(i int) bool { return dateAt(i) >= d })
	if dateAt(i) == d {
		return i
	}
	return i - 1
}

// Lookup resolves d against a stored rate series.
func Lookup(samples []model.RateSample, d model.Date, def float64) (float64, bool) {
	i := Index(len(samples), func(i int) model.Date { return samples[i].Date }, d)
	if i < 0 {
		return def, false
	}
	return samples[i].Rate, true
}

// Parallel resolves d against two parallel slices of dates and values.
func Parallel[V any](dates []model.Date, values []V, d model.Date, def V) (V, error) {
	if len(dates) != len(values) {
		return def, fmt.Errorf("%w: %d dates, %d values", model.ErrLengthMismatch, len(dates), len(values))
	}

	i := Index(len(dates), func(i int) model.Date { return dates[i] }, d)
	if i < 0 {
		return def, nil
	}
	return values[i], nil
}

// Pairs resolves d against a slice of dated points.
func Pairs[V any](points []Point[V], d model.Date, def V) V {
	i := Index(len(points), func(i int) model.Date { return points[i].Date }, d)
	if i < 0 {
		return def
	}
	return points[i].Value
}
