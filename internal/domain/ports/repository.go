package ports

import (
	"context"

	"fx-rate-cache/internal/domain/model"
)

// RateSource is the backing store the cache is populated from. Rows are
// streamed through the callbacks in source order; a callback error aborts
// the read and is returned unchanged.
type RateSource interface {
	CheckCompatibility(ctx context.Context) error
	LoadCurrencies(ctx context.Context, fn func(model.CurrencyRow) error) error
	LoadRates(ctx context.Context, fn func(model.RateRow) error) error
}

// RowCounter is optionally implemented by a RateSource that can report how
// many rate rows each source currency has, so a load can be cross-checked.
type RowCounter interface {
	RateCounts(ctx context.Context) (map[model.CurrencyID]int64, error)
}
