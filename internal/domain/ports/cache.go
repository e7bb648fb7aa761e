package ports

import (
	"context"

	"fx-rate-cache/internal/domain/model"
)

type RateCache interface {
	EnsurePopulated(ctx context.Context) error
	GetRate(ctx context.Context, from, to model.CurrencyID, date model.Date) (float64, bool, error)
	GetRateByXuid(ctx context.Context, from, to string, date model.Date) (float64, bool, error)
	Invalidate()
	Display(ctx context.Context) ([]model.RateRow, error)
	CheckCompatibility(ctx context.Context) error
	Stats() model.CacheStats
}

// InvalidationPublisher tells other instances that their cache is stale.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, reason string) error
}
