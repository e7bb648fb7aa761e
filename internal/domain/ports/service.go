package ports

import (
	"context"

	"fx-rate-cache/internal/domain/model"
)

// RateResult is the answer to a point-in-time lookup. Found is false when
// the pair has no observation on or before Date.
type RateResult struct {
	From  string     `json:"from"`
	To    string     `json:"to"`
	Date  model.Date `json:"date"`
	Rate  float64    `json:"rate"`
	Found bool       `json:"found"`
}

type AsOfRequest struct {
	Dates   []model.Date `json:"dates"`
	Values  []float64    `json:"values"`
	Date    model.Date   `json:"date"`
	Default float64      `json:"default"`
}

type RateService interface {
	GetRate(ctx context.Context, from, to model.CurrencyID, date model.Date) (*RateResult, error)
	GetRateByXuid(ctx context.Context, from, to string, date model.Date) (*RateResult, error)
	GetValueAsOf(ctx context.Context, request AsOfRequest) (float64, error)
	InvalidateCache(ctx context.Context, reload bool) error
	DisplayCache(ctx context.Context) ([]model.RateRow, error)
	CheckCompatibility(ctx context.Context) error
	Stats(ctx context.Context) model.CacheStats
}
