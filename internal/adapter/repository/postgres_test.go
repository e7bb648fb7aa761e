package repository

import (
	"context"
	"os"
	"testing"

	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/pkg/logger"
)

func TestOneLine(t *testing.T) {
	got := oneLine("SELECT a,\n\t\tb\n  FROM t  ")
	if got != "SELECT a, b FROM t" {
		t.Errorf("Expected collapsed query, got: %q", got)
	}
}

func TestDefaultQueriesAreSet(t *testing.T) {
	q := DefaultQueries()
	for name, query := range map[string]string{
		"validation":  q.Validation,
		"currencies":  q.Currencies,
		"rate counts": q.RateCounts,
		"rates":       q.Rates,
	} {
		if oneLine(query) == "" {
			t.Errorf("Expected default %s query", name)
		}
	}
}

// TestPostgresSource runs against a real database when FXCACHE_TEST_DSN
// points at one with the plan.currency and plan.fx_rate tables.
func TestPostgresSource(t *testing.T) {
	dsn := os.Getenv("FXCACHE_TEST_DSN")
	if dsn == "" {
		t.Skip("FXCACHE_TEST_DSN not set")
	}

	ctx := context.Background()
	src, err := NewPostgresSource(ctx, dsn, DefaultQueries(), logger.Nop())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer src.Close()

	if err := src.CheckCompatibility(ctx); err != nil {
		t.Fatalf("Expected compatible schema, got: %v", err)
	}

	currencies := 0
	if err := src.LoadCurrencies(ctx, func(model.CurrencyRow) error {
		currencies++
		return nil
	}); err != nil {
		t.Fatalf("LoadCurrencies failed: %v", err)
	}

	counts, err := src.RateCounts(ctx)
	if err != nil {
		t.Fatalf("RateCounts failed: %v", err)
	}

	loaded := make(map[model.CurrencyID]int64)
	if err := src.LoadRates(ctx, func(row model.RateRow) error {
		loaded[row.From]++
		return nil
	}); err != nil {
		t.Fatalf("LoadRates failed: %v", err)
	}

	for id, want := range counts {
		if loaded[id] != want {
			t.Errorf("Currency %d: expected %d rates, loaded %d", id, want, loaded[id])
		}
	}
}
