package cache

import (
	"context"
	"errors"
	"fmt"

	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/pkg/logger"
)

type loadResult struct {
	Currencies int
	Pairs      int
	Entries    int
}

// pipeline fills an XuidIndex and a SeriesStore from a RateSource. The
// caller holds the write locks of both collections for the whole run.
type pipeline struct {
	source ports.RateSource
	xuids  *XuidIndex
	series *SeriesStore
	log    *logger.Logger
}

func (p *pipeline) run(ctx context.Context) (loadResult, error) {
	var res loadResult

	err := p.source.LoadCurrencies(ctx, func(row model.CurrencyRow) error {
		if err := p.xuids.Insert(row.Xuid, row.ID); err != nil {
			return fmt.Errorf("currency %d: %w", row.ID, err)
		}
		res.Currencies++
		p.log.Debug("Currency loaded", "id", row.ID, "xuid", row.Xuid)
		return nil
	})
	if err != nil {
		return res, sourceError("load currencies", err)
	}
	if res.Currencies == 0 {
		return res, fmt.Errorf("%w: currency table is empty", model.ErrSourceRead)
	}
	p.log.Debug("Currencies loaded", "count", res.Currencies)

	var expected map[model.CurrencyID]int64
	if counter, ok := p.source.(ports.RowCounter); ok {
		expected, err = counter.RateCounts(ctx)
		if err != nil {
			return res, sourceError("count rates", err)
		}
	}

	loaded := make(map[model.CurrencyID]int64)
	err = p.source.LoadRates(ctx, func(row model.RateRow) error {
		if err := p.series.Append(row); err != nil {
			return err
		}
		loaded[row.From]++
		return nil
	})
	if err != nil {
		return res, sourceError("load rates", err)
	}

	if expected != nil {
		if err := compareCounts(expected, loaded); err != nil {
			return res, err
		}
	}

	p.series.Sort()

	res.Pairs = p.series.Pairs()
	res.Entries = p.series.Entries()
	return res, nil
}

// sourceError tags a feed failure as a source read error unless it is
// already one of the cache's own failure kinds.
func sourceError(step string, err error) error {
	if errors.Is(err, model.ErrCapacityExceeded) || errors.Is(err, model.ErrSourceRead) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrSourceRead, step, err)
}

func compareCounts(expected, loaded map[model.CurrencyID]int64) error {
	for id, want := range expected {
		if got := loaded[id]; got != want {
			return fmt.Errorf("%w: currency %d expected %d rates, loaded %d", model.ErrSourceRead, id, want, got)
		}
	}
	for id, got := range loaded {
		if _, ok := expected[id]; !ok {
			return fmt.Errorf("%w: currency %d loaded %d rates that were not counted", model.ErrSourceRead, id, got)
		}
	}
	return nil
}
