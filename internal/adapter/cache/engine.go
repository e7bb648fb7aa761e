package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/internal/metrics"
	"fx-rate-cache/pkg/logger"
)

const (
	DefaultMaxCurrencies = 1024
	DefaultMaxPairs      = 16 * 1024
	DefaultMaxEntries    = 8 * 1024
	DefaultPollInterval  = 10 * time.Millisecond
)

var errStaleGeneration = errors.New("cache invalidated before population started")

type Options struct {
	MaxCurrencies int
	MaxPairs      int
	MaxEntries    int
	// PollInterval is how often a caller waiting on another population
	// re-checks the state.
	PollInterval time.Duration
	// WaitTimeout bounds that wait. Zero waits until the population ends.
	WaitTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxCurrencies: DefaultMaxCurrencies,
		MaxPairs:      DefaultMaxPairs,
		MaxEntries:    DefaultMaxEntries,
		PollInterval:  DefaultPollInterval,
	}
}

// Engine is the point-in-time rate cache. It loads every currency and rate
// from its source exactly once, on first use, and serves lookups from memory
// until Invalidate is called.
//
// Locks are always taken in the order xuidMu, seriesMu, ctlMu.
type Engine struct {
	source  ports.RateSource
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	xuidMu sync.RWMutex
	xuids  *XuidIndex

	seriesMu sync.RWMutex
	series   *SeriesStore

	ctlMu      sync.RWMutex
	state      model.CacheState
	generation uint64
}

var _ ports.RateCache = (*Engine)(nil)

func NewEngine(source ports.RateSource, opts Options, log *logger.Logger, m *metrics.Metrics) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Engine{
		source:  source,
		opts:    opts,
		log:     log,
		metrics: m,
		xuids:   NewXuidIndex(opts.MaxCurrencies),
		series:  NewSeriesStore(opts.MaxPairs, opts.MaxEntries),
	}
}

func (e *Engine) State() model.CacheState {
	e.ctlMu.RLock()
	defer e.ctlMu.RUnlock()
	return e.state
}

// EnsurePopulated returns once the cache is filled. The first caller to find
// it empty loads it; callers arriving during a load poll until it finishes.
func (e *Engine) EnsurePopulated(ctx context.Context) error {
	var (
		ticker  *time.Ticker
		timeout <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		switch e.State() {
		case model.CacheFilled:
			return nil

		case model.CachePopulating:
			if err := ctx.Err(); err != nil {
				return err
			}
			if ticker == nil {
				e.log.Debug("Cache is being populated, waiting")
				ticker = time.NewTicker(e.opts.PollInterval)
				if e.opts.WaitTimeout > 0 {
					timer := time.NewTimer(e.opts.WaitTimeout)
					defer timer.Stop()
					timeout = timer.C
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timeout:
				return fmt.Errorf("%w after %s", model.ErrWaitTimeout, e.opts.WaitTimeout)
			case <-ticker.C:
			}

		default:
			if gen, ok := e.claim(); ok {
				// A stale population leaves the state to the newer
				// generation; go round again and follow it.
				if err := e.populate(ctx, gen); !errors.Is(err, errStaleGeneration) {
					return err
				}
			}
		}
	}
}

// claim moves the cache from empty to populating. It fails if another
// caller got there first.
func (e *Engine) claim() (uint64, bool) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.state != model.CacheEmpty {
		return 0, false
	}
	e.state = model.CachePopulating
	return e.generation, true
}

// finish records the outcome of the population started at gen. An
// invalidation since then owns the state and is left alone.
func (e *Engine) finish(gen uint64, filled bool) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.generation != gen {
		e.log.Debug("Cache invalidated during population, discarding result", "generation", gen)
		return
	}
	if filled {
		e.state = model.CacheFilled
	} else {
		e.state = model.CacheEmpty
	}
}

func (e *Engine) populate(ctx context.Context, gen uint64) (err error) {
	start := time.Now()
	filled := false
	defer func() {
		e.finish(gen, filled)
		if !errors.Is(err, errStaleGeneration) {
			e.metrics.ObservePopulation(time.Since(start), err)
		}
		e.metrics.SetCacheStats(e.Stats())
	}()

	e.log.Debug("Populating cache", "generation", gen)

	if err := e.CheckCompatibility(ctx); err != nil {
		e.log.Error("Database is not compatible, cache not populated", "error", err)
		return err
	}

	res, err := e.load(ctx, gen)
	if errors.Is(err, errStaleGeneration) {
		e.log.Debug("Cache invalidated before load, leaving it to the newer generation", "generation", gen)
		return err
	}
	if err != nil {
		e.log.Error("Failed to populate cache", "error", err)
		return err
	}

	filled = true
	e.log.Info("Cache populated",
		"currencies", res.Currencies,
		"pairs", res.Pairs,
		"entries", res.Entries,
		"duration", time.Since(start),
	)
	return nil
}

// load fills the collections for generation gen. The collections belong
// to whichever generation is current, so a load whose generation has been
// invalidated returns errStaleGeneration without touching them.
func (e *Engine) load(ctx context.Context, gen uint64) (loadResult, error) {
	e.xuidMu.Lock()
	defer e.xuidMu.Unlock()
	e.seriesMu.Lock()
	defer e.seriesMu.Unlock()

	e.ctlMu.RLock()
	current := e.generation
	e.ctlMu.RUnlock()
	if current != gen {
		return loadResult{}, errStaleGeneration
	}

	e.xuids.Clear()
	e.series.Clear()

	p := &pipeline{source: e.source, xuids: e.xuids, series: e.series, log: e.log}
	res, err := p.run(ctx)
	if err != nil {
		e.xuids.Clear()
		e.series.Clear()
	}
	return res, err
}

// Invalidate drops everything the cache holds. The next lookup reloads it.
// A population still running when Invalidate is called will not mark the
// cache filled.
func (e *Engine) Invalidate() {
	e.log.Debug("Waiting for cache locks to invalidate")

	e.xuidMu.Lock()
	defer e.xuidMu.Unlock()
	e.seriesMu.Lock()
	defer e.seriesMu.Unlock()
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	e.xuids.Clear()
	e.series.Clear()
	e.state = model.CacheEmpty
	e.generation++

	e.metrics.SetCacheStats(model.CacheStats{State: model.CacheEmpty, Generation: e.generation})
	e.log.Info("Cache invalidated", "generation", e.generation)
}

func (e *Engine) CheckCompatibility(ctx context.Context) error {
	if err := e.source.CheckCompatibility(ctx); err != nil {
		if errors.Is(err, model.ErrSchemaIncompatible) {
			return err
		}
		return fmt.Errorf("%w: %v", model.ErrSchemaIncompatible, err)
	}
	return nil
}

// GetRate returns the rate from -> to effective at date. found is false when
// the pair is unknown or has no rate on or before date.
func (e *Engine) GetRate(ctx context.Context, from, to model.CurrencyID, date model.Date) (float64, bool, error) {
	if from == to {
		e.metrics.ObserveLookup("identity")
		return 1.0, true, nil
	}
	if err := e.EnsurePopulated(ctx); err != nil {
		return 0, false, err
	}
	rate, found := e.lookup(model.PairKey{From: from, To: to}, date)
	return rate, found, nil
}

func (e *Engine) lookup(pair model.PairKey, date model.Date) (float64, bool) {
	e.seriesMu.RLock()
	rate, found := e.series.Lookup(pair, date)
	e.seriesMu.RUnlock()

	if found {
		e.metrics.ObserveLookup("hit")
	} else {
		e.metrics.ObserveLookup("miss")
	}
	return rate, found
}

// GetRateByXuid resolves both xuids and delegates to GetRate. An xuid with
// no currency is an error, not a miss.
func (e *Engine) GetRateByXuid(ctx context.Context, from, to string, date model.Date) (float64, bool, error) {
	fromXuid, err := model.NormalizeXuid(from)
	if err != nil {
		return 0, false, err
	}
	toXuid, err := model.NormalizeXuid(to)
	if err != nil {
		return 0, false, err
	}
	if fromXuid == toXuid {
		e.metrics.ObserveLookup("identity")
		return 1.0, true, nil
	}

	if err := e.EnsurePopulated(ctx); err != nil {
		return 0, false, err
	}

	fromID, toID, err := e.resolvePair(fromXuid, toXuid)
	if err != nil {
		e.metrics.ObserveLookup("unknown")
		return 0, false, err
	}
	return e.GetRate(ctx, fromID, toID, date)
}

func (e *Engine) resolvePair(from, to model.Xuid) (model.CurrencyID, model.CurrencyID, error) {
	e.xuidMu.RLock()
	defer e.xuidMu.RUnlock()

	fromID, err := e.xuids.Resolve(string(from))
	if err != nil {
		return 0, 0, err
	}
	toID, err := e.xuids.Resolve(string(to))
	if err != nil {
		return 0, 0, err
	}
	return fromID, toID, nil
}

// Display copies out the whole cache ordered by pair and date.
func (e *Engine) Display(ctx context.Context) ([]model.RateRow, error) {
	if err := e.EnsurePopulated(ctx); err != nil {
		return nil, err
	}

	e.seriesMu.RLock()
	defer e.seriesMu.RUnlock()
	return e.series.Rows(), nil
}

func (e *Engine) Stats() model.CacheStats {
	e.xuidMu.RLock()
	defer e.xuidMu.RUnlock()
	e.seriesMu.RLock()
	defer e.seriesMu.RUnlock()
	e.ctlMu.RLock()
	defer e.ctlMu.RUnlock()

	return model.CacheStats{
		State:      e.state,
		Currencies: e.xuids.Len(),
		Pairs:      e.series.Pairs(),
		Entries:    e.series.Entries(),
		Generation: e.generation,
	}
}
