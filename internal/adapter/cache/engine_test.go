package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/pkg/logger"
)

type fakeSource struct {
	currencies []model.CurrencyRow
	rates      []model.RateRow

	checkErr    error
	currencyErr error
	rateErr     error
	panicOnLoad bool

	// When started is set the first currency load signals it and blocks
	// until release is closed.
	started chan struct{}
	release chan struct{}
	gate    sync.Once

	// Same for the first compatibility check. Later checks pass straight
	// through.
	checkStarted chan struct{}
	checkRelease chan struct{}
	checkGated   atomic.Bool

	checks atomic.Int32
	loads  atomic.Int32
}

func (f *fakeSource) CheckCompatibility(ctx context.Context) error {
	f.checks.Add(1)
	if f.checkStarted != nil && f.checkGated.CompareAndSwap(false, true) {
		close(f.checkStarted)
		<-f.checkRelease
	}
	return f.checkErr
}

func (f *fakeSource) LoadCurrencies(ctx context.Context, fn func(model.CurrencyRow) error) error {
	f.loads.Add(1)
	if f.started != nil {
		f.gate.Do(func() {
			close(f.started)
			<-f.release
		})
	}
	if f.panicOnLoad {
		panic("source exploded")
	}
	if f.currencyErr != nil {
		return f.currencyErr
	}
	for _, row := range f.currencies {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) LoadRates(ctx context.Context, fn func(model.RateRow) error) error {
	if f.rateErr != nil {
		return f.rateErr
	}
	for _, row := range f.rates {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

type countingSource struct {
	*fakeSource
	counts map[model.CurrencyID]int64
}

func (c *countingSource) RateCounts(ctx context.Context) (map[model.CurrencyID]int64, error) {
	return c.counts, nil
}

func day(y int, m time.Month, d int) model.Date {
	return model.NewDate(y, m, d)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		currencies: []model.CurrencyRow{
			{ID: 1, Xuid: "USD"},
			{ID: 2, Xuid: "eur"},
			{ID: 3, Xuid: "Gbp"},
		},
		// Deliberately out of order to exercise the post-load sort.
		rates: []model.RateRow{
			{From: 1, To: 2, Date: day(2000, 1, 5), Rate: 50},
			{From: 1, To: 2, Date: day(2000, 1, 1), Rate: 10},
			{From: 1, To: 2, Date: day(2000, 1, 8), Rate: 80},
			{From: 1, To: 2, Date: day(2000, 1, 2), Rate: 20},
			{From: 1, To: 2, Date: day(2000, 1, 3), Rate: 30},
			{From: 2, To: 1, Date: day(2000, 1, 1), Rate: 0.1},
		},
	}
}

func newTestEngine(src *fakeSource, opts Options) *Engine {
	return NewEngine(src, opts, logger.Nop(), nil)
}

func TestEngine_GetRate(t *testing.T) {
	e := newTestEngine(newFakeSource(), DefaultOptions())
	ctx := context.Background()

	testCases := []struct {
		name          string
		from, to      model.CurrencyID
		date          model.Date
		expectedRate  float64
		expectedFound bool
	}{
		{name: "between samples", from: 1, to: 2, date: day(2000, 1, 4), expectedRate: 30, expectedFound: true},
		{name: "exact match", from: 1, to: 2, date: day(2000, 1, 8), expectedRate: 80, expectedFound: true},
		{name: "exact first", from: 1, to: 2, date: day(2000, 1, 1), expectedRate: 10, expectedFound: true},
		{name: "before range", from: 1, to: 2, date: day(1999, 12, 31), expectedFound: false},
		{name: "after range", from: 1, to: 2, date: day(2000, 1, 9), expectedRate: 80, expectedFound: true},
		{name: "reverse pair is separate", from: 2, to: 1, date: day(2000, 1, 4), expectedRate: 0.1, expectedFound: true},
		{name: "pair without series", from: 1, to: 3, date: day(2000, 1, 4), expectedFound: false},
		{name: "identity", from: 3, to: 3, date: day(1900, 1, 1), expectedRate: 1, expectedFound: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rate, found, err := e.GetRate(ctx, tc.from, tc.to, tc.date)
			require.NoError(t, err)
			require.Equal(t, tc.expectedFound, found)
			if tc.expectedFound {
				require.Equal(t, tc.expectedRate, rate)
			}
		})
	}
}

func TestEngine_IdentityDoesNotTouchSource(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(src, DefaultOptions())

	rate, found, err := e.GetRate(context.Background(), 42, 42, day(2000, 1, 1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1.0, rate)

	rate, found, err = e.GetRateByXuid(context.Background(), "XYZ", " xyz", day(2000, 1, 1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1.0, rate)

	require.Zero(t, src.loads.Load())
	require.Equal(t, model.CacheEmpty, e.State())
}

func TestEngine_GetRateByXuid(t *testing.T) {
	e := newTestEngine(newFakeSource(), DefaultOptions())
	ctx := context.Background()

	rate, found, err := e.GetRateByXuid(ctx, "usd", "EUR", day(2000, 1, 6))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 50.0, rate)

	_, found, err = e.GetRateByXuid(ctx, "gbp", "usd", day(2000, 1, 6))
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = e.GetRateByXuid(ctx, "usd", "jpy", day(2000, 1, 6))
	require.ErrorIs(t, err, model.ErrUnknownCurrency)

	_, _, err = e.GetRateByXuid(ctx, "", "usd", day(2000, 1, 6))
	require.ErrorIs(t, err, model.ErrUnknownCurrency)
}

func TestEngine_EnsurePopulatedIsIdempotent(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(src, DefaultOptions())
	ctx := context.Background()

	require.NoError(t, e.EnsurePopulated(ctx))
	first, err := e.Display(ctx)
	require.NoError(t, err)

	require.NoError(t, e.EnsurePopulated(ctx))
	second, err := e.Display(ctx)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, int32(1), src.loads.Load())
	require.Equal(t, int32(1), src.checks.Load())
	require.Equal(t, model.CacheFilled, e.State())
}

func TestEngine_ConcurrentEnsurePopulatedLoadsOnce(t *testing.T) {
	src := newFakeSource()
	src.started = make(chan struct{})
	src.release = make(chan struct{})
	e := newTestEngine(src, Options{
		MaxCurrencies: 8,
		MaxPairs:      8,
		MaxEntries:    8,
		PollInterval:  time.Millisecond,
	})
	ctx := context.Background()

	const callers = 16
	errs := make(chan error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- e.EnsurePopulated(ctx)
	}()
	<-src.started
	require.Equal(t, model.CachePopulating, e.State())

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.EnsurePopulated(ctx)
		}()
	}

	close(src.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), src.loads.Load())
	require.Equal(t, model.CacheFilled, e.State())
}

func TestEngine_ConcurrentLookups(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(src, DefaultOptions())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, found, err := e.GetRate(ctx, 1, 2, day(2000, 1, 4))
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 30.0, rate)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), src.loads.Load())
}

func TestEngine_FailedPopulationIsRetryable(t *testing.T) {
	src := newFakeSource()
	src.rateErr = errors.New("connection reset")
	e := newTestEngine(src, DefaultOptions())
	ctx := context.Background()

	_, _, err := e.GetRate(ctx, 1, 2, day(2000, 1, 4))
	require.ErrorIs(t, err, model.ErrSourceRead)
	require.Equal(t, model.CacheEmpty, e.State())

	stats := e.Stats()
	require.Zero(t, stats.Currencies, "partial identity data must be discarded")
	require.Zero(t, stats.Entries)

	src.rateErr = nil
	rate, found, err := e.GetRate(ctx, 1, 2, day(2000, 1, 4))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 30.0, rate)
	require.Equal(t, int32(2), src.loads.Load())
}

func TestEngine_PanicReleasesState(t *testing.T) {
	src := newFakeSource()
	src.panicOnLoad = true
	e := newTestEngine(src, DefaultOptions())

	require.Panics(t, func() {
		_ = e.EnsurePopulated(context.Background())
	})
	require.Equal(t, model.CacheEmpty, e.State())

	src.panicOnLoad = false
	require.NoError(t, e.EnsurePopulated(context.Background()))
	require.Equal(t, model.CacheFilled, e.State())
}

func TestEngine_PopulationErrors(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(src *fakeSource, opts *Options)
		expectedErr error
	}{
		{
			name: "schema incompatible",
			mutate: func(src *fakeSource, _ *Options) {
				src.checkErr = errors.New("tables plan.currency and plan.fx_rate not found")
			},
			expectedErr: model.ErrSchemaIncompatible,
		},
		{
			name: "currency feed fails",
			mutate: func(src *fakeSource, _ *Options) {
				src.currencyErr = errors.New("timeout")
			},
			expectedErr: model.ErrSourceRead,
		},
		{
			name: "no currencies",
			mutate: func(src *fakeSource, _ *Options) {
				src.currencies = nil
			},
			expectedErr: model.ErrSourceRead,
		},
		{
			name: "xuid mapped to two currencies",
			mutate: func(src *fakeSource, _ *Options) {
				src.currencies = append(src.currencies, model.CurrencyRow{ID: 4, Xuid: "usd"})
			},
			expectedErr: model.ErrSourceRead,
		},
		{
			name: "too many currencies",
			mutate: func(_ *fakeSource, opts *Options) {
				opts.MaxCurrencies = 2
			},
			expectedErr: model.ErrCapacityExceeded,
		},
		{
			name: "too many pairs",
			mutate: func(_ *fakeSource, opts *Options) {
				opts.MaxPairs = 1
			},
			expectedErr: model.ErrCapacityExceeded,
		},
		{
			name: "series too long",
			mutate: func(_ *fakeSource, opts *Options) {
				opts.MaxEntries = 4
			},
			expectedErr: model.ErrCapacityExceeded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := newFakeSource()
			opts := DefaultOptions()
			tc.mutate(src, &opts)
			e := newTestEngine(src, opts)

			err := e.EnsurePopulated(context.Background())
			require.ErrorIs(t, err, tc.expectedErr)
			require.Equal(t, model.CacheEmpty, e.State())
		})
	}
}

func TestEngine_SchemaCheckRunsBeforeLoad(t *testing.T) {
	src := newFakeSource()
	src.checkErr = model.ErrSchemaIncompatible
	e := newTestEngine(src, DefaultOptions())

	_, err := e.Display(context.Background())
	require.ErrorIs(t, err, model.ErrSchemaIncompatible)
	require.Zero(t, src.loads.Load())
}

func TestEngine_RowCountValidation(t *testing.T) {
	src := newFakeSource()

	ok := &countingSource{fakeSource: src, counts: map[model.CurrencyID]int64{1: 5, 2: 1}}
	e := NewEngine(ok, DefaultOptions(), logger.Nop(), nil)
	require.NoError(t, e.EnsurePopulated(context.Background()))

	bad := &countingSource{fakeSource: newFakeSource(), counts: map[model.CurrencyID]int64{1: 4, 2: 1}}
	e = NewEngine(bad, DefaultOptions(), logger.Nop(), nil)
	require.ErrorIs(t, e.EnsurePopulated(context.Background()), model.ErrSourceRead)

	missing := &countingSource{fakeSource: newFakeSource(), counts: map[model.CurrencyID]int64{1: 5}}
	e = NewEngine(missing, DefaultOptions(), logger.Nop(), nil)
	require.ErrorIs(t, e.EnsurePopulated(context.Background()), model.ErrSourceRead)
}

func TestEngine_Invalidate(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(src, DefaultOptions())
	ctx := context.Background()

	require.NoError(t, e.EnsurePopulated(ctx))
	require.Equal(t, uint64(0), e.Stats().Generation)

	e.Invalidate()
	stats := e.Stats()
	require.Equal(t, model.CacheEmpty, stats.State)
	require.Zero(t, stats.Currencies)
	require.Zero(t, stats.Pairs)
	require.Equal(t, uint64(1), stats.Generation)

	src.rates = append(src.rates, model.RateRow{From: 1, To: 3, Date: day(2000, 1, 1), Rate: 0.8})
	rate, found, err := e.GetRate(ctx, 1, 3, day(2000, 2, 1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 0.8, rate)
	require.Equal(t, int32(2), src.loads.Load())
}

func TestEngine_InvalidateDuringPopulation(t *testing.T) {
	src := newFakeSource()
	src.started = make(chan struct{})
	src.release = make(chan struct{})
	e := newTestEngine(src, DefaultOptions())

	populated := make(chan error, 1)
	go func() {
		populated <- e.EnsurePopulated(context.Background())
	}()
	<-src.started

	invalidated := make(chan struct{})
	go func() {
		e.Invalidate()
		close(invalidated)
	}()

	close(src.release)
	require.NoError(t, <-populated)
	<-invalidated

	require.Equal(t, model.CacheEmpty, e.State())
	require.Zero(t, e.Stats().Entries)
}

func TestEngine_StalePopulationKeepsNewerGeneration(t *testing.T) {
	src := newFakeSource()
	src.checkStarted = make(chan struct{})
	src.checkRelease = make(chan struct{})
	e := newTestEngine(src, DefaultOptions())
	ctx := context.Background()

	stale := make(chan error, 1)
	go func() {
		stale <- e.EnsurePopulated(ctx)
	}()
	<-src.checkStarted

	e.Invalidate()

	rate, found, err := e.GetRate(ctx, 1, 2, day(2000, 1, 4))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 30.0, rate)
	require.Equal(t, int32(1), src.loads.Load())

	// The stale populator must not reach the feed, and would fail if it did.
	src.currencyErr = errors.New("connection reset")
	close(src.checkRelease)
	require.NoError(t, <-stale)

	stats := e.Stats()
	require.Equal(t, model.CacheFilled, stats.State)
	require.Equal(t, 3, stats.Currencies)
	require.Equal(t, 6, stats.Entries)
	require.Equal(t, uint64(1), stats.Generation)
	require.Equal(t, int32(1), src.loads.Load())

	rate, found, err = e.GetRate(ctx, 1, 2, day(2000, 1, 4))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 30.0, rate)
}

func TestEngine_StalePopulationReloadsWhenNobodyElseDid(t *testing.T) {
	src := newFakeSource()
	src.checkStarted = make(chan struct{})
	src.checkRelease = make(chan struct{})
	e := newTestEngine(src, DefaultOptions())

	stale := make(chan error, 1)
	go func() {
		stale <- e.EnsurePopulated(context.Background())
	}()
	<-src.checkStarted

	e.Invalidate()
	close(src.checkRelease)

	require.NoError(t, <-stale)
	require.Equal(t, model.CacheFilled, e.State())
	require.Equal(t, int32(1), src.loads.Load())
	require.Equal(t, int32(2), src.checks.Load())
}

func TestEngine_WaitTimeout(t *testing.T) {
	src := newFakeSource()
	src.started = make(chan struct{})
	src.release = make(chan struct{})
	e := newTestEngine(src, Options{
		MaxCurrencies: 8,
		MaxPairs:      8,
		MaxEntries:    8,
		PollInterval:  time.Millisecond,
		WaitTimeout:   20 * time.Millisecond,
	})

	populated := make(chan error, 1)
	go func() {
		populated <- e.EnsurePopulated(context.Background())
	}()
	<-src.started

	err := e.EnsurePopulated(context.Background())
	require.ErrorIs(t, err, model.ErrWaitTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.EnsurePopulated(ctx), context.Canceled)

	close(src.release)
	require.NoError(t, <-populated)
	require.NoError(t, e.EnsurePopulated(context.Background()))
}

func TestEngine_DisplayIsSorted(t *testing.T) {
	e := newTestEngine(newFakeSource(), DefaultOptions())

	rows, err := e.Display(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 6)

	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.From == cur.From && prev.To == cur.To {
			require.LessOrEqual(t, prev.Date, cur.Date)
		}
	}
	require.Equal(t, model.RateRow{From: 1, To: 2, Date: day(2000, 1, 1), Rate: 10}, rows[0])
	require.Equal(t, model.RateRow{From: 2, To: 1, Date: day(2000, 1, 1), Rate: 0.1}, rows[5])
}
