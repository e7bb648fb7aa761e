package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fx-rate-cache/internal/domain/model"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RateRequestsTotal  *prometheus.CounterVec
	AsOfRequestsTotal  prometheus.Counter
	InvalidationsTotal *prometheus.CounterVec
	CacheLookupsTotal  *prometheus.CounterVec
	PopulationsTotal   *prometheus.CounterVec
	PopulationDuration prometheus.Histogram
	CacheState         prometheus.Gauge
	CachedCurrencies   prometheus.Gauge
	CachedPairs        prometheus.Gauge
	CachedEntries      prometheus.Gauge
}

// NewMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		RateRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_requests_total",
				Help: "Total number of exchange rate requests",
			},
			[]string{"by"},
		),

		AsOfRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "asof_requests_total",
				Help: "Total number of ad-hoc as-of lookups",
			},
		),

		InvalidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx_cache_invalidations_total",
				Help: "Total number of cache invalidations by origin",
			},
			[]string{"origin"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx_cache_lookups_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"result"},
		),

		PopulationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx_cache_populations_total",
				Help: "Cache population attempts by outcome",
			},
			[]string{"result"},
		),

		PopulationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fx_cache_population_duration_seconds",
				Help:    "Time spent loading the cache from the database",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		CacheState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fx_cache_state",
				Help: "0 empty, 1 populating, 2 filled",
			},
		),

		CachedCurrencies: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fx_cache_currencies",
				Help: "Number of currencies in the xuid index",
			},
		),

		CachedPairs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fx_cache_pairs",
				Help: "Number of currency pairs with a rate series",
			},
		),

		CachedEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fx_cache_entries",
				Help: "Number of rate samples across all series",
			},
		),
	}
}

// The helpers below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObservePopulation(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PopulationsTotal.WithLabelValues(result).Inc()
	m.PopulationDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveInvalidation(origin string) {
	if m == nil {
		return
	}
	m.InvalidationsTotal.WithLabelValues(origin).Inc()
}

func (m *Metrics) SetCacheStats(stats model.CacheStats) {
	if m == nil {
		return
	}
	m.CacheState.Set(float64(stats.State))
	m.CachedCurrencies.Set(float64(stats.Currencies))
	m.CachedPairs.Set(float64(stats.Pairs))
	m.CachedEntries.Set(float64(stats.Entries))
}
