package service

import (
	"context"
	"strconv"

	"fx-rate-cache/internal/asof"
	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/internal/metrics"
	"fx-rate-cache/pkg/logger"
)

type RateService struct {
	cache     ports.RateCache
	publisher ports.InvalidationPublisher
	log       *logger.Logger
	metrics   *metrics.Metrics
}

var _ ports.RateService = (*RateService)(nil)

// NewRateService wires the cache to its callers. publisher may be nil when
// the instance runs alone.
func NewRateService(cache ports.RateCache, publisher ports.InvalidationPublisher, log *logger.Logger, m *metrics.Metrics) *RateService {
	return &RateService{
		cache:     cache,
		publisher: publisher,
		log:       log,
		metrics:   m,
	}
}

func (s *RateService) GetRate(ctx context.Context, from, to model.CurrencyID, date model.Date) (*ports.RateResult, error) {
	if s.metrics != nil {
		s.metrics.RateRequestsTotal.WithLabelValues("id").Inc()
	}

	rate, found, err := s.cache.GetRate(ctx, from, to, date)
	if err != nil {
		s.log.Error("Failed to get rate", "error", err, "from", from, "to", to, "date", date)
		return nil, err
	}

	return &ports.RateResult{
		From:  strconv.FormatInt(int64(from), 10),
		To:    strconv.FormatInt(int64(to), 10),
		Date:  date,
		Rate:  rate,
		Found: found,
	}, nil
}

func (s *RateService) GetRateByXuid(ctx context.Context, from, to string, date model.Date) (*ports.RateResult, error) {
	if s.metrics != nil {
		s.metrics.RateRequestsTotal.WithLabelValues("xuid").Inc()
	}

	rate, found, err := s.cache.GetRateByXuid(ctx, from, to, date)
	if err != nil {
		s.log.Error("Failed to get rate by xuid", "error", err, "from", from, "to", to, "date", date)
		return nil, err
	}

	return &ports.RateResult{
		From:  from,
		To:    to,
		Date:  date,
		Rate:  rate,
		Found: found,
	}, nil
}

// GetValueAsOf runs the cache's as-of rule over caller supplied data. It
// does not touch the cache.
func (s *RateService) GetValueAsOf(ctx context.Context, request ports.AsOfRequest) (float64, error) {
	if s.metrics != nil {
		s.metrics.AsOfRequestsTotal.Inc()
	}
	return asof.Parallel(request.Dates, request.Values, request.Date, request.Default)
}

// InvalidateCache drops the local cache and tells other instances to do the
// same. With reload the cache is repopulated before returning.
func (s *RateService) InvalidateCache(ctx context.Context, reload bool) error {
	s.cache.Invalidate()
	s.metrics.ObserveInvalidation("local")

	if s.publisher != nil {
		if err := s.publisher.PublishInvalidation(ctx, "invalidate"); err != nil {
			s.log.Error("Failed to broadcast cache invalidation", "error", err)
		}
	}

	if reload {
		return s.cache.EnsurePopulated(ctx)
	}
	return nil
}

// ApplyRemoteInvalidation handles an invalidation broadcast by another
// instance. It is never re-broadcast.
func (s *RateService) ApplyRemoteInvalidation(ctx context.Context, reason string) {
	s.log.Info("Cache invalidated by another instance", "reason", reason)
	s.cache.Invalidate()
	s.metrics.ObserveInvalidation("remote")
}

func (s *RateService) Warm(ctx context.Context) error {
	return s.cache.EnsurePopulated(ctx)
}

func (s *RateService) DisplayCache(ctx context.Context) ([]model.RateRow, error) {
	return s.cache.Display(ctx)
}

func (s *RateService) CheckCompatibility(ctx context.Context) error {
	return s.cache.CheckCompatibility(ctx)
}

func (s *RateService) Stats(ctx context.Context) model.CacheStats {
	stats := s.cache.Stats()
	s.metrics.SetCacheStats(stats)
	return stats
}
