package main

import (
	"cmp"
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"fx-rate-cache/internal/adapter/cache"
	"fx-rate-cache/internal/adapter/repository"
	"fx-rate-cache/internal/config"
	"fx-rate-cache/internal/metrics"
	"fx-rate-cache/pkg/logger"
)

// app holds what every subcommand needs: configuration, a logger, the
// database source and a cache engine on top of it.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	source  *repository.PostgresSource
	engine  *cache.Engine
}

// newApp loads configuration and connects to the database. reg may be nil
// for one-shot commands that expose no metrics.
func newApp(ctx context.Context, configPath string, logOut io.Writer, reg prometheus.Registerer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.New(logOut, cfg.Log.Level, cfg.Log.Format)

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.NewMetrics(reg)
	}

	source, err := repository.NewPostgresSource(ctx, cfg.Database.DSN, queriesFrom(cfg), log.With("component", "postgres"))
	if err != nil {
		return nil, err
	}

	engine := cache.NewEngine(source, cache.Options{
		MaxCurrencies: cfg.Cache.MaxCurrencies,
		MaxPairs:      cfg.Cache.MaxPairs,
		MaxEntries:    cfg.Cache.MaxEntries,
		PollInterval:  cfg.Cache.PollInterval,
		WaitTimeout:   cfg.Cache.WaitTimeout,
	}, log.With("component", "cache"), m)

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: m,
		source:  source,
		engine:  engine,
	}, nil
}

func (a *app) Close() {
	a.source.Close()
}

func queriesFrom(cfg *config.Config) repository.Queries {
	q := repository.DefaultQueries()
	over := cfg.Database.Queries

	q.Validation = cmp.Or(over.Validation, q.Validation)
	q.Currencies = cmp.Or(over.Currencies, q.Currencies)
	q.RateCounts = cmp.Or(over.RateCounts, q.RateCounts)
	q.Rates = cmp.Or(over.Rates, q.Rates)

	if !cfg.Cache.ValidateRowCounts {
		q.RateCounts = ""
	}
	return q
}
