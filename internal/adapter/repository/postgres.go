package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/pkg/logger"
)

// Queries are the SQL statements the cache is loaded with. They can be
// overridden to point the cache at a differently shaped schema as long as
// the result columns keep their order and types.
type Queries struct {
	// Validation must return a single boolean, true when the schema is usable.
	Validation string
	// Currencies returns (id bigint, xuid text).
	Currencies string
	// RateCounts returns (currency_id bigint, count bigint). Empty disables
	// row count validation.
	RateCounts string
	// Rates returns (from_id bigint, to_id bigint, date date, rate float8),
	// ideally ordered by pair and date.
	Rates string
}

func DefaultQueries() Queries {
	return Queries{
		Validation: `SELECT count(table_name) = 2
			FROM information_schema.tables
			WHERE table_schema = 'plan' AND (table_name = 'currency' OR table_name = 'fx_rate')`,
		Currencies: `SELECT c.id, LOWER(c.xuid)
			FROM plan.currency c
			ORDER BY c.id ASC`,
		RateCounts: `SELECT cr.currency_id, count(*)
			FROM plan.fx_rate cr
			GROUP BY cr.currency_id
			ORDER BY cr.currency_id ASC`,
		Rates: `SELECT cr.currency_id, cr.to_currency_id, cr."date", cr.rate::float8
			FROM plan.fx_rate cr
			ORDER BY cr.currency_id ASC, cr.to_currency_id ASC, cr."date" ASC`,
	}
}

type PostgresSource struct {
	pool    *pgxpool.Pool
	queries Queries
	log     *logger.Logger
}

var (
	_ ports.RateSource = (*PostgresSource)(nil)
	_ ports.RowCounter = (*PostgresSource)(nil)
)

func NewPostgresSource(ctx context.Context, dsn string, queries Queries, log *logger.Logger) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresSource{pool: pool, queries: queries, log: log}, nil
}

func (p *PostgresSource) Close() {
	p.pool.Close()
}

func (p *PostgresSource) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *PostgresSource) CheckCompatibility(ctx context.Context) error {
	query := oneLine(p.queries.Validation)
	p.log.Debug("Validating database compatibility", "query", query)

	var valid *bool
	err := p.pool.QueryRow(ctx, query).Scan(&valid)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && valid == nil) {
		return fmt.Errorf("%w: validation query returned no result", model.ErrSchemaIncompatible)
	}
	if err != nil {
		return fmt.Errorf("%w: cannot validate database: %v", model.ErrSchemaIncompatible, err)
	}
	if !*valid {
		return model.ErrSchemaIncompatible
	}
	return nil
}

func (p *PostgresSource) LoadCurrencies(ctx context.Context, fn func(model.CurrencyRow) error) error {
	rows, err := p.pool.Query(ctx, oneLine(p.queries.Currencies))
	if err != nil {
		return fmt.Errorf("currencies query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			xuid pgtype.Text
		)
		if err := rows.Scan(&id, &xuid); err != nil {
			return fmt.Errorf("scan currency: %w", err)
		}
		if !xuid.Valid {
			return fmt.Errorf("currency %d has no xuid", id)
		}
		if err := fn(model.CurrencyRow{ID: model.CurrencyID(id), Xuid: xuid.String}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *PostgresSource) RateCounts(ctx context.Context) (map[model.CurrencyID]int64, error) {
	if strings.TrimSpace(p.queries.RateCounts) == "" {
		return nil, nil
	}

	rows, err := p.pool.Query(ctx, oneLine(p.queries.RateCounts))
	if err != nil {
		return nil, fmt.Errorf("rate counts query: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.CurrencyID]int64)
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan rate count: %w", err)
		}
		counts[model.CurrencyID(id)] = count
	}
	return counts, rows.Err()
}

func (p *PostgresSource) LoadRates(ctx context.Context, fn func(model.RateRow) error) error {
	rows, err := p.pool.Query(ctx, oneLine(p.queries.Rates))
	if err != nil {
		return fmt.Errorf("rates query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			from, to int64
			date     pgtype.Date
			rate     float64
		)
		if err := rows.Scan(&from, &to, &date, &rate); err != nil {
			return fmt.Errorf("scan rate: %w", err)
		}
		if !date.Valid || date.InfinityModifier != pgtype.Finite {
			return fmt.Errorf("rate %d->%d has no finite date", from, to)
		}
		row := model.RateRow{
			From: model.CurrencyID(from),
			To:   model.CurrencyID(to),
			Date: model.DateFromTime(date.Time),
			Rate: rate,
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func oneLine(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
