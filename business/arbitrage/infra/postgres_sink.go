package infra

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

const createOpportunitiesTable = `
CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
	id          UUID PRIMARY KEY,
	instrument  TEXT NOT NULL,
	buy_venue   TEXT NOT NULL,
	sell_venue  TEXT NOT NULL,
	buy_price   NUMERIC NOT NULL,
	sell_price  NUMERIC NOT NULL,
	spread_abs  NUMERIC NOT NULL,
	spread_pct  NUMERIC NOT NULL,
	buy_ref     TEXT NOT NULL,
	sell_ref    TEXT NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS arbitrage_opportunities_detected_at_idx
	ON arbitrage_opportunities (detected_at);
`

const insertOpportunity = `
INSERT INTO arbitrage_opportunities (
	id, instrument, buy_venue, sell_venue,
	buy_price, sell_price, spread_abs, spread_pct,
	buy_ref, sell_ref, detected_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresConfig configures PostgresSink.
type PostgresConfig struct {
	DSN     string
	Migrate bool
}

// PostgresSink records opportunities in the arbitrage_opportunities table.
// Re-publishing the same opportunity is a no-op.
type PostgresSink struct {
	db     execer
	close  func()
	logger logger.LoggerInterface
}

// NewPostgresSink opens a pool, pings it and optionally creates the table.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig, log logger.LoggerInterface) (*PostgresSink, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "postgres: parse dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperror.External(apperror.CodeExternalServiceError, "postgres: connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperror.External(apperror.CodeExternalServiceError, "postgres: ping", err)
	}

	s := newPostgresSink(pool, pool.Close, log)
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func newPostgresSink(db execer, closeFn func(), log logger.LoggerInterface) *PostgresSink {
	if log == nil {
		log = logger.Nop()
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return &PostgresSink{db: db, close: closeFn, logger: log}
}

// Migrate creates the table and index if they do not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createOpportunitiesTable); err != nil {
		return apperror.External(apperror.CodeExternalServiceError, "postgres: migrate", err)
	}
	return nil
}

// Publish inserts opp.
func (s *PostgresSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	tag, err := s.db.Exec(ctx, insertOpportunity,
		opp.ID.String(),
		opp.Instrument.String(),
		opp.BuyVenue.String(),
		opp.SellVenue.String(),
		opp.BuyPrice,
		opp.SellPrice,
		opp.SpreadAbs,
		opp.SpreadPct,
		opp.BuyRef,
		opp.SellRef,
		opp.DetectedAt.UTC(),
	)
	if err != nil {
		return apperror.External(apperror.CodeSinkPublishFailed, "postgres: insert opportunity", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Info(ctx, "opportunity already recorded", "id", opp.ID.String())
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	s.close()
}
