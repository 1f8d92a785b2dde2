package crdb

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DB is satisfied by both the pool and a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Config struct {
	TxTimeout time.Duration
	TxRetries int
}

type Store struct {
	pool   *pgxpool.Pool
	cfg    Config
	tracer trace.Tracer
}

func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping")
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool, cfg Config) *Store {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if cfg.TxRetries < 0 {
		cfg.TxRetries = 0
	}
	return &Store{pool: pool, cfg: cfg, tracer: otel.Tracer("crdb")}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// RunTx runs fn in a SERIALIZABLE transaction bounded by the configured timeout.
// Serialization failures are retried a bounded number of times, then surface as
// domain.ErrRetryable, as does a timeout.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "db.tx")
	defer span.End()

	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	var err error
	for attempt := 0; ; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil {
			span.SetAttributes(attribute.Int("db.tx.attempts", attempt+1))
			return nil
		}
		if !IsRetryable(err) || attempt >= s.cfg.TxRetries {
			break
		}
		observability.DBTxRetries.Inc()
		backoff := time.Duration(attempt+1)*25*time.Millisecond + time.Duration(rand.IntN(25))*time.Millisecond
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(backoff):
			continue
		}
		break
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return classifyTxErr(err)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx DB) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) db(db DB) DB {
	if db == nil {
		return s.pool
	}
	return db
}

func (s *Store) Facilities(db DB) *FacilityRepo { return &FacilityRepo{db: s.db(db)} }
func (s *Store) Events(db DB) *EventRepo        { return &EventRepo{db: s.db(db)} }
func (s *Store) Tickets(db DB) *TicketRepo      { return &TicketRepo{db: s.db(db)} }
func (s *Store) Bookings(db DB) *BookingRepo    { return &BookingRepo{db: s.db(db)} }
func (s *Store) Payments(db DB) *PaymentRepo    { return &PaymentRepo{db: s.db(db)} }
func (s *Store) Escrows(db DB) *EscrowRepo      { return &EscrowRepo{db: s.db(db)} }
func (s *Store) Outbox(db DB) *OutboxRepo       { return &OutboxRepo{db: s.db(db)} }
func (s *Store) Feedback(db DB) *FeedbackRepo   { return &FeedbackRepo{db: s.db(db)} }
