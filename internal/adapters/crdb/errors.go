package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

const (
	SerializationFailureCode = "40001"
	DeadlockDetectedCode     = "40P01"
	UniqueViolationCode      = "23505"
)

func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode, DeadlockDetectedCode:
			return true
		}
	}
	return false
}

// wrap maps driver errors onto domain kinds and annotates them with op.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Mark(errors.Wrap(err, op), domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
		return errors.Mark(errors.Wrapf(err, "%s: %s", op, pgErr.ConstraintName), domain.ErrConflict)
	}
	return errors.Wrap(err, op)
}

func classifyTxErr(err error) error {
	switch {
	case IsRetryable(err):
		return errors.Mark(errors.Wrap(err, "transaction aborted by a concurrent update"), domain.ErrRetryable)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Mark(errors.Wrap(err, "operation timed out"), domain.ErrRetryable)
	}
	return err
}
