package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/shopspring/decimal"
)

type EscrowRepo struct {
	db DB
}

// Release upserts a Released escrow for the event. An escrow that is already Released
// is left as is and Release reports false.
func (r *EscrowRepo) Release(ctx context.Context, eventID, userID uuid.UUID, gross, released decimal.Decimal, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO escrows (event_id, user_id, total_amount, released_amount, status, created_at, released_at)
		VALUES ($1, $2, $3, $4, 'Released', $5, $5)
		ON CONFLICT (event_id) DO UPDATE
		SET total_amount = excluded.total_amount,
		    released_amount = excluded.released_amount,
		    status = 'Released',
		    released_at = excluded.released_at
		WHERE escrows.status <> 'Released'
	`, eventID, userID, gross, released, at)
	if err != nil {
		return false, wrap("escrows.Release", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) Get(ctx context.Context, eventID uuid.UUID) (domain.Escrow, error) {
	var e domain.Escrow
	err := r.db.QueryRow(ctx, `
		SELECT event_id, user_id, total_amount, released_amount, status, created_at, released_at
		FROM escrows WHERE event_id = $1
	`, eventID).Scan(&e.EventID, &e.UserID, &e.TotalAmount, &e.ReleasedAmount, &e.Status, &e.CreatedAt, &e.ReleasedAt)
	return e, wrap("escrows.Get", err)
}
