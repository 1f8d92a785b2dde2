package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/shopspring/decimal"
)

type PaymentRepo struct {
	db DB
}

const paymentColumns = `id, user_id, event_id, booking_id, payment_mode, payment_amount, amount_due, status, payment_date`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.EventID, &p.BookingID, &p.Mode, &p.Amount, &p.AmountDue, &p.Status, &p.PaidAt)
	return p, err
}

// Create writes the payment and its first history row.
func (r *PaymentRepo) Create(ctx context.Context, p domain.Payment) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO payments (id, user_id, event_id, booking_id, payment_mode, payment_amount, amount_due, status, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.UserID, p.EventID, p.BookingID, p.Mode, p.Amount, p.AmountDue, p.Status, p.PaidAt)
	batch.Queue(`INSERT INTO payment_status_history (id, payment_id, status) VALUES ($1, $2, $3)`,
		uuid.New(), p.ID, p.Status)
	return wrap("payments.Create", r.db.SendBatch(ctx, batch).Close())
}

func (r *PaymentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	return p, wrap("payments.Get", err)
}

// FindPending returns the organizer payment of an event that still has a balance to collect.
func (r *PaymentRepo) FindPending(ctx context.Context, eventID, userID uuid.UUID) (domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE event_id = $1 AND user_id = $2 AND booking_id IS NULL AND status = 'Pending'
		ORDER BY payment_date DESC LIMIT 1
		FOR UPDATE
	`, eventID, userID))
	return p, wrap("payments.FindPending", err)
}

// SetStatus changes the status and records it in the payment history.
func (r *PaymentRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
	batch := &pgx.Batch{}
	batch.Queue(`UPDATE payments SET status = $2 WHERE id = $1`, id, status)
	batch.Queue(`INSERT INTO payment_status_history (id, payment_id, status) VALUES ($1, $2, $3)`,
		uuid.New(), id, status)
	return wrap("payments.SetStatus", r.db.SendBatch(ctx, batch).Close())
}

// Settle collects the outstanding balance: the due amount moves into payment_amount.
func (r *PaymentRepo) Settle(ctx context.Context, id uuid.UUID, mode string) (domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET payment_amount = payment_amount + amount_due, amount_due = 0,
		    payment_mode = $2, status = 'Completed', payment_date = now()
		WHERE id = $1 AND status = 'Pending'
		RETURNING `+paymentColumns, id, mode))
	if err != nil {
		return p, wrap("payments.Settle", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payment_status_history (id, payment_id, status) VALUES ($1, $2, $3)`,
		uuid.New(), id, domain.PaymentCompleted)
	return p, wrap("payments.Settle", err)
}

func (r *PaymentRepo) History(ctx context.Context, id uuid.UUID) ([]domain.PaymentStatus, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status FROM payment_status_history WHERE payment_id = $1 ORDER BY changed_at
	`, id)
	if err != nil {
		return nil, wrap("payments.History", err)
	}
	defer rows.Close()

	var out []domain.PaymentStatus
	for rows.Next() {
		var s domain.PaymentStatus
		if err := rows.Scan(&s); err != nil {
			return nil, wrap("payments.History", err)
		}
		out = append(out, s)
	}
	return out, wrap("payments.History", rows.Err())
}

// CreateRefund inserts an Initiated refund and its history row.
func (r *PaymentRepo) CreateRefund(ctx context.Context, ref domain.Refund) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO refunds (id, payment_id, reason, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ref.ID, ref.PaymentID, ref.Reason, ref.Amount, ref.Status, ref.CreatedAt)
	batch.Queue(`INSERT INTO refund_status_history (id, refund_id, status) VALUES ($1, $2, $3)`,
		uuid.New(), ref.ID, ref.Status)
	return wrap("payments.CreateRefund", r.db.SendBatch(ctx, batch).Close())
}

// RefundsByEvent lists refunds of every payment tied to the event.
func (r *PaymentRepo) RefundsByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Refund, error) {
	rows, err := r.db.Query(ctx, `
		SELECT rf.id, rf.payment_id, rf.reason, rf.amount, rf.status, rf.created_at
		FROM refunds rf JOIN payments p ON p.id = rf.payment_id
		WHERE p.event_id = $1
		ORDER BY rf.created_at, rf.id
	`, eventID)
	if err != nil {
		return nil, wrap("payments.RefundsByEvent", err)
	}
	defer rows.Close()

	var out []domain.Refund
	for rows.Next() {
		var ref domain.Refund
		if err := rows.Scan(&ref.ID, &ref.PaymentID, &ref.Reason, &ref.Amount, &ref.Status, &ref.CreatedAt); err != nil {
			return nil, wrap("payments.RefundsByEvent", err)
		}
		out = append(out, ref)
	}
	return out, wrap("payments.RefundsByEvent", rows.Err())
}

// TotalRefunded sums refunds issued against a payment.
func (r *PaymentRepo) TotalRefunded(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::DECIMAL FROM refunds WHERE payment_id = $1 AND status <> 'Rejected'
	`, paymentID).Scan(&total)
	return total, wrap("payments.TotalRefunded", err)
}
