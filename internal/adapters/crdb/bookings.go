package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

type BookingRepo struct {
	db DB
}

const bookingColumns = `id, user_id, event_id, payment_id, total_tickets, total_amount, status, booked_at, invoice_path`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.UserID, &b.EventID, &b.PaymentID, &b.TotalTickets, &b.TotalAmount,
		&b.Status, &b.BookedAt, &b.InvoicePath)
	return b, err
}

// Create writes the booking and its detail lines.
func (r *BookingRepo) Create(ctx context.Context, b domain.Booking) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO bookings (id, user_id, event_id, total_tickets, total_amount, status, booked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.UserID, b.EventID, b.TotalTickets, b.TotalAmount, b.Status, b.BookedAt)
	for _, d := range b.Details {
		batch.Queue(`
			INSERT INTO booking_details (booking_id, ticket_type, quantity, price, sub_total)
			VALUES ($1, $2, $3, $4, $5)
		`, b.ID, d.TicketType, d.Quantity, d.Price, d.SubTotal)
	}
	return wrap("bookings.Create", r.db.SendBatch(ctx, batch).Close())
}

// Get loads a booking with its details.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return r.get(ctx, "bookings.Get", `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return r.get(ctx, "bookings.GetForUpdate", `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepo) get(ctx context.Context, op, query string, id uuid.UUID) (domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return b, wrap(op, err)
	}
	b.Details, err = r.details(ctx, id)
	return b, err
}

func (r *BookingRepo) details(ctx context.Context, id uuid.UUID) ([]domain.BookingDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT booking_id, ticket_type, quantity, price, sub_total
		FROM booking_details WHERE booking_id = $1 ORDER BY ticket_type
	`, id)
	if err != nil {
		return nil, wrap("bookings.details", err)
	}
	defer rows.Close()

	var out []domain.BookingDetail
	for rows.Next() {
		var d domain.BookingDetail
		if err := rows.Scan(&d.BookingID, &d.TicketType, &d.Quantity, &d.Price, &d.SubTotal); err != nil {
			return nil, wrap("bookings.details", err)
		}
		out = append(out, d)
	}
	return out, wrap("bookings.details", rows.Err())
}

func (r *BookingRepo) SetPayment(ctx context.Context, id, paymentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE bookings SET payment_id = $2 WHERE id = $1`, id, paymentID)
	return wrap("bookings.SetPayment", err)
}

func (r *BookingRepo) SetInvoicePath(ctx context.Context, id uuid.UUID, path string) error {
	_, err := r.db.Exec(ctx, `UPDATE bookings SET invoice_path = $2 WHERE id = $1`, id, path)
	return wrap("bookings.SetInvoicePath", err)
}

// Transition changes the status only while the booking is in `from`.
func (r *BookingRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE bookings SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, wrap("bookings.Transition", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListBooked returns the event's bookings still in Booked status, without details.
func (r *BookingRepo) ListBooked(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE event_id = $1 AND status = 'Booked' ORDER BY booked_at, id
	`, eventID)
	if err != nil {
		return nil, wrap("bookings.ListBooked", err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrap("bookings.ListBooked", err)
		}
		out = append(out, b)
	}
	return out, wrap("bookings.ListBooked", rows.Err())
}
