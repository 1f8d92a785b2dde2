package crdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

type EventRepo struct {
	db DB
}

const eventColumns = `id, user_id, name, description, slot, event_date, ticket_enabled, ticket_open_date, status,
	total_amount, paid_amount, amount_due, banner_path, payment_id, invoice_path, created_at, updated_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Description, &e.Slot, &e.EventDate, &e.TicketEnabled,
		&e.TicketOpenDate, &e.Status, &e.TotalAmount, &e.PaidAmount, &e.AmountDue, &e.BannerPath,
		&e.PaymentID, &e.InvoicePath, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func collectEvents(op string, rows pgx.Rows, err error) ([]domain.Event, error) {
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, e)
	}
	return out, wrap(op, rows.Err())
}

// prefixed qualifies a column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func statusStrings(statuses []domain.EventStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *EventRepo) Create(ctx context.Context, e domain.Event) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO events (id, user_id, name, description, slot, event_date, ticket_enabled, ticket_open_date,
			status, total_amount, paid_amount, amount_due, banner_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, e.ID, e.UserID, e.Name, e.Description, e.Slot, e.EventDate, e.TicketEnabled, e.TicketOpenDate,
		e.Status, e.TotalAmount, e.PaidAmount, e.AmountDue, e.BannerPath, e.CreatedAt)
	return wrap("events.Create", err)
}

func (r *EventRepo) Get(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	return e, wrap("events.Get", err)
}

// GetForUpdate locks the event row for the rest of the transaction.
func (r *EventRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	return e, wrap("events.GetForUpdate", err)
}

func (r *EventRepo) SetPayment(ctx context.Context, id, paymentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE events SET payment_id = $2, updated_at = now() WHERE id = $1`, id, paymentID)
	return wrap("events.SetPayment", err)
}

func (r *EventRepo) SetInvoicePath(ctx context.Context, id uuid.UUID, path string) error {
	_, err := r.db.Exec(ctx, `UPDATE events SET invoice_path = $2 WHERE id = $1`, id, path)
	return wrap("events.SetInvoicePath", err)
}

// Transition moves the event to status `to` only while it is in one of `from`.
// It reports whether the row changed.
func (r *EventRepo) Transition(ctx context.Context, id uuid.UUID, from []domain.EventStatus, to domain.EventStatus) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE events SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, statusStrings(from))
	if err != nil {
		return false, wrap("events.Transition", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EventRepo) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slot domain.Slot, ticketOpen *time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE events
		SET event_date = $2, slot = $3, ticket_open_date = $4, status = 'Rescheduled', updated_at = now()
		WHERE id = $1 AND status = 'Booked'
	`, id, date, slot, ticketOpen)
	if err != nil {
		return false, wrap("events.Reschedule", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SettleDue marks the remaining balance of an event as collected.
func (r *EventRepo) SettleDue(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE events SET paid_amount = total_amount, amount_due = 0, updated_at = now() WHERE id = $1
	`, id)
	return wrap("events.SettleDue", err)
}

func (r *EventRepo) AppendHistory(ctx context.Context, id uuid.UUID, status domain.EventStatus, changedBy uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_status_history (id, event_id, status, changed_by) VALUES ($1, $2, $3, $4)
	`, uuid.New(), id, status, changedBy)
	return wrap("events.AppendHistory", err)
}

func (r *EventRepo) History(ctx context.Context, id uuid.UUID) ([]domain.EventStatus, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status FROM event_status_history WHERE event_id = $1 ORDER BY changed_at, status
	`, id)
	if err != nil {
		return nil, wrap("events.History", err)
	}
	defer rows.Close()

	var out []domain.EventStatus
	for rows.Next() {
		var s domain.EventStatus
		if err := rows.Scan(&s); err != nil {
			return nil, wrap("events.History", err)
		}
		out = append(out, s)
	}
	return out, wrap("events.History", rows.Err())
}

// ListActiveThrough returns events dated on or before date that have not reached a terminal status.
func (r *EventRepo) ListActiveThrough(ctx context.Context, date time.Time) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE event_date <= $1 AND status IN ('Booked', 'Rescheduled', 'Ongoing')
		ORDER BY event_date, id
	`, date)
	return collectEvents("events.ListActiveThrough", rows, err)
}

// ListPendingBalance returns live events dated between from and to whose organizer payment is still Pending.
func (r *EventRepo) ListPendingBalance(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+prefixed("e", eventColumns)+` FROM events e
		JOIN payments p ON p.id = e.payment_id
		WHERE e.event_date BETWEEN $1 AND $2
		  AND e.status IN ('Booked', 'Rescheduled')
		  AND p.status = 'Pending'
		ORDER BY e.event_date, e.id
	`, from, to)
	return collectEvents("events.ListPendingBalance", rows, err)
}

// ListUnreleasedEscrow returns completed ticketed events without a released escrow.
func (r *EventRepo) ListUnreleasedEscrow(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+prefixed("e", eventColumns)+` FROM events e
		LEFT JOIN escrows x ON x.event_id = e.id
		WHERE e.ticket_enabled AND e.status = 'Completed'
		  AND (x.event_id IS NULL OR x.status <> 'Released')
		ORDER BY e.event_date, e.id
	`)
	return collectEvents("events.ListUnreleasedEscrow", rows, err)
}

func (r *EventRepo) InsertSelections(ctx context.Context, selections []domain.FacilitySelection) error {
	batch := &pgx.Batch{}
	for _, s := range selections {
		batch.Queue(`
			INSERT INTO facility_selections (event_id, facility_type, facility_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, s.EventID, s.Type, s.FacilityID, s.Quantity, s.UnitPrice)
	}
	return wrap("events.InsertSelections", r.db.SendBatch(ctx, batch).Close())
}

func (r *EventRepo) Selections(ctx context.Context, id uuid.UUID) ([]domain.FacilitySelection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT fs.event_id, fs.facility_type, fs.facility_id, f.name, fs.quantity, fs.unit_price
		FROM facility_selections fs
		JOIN facilities f ON f.id = fs.facility_id
		WHERE fs.event_id = $1
	`, id)
	if err != nil {
		return nil, wrap("events.Selections", err)
	}
	defer rows.Close()

	var out []domain.FacilitySelection
	for rows.Next() {
		var s domain.FacilitySelection
		if err := rows.Scan(&s.EventID, &s.Type, &s.FacilityID, &s.Name, &s.Quantity, &s.UnitPrice); err != nil {
			return nil, wrap("events.Selections", err)
		}
		out = append(out, s)
	}
	return out, wrap("events.Selections", rows.Err())
}
