package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/shopspring/decimal"
)

type TicketRepo struct {
	db DB
}

func (r *TicketRepo) Insert(ctx context.Context, eventID uuid.UUID, tiers []domain.TicketTier) error {
	if len(tiers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range tiers {
		batch.Queue(`
			INSERT INTO tickets (event_id, ticket_type, price, available_counts, booked_ticket)
			VALUES ($1, $2, $3, $4, 0)
		`, eventID, t.Type, t.Price, t.Count)
	}
	return wrap("tickets.Insert", r.db.SendBatch(ctx, batch).Close())
}

// Reserve takes qty tickets of tier in a single conditional decrement and returns the
// stored tier with its unit price.
func (r *TicketRepo) Reserve(ctx context.Context, eventID uuid.UUID, tier string, qty int) (domain.Ticket, error) {
	t := domain.Ticket{EventID: eventID}
	err := r.db.QueryRow(ctx, `
		UPDATE tickets
		SET available_counts = available_counts - $3, booked_ticket = booked_ticket + $3
		WHERE event_id = $1 AND lower(ticket_type) = lower($2) AND available_counts >= $3
		RETURNING ticket_type, price, available_counts, booked_ticket
	`, eventID, tier, qty).Scan(&t.Type, &t.Price, &t.Available, &t.Booked)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return t, wrap("tickets.Reserve", err)
	}

	var available int
	err = r.db.QueryRow(ctx, `
		SELECT available_counts FROM tickets WHERE event_id = $1 AND lower(ticket_type) = lower($2)
	`, eventID, tier).Scan(&available)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return t, domain.NotFoundf("Invalid ticket type: %s", tier)
	case err != nil:
		return t, wrap("tickets.Reserve", err)
	}
	return t, domain.Conflictf("Not enough tickets available for %s. Available: %d", tier, available)
}

// Release hands qty tickets of tier back. booked_ticket never drops below zero and only
// what was actually booked returns to the available pool.
func (r *TicketRepo) Release(ctx context.Context, eventID uuid.UUID, tier string, qty int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tickets
		SET available_counts = available_counts + LEAST($3, booked_ticket),
		    booked_ticket = GREATEST(booked_ticket - $3, 0)
		WHERE event_id = $1 AND lower(ticket_type) = lower($2)
	`, eventID, tier, qty)
	if err != nil {
		return wrap("tickets.Release", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("Invalid ticket type: %s", tier)
	}
	return nil
}

func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, `
		SELECT event_id, ticket_type, price, available_counts, booked_ticket
		FROM tickets WHERE event_id = $1 ORDER BY price DESC, ticket_type
	`, eventID)
	if err != nil {
		return nil, wrap("tickets.ListByEvent", err)
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.EventID, &t.Type, &t.Price, &t.Available, &t.Booked); err != nil {
			return nil, wrap("tickets.ListByEvent", err)
		}
		out = append(out, t)
	}
	return out, wrap("tickets.ListByEvent", rows.Err())
}

// GrossRevenue is the value of every booked ticket of an event.
func (r *TicketRepo) GrossRevenue(ctx context.Context, eventID uuid.UUID) (decimal.Decimal, error) {
	var gross decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(booked_ticket * price), 0)::DECIMAL FROM tickets WHERE event_id = $1
	`, eventID).Scan(&gross)
	return gross, wrap("tickets.GrossRevenue", err)
}
