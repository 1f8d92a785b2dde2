package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/shopspring/decimal"
)

type InventoryService struct {
	*core
}

// Reservation is the outcome of reserving every line of a booking.
type Reservation struct {
	Details      []domain.BookingDetail
	TotalTickets int
	Total        decimal.Decimal
}

// Reserve validates and merges lines by tier, then takes each from inventory inside tx. The first
// failing line aborts the whole reservation; the caller's rollback undoes the rest.
func (s *InventoryService) Reserve(ctx context.Context, tx crdb.DB, eventID uuid.UUID, lines []domain.TicketLine) (Reservation, error) {
	merged, err := domain.PrepareTicketLines(lines, s.policy.MaxTicketsPerTier)
	if err != nil {
		return Reservation{}, err
	}

	res := Reservation{Total: decimal.Zero}
	for _, l := range merged {
		t, err := s.store.Tickets(tx).Reserve(ctx, eventID, l.Tier, l.Quantity)
		if err != nil {
			return Reservation{}, err
		}
		sub := t.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		res.Details = append(res.Details, domain.BookingDetail{
			TicketType: t.Type,
			Quantity:   l.Quantity,
			Price:      t.Price,
			SubTotal:   sub,
		})
		res.TotalTickets += l.Quantity
		res.Total = res.Total.Add(sub)
	}
	observability.TicketsReserved.Add(float64(res.TotalTickets))
	return res, nil
}

// Release hands every detail of a booking back to inventory.
func (s *InventoryService) Release(ctx context.Context, tx crdb.DB, eventID uuid.UUID, details []domain.BookingDetail) error {
	for _, d := range details {
		if err := s.store.Tickets(tx).Release(ctx, eventID, d.TicketType, d.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Tickets lists an event's tiers through the cache.
func (s *InventoryService) Tickets(ctx context.Context, eventID uuid.UUID) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := s.cache.GetOrSetJSON(ctx, ticketsKey(eventID), s.policy.CacheTTL, &out, func(ctx context.Context) (any, error) {
		return s.store.Tickets(nil).ListByEvent(ctx, eventID)
	})
	return out, err
}

func (s *InventoryService) invalidate(eventID uuid.UUID) func(context.Context) error {
	return func(ctx context.Context) error {
		return s.cache.Delete(ctx, ticketsKey(eventID))
	}
}
