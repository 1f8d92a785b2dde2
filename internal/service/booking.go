package service

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/notify"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
	"github.com/shopspring/decimal"
)

type BookingService struct {
	*core
	inventory *InventoryService
}

type BookingLine struct {
	TicketType string          `json:"ticket_type"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	SubTotal   decimal.Decimal `json:"sub_total"`
}

type BookingReceipt struct {
	BookingID    uuid.UUID            `json:"booking_id"`
	UserID       uuid.UUID            `json:"user_id"`
	EventID      uuid.UUID            `json:"event_id"`
	PaymentID    uuid.UUID            `json:"payment_id"`
	Tickets      []BookingLine        `json:"tickets"`
	TotalTickets int                  `json:"total_tickets"`
	TotalPrice   decimal.Decimal      `json:"total_price"`
	Status       domain.BookingStatus `json:"status"`
	InvoicePath  string               `json:"invoice_path,omitempty"`
}

func receiptLines(details []domain.BookingDetail) []BookingLine {
	out := make([]BookingLine, len(details))
	for i, d := range details {
		out[i] = BookingLine{
			TicketType: domain.DisplayTier(d.TicketType),
			Quantity:   d.Quantity,
			Price:      d.Price,
			SubTotal:   d.SubTotal,
		}
	}
	return out
}

// Create books tickets of one event for the caller and records the full payment.
func (s *BookingService) Create(ctx context.Context, caller domain.Caller, eventID uuid.UUID, lines []domain.TicketLine, mode string) (BookingReceipt, error) {
	if err := caller.Validate(); err != nil {
		return BookingReceipt{}, err
	}
	var receipt BookingReceipt
	var event domain.Event
	err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		e, err := s.store.Events(tx).Get(ctx, eventID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("event not found")
		}
		if err != nil {
			return err
		}
		today := s.today()
		switch {
		case !e.TicketEnabled:
			return domain.Statef("ticket booking is not enabled for this event")
		case !e.Status.Bookable():
			return domain.Statef("event is %s and no longer accepts bookings", e.Status)
		case e.EventDate.Before(today):
			return domain.Statef("event date has passed")
		case e.TicketOpenDate != nil && e.TicketOpenDate.After(today):
			return domain.Statef("ticket sales open on %s", dateString(*e.TicketOpenDate))
		}

		res, err := s.inventory.Reserve(ctx, tx, eventID, lines)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		b := domain.Booking{
			ID:           uuid.New(),
			UserID:       caller.UserID,
			EventID:      eventID,
			TotalTickets: res.TotalTickets,
			TotalAmount:  res.Total,
			Status:       domain.BookingBooked,
			BookedAt:     now,
		}
		for _, d := range res.Details {
			d.BookingID = b.ID
			b.Details = append(b.Details, d)
		}
		if err := s.store.Bookings(tx).Create(ctx, b); err != nil {
			return err
		}
		payment := domain.Payment{
			ID:        uuid.New(),
			UserID:    caller.UserID,
			EventID:   eventID,
			BookingID: &b.ID,
			Mode:      mode,
			Amount:    res.Total,
			AmountDue: decimal.Zero,
			Status:    domain.PaymentCompleted,
			PaidAt:    now,
		}
		if err := s.store.Payments(tx).Create(ctx, payment); err != nil {
			return err
		}
		if err := s.store.Bookings(tx).SetPayment(ctx, b.ID, payment.ID); err != nil {
			return err
		}
		err = s.queueEmails(ctx, tx, b.ID.String(), notify.Email{
			Template:      notify.TemplateBookingConfirmed,
			RecipientID:   caller.UserID,
			RecipientRole: domain.RoleAudience,
			EventID:       eventID,
			EventName:     e.Name,
			Subject:       "Your tickets for " + e.Name,
			Fields: map[string]string{
				"booking_id":    b.ID.String(),
				"total_tickets": strconv.Itoa(b.TotalTickets),
				"total_price":   b.TotalAmount.StringFixed(2),
				"event_date":    dateString(e.EventDate),
			},
		})
		if err != nil {
			return err
		}

		event = e
		receipt = BookingReceipt{
			BookingID:    b.ID,
			UserID:       b.UserID,
			EventID:      eventID,
			PaymentID:    payment.ID,
			Tickets:      receiptLines(b.Details),
			TotalTickets: b.TotalTickets,
			TotalPrice:   b.TotalAmount,
			Status:       b.Status,
		}
		after(func(ctx context.Context) { s.afterCreate(ctx, event, &receipt) })
		return nil
	})
	if err != nil {
		observability.BookingsTotal.WithLabelValues("rejected").Inc()
		return BookingReceipt{}, err
	}
	observability.BookingsTotal.WithLabelValues("booked").Inc()
	return receipt, nil
}

func (s *BookingService) afterCreate(ctx context.Context, e domain.Event, r *BookingReceipt) {
	s.sideEffects(ctx, "booking.create",
		s.inventory.invalidate(e.ID),
		s.logActivity(Activity{
			UserID: r.UserID, EventID: e.ID, Type: "tickets_booked", Title: e.Name,
			Description: "Booked tickets", Status: string(r.Status), Amount: r.TotalPrice,
		}),
		func(ctx context.Context) error {
			inv := Invoice{
				Kind: "booking", ID: r.BookingID, UserID: r.UserID, EventID: e.ID, EventName: e.Name, EventDate: e.EventDate,
				Total: r.TotalPrice, Paid: r.TotalPrice, Due: decimal.Zero, IssuedAt: s.now().UTC(),
			}
			for _, l := range r.Tickets {
				inv.Lines = append(inv.Lines, InvoiceLine{Description: l.TicketType, Quantity: l.Quantity, UnitPrice: l.Price, Amount: l.SubTotal})
			}
			path, err := s.documents.Generate(ctx, inv)
			if err != nil || path == "" {
				return err
			}
			r.InvoicePath = path
			return s.store.Bookings(nil).SetInvoicePath(ctx, r.BookingID, path)
		},
	)
}

func (s *BookingService) Get(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Booking, error) {
	b, err := s.store.Bookings(nil).Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return b, domain.NotFoundf("booking not found")
	}
	if err != nil {
		return b, err
	}
	if err := caller.Owns(b.UserID); err != nil {
		return domain.Booking{}, err
	}
	for i := range b.Details {
		b.Details[i].TicketType = domain.DisplayTier(b.Details[i].TicketType)
	}
	return b, nil
}

type BookingCancelResult struct {
	Booking domain.Booking `json:"booking"`
	Refund  domain.Refund  `json:"refund"`
}

// Cancel returns the booking's tickets to inventory and refunds part of its payment:
// the cancel rate while the event is Booked, the rescheduled rate once it has moved.
// The refund never exceeds what is left unrefunded on the payment.
func (s *BookingService) Cancel(ctx context.Context, caller domain.Caller, bookingID uuid.UUID) (BookingCancelResult, error) {
	if err := caller.Validate(); err != nil {
		return BookingCancelResult{}, err
	}
	var res BookingCancelResult
	err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		b, err := s.store.Bookings(tx).GetForUpdate(ctx, bookingID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("booking not found")
		}
		if err != nil {
			return err
		}
		if err := caller.Owns(b.UserID); err != nil {
			return err
		}
		if b.Status != domain.BookingBooked {
			return domain.Statef("Booking is already %s", b.Status)
		}
		e, err := s.store.Events(tx).Get(ctx, b.EventID)
		if err != nil {
			return err
		}
		if !e.Status.Live() {
			return domain.Statef("bookings of an event in status %s cannot be cancelled", e.Status)
		}

		changed, err := s.store.Bookings(tx).Transition(ctx, b.ID, domain.BookingBooked, domain.BookingCancelled)
		if err != nil {
			return err
		}
		if !changed {
			return domain.Statef("Booking is no longer Booked")
		}
		if err := s.inventory.Release(ctx, tx, b.EventID, b.Details); err != nil {
			return err
		}

		rate := s.policy.BookingCancelRate
		if e.Status == domain.EventRescheduled {
			rate = s.policy.RescheduledBookingRate
		}
		var ref domain.Refund
		if b.PaymentID != nil {
			payment, err := s.store.Payments(tx).Get(ctx, *b.PaymentID)
			if err != nil {
				return err
			}
			refunded, err := s.store.Payments(tx).TotalRefunded(ctx, payment.ID)
			if err != nil {
				return err
			}
			amount := decimal.Min(payment.Amount.Mul(rate), payment.Amount.Sub(refunded))
			if amount.IsNegative() {
				amount = decimal.Zero
			}
			ref, err = s.issueRefund(ctx, tx, payment.ID, refundReasonBookingCancelled, amount)
			if err != nil {
				return err
			}
		}
		err = s.queueEmails(ctx, tx, b.ID.String(), notify.Email{
			Template:      notify.TemplateBookingCancelled,
			RecipientID:   b.UserID,
			RecipientRole: domain.RoleAudience,
			EventID:       e.ID,
			EventName:     e.Name,
			Subject:       "Your booking for " + e.Name + " is cancelled",
			Fields:        map[string]string{"booking_id": b.ID.String(), "refund_amount": ref.Amount.StringFixed(2)},
		})
		if err != nil {
			return err
		}

		b.Status = domain.BookingCancelled
		res = BookingCancelResult{Booking: b, Refund: ref}
		after(func(ctx context.Context) {
			s.sideEffects(ctx, "booking.cancel",
				s.inventory.invalidate(b.EventID),
				s.logActivity(Activity{
					UserID: b.UserID, EventID: b.EventID, Type: "booking_cancelled", Title: e.Name,
					Description: "Booking cancelled", Status: string(b.Status), Amount: ref.Amount,
				}),
			)
		})
		return nil
	})
	return res, err
}
