package service

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/notify"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
	"github.com/shopspring/decimal"
)

const (
	refundReasonEventCancelled   = "event_cancelled"
	refundReasonBookingCancelled = "booking_cancelled"
	refundReasonOverdue          = "payment_overdue"
)

type EventService struct {
	*core
	availability *AvailabilityService
	finder       *RescheduleFinder
}

type EventReceipt struct {
	Event         domain.Event               `json:"event"`
	Facilities    []domain.FacilitySelection `json:"facilities"`
	Tickets       []domain.TicketTier        `json:"tickets,omitempty"`
	TotalAmount   decimal.Decimal            `json:"total_amount"`
	PaidAmount    decimal.Decimal            `json:"paid_amount"`
	PendingAmount decimal.Decimal            `json:"pending_amount"`
}

// Create books the draft's facilities for its date and slot and opens its ticket tiers.
func (s *EventService) Create(ctx context.Context, caller domain.Caller, d domain.EventDraft) (EventReceipt, error) {
	if err := caller.Require(domain.RoleOrganizer, domain.RoleAdmin); err != nil {
		return EventReceipt{}, err
	}
	d.Name = strings.TrimSpace(d.Name)
	d.EventDate = domain.DateOf(d.EventDate)
	if d.TicketOpenDate != nil {
		open := domain.DateOf(*d.TicketOpenDate)
		d.TicketOpenDate = &open
	}
	if err := d.Validate(s.today()); err != nil {
		return EventReceipt{}, err
	}

	var receipt EventReceipt
	err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		eventID := uuid.New()
		selections, err := s.resolveSelections(ctx, tx, eventID, d)
		if err != nil {
			return err
		}
		busy, err := s.availability.Conflicts(ctx, tx, selections, d.EventDate, d.EventDate, d.Slot, uuid.Nil)
		if err != nil {
			return err
		}
		if taken := busy[d.EventDate]; len(taken) > 0 {
			return domain.Conflictf("%s", unavailableReason(taken[0]))
		}

		total := domain.CalculateTotal(priceLines(selections))
		split, err := domain.SplitPayment(total, d.Plan)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		e := domain.Event{
			ID:             eventID,
			UserID:         caller.UserID,
			Name:           d.Name,
			Description:    d.Description,
			Slot:           d.Slot,
			EventDate:      d.EventDate,
			TicketEnabled:  d.TicketEnabled,
			TicketOpenDate: d.TicketOpenDate,
			Status:         domain.EventBooked,
			TotalAmount:    split.Total,
			PaidAmount:     split.Paid,
			AmountDue:      split.Due,
			BannerPath:     d.BannerPath,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.Events(tx).Create(ctx, e); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return domain.Conflictf("event %q already exists on %s (%s)", e.Name, dateString(e.EventDate), e.Slot)
			}
			return err
		}

		payment := domain.Payment{
			ID:        uuid.New(),
			UserID:    caller.UserID,
			EventID:   eventID,
			Mode:      d.PaymentMode,
			Amount:    split.Paid,
			AmountDue: split.Due,
			Status:    domain.PaymentCompleted,
			PaidAt:    now,
		}
		if split.Due.IsPositive() {
			payment.Status = domain.PaymentPending
		}
		if err := s.store.Payments(tx).Create(ctx, payment); err != nil {
			return err
		}
		if err := s.store.Events(tx).SetPayment(ctx, eventID, payment.ID); err != nil {
			return err
		}
		e.PaymentID = &payment.ID
		if err := s.store.Events(tx).AppendHistory(ctx, eventID, domain.EventBooked, caller.UserID); err != nil {
			return err
		}
		if err := s.store.Events(tx).InsertSelections(ctx, selections); err != nil {
			return err
		}
		if d.TicketEnabled {
			if err := s.store.Tickets(tx).Insert(ctx, eventID, d.Tiers); err != nil {
				return err
			}
		}
		err = s.queueEmails(ctx, tx, "", notify.Email{
			Template:      notify.TemplateEventBooked,
			RecipientID:   caller.UserID,
			RecipientRole: caller.Role,
			EventID:       eventID,
			EventName:     e.Name,
			Subject:       "Your event " + e.Name + " is booked",
			Fields: map[string]string{
				"event_date":     dateString(e.EventDate),
				"slot":           string(e.Slot),
				"total_amount":   split.Total.StringFixed(2),
				"paid_amount":    split.Paid.StringFixed(2),
				"pending_amount": split.Due.StringFixed(2),
			},
		})
		if err != nil {
			return err
		}

		receipt = EventReceipt{
			Event:         e,
			Facilities:    selections,
			Tickets:       d.Tiers,
			TotalAmount:   split.Total,
			PaidAmount:    split.Paid,
			PendingAmount: split.Due,
		}
		after(func(ctx context.Context) { s.afterCreate(ctx, &receipt) })
		return nil
	})
	return receipt, err
}

func (s *EventService) afterCreate(ctx context.Context, r *EventReceipt) {
	e := r.Event
	s.sideEffects(ctx, "event.create",
		s.broadcast("event_booked", e.ID, "Event %s booked for %s (%s)", e.Name, dateString(e.EventDate), e.Slot),
		s.logActivity(Activity{
			UserID: e.UserID, EventID: e.ID, Type: "event_booked", Title: e.Name,
			Description: "Event booked for " + dateString(e.EventDate), Status: string(e.Status), Amount: r.PaidAmount,
		}),
		func(ctx context.Context) error {
			return s.snapshots.SaveSnapshot(ctx, FacilitySnapshot{
				EventID: e.ID, EventName: e.Name, EventDate: e.EventDate, Slot: e.Slot, Facilities: r.Facilities,
			})
		},
		func(ctx context.Context) error {
			inv := Invoice{
				Kind: "event", ID: e.ID, UserID: e.UserID, EventID: e.ID, EventName: e.Name, EventDate: e.EventDate,
				Total: r.TotalAmount, Paid: r.PaidAmount, Due: r.PendingAmount, IssuedAt: s.now().UTC(),
			}
			for _, sel := range r.Facilities {
				inv.Lines = append(inv.Lines, InvoiceLine{
					Description: string(sel.Type) + ": " + sel.Name,
					Quantity:    sel.Quantity,
					UnitPrice:   sel.UnitPrice,
					Amount:      sel.UnitPrice.Mul(decimal.NewFromInt(int64(sel.Quantity))),
				})
			}
			path, err := s.documents.Generate(ctx, inv)
			if err != nil || path == "" {
				return err
			}
			r.Event.InvoicePath = path
			return s.store.Events(nil).SetInvoicePath(ctx, e.ID, path)
		},
	)
}

type EventView struct {
	Event      domain.Event               `json:"event"`
	Facilities []domain.FacilitySelection `json:"facilities"`
	Tickets    []domain.Ticket            `json:"tickets,omitempty"`
}

func (s *EventService) Get(ctx context.Context, caller domain.Caller, id uuid.UUID) (EventView, error) {
	if err := caller.Validate(); err != nil {
		return EventView{}, err
	}
	e, err := s.store.Events(nil).Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return EventView{}, domain.NotFoundf("event not found")
	}
	if err != nil {
		return EventView{}, err
	}
	view := EventView{Event: e}
	if view.Facilities, err = s.store.Events(nil).Selections(ctx, id); err != nil {
		return EventView{}, err
	}
	if e.TicketEnabled {
		if view.Tickets, err = s.store.Tickets(nil).ListByEvent(ctx, id); err != nil {
			return EventView{}, err
		}
	}
	return view, nil
}

// History lists the statuses an event has passed through, oldest first.
func (s *EventService) History(ctx context.Context, caller domain.Caller, id uuid.UUID) ([]domain.EventStatus, error) {
	e, err := s.store.Events(nil).Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFoundf("event not found")
	}
	if err != nil {
		return nil, err
	}
	if err := caller.Owns(e.UserID); err != nil {
		return nil, err
	}
	return s.store.Events(nil).History(ctx, id)
}

type RescheduleInput struct {
	Date           time.Time
	Slot           domain.Slot
	TicketOpenDate *time.Time
}

// Reschedule moves a Booked event to a date and slot on which all its facilities are free.
// Bookings and tickets carry over unchanged.
func (s *EventService) Reschedule(ctx context.Context, caller domain.Caller, eventID uuid.UUID, in RescheduleInput) (domain.Event, error) {
	if err := caller.Validate(); err != nil {
		return domain.Event{}, err
	}
	if !in.Slot.Valid() {
		return domain.Event{}, domain.Validationf("invalid slot %q: must be Morning, Afternoon or Night", in.Slot)
	}
	date := domain.DateOf(in.Date)

	var updated domain.Event
	err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		e, err := s.store.Events(tx).GetForUpdate(ctx, eventID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("event not found")
		}
		if err != nil {
			return err
		}
		if err := caller.Owns(e.UserID); err != nil {
			return err
		}
		if e.Status != domain.EventBooked {
			return domain.Statef("only Booked events can be rescheduled, event is %s", e.Status)
		}

		open := e.TicketOpenDate
		if in.TicketOpenDate != nil {
			o := domain.DateOf(*in.TicketOpenDate)
			open = &o
		}
		if e.TicketEnabled && open != nil && !open.Before(date) {
			return domain.Validationf("ticket open date must be before the event date")
		}

		w, err := s.finder.window(ctx, tx, eventID, date, date, in.Slot)
		if err != nil {
			return err
		}
		if reasons, ok := w.UnavailableDates[dateString(date)]; ok {
			return domain.Conflictf("%s", strings.Join(reasons, ", "))
		}

		changed, err := s.store.Events(tx).Reschedule(ctx, eventID, date, in.Slot, open)
		if err != nil {
			return err
		}
		if !changed {
			return domain.Statef("only Booked events can be rescheduled")
		}
		if err := s.store.Events(tx).AppendHistory(ctx, eventID, domain.EventRescheduled, caller.UserID); err != nil {
			return err
		}

		audience, err := s.bookedAudience(ctx, tx, eventID)
		if err != nil {
			return err
		}
		base := notify.Email{
			Template:  notify.TemplateEventRescheduled,
			EventID:   eventID,
			EventName: e.Name,
			Subject:   e.Name + " has been rescheduled",
			Fields: map[string]string{
				"old_date": dateString(e.EventDate),
				"old_slot": string(e.Slot),
				"new_date": dateString(date),
				"new_slot": string(in.Slot),
			},
		}
		organizer := base
		organizer.RecipientID, organizer.RecipientRole = e.UserID, domain.RoleOrganizer
		if err := s.queueEmails(ctx, tx, dateString(date), append([]notify.Email{organizer}, audienceEmails(base, audience)...)...); err != nil {
			return err
		}

		oldDate := e.EventDate
		e.EventDate, e.Slot, e.TicketOpenDate, e.Status = date, in.Slot, open, domain.EventRescheduled
		updated = e
		after(func(ctx context.Context) {
			s.sideEffects(ctx, "event.reschedule",
				s.broadcast("event_rescheduled", e.ID, "Event %s moved from %s to %s (%s)", e.Name, dateString(oldDate), dateString(date), in.Slot),
				s.logActivity(Activity{
					UserID: e.UserID, EventID: e.ID, Type: "event_rescheduled", Title: e.Name,
					Description: "Event rescheduled to " + dateString(date), Status: string(e.Status),
				}),
				func(ctx context.Context) error {
					return s.snapshots.UpdateSnapshotDate(ctx, e.ID, date, in.Slot)
				},
			)
		})
		return nil
	})
	return updated, err
}

type CancelResult struct {
	Event   domain.Event    `json:"event"`
	Refunds []domain.Refund `json:"refunds"`
}

// Cancel cancels the event, refunds the organizer per the refund policy and every booked
// audience member in full.
func (s *EventService) Cancel(ctx context.Context, caller domain.Caller, eventID uuid.UUID) (CancelResult, error) {
	if err := caller.Validate(); err != nil {
		return CancelResult{}, err
	}
	var res CancelResult
	err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		e, err := s.store.Events(tx).GetForUpdate(ctx, eventID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("event not found")
		}
		if err != nil {
			return err
		}
		if err := caller.Owns(e.UserID); err != nil {
			return err
		}
		if e.Status == domain.EventCancelled {
			return domain.Statef("Event is already cancelled")
		}
		if !e.Status.CanTransition(domain.EventCancelled) {
			return domain.Statef("an event in status %s cannot be cancelled", e.Status)
		}

		if err := s.transition(ctx, tx, e, domain.EventCancelled, caller.UserID); err != nil {
			return err
		}
		var refunds []domain.Refund
		if e.PaymentID != nil {
			payment, err := s.store.Payments(tx).Get(ctx, *e.PaymentID)
			if err != nil {
				return err
			}
			amount := s.policy.Refunds.Calculate(payment.Amount, e.EventDate, s.today())
			ref, err := s.issueRefund(ctx, tx, payment.ID, refundReasonEventCancelled, amount)
			if err != nil {
				return err
			}
			refunds = append(refunds, ref)
		}
		bookingRefunds, audience, err := s.cancelBookings(ctx, tx, eventID, refundReasonEventCancelled)
		if err != nil {
			return err
		}
		refunds = append(refunds, bookingRefunds...)

		base := notify.Email{
			Template:  notify.TemplateEventCancelled,
			EventID:   eventID,
			EventName: e.Name,
			Subject:   e.Name + " has been cancelled",
			Fields:    map[string]string{"event_date": dateString(e.EventDate)},
		}
		organizer := base
		organizer.RecipientID, organizer.RecipientRole = e.UserID, domain.RoleOrganizer
		if len(refunds) > 0 && e.PaymentID != nil {
			organizer.Fields = map[string]string{"event_date": dateString(e.EventDate), "refund_amount": refunds[0].Amount.StringFixed(2)}
		}
		if err := s.queueEmails(ctx, tx, "", append([]notify.Email{organizer}, audienceEmails(base, audience)...)...); err != nil {
			return err
		}

		e.Status = domain.EventCancelled
		res = CancelResult{Event: e, Refunds: refunds}
		after(func(ctx context.Context) {
			s.sideEffects(ctx, "event.cancel",
				s.broadcast("event_cancelled", e.ID, "Event %s on %s was cancelled", e.Name, dateString(e.EventDate)),
				s.logActivity(Activity{
					UserID: e.UserID, EventID: e.ID, Type: "event_cancelled", Title: e.Name,
					Description: "Event cancelled", Status: string(e.Status),
				}),
			)
		})
		return nil
	})
	return res, err
}

// transition applies a status-guarded status change and appends it to the history.
func (c *core) transition(ctx context.Context, tx crdb.DB, e domain.Event, to domain.EventStatus, by uuid.UUID) error {
	var from []domain.EventStatus
	for _, st := range []domain.EventStatus{domain.EventBooked, domain.EventRescheduled, domain.EventOngoing} {
		if st.CanTransition(to) {
			from = append(from, st)
		}
	}
	changed, err := c.store.Events(tx).Transition(ctx, e.ID, from, to)
	if err != nil {
		return err
	}
	if !changed {
		return domain.Statef("event %s can no longer move to %s", e.ID, to)
	}
	return c.store.Events(tx).AppendHistory(ctx, e.ID, to, by)
}

type PayResult struct {
	Event   domain.Event   `json:"event"`
	Payment domain.Payment `json:"payment"`
}

// PayPending collects the outstanding balance of a half-paid event.
func (s *EventService) PayPending(ctx context.Context, caller domain.Caller, eventID uuid.UUID, mode string) (PayResult, error) {
	if err := caller.Validate(); err != nil {
		return PayResult{}, err
	}
	var res PayResult
	err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		e, err := s.store.Events(tx).GetForUpdate(ctx, eventID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("event not found")
		}
		if err != nil {
			return err
		}
		if err := caller.Owns(e.UserID); err != nil {
			return err
		}
		pending, err := s.store.Payments(tx).FindPending(ctx, eventID, e.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Statef("Full Payment already paid")
		}
		if err != nil {
			return err
		}
		if !e.Status.Live() {
			return domain.Statef("an event in status %s cannot be paid", e.Status)
		}
		if strings.TrimSpace(mode) == "" {
			mode = pending.Mode
		}

		paid, err := s.store.Payments(tx).Settle(ctx, pending.ID, mode)
		if err != nil {
			return err
		}
		if err := s.store.Events(tx).SettleDue(ctx, eventID); err != nil {
			return err
		}
		e.PaidAmount, e.AmountDue = e.TotalAmount, decimal.Zero
		res = PayResult{Event: e, Payment: paid}

		after(func(ctx context.Context) {
			s.sideEffects(ctx, "event.pay_pending",
				s.broadcast("payment_completed", e.ID, "Balance of %s paid for %s", pending.AmountDue.StringFixed(2), e.Name),
				s.logActivity(Activity{
					UserID: e.UserID, EventID: e.ID, Type: "payment_completed", Title: e.Name,
					Description: "Remaining balance paid", Status: string(paid.Status), Amount: pending.AmountDue,
				}),
			)
		})
		return nil
	})
	return res, err
}
