package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"github.com/robertarktes/event-bookings-and-payouts/internal/testsupport"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func gold(count int) domain.TicketTier {
	return domain.TicketTier{Type: "Gold", Price: decimal.NewFromInt(500), Count: count}
}

func silver(count int) domain.TicketTier {
	return domain.TicketTier{Type: "Silver", Price: decimal.NewFromInt(200), Count: count}
}

func TestServices(t *testing.T) {
	store := testsupport.Store(t)
	ctx := context.Background()

	t.Run("create prices the event and blocks its facilities", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)

		receipt, err := e.svc.Events.Create(ctx, e.organizer, c.draft("Launch", day(20), domain.SlotMorning, domain.PlanFull))
		require.NoError(t, err)
		assertMoney(t, "10000", receipt.TotalAmount)
		assertMoney(t, "10000", receipt.PaidAmount)
		assertMoney(t, "0", receipt.PendingAmount)
		assert.Equal(t, domain.EventBooked, receipt.Event.Status)
		assert.Equal(t, "gridfs://documents/"+receipt.Event.ID.String(), receipt.Event.InvoicePath)
		assert.Len(t, receipt.Facilities, 4)

		booked, err := e.svc.Availability.IsBooked(ctx, domain.FacilityVenue, c.venue.ID, day(20), domain.SlotMorning, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, booked)

		booked, err = e.svc.Availability.IsBooked(ctx, domain.FacilityVenue, c.venue.ID, day(20), domain.SlotMorning, receipt.Event.ID)
		require.NoError(t, err)
		assert.False(t, booked)

		other := domain.Caller{UserID: uuid.New(), Role: domain.RoleOrganizer}
		_, err = e.svc.Events.Create(ctx, other, c.draft("Rival", day(20), domain.SlotMorning, domain.PlanFull))
		require.ErrorIs(t, err, domain.ErrConflict)
		assert.EqualError(t, err, "venue : "+c.venue.Name+" is not available")

		_, err = e.svc.Events.Create(ctx, other, c.draft("Rival", day(20), domain.SlotNight, domain.PlanFull))
		require.NoError(t, err)

		_, err = e.svc.Events.Create(ctx, e.organizer, c.draft("Launch", day(20), domain.SlotMorning, domain.PlanFull))
		require.ErrorIs(t, err, domain.ErrConflict)

		_, err = e.svc.Events.Create(ctx, audience(), c.draft("Party", day(30), domain.SlotMorning, domain.PlanFull))
		require.ErrorIs(t, err, domain.ErrForbidden)

		_, err = e.svc.Events.Create(ctx, e.organizer, c.draft("Past", day(0), domain.SlotMorning, domain.PlanFull))
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = e.svc.Availability.IsBooked(ctx, domain.FacilityVenue, uuid.New(), day(20), domain.SlotMorning, uuid.Nil)
		require.ErrorIs(t, err, domain.ErrNotFound)

		cancelled, err := e.svc.Events.Cancel(ctx, e.organizer, receipt.Event.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EventCancelled, cancelled.Event.Status)

		booked, err = e.svc.Availability.IsBooked(ctx, domain.FacilityVenue, c.venue.ID, day(20), domain.SlotMorning, uuid.Nil)
		require.NoError(t, err)
		assert.False(t, booked)
	})

	t.Run("unavailable facility status is rejected", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		status := domain.FacilityUnderMaintenance
		_, err := e.svc.Facilities.Update(ctx, e.admin, c.band.ID, service.FacilityPatch{Status: &status})
		require.NoError(t, err)

		_, err = e.svc.Events.Create(ctx, e.organizer, c.draft("Gala", day(12), domain.SlotAfternoon, domain.PlanFull))
		require.ErrorIs(t, err, domain.ErrValidation)

		history, err := e.svc.Facilities.History(ctx, e.admin, c.band.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "status", history[0].Field)
		assert.Equal(t, "UnderMaintenance", history[0].NewValue)
	})

	t.Run("half payment then pay pending", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)

		receipt, err := e.svc.Events.Create(ctx, e.organizer, c.draft("Wedding", day(15), domain.SlotAfternoon, domain.PlanHalf))
		require.NoError(t, err)
		assertMoney(t, "10000", receipt.TotalAmount)
		assertMoney(t, "5000", receipt.PaidAmount)
		assertMoney(t, "5000", receipt.PendingAmount)

		payment, err := e.store.Payments(nil).Get(ctx, *receipt.Event.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPending, payment.Status)
		assertMoney(t, "5000", payment.Amount)

		_, err = e.svc.Events.PayPending(ctx, domain.Caller{UserID: uuid.New(), Role: domain.RoleOrganizer}, receipt.Event.ID, "upi")
		require.ErrorIs(t, err, domain.ErrForbidden)

		paid, err := e.svc.Events.PayPending(ctx, e.organizer, receipt.Event.ID, "upi")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentCompleted, paid.Payment.Status)
		assertMoney(t, "10000", paid.Payment.Amount)
		assertMoney(t, "0", paid.Payment.AmountDue)
		assert.Equal(t, "upi", paid.Payment.Mode)

		stored, err := e.store.Events(nil).Get(ctx, receipt.Event.ID)
		require.NoError(t, err)
		assertMoney(t, "10000", stored.TotalAmount)
		assertMoney(t, "10000", stored.PaidAmount)
		assertMoney(t, "0", stored.AmountDue)

		history, err := e.store.Payments(nil).History(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, []domain.PaymentStatus{domain.PaymentPending, domain.PaymentCompleted}, history)

		_, err = e.svc.Events.PayPending(ctx, e.organizer, receipt.Event.ID, "upi")
		require.ErrorIs(t, err, domain.ErrState)
		assert.EqualError(t, err, "Full Payment already paid")
	})

	t.Run("bookings reserve and release inventory", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Concert", day(25), domain.SlotNight, domain.PlanFull), day(0), gold(6), silver(10)))
		require.NoError(t, err)
		eventID := receipt.Event.ID

		first, err := e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 3}}, "card")
		require.NoError(t, err)
		assert.Equal(t, 3, first.TotalTickets)
		assertMoney(t, "1500", first.TotalPrice)

		second, err := e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "gold", Quantity: 2}, {Tier: " GOLD ", Quantity: 1}}, "card")
		require.NoError(t, err)
		require.Len(t, second.Tickets, 1)
		assert.Equal(t, "Gold", second.Tickets[0].TicketType)
		assert.Equal(t, 3, second.Tickets[0].Quantity)

		_, err = e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 1}}, "card")
		require.ErrorIs(t, err, domain.ErrConflict)
		assert.EqualError(t, err, "Not enough tickets available for Gold. Available: 0")

		_, err = e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Silver", Quantity: 2}, {Tier: "Platinum", Quantity: 1}}, "card")
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.EqualError(t, err, "Invalid ticket type: Platinum")

		_, err = e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Silver", Quantity: 11}}, "card")
		require.ErrorIs(t, err, domain.ErrValidation)
		assert.EqualError(t, err, "Maximum 10 tickets allowed per booking for Silver")

		tickets, err := e.svc.Inventory.Tickets(ctx, eventID)
		require.NoError(t, err)
		counts := map[string][2]int{}
		for _, tk := range tickets {
			counts[tk.Type] = [2]int{tk.Available, tk.Booked}
		}
		assert.Equal(t, [2]int{0, 6}, counts["Gold"])
		assert.Equal(t, [2]int{10, 0}, counts["Silver"])

		buyer := audience()
		merged, err := e.svc.Bookings.Create(ctx, buyer, eventID, []domain.TicketLine{{Tier: "Silver", Quantity: 3}, {Tier: "silver", Quantity: 2}}, "card")
		require.NoError(t, err)
		require.Len(t, merged.Tickets, 1)
		assert.Equal(t, 5, merged.Tickets[0].Quantity)
		assertMoney(t, "1000", merged.Tickets[0].SubTotal)

		_, err = e.svc.Bookings.Cancel(ctx, audience(), merged.BookingID)
		require.ErrorIs(t, err, domain.ErrForbidden)

		cancelled, err := e.svc.Bookings.Cancel(ctx, buyer, merged.BookingID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingCancelled, cancelled.Booking.Status)
		assertMoney(t, "800", cancelled.Refund.Amount)

		tickets, err = e.store.Tickets(nil).ListByEvent(ctx, eventID)
		require.NoError(t, err)
		for _, tk := range tickets {
			if tk.Type == "Silver" {
				assert.Equal(t, 10, tk.Available)
				assert.Equal(t, 0, tk.Booked)
			}
		}

		_, err = e.svc.Bookings.Cancel(ctx, buyer, merged.BookingID)
		require.ErrorIs(t, err, domain.ErrState)

		_, err = e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Silver", Quantity: 15}, {Tier: "silver", Quantity: -5}}, "card")
		require.ErrorIs(t, err, domain.ErrValidation)

		partial, err := e.svc.Bookings.Create(ctx, buyer, eventID, []domain.TicketLine{{Tier: "Silver", Quantity: 5}}, "card")
		require.NoError(t, err)
		require.NoError(t, e.store.Payments(nil).CreateRefund(ctx, domain.Refund{
			ID: uuid.New(), PaymentID: partial.PaymentID, Reason: "goodwill",
			Amount: decimal.NewFromInt(900), Status: domain.RefundInitiated, CreatedAt: baseDay,
		}))
		capped, err := e.svc.Bookings.Cancel(ctx, buyer, partial.BookingID)
		require.NoError(t, err)
		assertMoney(t, "100", capped.Refund.Amount)
	})

	t.Run("bookings wait for ticket sales to open", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Preview", day(25), domain.SlotMorning, domain.PlanFull), day(10), gold(5)))
		require.NoError(t, err)

		_, err = e.svc.Bookings.Create(ctx, audience(), receipt.Event.ID, []domain.TicketLine{{Tier: "Gold", Quantity: 1}}, "card")
		require.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("event cancel refunds organizer and every booking", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Festival", day(20), domain.SlotAfternoon, domain.PlanFull), day(0), gold(10)))
		require.NoError(t, err)
		eventID := receipt.Event.ID

		var bookingIDs []uuid.UUID
		for i := 0; i < 2; i++ {
			b, err := e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 2}}, "card")
			require.NoError(t, err)
			bookingIDs = append(bookingIDs, b.BookingID)
		}

		_, err = e.svc.Events.Cancel(ctx, domain.Caller{UserID: uuid.New(), Role: domain.RoleOrganizer}, eventID)
		require.ErrorIs(t, err, domain.ErrForbidden)

		res, err := e.svc.Events.Cancel(ctx, e.organizer, eventID)
		require.NoError(t, err)
		require.Len(t, res.Refunds, 3)
		assertMoney(t, "5000", res.Refunds[0].Amount)
		assertMoney(t, "1000", res.Refunds[1].Amount)
		assertMoney(t, "1000", res.Refunds[2].Amount)

		stored, err := e.store.Payments(nil).RefundsByEvent(ctx, eventID)
		require.NoError(t, err)
		assert.Len(t, stored, 3)

		for _, id := range bookingIDs {
			b, err := e.store.Bookings(nil).Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domain.BookingCancelled, b.Status)
			p, err := e.store.Payments(nil).Get(ctx, *b.PaymentID)
			require.NoError(t, err)
			assert.Equal(t, domain.PaymentRefundInitiated, p.Status)
		}

		history, err := e.store.Events(nil).History(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, []domain.EventStatus{domain.EventBooked, domain.EventCancelled}, history)

		outbox, err := e.store.Outbox(nil).ListByAggregate(ctx, eventID)
		require.NoError(t, err)
		cancelMails := 0
		for _, rec := range outbox {
			if rec.EventType == "email.event_cancelled" {
				cancelMails++
			}
		}
		assert.Equal(t, 3, cancelMails)

		_, err = e.svc.Events.Cancel(ctx, e.organizer, eventID)
		require.ErrorIs(t, err, domain.ErrState)
		assert.EqualError(t, err, "Event is already cancelled")
		assert.Contains(t, e.rec.notificationTypes(), "event_cancelled")
	})

	t.Run("reschedule finder and reschedule", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Expo", day(20), domain.SlotMorning, domain.PlanFull), day(0), gold(10)))
		require.NoError(t, err)
		eventID := receipt.Event.ID

		blocker := c.draft("Blocker", day(22), domain.SlotMorning, domain.PlanFull)
		blocker.BandID, blocker.DecorationID, blocker.SnackID, blocker.SnackCount = uuid.Nil, uuid.Nil, uuid.Nil, 0
		_, err = e.svc.Events.Create(ctx, domain.Caller{UserID: uuid.New(), Role: domain.RoleOrganizer}, blocker)
		require.NoError(t, err)

		w, err := e.svc.Reschedule.FindAvailableWindow(ctx, e.organizer, eventID, day(21), day(23), domain.SlotMorning)
		require.NoError(t, err)
		assert.Equal(t, []string{"2031-03-22", "2031-03-24"}, w.AvailableDates)
		assert.Equal(t, map[string][]string{
			"2031-03-23": {"venue : " + c.venue.Name + " is not available"},
		}, w.UnavailableDates)

		_, err = e.svc.Reschedule.FindAvailableWindow(ctx, e.organizer, eventID, day(0), day(3), domain.SlotMorning)
		require.ErrorIs(t, err, domain.ErrValidation)
		_, err = e.svc.Reschedule.FindAvailableWindow(ctx, e.organizer, eventID, day(5), day(100), domain.SlotMorning)
		require.ErrorIs(t, err, domain.ErrValidation)
		_, err = e.svc.Reschedule.FindAvailableWindow(ctx, e.organizer, eventID, day(360), day(370), domain.SlotMorning)
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = e.svc.Reschedule.FindAvailableWindow(ctx, e.organizer, eventID, day(21), day(23), "")
		require.ErrorIs(t, err, domain.ErrValidation)
		_, err = e.svc.Events.Reschedule(ctx, e.organizer, eventID, service.RescheduleInput{Date: day(24)})
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = e.svc.Events.Reschedule(ctx, e.organizer, eventID, service.RescheduleInput{Date: day(22), Slot: domain.SlotMorning})
		require.ErrorIs(t, err, domain.ErrConflict)

		buyer := audience()
		b, err := e.svc.Bookings.Create(ctx, buyer, eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 2}}, "card")
		require.NoError(t, err)

		moved, err := e.svc.Events.Reschedule(ctx, e.organizer, eventID, service.RescheduleInput{Date: day(23), Slot: domain.SlotMorning})
		require.NoError(t, err)
		assert.Equal(t, domain.EventRescheduled, moved.Status)
		assert.True(t, moved.EventDate.Equal(day(23)))

		_, err = e.svc.Events.Reschedule(ctx, e.organizer, eventID, service.RescheduleInput{Date: day(24), Slot: domain.SlotMorning})
		require.ErrorIs(t, err, domain.ErrState)

		refund, err := e.svc.Bookings.Cancel(ctx, buyer, b.BookingID)
		require.NoError(t, err)
		assertMoney(t, "1000", refund.Refund.Amount)
	})

	t.Run("tick walks the slot window and releases escrow once", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Matinee", day(40), domain.SlotMorning, domain.PlanFull), day(0), gold(10)))
		require.NoError(t, err)
		eventID := receipt.Event.ID
		buyer := audience()
		_, err = e.svc.Bookings.Create(ctx, buyer, eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 3}}, "card")
		require.NoError(t, err)

		status := func() domain.EventStatus {
			ev, err := e.store.Events(nil).Get(ctx, eventID)
			require.NoError(t, err)
			return ev.Status
		}

		_, err = e.svc.Lifecycle.Tick(ctx, day(40).Add(5*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.EventBooked, status())

		_, err = e.svc.Lifecycle.Tick(ctx, day(40).Add(9*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.EventOngoing, status())

		_, err = e.svc.Lifecycle.Tick(ctx, day(40).Add(13*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.EventCompleted, status())

		escrow, err := e.store.Escrows(nil).Get(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowReleased, escrow.Status)
		assertMoney(t, "1500", escrow.TotalAmount)
		assertMoney(t, "1200", escrow.ReleasedAmount)

		_, err = e.svc.Lifecycle.Tick(ctx, day(40).Add(18*time.Hour))
		require.NoError(t, err)
		released, err := e.svc.Escrow.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, released)

		history, err := e.store.Events(nil).History(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, []domain.EventStatus{domain.EventBooked, domain.EventOngoing, domain.EventCompleted}, history)

		outbox, err := e.store.Outbox(nil).ListByAggregate(ctx, eventID)
		require.NoError(t, err)
		feedback := 0
		for _, rec := range outbox {
			if rec.EventType == "email.feedback_request" {
				feedback++
			}
		}
		assert.Equal(t, 2, feedback)
	})

	t.Run("tick completes events left over from earlier days", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer, c.draft("Late show", day(41), domain.SlotNight, domain.PlanFull))
		require.NoError(t, err)

		_, err = e.svc.Lifecycle.Tick(ctx, day(41).Add(23*time.Hour))
		require.NoError(t, err)
		ev, err := e.store.Events(nil).Get(ctx, receipt.Event.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EventOngoing, ev.Status)

		_, err = e.svc.Lifecycle.Tick(ctx, day(42).Add(6*time.Hour))
		require.NoError(t, err)
		ev, err = e.store.Events(nil).Get(ctx, receipt.Event.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EventCompleted, ev.Status)

		_, err = e.svc.Events.Cancel(ctx, e.organizer, receipt.Event.ID)
		require.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("pending sweep reminds then cancels overdue events", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Unpaid", day(3), domain.SlotAfternoon, domain.PlanHalf), day(0), gold(10)))
		require.NoError(t, err)
		eventID := receipt.Event.ID
		b, err := e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 2}}, "card")
		require.NoError(t, err)

		_, err = e.svc.Payments.SweepPending(ctx, day(0).Add(9*time.Hour))
		require.NoError(t, err)
		_, err = e.svc.Payments.SweepPending(ctx, day(1).Add(9*time.Hour))
		require.NoError(t, err)

		outbox, err := e.store.Outbox(nil).ListByAggregate(ctx, eventID)
		require.NoError(t, err)
		reminders := 0
		for _, rec := range outbox {
			if rec.EventType == "email.payment_reminder" {
				reminders++
			}
		}
		assert.Equal(t, 1, reminders)

		_, err = e.svc.Payments.SweepPending(ctx, day(3).Add(9*time.Hour))
		require.NoError(t, err)

		ev, err := e.store.Events(nil).Get(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, domain.EventCancelled, ev.Status)

		payment, err := e.store.Payments(nil).Get(ctx, *ev.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentFailed, payment.Status)

		booking, err := e.store.Bookings(nil).Get(ctx, b.BookingID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingCancelled, booking.Status)

		refunds, err := e.store.Payments(nil).RefundsByEvent(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, refunds, 1)
		assertMoney(t, "1000", refunds[0].Amount)
	})

	t.Run("available dates skips taken days", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		_, err := e.svc.Events.Create(ctx, e.organizer, c.draft("Taken", day(2), domain.SlotMorning, domain.PlanFull))
		require.NoError(t, err)

		dates, err := e.svc.Facilities.AvailableDates(ctx, service.AvailableDatesQuery{VenueID: c.venue.ID, Slot: domain.SlotMorning, Days: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"2031-03-02", "2031-03-04"}, dates)

		dates, err = e.svc.Facilities.AvailableDates(ctx, service.AvailableDatesQuery{BandID: c.band.ID, Slot: domain.SlotNight, Days: 3})
		require.NoError(t, err)
		assert.Len(t, dates, 3)

		_, err = e.svc.Facilities.AvailableDates(ctx, service.AvailableDatesQuery{VenueID: c.venue.ID, Slot: domain.SlotMorning, Days: 101})
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("concurrent bookings never oversell the last ticket", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Encore", day(50), domain.SlotNight, domain.PlanFull), day(0), gold(1)))
		require.NoError(t, err)
		eventID := receipt.Event.ID

		const buyers = 6
		errs := make([]error, buyers)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 1}}, "card")
			}(i)
		}
		close(start)
		wg.Wait()

		booked := 0
		for _, err := range errs {
			if err == nil {
				booked++
				continue
			}
			assert.True(t, errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrRetryable), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, booked)

		tickets, err := e.store.Tickets(nil).ListByEvent(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, tickets, 1)
		assert.Equal(t, 0, tickets[0].Available)
		assert.Equal(t, 1, tickets[0].Booked)
	})

	t.Run("concurrent events cannot share a facility slot", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)

		const organizers = 2
		errs := make([]error, organizers)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < organizers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				caller := domain.Caller{UserID: uuid.New(), Role: domain.RoleOrganizer}
				_, errs[i] = e.svc.Events.Create(ctx, caller, c.draft("Clash", day(55), domain.SlotAfternoon, domain.PlanFull))
			}(i)
		}
		close(start)
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assert.True(t, errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrRetryable), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, created)

		booked, err := e.svc.Availability.IsBooked(ctx, domain.FacilityVenue, c.venue.ID, day(55), domain.SlotAfternoon, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, booked)
	})

	t.Run("escrow sweep counts each release once", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer,
			withTickets(c.draft("Recital", day(60), domain.SlotMorning, domain.PlanFull), day(0), gold(5)))
		require.NoError(t, err)
		eventID := receipt.Event.ID
		_, err = e.svc.Bookings.Create(ctx, audience(), eventID, []domain.TicketLine{{Tier: "Gold", Quantity: 2}}, "card")
		require.NoError(t, err)

		changed, err := e.store.Events(nil).Transition(ctx, eventID, []domain.EventStatus{domain.EventBooked}, domain.EventCompleted)
		require.NoError(t, err)
		require.True(t, changed)

		released, err := e.svc.Escrow.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, released)

		escrow, err := e.store.Escrows(nil).Get(ctx, eventID)
		require.NoError(t, err)
		assertMoney(t, "1000", escrow.TotalAmount)
		assertMoney(t, "800", escrow.ReleasedAmount)

		released, err = e.svc.Escrow.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, released)
	})

	t.Run("feedback is accepted once per completed event", func(t *testing.T) {
		e := newEnv(store)
		c := e.catalog(t)
		receipt, err := e.svc.Events.Create(ctx, e.organizer, c.draft("Reunion", day(65), domain.SlotMorning, domain.PlanFull))
		require.NoError(t, err)
		eventID := receipt.Event.ID
		guest := audience()
		token := e.feedbackToken(t, eventID, guest.UserID)

		_, err = e.svc.Feedback.Submit(ctx, token, 4, "Great")
		require.ErrorIs(t, err, domain.ErrState)

		changed, err := e.store.Events(nil).Transition(ctx, eventID, []domain.EventStatus{domain.EventBooked}, domain.EventCompleted)
		require.NoError(t, err)
		require.True(t, changed)

		_, err = e.svc.Feedback.Submit(ctx, token, 6, "")
		require.ErrorIs(t, err, domain.ErrValidation)
		_, err = e.svc.Feedback.Submit(ctx, "not-a-token", 4, "")
		require.ErrorIs(t, err, domain.ErrForbidden)

		f, err := e.svc.Feedback.Submit(ctx, token, 4, "  Great venue  ")
		require.NoError(t, err)
		assert.Equal(t, "Great venue", f.Summary)
		assert.Equal(t, domain.FeedbackSubmitted, f.Status)

		_, err = e.svc.Feedback.Submit(ctx, token, 5, "again")
		require.ErrorIs(t, err, domain.ErrConflict)

		e.clock.Set(baseDay.Add(9 * time.Hour))
		_, err = e.svc.Feedback.Submit(ctx, e.feedbackToken(t, eventID, e.organizer.UserID), 5, "")
		require.NoError(t, err)

		list, err := e.svc.Feedback.ListForEvent(ctx, e.organizer, eventID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, guest.UserID, list[0].UserID)
		assert.Equal(t, 4, list[0].Rating)

		_, err = e.svc.Feedback.ListForEvent(ctx, guest, eventID)
		require.ErrorIs(t, err, domain.ErrForbidden)
	})
}
