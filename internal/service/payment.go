package service

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/notify"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
)

const pendingLookaheadDays = 7

// reminderDays are the days before an event on which an unpaid balance is chased.
var reminderDays = map[int]bool{7: true, 3: true, 1: true}

type PaymentService struct {
	*core
}

type SweepResult struct {
	Reminded  int `json:"reminded"`
	Cancelled int `json:"cancelled"`
}

// SweepPending chases unpaid balances of upcoming events and cancels events whose
// balance is still unpaid on the day.
func (s *PaymentService) SweepPending(ctx context.Context, now time.Time) (SweepResult, error) {
	today := domain.Today(now, s.policy.Location)
	events, err := s.store.Events(nil).ListPendingBalance(ctx, today.AddDate(0, 0, -pendingLookaheadDays), today.AddDate(0, 0, pendingLookaheadDays))
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	var failed error
	for _, e := range events {
		days := domain.DaysBetween(today, e.EventDate)
		switch {
		case days <= 0:
			err = s.cancelOverdue(ctx, e)
			if err == nil {
				res.Cancelled++
			}
		case reminderDays[days]:
			err = s.remind(ctx, e, days)
			if err == nil {
				res.Reminded++
			}
		default:
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrState) {
			s.logger.WithField("event_id", e.ID).WithError(err).Error("pending payment sweep failed")
			failed = errors.CombineErrors(failed, err)
		}
	}
	return res, failed
}

func (s *PaymentService) remind(ctx context.Context, e domain.Event, days int) error {
	return s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, _ func(uow.AfterCommit)) error {
		email := notify.Email{
			Template:      notify.TemplatePaymentReminder,
			RecipientID:   e.UserID,
			RecipientRole: domain.RoleOrganizer,
			EventID:       e.ID,
			EventName:     e.Name,
			Subject:       "Payment reminder for " + e.Name,
			Fields: map[string]string{
				"amount_due": e.AmountDue.StringFixed(2),
				"event_date": dateString(e.EventDate),
				"days_left":  strconv.Itoa(days),
			},
			Urgent: days == 1,
		}
		return s.queueEmails(ctx, tx, "d"+strconv.Itoa(days), email)
	})
}

func (s *PaymentService) cancelOverdue(ctx context.Context, e domain.Event) error {
	return s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		cur, err := s.store.Events(tx).GetForUpdate(ctx, e.ID)
		if err != nil {
			return err
		}
		if !cur.Status.Live() {
			return domain.Statef("event is %s", cur.Status)
		}
		if err := s.transition(ctx, tx, cur, domain.EventCancelled, domain.SystemCaller.UserID); err != nil {
			return err
		}
		if cur.PaymentID != nil {
			if err := s.store.Payments(tx).SetStatus(ctx, *cur.PaymentID, domain.PaymentFailed); err != nil {
				return err
			}
		}
		_, audience, err := s.cancelBookings(ctx, tx, cur.ID, refundReasonOverdue)
		if err != nil {
			return err
		}

		organizer := notify.Email{
			Template:      notify.TemplateOverdueCancellation,
			RecipientID:   cur.UserID,
			RecipientRole: domain.RoleOrganizer,
			EventID:       cur.ID,
			EventName:     cur.Name,
			Subject:       cur.Name + " was cancelled for non-payment",
			Fields:        map[string]string{"amount_due": cur.AmountDue.StringFixed(2), "event_date": dateString(cur.EventDate)},
			Urgent:        true,
		}
		base := notify.Email{
			Template:  notify.TemplateEventCancelled,
			EventID:   cur.ID,
			EventName: cur.Name,
			Subject:   cur.Name + " has been cancelled",
			Fields:    map[string]string{"event_date": dateString(cur.EventDate)},
		}
		if err := s.queueEmails(ctx, tx, "", append([]notify.Email{organizer}, audienceEmails(base, audience)...)...); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.sideEffects(ctx, "payment.overdue",
				s.broadcast("event_cancelled", cur.ID, "Event %s cancelled: balance unpaid on event day", cur.Name),
				s.logActivity(Activity{
					UserID: cur.UserID, EventID: cur.ID, Type: "event_cancelled", Title: cur.Name,
					Description: "Cancelled for non-payment", Status: string(domain.EventCancelled), Amount: cur.AmountDue,
				}),
			)
		})
		return nil
	})
}
