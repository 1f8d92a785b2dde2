package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/notify"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
)

type LifecycleService struct {
	*core
	escrow *EscrowService
}

type TickResult struct {
	Ongoing   int `json:"ongoing"`
	Completed int `json:"completed"`
}

// Tick moves today's events through their slot windows and completes anything left
// over from earlier days.
func (s *LifecycleService) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	loc := s.policy.Location
	today := domain.Today(now, loc)
	events, err := s.store.Events(nil).ListActiveThrough(ctx, today)
	if err != nil {
		return TickResult{}, err
	}

	var res TickResult
	var failed error
	for _, e := range events {
		target, ok := nextStatus(e, today, now, loc)
		if !ok {
			continue
		}
		if err := s.advance(ctx, e, target); err != nil {
			if errors.Is(err, domain.ErrState) {
				continue
			}
			s.logger.WithField("event_id", e.ID).WithError(err).Error("status transition failed")
			failed = errors.CombineErrors(failed, err)
			continue
		}
		if target == domain.EventOngoing {
			res.Ongoing++
		} else {
			res.Completed++
		}
	}
	return res, failed
}

func nextStatus(e domain.Event, today, now time.Time, loc *time.Location) (domain.EventStatus, bool) {
	if e.EventDate.Before(today) {
		return domain.EventCompleted, true
	}
	switch e.Slot.Phase(e.EventDate, now, loc) {
	case domain.SlotInProgress:
		if e.Status.Live() {
			return domain.EventOngoing, true
		}
	case domain.SlotOver:
		return domain.EventCompleted, true
	}
	return "", false
}

func (s *LifecycleService) advance(ctx context.Context, e domain.Event, to domain.EventStatus) error {
	return s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		if err := s.transition(ctx, tx, e, to, domain.SystemCaller.UserID); err != nil {
			return err
		}
		if to != domain.EventCompleted {
			return nil
		}
		if _, err := s.escrow.Release(ctx, tx, e); err != nil {
			return err
		}
		if err := s.requestFeedback(ctx, tx, e); err != nil {
			return err
		}
		after(func(ctx context.Context) {
			s.sideEffects(ctx, "event.complete",
				s.broadcast("event_completed", e.ID, "Event %s completed", e.Name),
				s.logActivity(Activity{
					UserID: e.UserID, EventID: e.ID, Type: "event_completed", Title: e.Name,
					Description: "Event completed", Status: string(domain.EventCompleted),
				}),
			)
		})
		return nil
	})
}

func (s *LifecycleService) requestFeedback(ctx context.Context, tx crdb.DB, e domain.Event) error {
	audience, err := s.bookedAudience(ctx, tx, e.ID)
	if err != nil {
		return err
	}
	recipients := append([]uuid.UUID{e.UserID}, audience...)
	emails := make([]notify.Email, 0, len(recipients))
	for i, user := range recipients {
		link, err := s.links.FeedbackLink(e.ID, user)
		if err != nil {
			return err
		}
		role := domain.RoleAudience
		if i == 0 {
			role = domain.RoleOrganizer
		}
		emails = append(emails, notify.Email{
			Template:      notify.TemplateFeedbackRequest,
			RecipientID:   user,
			RecipientRole: role,
			EventID:       e.ID,
			EventName:     e.Name,
			Subject:       "How was " + e.Name + "?",
			Fields:        map[string]string{"feedback_url": link},
		})
	}
	return s.queueEmails(ctx, tx, "", emails...)
}
