package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
)

const maxFeedbackSummary = 2000

type FeedbackService struct {
	*core
	verifier FeedbackVerifier
}

// Submit records the rating carried by a signed feedback link. The token is the only
// credential; each user may rate an event once.
func (s *FeedbackService) Submit(ctx context.Context, token string, rating int, summary string) (domain.Feedback, error) {
	eventID, userID, err := s.verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		return domain.Feedback{}, err
	}
	if rating < 1 || rating > 5 {
		return domain.Feedback{}, domain.Validationf("rating must be between 1 and 5")
	}
	summary = strings.TrimSpace(summary)
	if utf8.RuneCountInString(summary) > maxFeedbackSummary {
		return domain.Feedback{}, domain.Validationf("summary must be at most %d characters", maxFeedbackSummary)
	}

	f := domain.Feedback{
		ID:        uuid.New(),
		EventID:   eventID,
		UserID:    userID,
		Rating:    rating,
		Summary:   summary,
		Status:    domain.FeedbackSubmitted,
		CreatedAt: s.now().UTC(),
	}
	err = s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		e, err := s.store.Events(tx).Get(ctx, eventID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("event not found")
		}
		if err != nil {
			return err
		}
		if e.Status != domain.EventCompleted {
			return domain.Statef("feedback opens once the event is completed")
		}
		err = s.store.Feedback(tx).Create(ctx, f)
		if errors.Is(err, domain.ErrConflict) {
			return domain.Conflictf("Feedback already submitted for this event")
		}
		if err != nil {
			return err
		}
		after(func(ctx context.Context) {
			s.sideEffects(ctx, "feedback.submit",
				s.logActivity(Activity{
					UserID: userID, EventID: eventID, Type: "feedback_submitted", Title: e.Name,
					Description: "Feedback submitted", Status: f.Status,
				}),
			)
		})
		return nil
	})
	if err != nil {
		return domain.Feedback{}, err
	}
	return f, nil
}

// ListForEvent returns the feedback left on an event to its organizer or an admin.
func (s *FeedbackService) ListForEvent(ctx context.Context, caller domain.Caller, eventID uuid.UUID) ([]domain.Feedback, error) {
	e, err := s.store.Events(nil).Get(ctx, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFoundf("event not found")
	}
	if err != nil {
		return nil, err
	}
	if err := caller.Owns(e.UserID); err != nil {
		return nil, err
	}
	return s.store.Feedback(nil).ListByEvent(ctx, eventID)
}
