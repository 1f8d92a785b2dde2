package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

type FeedbackRepo struct {
	db DB
}

// Create stores one attendee's feedback. A second submission for the same event and
// user is rejected with ErrConflict.
func (r *FeedbackRepo) Create(ctx context.Context, f domain.Feedback) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO feedbacks (id, event_id, user_id, rating, summary, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, user_id) DO NOTHING
	`, f.ID, f.EventID, f.UserID, f.Rating, f.Summary, f.Status, f.CreatedAt)
	if err != nil {
		return wrap("feedback.Create", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Mark(errors.New("feedback.Create: already submitted"), domain.ErrConflict)
	}
	return nil
}

func (r *FeedbackRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Feedback, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, user_id, rating, summary, status, created_at
		FROM feedbacks WHERE event_id = $1 ORDER BY created_at, id
	`, eventID)
	if err != nil {
		return nil, wrap("feedback.ListByEvent", err)
	}
	defer rows.Close()

	var out []domain.Feedback
	for rows.Next() {
		var f domain.Feedback
		if err := rows.Scan(&f.ID, &f.EventID, &f.UserID, &f.Rating, &f.Summary, &f.Status, &f.CreatedAt); err != nil {
			return nil, wrap("feedback.ListByEvent", err)
		}
		out = append(out, f)
	}
	return out, wrap("feedback.ListByEvent", rows.Err())
}
