package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

const (
	maxRescheduleSpanDays = 90
	maxRescheduleAhead    = 365
)

type RescheduleFinder struct {
	*core
	availability *AvailabilityService
}

type Window struct {
	AvailableDates   []string            `json:"available_dates"`
	UnavailableDates map[string][]string `json:"unavailable_dates"`
}

// FindAvailableWindow lists which dates in [start, end] the event's facilities are all
// free for slot.
func (f *RescheduleFinder) FindAvailableWindow(
	ctx context.Context,
	caller domain.Caller,
	eventID uuid.UUID,
	start, end time.Time,
	slot domain.Slot,
) (Window, error) {
	e, err := f.store.Events(nil).Get(ctx, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		return Window{}, domain.NotFoundf("event not found")
	}
	if err != nil {
		return Window{}, err
	}
	if err := caller.Owns(e.UserID); err != nil {
		return Window{}, err
	}
	return f.window(ctx, nil, eventID, start, end, slot)
}

func (f *RescheduleFinder) window(ctx context.Context, db crdb.DB, eventID uuid.UUID, start, end time.Time, slot domain.Slot) (Window, error) {
	start, end = domain.DateOf(start), domain.DateOf(end)
	today := f.today()
	switch {
	case !slot.Valid():
		return Window{}, domain.Validationf("invalid slot %q: must be Morning, Afternoon or Night", slot)
	case start.Before(today.AddDate(0, 0, 1)):
		return Window{}, domain.Validationf("start date must be tomorrow or later")
	case end.Before(start):
		return Window{}, domain.Validationf("end date must not be before start date")
	case domain.DaysBetween(start, end) > maxRescheduleSpanDays:
		return Window{}, domain.Validationf("date range must not exceed %d days", maxRescheduleSpanDays)
	case end.After(today.AddDate(0, 0, maxRescheduleAhead)):
		return Window{}, domain.Validationf("dates must be within %d days from today", maxRescheduleAhead)
	}

	selections, err := f.store.Events(db).Selections(ctx, eventID)
	if err != nil {
		return Window{}, err
	}
	busy, err := f.availability.Conflicts(ctx, db, selections, start, end, slot, eventID)
	if err != nil {
		return Window{}, err
	}

	w := Window{AvailableDates: []string{}, UnavailableDates: map[string][]string{}}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		taken := busy[d]
		if len(taken) == 0 {
			w.AvailableDates = append(w.AvailableDates, dateString(d))
			continue
		}
		reasons := make([]string, len(taken))
		for i, sel := range taken {
			reasons[i] = unavailableReason(sel)
		}
		w.UnavailableDates[dateString(d)] = reasons
	}
	return w, nil
}
