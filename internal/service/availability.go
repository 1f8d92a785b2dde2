package service

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

type AvailabilityService struct {
	*core
}

// Busy maps a date to the selections that another live event already holds on it.
type Busy map[time.Time][]domain.FacilitySelection

// IsBooked reports whether another live event holds the facility on date and slot.
func (s *AvailabilityService) IsBooked(
	ctx context.Context,
	typ domain.FacilityType,
	facilityID uuid.UUID,
	date time.Time,
	slot domain.Slot,
	exclude uuid.UUID,
) (bool, error) {
	date = domain.DateOf(date)
	if !date.After(s.today()) {
		return false, domain.Validationf("date must be in the future")
	}
	f, err := s.store.Facilities(nil).Get(ctx, facilityID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && f.Type != typ) {
		return false, domain.NotFoundf("facility not found")
	}
	if err != nil {
		return false, err
	}
	busy, err := s.Conflicts(ctx, nil, []domain.FacilitySelection{{Type: typ, FacilityID: facilityID, Name: f.Name}}, date, date, slot, exclude)
	if err != nil {
		return false, err
	}
	return len(busy[date]) > 0, nil
}

// Conflicts checks all dated selections over [from, to] with one query. db may be a
// transaction so the check sees the same snapshot as the writes that follow it.
func (s *AvailabilityService) Conflicts(
	ctx context.Context,
	db crdb.DB,
	selections []domain.FacilitySelection,
	from, to time.Time,
	slot domain.Slot,
	exclude uuid.UUID,
) (Busy, error) {
	byID := make(map[uuid.UUID]domain.FacilitySelection, len(selections))
	ids := make([]uuid.UUID, 0, len(selections))
	for _, sel := range selections {
		if !sel.Type.Dated() {
			continue
		}
		byID[sel.FacilityID] = sel
		ids = append(ids, sel.FacilityID)
	}
	busy := Busy{}
	if len(ids) == 0 {
		return busy, nil
	}

	conflicts, err := s.store.Facilities(db).ConflictsFor(ctx, ids, domain.DateOf(from), domain.DateOf(to), slot, exclude)
	if err != nil {
		return nil, err
	}
	seen := make(map[time.Time]map[domain.FacilityType]bool)
	for _, c := range conflicts {
		sel, ok := byID[c.FacilityID]
		if !ok || sel.Type != c.Type {
			continue
		}
		day := domain.DateOf(c.Date)
		if seen[day] == nil {
			seen[day] = make(map[domain.FacilityType]bool)
		}
		if seen[day][sel.Type] {
			continue
		}
		seen[day][sel.Type] = true
		busy[day] = append(busy[day], sel)
	}
	for day := range busy {
		sortSelections(busy[day])
	}
	return busy, nil
}

// sortSelections orders selections venue, band, decoration, snack.
func sortSelections(sel []domain.FacilitySelection) {
	rank := func(t domain.FacilityType) int {
		for i, d := range domain.DatedFacilityTypes {
			if d == t {
				return i
			}
		}
		return len(domain.DatedFacilityTypes)
	}
	sort.SliceStable(sel, func(i, j int) bool { return rank(sel[i].Type) < rank(sel[j].Type) })
}

func unavailableReason(sel domain.FacilitySelection) string {
	return string(sel.Type) + " : " + sel.Name + " is not available"
}
