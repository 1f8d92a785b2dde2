package service

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
	"github.com/shopspring/decimal"
)

const maxAvailableDatesScan = 100

type FacilityService struct {
	*core
	availability *AvailabilityService
}

type FacilityInput struct {
	Type        domain.FacilityType
	Name        string
	Description string
	Price       decimal.Decimal
	Status      domain.FacilityStatus
}

// FacilityPatch changes only the fields that are set.
type FacilityPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Status      *domain.FacilityStatus
}

func (s *FacilityService) Create(ctx context.Context, caller domain.Caller, in FacilityInput) (domain.Facility, error) {
	if err := caller.Require(domain.RoleAdmin); err != nil {
		return domain.Facility{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return domain.Facility{}, domain.Validationf("facility name is required")
	}
	if in.Price.IsNegative() {
		return domain.Facility{}, domain.Validationf("price must not be negative")
	}
	if in.Status == "" {
		in.Status = domain.FacilityAvailable
	}
	f := domain.Facility{
		ID:          uuid.New(),
		Type:        in.Type,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Status:      in.Status,
		CreatedAt:   s.now().UTC(),
	}
	f.UpdatedAt = f.CreatedAt
	if err := s.store.Facilities(nil).Create(ctx, f); err != nil {
		return domain.Facility{}, err
	}
	return f, nil
}

// Update applies patch and records one audit row per changed field.
func (s *FacilityService) Update(ctx context.Context, caller domain.Caller, id uuid.UUID, patch FacilityPatch) (domain.Facility, error) {
	if err := caller.Require(domain.RoleAdmin); err != nil {
		return domain.Facility{}, err
	}
	var updated domain.Facility
	err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
		f, err := s.store.Facilities(tx).Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("facility not found")
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		var changes []domain.FacilityUpdate
		record := func(field, from, to string) {
			if from == to {
				return
			}
			changes = append(changes, domain.FacilityUpdate{
				FacilityID: id, Field: field, OldValue: from, NewValue: to, UpdatedBy: caller.UserID, UpdatedAt: now,
			})
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return domain.Validationf("facility name is required")
			}
			record("name", f.Name, name)
			f.Name = name
		}
		if patch.Description != nil {
			record("description", f.Description, *patch.Description)
			f.Description = *patch.Description
		}
		if patch.Price != nil {
			if patch.Price.IsNegative() {
				return domain.Validationf("price must not be negative")
			}
			if !patch.Price.Equal(f.Price) {
				record("price", f.Price.StringFixed(2), patch.Price.StringFixed(2))
			}
			f.Price = *patch.Price
		}
		if patch.Status != nil {
			record("status", string(f.Status), string(*patch.Status))
			f.Status = *patch.Status
		}
		if len(changes) == 0 {
			updated = f
			return nil
		}

		f.UpdatedAt = now
		if err := s.store.Facilities(tx).Update(ctx, f); err != nil {
			return err
		}
		if err := s.store.Facilities(tx).InsertUpdates(ctx, changes); err != nil {
			return err
		}
		updated = f
		after(func(ctx context.Context) {
			s.sideEffects(ctx, "facility.update", func(ctx context.Context) error {
				return s.cache.Delete(ctx, facilityKey(id))
			})
		})
		return nil
	})
	return updated, err
}

func (s *FacilityService) Get(ctx context.Context, id uuid.UUID) (domain.Facility, error) {
	var f domain.Facility
	err := s.cache.GetOrSetJSON(ctx, facilityKey(id), s.policy.CacheTTL, &f, func(ctx context.Context) (any, error) {
		return s.store.Facilities(nil).Get(ctx, id)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return f, domain.NotFoundf("facility not found")
	}
	return f, err
}

func (s *FacilityService) History(ctx context.Context, caller domain.Caller, id uuid.UUID) ([]domain.FacilityUpdate, error) {
	if err := caller.Require(domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.Facilities(nil).ListUpdates(ctx, id)
}

type AvailableDatesQuery struct {
	VenueID      uuid.UUID
	BandID       uuid.UUID
	DecorationID uuid.UUID
	Slot         domain.Slot
	Days         int
}

// AvailableDates scans the next Days days from tomorrow and returns those on which every
// given facility is free for the slot.
func (s *FacilityService) AvailableDates(ctx context.Context, q AvailableDatesQuery) ([]string, error) {
	if q.Days <= 0 || q.Days > maxAvailableDatesScan {
		return nil, domain.Validationf("days must be between 1 and %d", maxAvailableDatesScan)
	}
	wanted := map[domain.FacilityType]uuid.UUID{
		domain.FacilityVenue:      q.VenueID,
		domain.FacilityBand:       q.BandID,
		domain.FacilityDecoration: q.DecorationID,
	}
	var selections []domain.FacilitySelection
	for _, typ := range domain.DatedFacilityTypes {
		id := wanted[typ]
		if id == uuid.Nil {
			continue
		}
		f, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if f.Type != typ {
			return nil, domain.Validationf("facility %s is not a %s", f.Name, typ)
		}
		selections = append(selections, domain.FacilitySelection{Type: typ, FacilityID: id, Name: f.Name})
	}
	if len(selections) == 0 {
		return nil, domain.Validationf("at least one facility is required")
	}

	from := s.today().AddDate(0, 0, 1)
	to := from.AddDate(0, 0, q.Days-1)
	busy, err := s.availability.Conflicts(ctx, nil, selections, from, to, q.Slot, uuid.Nil)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, q.Days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if len(busy[d]) == 0 {
			dates = append(dates, d.Format(domain.DateLayout))
		}
	}
	return dates, nil
}

// resolveSelections loads the draft's facilities and prices them as selections.
func (c *core) resolveSelections(ctx context.Context, tx crdb.DB, eventID uuid.UUID, d domain.EventDraft) ([]domain.FacilitySelection, error) {
	ids := d.FacilityIDs()
	list := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	found, err := c.store.Facilities(tx).GetMany(ctx, list)
	if err != nil {
		return nil, err
	}

	var out []domain.FacilitySelection
	for _, typ := range append(append([]domain.FacilityType{}, domain.DatedFacilityTypes...), domain.FacilitySnack) {
		id, ok := ids[typ]
		if !ok {
			continue
		}
		f, ok := found[id]
		if !ok {
			return nil, domain.NotFoundf("%s not found", typ)
		}
		if f.Type != typ {
			return nil, domain.Validationf("facility %s is not a %s", f.Name, typ)
		}
		if !f.Status.Selectable() {
			return nil, domain.Validationf("%s %s is %s", typ, f.Name, f.Status)
		}
		qty := 1
		if typ == domain.FacilitySnack {
			qty = d.SnackCount
		}
		out = append(out, domain.FacilitySelection{
			EventID: eventID, Type: typ, FacilityID: id, Name: f.Name, Quantity: qty, UnitPrice: f.Price,
		})
	}
	return out, nil
}

func priceLines(sel []domain.FacilitySelection) []domain.PriceLine {
	lines := make([]domain.PriceLine, len(sel))
	for i, s := range sel {
		lines[i] = domain.PriceLine{Type: s.Type, Price: s.UnitPrice, Quantity: s.Quantity}
	}
	return lines
}

func dateString(t time.Time) string {
	return t.Format(domain.DateLayout)
}
