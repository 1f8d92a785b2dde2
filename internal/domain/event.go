package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventBooked      EventStatus = "Booked"
	EventRescheduled EventStatus = "Rescheduled"
	EventOngoing     EventStatus = "Ongoing"
	EventCompleted   EventStatus = "Completed"
	EventCancelled   EventStatus = "Cancelled"
)

// LiveEventStatuses hold their facilities for the event's date and slot.
var LiveEventStatuses = []EventStatus{EventBooked, EventRescheduled}

var eventTransitions = map[EventStatus][]EventStatus{
	EventBooked:      {EventRescheduled, EventCancelled, EventOngoing, EventCompleted},
	EventRescheduled: {EventCancelled, EventOngoing, EventCompleted},
	EventOngoing:     {EventCompleted},
}

func (s EventStatus) CanTransition(to EventStatus) bool {
	for _, next := range eventTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s EventStatus) Live() bool {
	return s == EventBooked || s == EventRescheduled
}

func (s EventStatus) Terminal() bool {
	return s == EventCancelled || s == EventCompleted
}

// Bookable reports whether audiences may buy tickets for an event in this status.
func (s EventStatus) Bookable() bool {
	return s.Live()
}

// TicketTier is a ticket category requested when an event is created.
type TicketTier struct {
	Type  string          `json:"ticket_type"`
	Price decimal.Decimal `json:"price"`
	Count int             `json:"count"`
}

// EventDraft is the validated input of event creation.
type EventDraft struct {
	Name           string
	Description    string
	Slot           Slot
	EventDate      time.Time
	TicketEnabled  bool
	TicketOpenDate *time.Time
	BannerPath     string
	Plan           PaymentPlan
	PaymentMode    string
	VenueID        uuid.UUID
	BandID         uuid.UUID
	DecorationID   uuid.UUID
	SnackID        uuid.UUID
	SnackCount     int
	Tiers          []TicketTier
}

// FacilityIDs lists the selected facilities by type, skipping unset ones.
func (d EventDraft) FacilityIDs() map[FacilityType]uuid.UUID {
	ids := make(map[FacilityType]uuid.UUID, 4)
	for t, id := range map[FacilityType]uuid.UUID{
		FacilityVenue:      d.VenueID,
		FacilityBand:       d.BandID,
		FacilityDecoration: d.DecorationID,
		FacilitySnack:      d.SnackID,
	} {
		if id != uuid.Nil {
			ids[t] = id
		}
	}
	return ids
}

// Validate checks the draft against today's date.
func (d EventDraft) Validate(today time.Time) error {
	if strings.TrimSpace(d.Name) == "" {
		return Validationf("event name is required")
	}
	if !d.Slot.Valid() {
		return Validationf("invalid slot %q: must be Morning, Afternoon or Night", d.Slot)
	}
	if !d.EventDate.After(today) {
		return Validationf("date must be in the future")
	}
	if d.VenueID == uuid.Nil {
		return Validationf("a venue must be selected")
	}
	if d.SnackID != uuid.Nil && d.SnackCount <= 0 {
		return Validationf("snack count must be positive")
	}
	if d.SnackID == uuid.Nil && d.SnackCount != 0 {
		return Validationf("snack count given without a snack selection")
	}
	if !d.TicketEnabled {
		if len(d.Tiers) > 0 {
			return Validationf("ticket tiers given but ticketing is disabled")
		}
		return nil
	}
	if d.TicketOpenDate == nil {
		return Validationf("ticket open date is required when ticketing is enabled")
	}
	if !d.TicketOpenDate.Before(d.EventDate) {
		return Validationf("ticket open date must be before the event date")
	}
	return ValidateTiers(d.Tiers)
}

func ValidateTiers(tiers []TicketTier) error {
	if len(tiers) == 0 {
		return Validationf("at least one ticket tier is required when ticketing is enabled")
	}
	seen := make(map[string]struct{}, len(tiers))
	for _, t := range tiers {
		key := tierKey(t.Type)
		if key == "" {
			return Validationf("ticket type is required")
		}
		if _, dup := seen[key]; dup {
			return Validationf("duplicate ticket type %s", t.Type)
		}
		seen[key] = struct{}{}
		if t.Price.IsNegative() {
			return Validationf("price must not be negative for %s", t.Type)
		}
		if t.Count <= 0 {
			return Validationf("ticket count must be positive for %s", t.Type)
		}
	}
	return nil
}
