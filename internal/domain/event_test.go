package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEventStatus_Transitions(t *testing.T) {
	assert.True(t, domain.EventBooked.CanTransition(domain.EventRescheduled))
	assert.True(t, domain.EventBooked.CanTransition(domain.EventCancelled))
	assert.True(t, domain.EventRescheduled.CanTransition(domain.EventOngoing))
	assert.True(t, domain.EventOngoing.CanTransition(domain.EventCompleted))

	assert.False(t, domain.EventRescheduled.CanTransition(domain.EventRescheduled))
	assert.False(t, domain.EventOngoing.CanTransition(domain.EventCancelled))
	assert.False(t, domain.EventCancelled.CanTransition(domain.EventBooked))
	assert.False(t, domain.EventCompleted.CanTransition(domain.EventCancelled))

	assert.True(t, domain.EventCancelled.Terminal())
	assert.True(t, domain.EventCompleted.Terminal())
	assert.True(t, domain.EventRescheduled.Live())
	assert.False(t, domain.EventOngoing.Live())
}

func TestEventDraft_Validate(t *testing.T) {
	today := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	open := today
	base := domain.EventDraft{
		Name:           "Launch",
		Slot:           domain.SlotNight,
		EventDate:      today.AddDate(0, 0, 20),
		TicketEnabled:  true,
		TicketOpenDate: &open,
		Plan:           domain.PlanFull,
		VenueID:        uuid.New(),
		Tiers:          []domain.TicketTier{{Type: "Gold", Price: decimal.NewFromInt(100), Count: 10}},
	}
	assert.NoError(t, base.Validate(today))

	past := base
	past.EventDate = today
	assert.ErrorIs(t, past.Validate(today), domain.ErrValidation)

	lateOpen := base
	late := base.EventDate
	lateOpen.TicketOpenDate = &late
	assert.ErrorIs(t, lateOpen.Validate(today), domain.ErrValidation)

	dupTier := base
	dupTier.Tiers = append([]domain.TicketTier{{Type: "gold", Price: decimal.NewFromInt(1), Count: 1}}, base.Tiers...)
	assert.ErrorIs(t, dupTier.Validate(today), domain.ErrValidation)

	noSlot := base
	noSlot.Slot = ""
	assert.ErrorIs(t, noSlot.Validate(today), domain.ErrValidation)

	noVenue := base
	noVenue.VenueID = uuid.Nil
	assert.ErrorIs(t, noVenue.Validate(today), domain.ErrValidation)

	snacks := base
	snacks.SnackID = uuid.New()
	assert.ErrorIs(t, snacks.Validate(today), domain.ErrValidation)
	snacks.SnackCount = 25
	assert.NoError(t, snacks.Validate(today))
}

func TestSlotPhase(t *testing.T) {
	loc := time.UTC
	date := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, domain.SlotUpcoming, domain.SlotMorning.Phase(date, date.Add(5*time.Hour), loc))
	assert.Equal(t, domain.SlotInProgress, domain.SlotMorning.Phase(date, date.Add(6*time.Hour), loc))
	assert.Equal(t, domain.SlotOver, domain.SlotMorning.Phase(date, date.Add(12*time.Hour), loc))
	assert.Equal(t, domain.SlotInProgress, domain.SlotNight.Phase(date, date.Add(23*time.Hour+time.Minute), loc))
	assert.Equal(t, domain.SlotOver, domain.SlotNight.Phase(date, date.Add(23*time.Hour+59*time.Minute), loc))
}

func TestSlotWindow_UsesLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	date := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	start, end := domain.SlotAfternoon.Window(date, loc)
	assert.True(t, start.Equal(time.Date(2026, 7, 1, 12, 0, 0, 0, loc)))
	assert.True(t, end.Equal(time.Date(2026, 7, 1, 18, 0, 0, 0, loc)))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 1, 30, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, domain.DaysBetween(a, b))
}

func TestCaller(t *testing.T) {
	owner := uuid.New()
	org := domain.Caller{UserID: owner, Role: domain.RoleOrganizer}
	other := domain.Caller{UserID: uuid.New(), Role: domain.RoleOrganizer}
	admin := domain.Caller{UserID: uuid.New(), Role: domain.RoleAdmin}

	assert.NoError(t, org.Owns(owner))
	assert.ErrorIs(t, other.Owns(owner), domain.ErrForbidden)
	assert.NoError(t, admin.Owns(owner))
	assert.ErrorIs(t, domain.Caller{}.Validate(), domain.ErrForbidden)
	assert.ErrorIs(t, domain.Caller{UserID: owner, Role: domain.RoleAudience}.Require(domain.RoleOrganizer, domain.RoleAdmin), domain.ErrForbidden)
}
