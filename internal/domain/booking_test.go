package domain_test

import (
	"testing"

	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeByTier(t *testing.T) {
	merged := domain.MergeByTier([]domain.TicketLine{
		{Tier: "Gold", Quantity: 3},
		{Tier: "Silver", Quantity: 1},
		{Tier: " gold ", Quantity: 2},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, domain.TicketLine{Tier: "Gold", Quantity: 5}, merged[0])
	assert.Equal(t, domain.TicketLine{Tier: "Silver", Quantity: 1}, merged[1])
}

func TestPrepareTicketLines_CapAppliesToMergedTotal(t *testing.T) {
	_, err := domain.PrepareTicketLines([]domain.TicketLine{
		{Tier: "Gold", Quantity: 6},
		{Tier: "GOLD", Quantity: 5},
	}, domain.DefaultMaxTicketsPerTier)

	require.ErrorIs(t, err, domain.ErrValidation)
	reason, ok := domain.Reason(err)
	require.True(t, ok)
	assert.Equal(t, "Maximum 10 tickets allowed per booking for Gold", reason)
}

func TestPrepareTicketLines_ChecksLinesBeforeMerging(t *testing.T) {
	merged, err := domain.PrepareTicketLines([]domain.TicketLine{
		{Tier: "Gold", Quantity: 15},
		{Tier: "gold", Quantity: -5},
	}, domain.DefaultMaxTicketsPerTier)

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, merged)

	_, err = domain.PrepareTicketLines([]domain.TicketLine{
		{Tier: "Gold", Quantity: 3},
		{Tier: "gold", Quantity: -1},
	}, domain.DefaultMaxTicketsPerTier)
	require.ErrorIs(t, err, domain.ErrValidation)
	reason, _ := domain.Reason(err)
	assert.Equal(t, "quantity must be positive for gold", reason)
}

func TestPrepareTicketLines_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		lines []domain.TicketLine
	}{
		{"empty", nil},
		{"blank tier", []domain.TicketLine{{Tier: "  ", Quantity: 1}}},
		{"zero quantity", []domain.TicketLine{{Tier: "Gold", Quantity: 0}}},
		{"over cap", []domain.TicketLine{{Tier: "Gold", Quantity: 11}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.PrepareTicketLines(tc.lines, 10)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	merged, err := domain.PrepareTicketLines([]domain.TicketLine{{Tier: " Gold ", Quantity: 4}, {Tier: "gold", Quantity: 6}}, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.TicketLine{{Tier: "Gold", Quantity: 10}}, merged)
}

func TestDisplayTier(t *testing.T) {
	assert.Equal(t, "Gold", domain.DisplayTier("gOLD"))
	assert.Equal(t, "Platinum", domain.DisplayTier(" platinum "))
	assert.Equal(t, "", domain.DisplayTier(""))
}
