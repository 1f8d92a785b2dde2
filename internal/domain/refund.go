package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type RefundTier struct {
	MinDays int
	Rate    decimal.Decimal
}

// RefundPolicy maps days left before an event to the refunded share of a payment.
type RefundPolicy struct {
	Tiers []RefundTier
	Floor decimal.Decimal
}

func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{
		Tiers: []RefundTier{
			{MinDays: 30, Rate: decimal.RequireFromString("0.8")},
			{MinDays: 15, Rate: decimal.RequireFromString("0.5")},
			{MinDays: 7, Rate: decimal.RequireFromString("0.2")},
		},
		Floor: decimal.Zero,
	}
}

func (p RefundPolicy) Rate(daysLeft int) decimal.Decimal {
	tiers := make([]RefundTier, len(p.Tiers))
	copy(tiers, p.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinDays > tiers[j].MinDays })
	for _, t := range tiers {
		if daysLeft >= t.MinDays {
			return t.Rate
		}
	}
	return p.Floor
}

// Calculate returns the refund for amount when cancelling on today for an event on eventDate.
func (p RefundPolicy) Calculate(amount decimal.Decimal, eventDate, today time.Time) decimal.Decimal {
	return amount.Mul(p.Rate(DaysBetween(today, eventDate))).Round(2)
}
