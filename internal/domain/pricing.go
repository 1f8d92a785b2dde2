package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type PaymentPlan string

const (
	PlanFull PaymentPlan = "Full"
	PlanHalf PaymentPlan = "Half"
)

func ParsePaymentPlan(s string) (PaymentPlan, error) {
	switch strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), " Payment")) {
	case "full", "full payment":
		return PlanFull, nil
	case "half", "half payment":
		return PlanHalf, nil
	}
	return "", Validationf("invalid payment plan %q: must be Full or Half", s)
}

// PriceLine is one priced facility selection.
type PriceLine struct {
	Type     FacilityType
	Price    decimal.Decimal
	Quantity int
}

// CalculateTotal sums the organizer-side cost. Snacks are charged per unit.
func CalculateTotal(lines []PriceLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Type == FacilitySnack {
			total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
			continue
		}
		total = total.Add(l.Price)
	}
	return total
}

type PaymentSplit struct {
	Total decimal.Decimal `json:"total_amount"`
	Paid  decimal.Decimal `json:"paid_amount"`
	Due   decimal.Decimal `json:"pending_amount"`
}

// SplitPayment divides total into what is collected now and what stays due.
// Paid and Due always add up to Total.
func SplitPayment(total decimal.Decimal, plan PaymentPlan) (PaymentSplit, error) {
	if total.IsNegative() {
		return PaymentSplit{}, Validationf("total must not be negative")
	}
	switch plan {
	case PlanFull:
		return PaymentSplit{Total: total, Paid: total, Due: decimal.Zero}, nil
	case PlanHalf:
		paid := total.Div(decimal.NewFromInt(2)).Round(2)
		return PaymentSplit{Total: total, Paid: paid, Due: total.Sub(paid)}, nil
	}
	return PaymentSplit{}, Validationf("invalid payment plan %q", plan)
}
