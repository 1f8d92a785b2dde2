package domain

import (
	"strings"
	"unicode"
)

// DefaultMaxTicketsPerTier caps how many tickets of one tier a single booking may hold.
const DefaultMaxTicketsPerTier = 10

// TicketLine is one requested tier and quantity of a booking.
type TicketLine struct {
	Tier     string `json:"ticket_type"`
	Quantity int    `json:"quantity"`
}

func tierKey(tier string) string {
	return strings.ToLower(strings.TrimSpace(tier))
}

// MergeByTier sums quantities of lines naming the same tier, ignoring case and
// surrounding space. Order of first appearance is kept.
func MergeByTier(lines []TicketLine) []TicketLine {
	merged := make([]TicketLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		key := tierKey(l.Tier)
		if i, ok := index[key]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, TicketLine{Tier: strings.TrimSpace(l.Tier), Quantity: l.Quantity})
	}
	return merged
}

// PrepareTicketLines validates each requested line, merges them by tier and checks
// every merged total against the per-tier cap.
func PrepareTicketLines(lines []TicketLine, maxPerTier int) ([]TicketLine, error) {
	if len(lines) == 0 {
		return nil, Validationf("at least one ticket is required")
	}
	for _, l := range lines {
		if err := checkLine(l, maxPerTier); err != nil {
			return nil, err
		}
	}
	merged := MergeByTier(lines)
	for _, l := range merged {
		if err := checkLine(l, maxPerTier); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func checkLine(l TicketLine, maxPerTier int) error {
	tier := strings.TrimSpace(l.Tier)
	switch {
	case tier == "":
		return Validationf("ticket type is required")
	case l.Quantity <= 0:
		return Validationf("quantity must be positive for %s", tier)
	case l.Quantity > maxPerTier:
		return Validationf("Maximum %d tickets allowed per booking for %s", maxPerTier, tier)
	}
	return nil
}

// DisplayTier renders a tier name with a leading capital and the rest lower case.
func DisplayTier(tier string) string {
	tier = strings.TrimSpace(tier)
	if tier == "" {
		return tier
	}
	r := []rune(strings.ToLower(tier))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
