package domain

import "time"

const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date, represented as UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today is the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return DateOf(now.In(loc))
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, Validationf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DaysBetween counts calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

type slotWindow struct {
	start time.Duration
	end   time.Duration
}

var slotWindows = map[Slot]slotWindow{
	SlotMorning:   {start: 6 * time.Hour, end: 12 * time.Hour},
	SlotAfternoon: {start: 12 * time.Hour, end: 18 * time.Hour},
	SlotNight:     {start: 18 * time.Hour, end: 23*time.Hour + 59*time.Minute},
}

// Window returns when a slot starts and ends on date, in loc.
func (s Slot) Window(date time.Time, loc *time.Location) (time.Time, time.Time) {
	w := slotWindows[s]
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return day.Add(w.start), day.Add(w.end)
}

type SlotPhase int

const (
	SlotUpcoming SlotPhase = iota
	SlotInProgress
	SlotOver
)

// Phase locates now relative to the slot window of an event held on date.
func (s Slot) Phase(date, now time.Time, loc *time.Location) SlotPhase {
	start, end := s.Window(date, loc)
	switch {
	case now.Before(start):
		return SlotUpcoming
	case now.Before(end):
		return SlotInProgress
	default:
		return SlotOver
	}
}
