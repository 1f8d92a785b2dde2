package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Slot string

const (
	SlotMorning   Slot = "Morning"
	SlotAfternoon Slot = "Afternoon"
	SlotNight     Slot = "Night"
)

func (s Slot) Valid() bool {
	switch s {
	case SlotMorning, SlotAfternoon, SlotNight:
		return true
	}
	return false
}

func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "morning":
		return SlotMorning, nil
	case "afternoon":
		return SlotAfternoon, nil
	case "night":
		return SlotNight, nil
	}
	return "", Validationf("invalid slot %q: must be Morning, Afternoon or Night", s)
}

type FacilityType string

const (
	FacilityVenue      FacilityType = "venue"
	FacilityBand       FacilityType = "band"
	FacilityDecoration FacilityType = "decoration"
	FacilitySnack      FacilityType = "snack"
)

// DatedFacilityTypes are the facility kinds that can only serve one event per date and slot.
var DatedFacilityTypes = []FacilityType{FacilityVenue, FacilityBand, FacilityDecoration}

func ParseFacilityType(s string) (FacilityType, error) {
	t := FacilityType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case FacilityVenue, FacilityBand, FacilityDecoration, FacilitySnack:
		return t, nil
	}
	return "", Validationf("invalid facility type %q", s)
}

// Dated reports whether the facility is claimed per date and slot.
func (t FacilityType) Dated() bool {
	return t != FacilitySnack
}

type FacilityStatus string

const (
	FacilityAvailable        FacilityStatus = "Available"
	FacilityBooked           FacilityStatus = "Booked"
	FacilityDeactivated      FacilityStatus = "Deactivated"
	FacilityUnderMaintenance FacilityStatus = "UnderMaintenance"
)

func ParseFacilityStatus(s string) (FacilityStatus, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "available":
		return FacilityAvailable, nil
	case "booked":
		return FacilityBooked, nil
	case "deactivated":
		return FacilityDeactivated, nil
	case "undermaintenance":
		return FacilityUnderMaintenance, nil
	}
	return "", Validationf("invalid facility status %q", s)
}

// Selectable reports whether new events may select a facility in this status.
// Booked is informational only: real conflicts are computed per date and slot.
func (s FacilityStatus) Selectable() bool {
	return s == FacilityAvailable || s == FacilityBooked
}

type BookingStatus string

const (
	BookingBooked    BookingStatus = "Booked"
	BookingCancelled BookingStatus = "Cancelled"
	BookingCompleted BookingStatus = "Completed"
	BookingRefunded  BookingStatus = "Refunded"
	BookingPending   BookingStatus = "Pending"
	BookingFailed    BookingStatus = "Failed"
)

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "Pending"
	PaymentCompleted       PaymentStatus = "Completed"
	PaymentFailed          PaymentStatus = "Failed"
	PaymentRefunded        PaymentStatus = "Refunded"
	PaymentRefundInitiated PaymentStatus = "RefundInitiated"
)

type RefundStatus string

const (
	RefundInitiated RefundStatus = "Initiated"
	RefundProcessed RefundStatus = "Processed"
	RefundCompleted RefundStatus = "Completed"
	RefundRejected  RefundStatus = "Rejected"
)

type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "Pending"
	EscrowReleased EscrowStatus = "Released"
)

type Facility struct {
	ID          uuid.UUID       `json:"id"`
	Type        FacilityType    `json:"facility_type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Status      FacilityStatus  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FacilityUpdate is one audited field change made by an admin.
type FacilityUpdate struct {
	FacilityID uuid.UUID
	Field      string
	OldValue   string
	NewValue   string
	UpdatedBy  uuid.UUID
	UpdatedAt  time.Time
}

type FacilitySelection struct {
	EventID    uuid.UUID       `json:"event_id"`
	Type       FacilityType    `json:"facility_type"`
	FacilityID uuid.UUID       `json:"facility_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type Event struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Slot           Slot            `json:"slot"`
	EventDate      time.Time       `json:"event_date"`
	TicketEnabled  bool            `json:"ticket_enabled"`
	TicketOpenDate *time.Time      `json:"ticket_open_date,omitempty"`
	Status         EventStatus     `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	BannerPath     string          `json:"banner_path,omitempty"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
	InvoicePath    string          `json:"invoice_path,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Ticket struct {
	EventID   uuid.UUID       `json:"event_id"`
	Type      string          `json:"ticket_type"`
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"available_counts"`
	Booked    int             `json:"booked_ticket"`
}

type Booking struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	EventID      uuid.UUID       `json:"event_id"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
	TotalTickets int             `json:"total_tickets"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       BookingStatus   `json:"status"`
	BookedAt     time.Time       `json:"booked_at"`
	InvoicePath  string          `json:"invoice_path,omitempty"`
	Details      []BookingDetail `json:"details"`
}

type BookingDetail struct {
	BookingID  uuid.UUID       `json:"booking_id"`
	TicketType string          `json:"ticket_type"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	SubTotal   decimal.Decimal `json:"sub_total"`
}

type Payment struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	EventID   uuid.UUID       `json:"event_id"`
	BookingID *uuid.UUID      `json:"booking_id,omitempty"`
	Mode      string          `json:"payment_mode"`
	Amount    decimal.Decimal `json:"payment_amount"`
	AmountDue decimal.Decimal `json:"amount_due"`
	Status    PaymentStatus   `json:"status"`
	PaidAt    time.Time       `json:"payment_date"`
}

type Refund struct {
	ID        uuid.UUID       `json:"id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	Reason    string          `json:"reason"`
	Amount    decimal.Decimal `json:"amount"`
	Status    RefundStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	FeedbackSubmitted = "submitted"
	FeedbackRead      = "read"
)

// Feedback is an attendee's or organizer's rating of a completed event.
type Feedback struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	Rating    int       `json:"rating"`
	Summary   string    `json:"summary"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type Escrow struct {
	EventID        uuid.UUID       `json:"event_id"`
	UserID         uuid.UUID       `json:"user_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ReleasedAmount decimal.Decimal `json:"released_amount"`
	Status         EscrowStatus    `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ReleasedAt     *time.Time      `json:"released_at,omitempty"`
}
