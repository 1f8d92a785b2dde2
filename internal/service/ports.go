package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/shopspring/decimal"
)

// AdminNotification is pushed to every connected admin.
type AdminNotification struct {
	Type    string    `json:"type"`
	EventID uuid.UUID `json:"event_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type AdminNotifier interface {
	Broadcast(ctx context.Context, n AdminNotification) error
}

// Activity is one entry of a user's activity feed.
type Activity struct {
	UserID      uuid.UUID
	EventID     uuid.UUID
	Type        string
	Title       string
	Description string
	Status      string
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

type ActivityLogger interface {
	LogActivity(ctx context.Context, a Activity) error
}

// FacilitySnapshot is the display copy of an event's selected facilities.
type FacilitySnapshot struct {
	EventID    uuid.UUID
	EventName  string
	EventDate  time.Time
	Slot       domain.Slot
	Facilities []domain.FacilitySelection
}

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s FacilitySnapshot) error
	UpdateSnapshotDate(ctx context.Context, eventID uuid.UUID, date time.Time, slot domain.Slot) error
}

type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is rendered for an event (organizer) or a booking (audience).
type Invoice struct {
	Kind      string          `json:"kind"`
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	EventID   uuid.UUID       `json:"event_id"`
	EventName string          `json:"event_name"`
	EventDate time.Time       `json:"event_date"`
	Lines     []InvoiceLine   `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Due       decimal.Decimal `json:"due"`
	IssuedAt  time.Time       `json:"issued_at"`
}

// DocumentGenerator stores a rendered invoice and returns where it lives.
type DocumentGenerator interface {
	Generate(ctx context.Context, inv Invoice) (string, error)
}

// Cache is a JSON cache-aside store. On a miss GetOrSetJSON calls load, stores the
// result and decodes it into dst.
type Cache interface {
	GetOrSetJSON(ctx context.Context, key string, ttl time.Duration, dst any, load func(ctx context.Context) (any, error)) error
	Delete(ctx context.Context, keys ...string) error
}

// LinkSigner builds signed feedback links.
type LinkSigner interface {
	FeedbackLink(eventID, userID uuid.UUID) (string, error)
}

// FeedbackVerifier resolves a signed feedback token to the event and user it was issued for.
type FeedbackVerifier interface {
	Verify(token string) (eventID, userID uuid.UUID, err error)
}
