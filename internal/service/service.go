package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/config"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/notify"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Policy holds the business constants the services apply.
type Policy struct {
	Refunds                domain.RefundPolicy
	BookingCancelRate      decimal.Decimal
	RescheduledBookingRate decimal.Decimal
	EscrowReleaseRate      decimal.Decimal
	MaxTicketsPerTier      int
	Location               *time.Location
	CacheTTL               time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Refunds:                domain.DefaultRefundPolicy(),
		BookingCancelRate:      decimal.RequireFromString("0.8"),
		RescheduledBookingRate: decimal.NewFromInt(1),
		EscrowReleaseRate:      decimal.RequireFromString("0.8"),
		MaxTicketsPerTier:      domain.DefaultMaxTicketsPerTier,
		Location:               time.UTC,
		CacheTTL:               30 * time.Second,
	}
}

func PolicyFromConfig(cfg *config.Config) (Policy, error) {
	refunds, err := cfg.RefundPolicy()
	if err != nil {
		return Policy{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		Refunds:                refunds,
		BookingCancelRate:      cfg.BookingCancelRefundRate(),
		RescheduledBookingRate: cfg.RescheduledBookingRefundRate(),
		EscrowReleaseRate:      cfg.EscrowReleaseRate(),
		MaxTicketsPerTier:      cfg.Policy.MaxTicketsPerTier,
		Location:               loc,
		CacheTTL:               cfg.Redis.CacheTTL,
	}, nil
}

// Deps are the collaborators shared by every service. Nil ports are replaced by no-ops.
type Deps struct {
	Store     *crdb.Store
	Notifier  AdminNotifier
	Activity  ActivityLogger
	Snapshots SnapshotStore
	Documents DocumentGenerator
	Cache     Cache
	Links     LinkSigner
	Feedback  FeedbackVerifier
	Logger    observability.Logger
	Policy    Policy
	Now       func() time.Time
}

type Services struct {
	Availability *AvailabilityService
	Inventory    *InventoryService
	Facilities   *FacilityService
	Events       *EventService
	Bookings     *BookingService
	Reschedule   *RescheduleFinder
	Escrow       *EscrowService
	Lifecycle    *LifecycleService
	Payments     *PaymentService
	Feedback     *FeedbackService
}

func New(d Deps) *Services {
	c := newCore(d)
	availability := &AvailabilityService{core: c}
	inventory := &InventoryService{core: c}
	finder := &RescheduleFinder{core: c, availability: availability}
	escrow := &EscrowService{core: c}
	var verifier FeedbackVerifier = nopPorts{}
	if d.Feedback != nil {
		verifier = d.Feedback
	}
	return &Services{
		Availability: availability,
		Inventory:    inventory,
		Facilities:   &FacilityService{core: c, availability: availability},
		Events:       &EventService{core: c, availability: availability, finder: finder},
		Bookings:     &BookingService{core: c, inventory: inventory},
		Reschedule:   finder,
		Escrow:       escrow,
		Lifecycle:    &LifecycleService{core: c, escrow: escrow},
		Payments:     &PaymentService{core: c},
		Feedback:     &FeedbackService{core: c, verifier: verifier},
	}
}

type core struct {
	store     *crdb.Store
	uow       *uow.UoW
	notifier  AdminNotifier
	activity  ActivityLogger
	snapshots SnapshotStore
	documents DocumentGenerator
	cache     Cache
	links     LinkSigner
	logger    observability.Logger
	policy    Policy
	now       func() time.Time
}

func newCore(d Deps) *core {
	c := &core{
		store:     d.Store,
		uow:       uow.New(d.Store),
		notifier:  d.Notifier,
		activity:  d.Activity,
		snapshots: d.Snapshots,
		documents: d.Documents,
		cache:     d.Cache,
		links:     d.Links,
		logger:    d.Logger,
		policy:    d.Policy,
		now:       d.Now,
	}
	if c.notifier == nil {
		c.notifier = nopPorts{}
	}
	if c.activity == nil {
		c.activity = nopPorts{}
	}
	if c.snapshots == nil {
		c.snapshots = nopPorts{}
	}
	if c.documents == nil {
		c.documents = nopPorts{}
	}
	if c.cache == nil {
		c.cache = nopPorts{}
	}
	if c.links == nil {
		c.links = nopPorts{}
	}
	if c.logger == nil {
		c.logger = observability.NewLogger("info")
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.policy.Location == nil {
		c.policy.Location = time.UTC
	}
	if c.policy.MaxTicketsPerTier <= 0 {
		c.policy.MaxTicketsPerTier = domain.DefaultMaxTicketsPerTier
	}
	return c
}

func (c *core) today() time.Time {
	return domain.Today(c.now(), c.policy.Location)
}

// sideEffects runs best-effort work after a commit. Failures are logged, never returned.
func (c *core) sideEffects(ctx context.Context, op string, fns ...func(ctx context.Context) error) {
	logger := observability.LoggerFrom(ctx, c.logger).WithField("op", op)
	var g errgroup.Group
	for i, fn := range fns {
		g.Go(func() error {
			if err := fn(ctx); err != nil {
				logger.WithField("effect", i).WithError(err).Warn("side effect failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *core) broadcast(kind string, eventID uuid.UUID, format string, args ...any) func(context.Context) error {
	return func(ctx context.Context) error {
		return c.notifier.Broadcast(ctx, AdminNotification{
			Type:    kind,
			EventID: eventID,
			Message: fmt.Sprintf(format, args...),
			At:      c.now().UTC(),
		})
	}
}

func (c *core) logActivity(a Activity) func(context.Context) error {
	return func(ctx context.Context) error {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = c.now().UTC()
		}
		return c.activity.LogActivity(ctx, a)
	}
}

// queueEmails writes one outbox row per email in the caller's transaction.
func (c *core) queueEmails(ctx context.Context, tx crdb.DB, scope string, emails ...notify.Email) error {
	records := make([]crdb.OutboxRecord, 0, len(emails))
	for _, e := range emails {
		rec, err := crdb.NewOutboxRecord("event", e.EventID, e.RoutingKey(), e.DedupeKey(scope), e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return c.store.Outbox(tx).Insert(ctx, records...)
}

// issueRefund marks a payment RefundInitiated and records a refund of amount against it.
func (c *core) issueRefund(ctx context.Context, tx crdb.DB, paymentID uuid.UUID, reason string, amount decimal.Decimal) (domain.Refund, error) {
	if err := c.store.Payments(tx).SetStatus(ctx, paymentID, domain.PaymentRefundInitiated); err != nil {
		return domain.Refund{}, err
	}
	ref := domain.Refund{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Reason:    reason,
		Amount:    amount.Round(2),
		Status:    domain.RefundInitiated,
		CreatedAt: c.now().UTC(),
	}
	if err := c.store.Payments(tx).CreateRefund(ctx, ref); err != nil {
		return domain.Refund{}, err
	}
	observability.RefundsIssued.WithLabelValues(reason).Inc()
	return ref, nil
}

// cancelBookings cancels every Booked booking of an event with a full refund.
// It returns the refunds and the distinct audience members affected.
func (c *core) cancelBookings(ctx context.Context, tx crdb.DB, eventID uuid.UUID, reason string) ([]domain.Refund, []uuid.UUID, error) {
	bookings, err := c.store.Bookings(tx).ListBooked(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	var refunds []domain.Refund
	var users []uuid.UUID
	seen := make(map[uuid.UUID]struct{}, len(bookings))
	for _, b := range bookings {
		changed, err := c.store.Bookings(tx).Transition(ctx, b.ID, domain.BookingBooked, domain.BookingCancelled)
		if err != nil {
			return nil, nil, err
		}
		if !changed {
			continue
		}
		if b.PaymentID != nil {
			ref, err := c.issueRefund(ctx, tx, *b.PaymentID, reason, b.TotalAmount)
			if err != nil {
				return nil, nil, err
			}
			refunds = append(refunds, ref)
		}
		if _, ok := seen[b.UserID]; !ok {
			seen[b.UserID] = struct{}{}
			users = append(users, b.UserID)
		}
	}
	return refunds, users, nil
}

// bookedAudience lists the distinct users holding Booked bookings for an event.
func (c *core) bookedAudience(ctx context.Context, tx crdb.DB, eventID uuid.UUID) ([]uuid.UUID, error) {
	bookings, err := c.store.Bookings(tx).ListBooked(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var users []uuid.UUID
	seen := make(map[uuid.UUID]struct{}, len(bookings))
	for _, b := range bookings {
		if _, ok := seen[b.UserID]; ok {
			continue
		}
		seen[b.UserID] = struct{}{}
		users = append(users, b.UserID)
	}
	return users, nil
}

func audienceEmails(base notify.Email, users []uuid.UUID) []notify.Email {
	out := make([]notify.Email, 0, len(users))
	for _, u := range users {
		e := base
		e.RecipientID = u
		e.RecipientRole = domain.RoleAudience
		out = append(out, e)
	}
	return out
}

type nopPorts struct{}

func (nopPorts) Broadcast(context.Context, AdminNotification) error   { return nil }
func (nopPorts) LogActivity(context.Context, Activity) error          { return nil }
func (nopPorts) SaveSnapshot(context.Context, FacilitySnapshot) error { return nil }
func (nopPorts) UpdateSnapshotDate(context.Context, uuid.UUID, time.Time, domain.Slot) error {
	return nil
}
func (nopPorts) Generate(context.Context, Invoice) (string, error) { return "", nil }
func (nopPorts) GetOrSetJSON(ctx context.Context, _ string, _ time.Duration, dst any, load func(context.Context) (any, error)) error {
	v, err := load(ctx)
	if err != nil {
		return err
	}
	return assign(dst, v)
}
func (nopPorts) Delete(context.Context, ...string) error           { return nil }
func (nopPorts) FeedbackLink(uuid.UUID, uuid.UUID) (string, error) { return "", nil }
func (nopPorts) Verify(string) (uuid.UUID, uuid.UUID, error) {
	return uuid.Nil, uuid.Nil, domain.Forbiddenf("invalid feedback token")
}
