package service_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/auth"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recorder struct {
	mu            sync.Mutex
	notifications []service.AdminNotification
	activities    []service.Activity
	snapshots     map[uuid.UUID]service.FacilitySnapshot
	invoices      []service.Invoice
}

func newRecorder() *recorder {
	return &recorder{snapshots: map[uuid.UUID]service.FacilitySnapshot{}}
}

func (r *recorder) Broadcast(_ context.Context, n service.AdminNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recorder) LogActivity(_ context.Context, a service.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, a)
	return nil
}

func (r *recorder) SaveSnapshot(_ context.Context, s service.FacilitySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.EventID] = s
	return nil
}

func (r *recorder) UpdateSnapshotDate(_ context.Context, id uuid.UUID, date time.Time, slot domain.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snapshots[id]
	s.EventDate, s.Slot = date, slot
	r.snapshots[id] = s
	return nil
}

func (r *recorder) Generate(_ context.Context, inv service.Invoice) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices = append(r.invoices, inv)
	return "gridfs://documents/" + inv.ID.String(), nil
}

func (r *recorder) FeedbackLink(eventID, userID uuid.UUID) (string, error) {
	return "https://example.test/feedback?event=" + eventID.String() + "&user=" + userID.String(), nil
}

func (r *recorder) notificationTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notifications {
		out = append(out, n.Type)
	}
	return out
}

type env struct {
	store     *crdb.Store
	svc       *service.Services
	clock     *clock
	rec       *recorder
	signer    *auth.FeedbackSigner
	admin     domain.Caller
	organizer domain.Caller
}

// baseDay is "today" for every service test.
var baseDay = time.Date(2031, time.March, 1, 0, 0, 0, 0, time.UTC)

func newEnv(store *crdb.Store) *env {
	c := &clock{t: baseDay.Add(8 * time.Hour)}
	rec := newRecorder()
	authn, err := auth.NewAuthenticator("service-tests-secret-0123456789")
	if err != nil {
		panic(err)
	}
	signer, err := auth.NewFeedbackSigner(authn, "https://example.test/feedback", time.Hour)
	if err != nil {
		panic(err)
	}
	svc := service.New(service.Deps{
		Store:     store,
		Notifier:  rec,
		Activity:  rec,
		Snapshots: rec,
		Documents: rec,
		Links:     rec,
		Feedback:  signer,
		Policy:    service.DefaultPolicy(),
		Now:       c.Now,
	})
	return &env{
		store:     store,
		svc:       svc,
		clock:     c,
		rec:       rec,
		signer:    signer,
		admin:     domain.Caller{UserID: uuid.New(), Role: domain.RoleAdmin},
		organizer: domain.Caller{UserID: uuid.New(), Role: domain.RoleOrganizer},
	}
}

type catalog struct {
	venue, band, decoration, snack domain.Facility
}

func (e *env) catalog(t *testing.T) catalog {
	t.Helper()
	mk := func(typ domain.FacilityType, name string, price int64) domain.Facility {
		f, err := e.svc.Facilities.Create(context.Background(), e.admin, service.FacilityInput{
			Type: typ, Name: name, Price: decimal.NewFromInt(price),
		})
		require.NoError(t, err)
		return f
	}
	return catalog{
		venue:      mk(domain.FacilityVenue, "Grand Hall "+uuid.NewString()[:4], 5000),
		band:       mk(domain.FacilityBand, "Brass Band", 3000),
		decoration: mk(domain.FacilityDecoration, "Florals", 1000),
		snack:      mk(domain.FacilitySnack, "Samosa", 50),
	}
}

func day(offset int) time.Time {
	return baseDay.AddDate(0, 0, offset)
}

func (c catalog) draft(name string, date time.Time, slot domain.Slot, plan domain.PaymentPlan) domain.EventDraft {
	return domain.EventDraft{
		Name:         name,
		Slot:         slot,
		EventDate:    date,
		Plan:         plan,
		PaymentMode:  "card",
		VenueID:      c.venue.ID,
		BandID:       c.band.ID,
		DecorationID: c.decoration.ID,
		SnackID:      c.snack.ID,
		SnackCount:   20,
	}
}

func withTickets(d domain.EventDraft, open time.Time, tiers ...domain.TicketTier) domain.EventDraft {
	d.TicketEnabled = true
	d.TicketOpenDate = &open
	d.Tiers = tiers
	return d
}

func audience() domain.Caller {
	return domain.Caller{UserID: uuid.New(), Role: domain.RoleAudience}
}

func (e *env) feedbackToken(t *testing.T, eventID, userID uuid.UUID) string {
	t.Helper()
	link, err := e.signer.FeedbackLink(eventID, userID)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}
