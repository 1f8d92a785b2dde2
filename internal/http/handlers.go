package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/event-bookings-and-payouts/internal/adapters/mongo"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"github.com/shopspring/decimal"
)

type ActivityFeed interface {
	ListActivities(ctx context.Context, userID uuid.UUID, limit int64) ([]mongoadapter.ActivityDoc, error)
}

type NotificationSource interface {
	Subscribe(ctx context.Context) (<-chan service.AdminNotification, error)
}

type Handlers struct {
	svc           *service.Services
	activities    ActivityFeed
	notifications NotificationSource
	ready         []func(ctx context.Context) error
}

func NewHandlers(svc *service.Services, activities ActivityFeed, notifications NotificationSource, ready ...func(ctx context.Context) error) *Handlers {
	return &Handlers{svc: svc, activities: activities, notifications: notifications, ready: ready}
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

func optionalID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s", field)
	}
	return id, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, check := range h.ready {
		if err := check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "not ready"})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

// Facilities

type facilityRequest struct {
	FacilityType string          `json:"facility_type"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"`
}

func (h *Handlers) CreateFacility(w http.ResponseWriter, r *http.Request) {
	var req facilityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := domain.ParseFacilityType(req.FacilityType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := domain.FacilityAvailable
	if req.Status != "" {
		if status, err = domain.ParseFacilityStatus(req.Status); err != nil {
			writeError(w, r, err)
			return
		}
	}
	f, err := h.svc.Facilities.Create(r.Context(), CallerFrom(r.Context()), service.FacilityInput{
		Type:        typ,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Status:      status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

type facilityPatchRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Status      *string          `json:"status"`
}

func (h *Handlers) UpdateFacility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req facilityPatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := service.FacilityPatch{Name: req.Name, Description: req.Description, Price: req.Price}
	if req.Status != nil {
		st, err := domain.ParseFacilityStatus(*req.Status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Status = &st
	}
	f, err := h.svc.Facilities.Update(r.Context(), CallerFrom(r.Context()), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handlers) GetFacility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.svc.Facilities.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handlers) FacilityHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	updates, err := h.svc.Facilities.History(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

// FacilityAvailability answers whether a facility is free on ?date=&slot=.
func (h *Handlers) FacilityAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	typ, err := domain.ParseFacilityType(q.Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := domain.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	slot, err := domain.ParseSlot(q.Get("slot"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	booked, err := h.svc.Availability.IsBooked(r.Context(), typ, id, date, slot, uuid.Nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_booked": booked})
}

func (h *Handlers) AvailableDates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query service.AvailableDatesQuery
	var err error
	if query.VenueID, err = optionalID(q.Get("venue_id"), "venue_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.BandID, err = optionalID(q.Get("band_id"), "band_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.DecorationID, err = optionalID(q.Get("decoration_id"), "decoration_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.Slot, err = domain.ParseSlot(q.Get("slot")); err != nil {
		writeError(w, r, err)
		return
	}
	query.Days = 30
	if d := q.Get("days"); d != "" {
		if query.Days, err = strconv.Atoi(d); err != nil {
			writeError(w, r, domain.Validationf("invalid days"))
			return
		}
	}
	dates, err := h.svc.Facilities.AvailableDates(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_dates": dates})
}

// Events

type eventRequest struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Slot           string              `json:"slot"`
	EventDate      string              `json:"event_date"`
	TicketEnabled  bool                `json:"ticket_enabled"`
	TicketOpenDate string              `json:"ticket_open_date"`
	BannerPath     string              `json:"banner_path"`
	PaymentPlan    string              `json:"payment_plan"`
	PaymentMode    string              `json:"payment_mode"`
	VenueID        string              `json:"venue_id"`
	BandID         string              `json:"band_id"`
	DecorationID   string              `json:"decoration_id"`
	SnackID        string              `json:"snack_id"`
	SnackCount     int                 `json:"snack_count"`
	Tickets        []domain.TicketTier `json:"tickets"`
}

func (req eventRequest) draft() (domain.EventDraft, error) {
	d := domain.EventDraft{
		Name:          req.Name,
		Description:   req.Description,
		TicketEnabled: req.TicketEnabled,
		BannerPath:    req.BannerPath,
		PaymentMode:   req.PaymentMode,
		SnackCount:    req.SnackCount,
		Tiers:         req.Tickets,
	}
	var err error
	if d.Slot, err = domain.ParseSlot(req.Slot); err != nil {
		return d, err
	}
	if d.EventDate, err = domain.ParseDate(req.EventDate); err != nil {
		return d, err
	}
	if d.TicketOpenDate, err = optionalDate(req.TicketOpenDate); err != nil {
		return d, err
	}
	if d.Plan, err = domain.ParsePaymentPlan(req.PaymentPlan); err != nil {
		return d, err
	}
	for _, f := range []struct {
		dst   *uuid.UUID
		value string
		name  string
	}{
		{&d.VenueID, req.VenueID, "venue_id"},
		{&d.BandID, req.BandID, "band_id"},
		{&d.DecorationID, req.DecorationID, "decoration_id"},
		{&d.SnackID, req.SnackID, "snack_id"},
	} {
		if *f.dst, err = optionalID(f.value, f.name); err != nil {
			return d, err
		}
	}
	return d, nil
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	draft, err := req.draft()
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.svc.Events.Create(r.Context(), CallerFrom(r.Context()), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.svc.Events.Get(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) EventHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := h.svc.Events.History(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": history})
}

func (h *Handlers) EventTickets(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tickets, err := h.svc.Inventory.Tickets(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (h *Handlers) RescheduleWindow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	start, err := domain.ParseDate(q.Get("start"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := domain.ParseDate(q.Get("end"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	slot, err := domain.ParseSlot(q.Get("slot"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	win, err := h.svc.Reschedule.FindAvailableWindow(r.Context(), CallerFrom(r.Context()), id, start, end, slot)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

type rescheduleRequest struct {
	Date           string `json:"date"`
	Slot           string `json:"slot"`
	TicketOpenDate string `json:"ticket_open_date"`
}

func (h *Handlers) RescheduleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rescheduleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var in service.RescheduleInput
	if in.Date, err = domain.ParseDate(req.Date); err != nil {
		writeError(w, r, err)
		return
	}
	if in.Slot, err = domain.ParseSlot(req.Slot); err != nil {
		writeError(w, r, err)
		return
	}
	if in.TicketOpenDate, err = optionalDate(req.TicketOpenDate); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.svc.Events.Reschedule(r.Context(), CallerFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Events.Cancel(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type payRequest struct {
	PaymentMode string `json:"payment_mode"`
}

func (h *Handlers) PayPending(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req payRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Events.PayPending(r.Context(), CallerFrom(r.Context()), id, req.PaymentMode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Bookings

type bookingRequest struct {
	Tickets     []domain.TicketLine `json:"tickets"`
	PaymentMode string              `json:"payment_mode"`
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.svc.Bookings.Create(r.Context(), CallerFrom(r.Context()), eventID, req.Tickets, req.PaymentMode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.Bookings.Get(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Bookings.Cancel(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Feedback

type feedbackRequest struct {
	Token   string `json:"token"`
	Rating  int    `json:"rating"`
	Summary string `json:"summary"`
}

func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.svc.Feedback.Submit(r.Context(), req.Token, req.Rating, req.Summary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "Feedback submitted successfully", "feedback_id": f.ID})
}

func (h *Handlers) EventFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.Feedback.ListForEvent(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": list})
}

// MyActivities returns the caller's activity feed, newest first.
func (h *Handlers) MyActivities(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	if err := caller.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	limit := int64(50)
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, r, domain.Validationf("limit must be between 1 and 200"))
			return
		}
		limit = n
	}
	docs, err := h.activities.ListActivities(r.Context(), caller.UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": docs})
}
