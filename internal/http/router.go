package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-bookings-and-payouts/internal/idempotency"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/ratelimit"
)

type RouterDeps struct {
	Handlers    *Handlers
	Logger      observability.Logger
	Tokens      TokenParser
	RateLimiter *ratelimit.RateLimiter
	Limits      RateLimit
	Idempotency *idempotency.Idempotency
}

func SetupRouter(d RouterDeps) *chi.Mux {
	h := d.Handlers
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware(d.Logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	// The signed link is the credential here, so no bearer token is required.
	public := chi.Chain()
	if d.RateLimiter != nil {
		public = chi.Chain(RateLimitMiddleware(d.RateLimiter, d.Limits))
	}
	r.With(public...).Post("/v1/feedback", h.SubmitFeedback)

	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTMiddleware(d.Tokens))
		if d.RateLimiter != nil {
			r.Use(RateLimitMiddleware(d.RateLimiter, d.Limits))
		}
		if d.Idempotency != nil {
			r.Use(d.Idempotency.Middleware(func(r *http.Request) string {
				return CallerFrom(r.Context()).UserID.String()
			}))
		}

		r.Route("/facilities", func(r chi.Router) {
			r.Post("/", h.CreateFacility)
			r.Get("/available-dates", h.AvailableDates)
			r.Get("/{id}", h.GetFacility)
			r.Patch("/{id}", h.UpdateFacility)
			r.Get("/{id}/history", h.FacilityHistory)
			r.Get("/{id}/availability", h.FacilityAvailability)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/{id}", h.GetEvent)
			r.Get("/{id}/history", h.EventHistory)
			r.Get("/{id}/tickets", h.EventTickets)
			r.Get("/{id}/reschedule-window", h.RescheduleWindow)
			r.Post("/{id}/reschedule", h.RescheduleEvent)
			r.Post("/{id}/cancel", h.CancelEvent)
			r.Post("/{id}/pay", h.PayPending)
			r.Post("/{id}/bookings", h.CreateBooking)
			r.Get("/{id}/feedback", h.EventFeedback)
		})

		r.Get("/bookings/{id}", h.GetBooking)
		r.Post("/bookings/{id}/cancel", h.CancelBooking)

		r.Get("/me/activities", h.MyActivities)
		r.Get("/admin/notifications", h.AdminNotifications)
	})

	return r
}
