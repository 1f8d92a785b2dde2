package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/mongo"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	apihttp "github.com/robertarktes/event-bookings-and-payouts/internal/http"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminID    = uuid.MustParse("0f8f4d4e-6a35-4bb2-9c71-6f0f2c0a1a01")
	organizer  = uuid.MustParse("5b1e9c7a-2d3f-4e8a-9b0c-1d2e3f4a5b6c")
	audienceID = uuid.MustParse("7c2d4e6f-8a0b-4c1d-9e2f-3a4b5c6d7e8f")
)

// tokens treats the bearer token as "<role>".
type tokens struct{}

func (tokens) Parse(tok string) (domain.Caller, error) {
	switch tok {
	case "admin":
		return domain.Caller{UserID: adminID, Role: domain.RoleAdmin}, nil
	case "organizer":
		return domain.Caller{UserID: organizer, Role: domain.RoleOrganizer}, nil
	case "audience":
		return domain.Caller{UserID: audienceID, Role: domain.RoleAudience}, nil
	}
	return domain.Caller{}, errors.New("bad token")
}

type feed struct{ docs []mongo.ActivityDoc }

func (f feed) ListActivities(_ context.Context, userID uuid.UUID, limit int64) ([]mongo.ActivityDoc, error) {
	var out []mongo.ActivityDoc
	for _, d := range f.docs {
		if d.UserID == userID.String() && int64(len(out)) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

type source struct {
	ch chan service.AdminNotification
}

func (s source) Subscribe(context.Context) (<-chan service.AdminNotification, error) {
	return s.ch, nil
}

func newRouter(t *testing.T, src source, ready ...func(context.Context) error) http.Handler {
	t.Helper()
	svc := service.New(service.Deps{Logger: observability.NewLogger("error")})
	activities := feed{docs: []mongo.ActivityDoc{
		{ID: "a1", UserID: audienceID.String(), Title: "Tickets booked"},
		{ID: "a2", UserID: organizer.String(), Title: "Event booked"},
	}}
	h := apihttp.NewHandlers(svc, activities, src, ready...)
	return apihttp.SetupRouter(apihttp.RouterDeps{
		Handlers: h,
		Logger:   observability.NewLogger("error"),
		Tokens:   tokens{},
	})
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validationf("bad"), http.StatusBadRequest},
		{domain.NotFoundf("gone"), http.StatusNotFound},
		{domain.Conflictf("taken"), http.StatusConflict},
		{domain.Statef("nope"), http.StatusUnprocessableEntity},
		{domain.Forbiddenf("no"), http.StatusForbidden},
		{cerrors.Mark(errors.New("40001"), domain.ErrRetryable), http.StatusServiceUnavailable},
		{cerrors.Wrap(domain.NotFoundf("event not found"), "load"), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, apihttp.StatusOf(c.err), c.err.Error())
	}
}

func TestRouter(t *testing.T) {
	h := newRouter(t, source{})

	t.Run("health is public", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/healthz", "", "")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("feedback needs no bearer token but a signed link", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/v1/feedback", "", `{"token":"forged","rating":5}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "invalid feedback token", errorOf(t, rr))

		rr = do(t, h, http.MethodPost, "/v1/feedback", "", `{"token":"forged","stars":5}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing and bad tokens", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/me/activities", "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		rr = do(t, h, http.MethodGet, "/v1/me/activities", "forged", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("facility create requires admin", func(t *testing.T) {
		body := `{"facility_type":"venue","name":"Hall","price":"5000"}`
		rr := do(t, h, http.MethodPost, "/v1/facilities", "audience", body)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invalid bodies and ids", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/v1/events", "organizer", `{"name":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = do(t, h, http.MethodPost, "/v1/events", "organizer", `{"name":"Launch","slot":"Dusk","event_date":"2031-03-10","payment_plan":"Full"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, errorOf(t, rr), "invalid slot")

		rr = do(t, h, http.MethodGet, "/v1/events/not-a-uuid", "organizer", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid id", errorOf(t, rr))
	})

	t.Run("past event date is rejected", func(t *testing.T) {
		body := `{"name":"Launch","slot":"Morning","event_date":"2001-01-01","payment_plan":"Full","venue_id":"` + uuid.NewString() + `"}`
		rr := do(t, h, http.MethodPost, "/v1/events", "organizer", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("activity feed is per caller", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/me/activities?limit=10", "audience", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Activities []mongo.ActivityDoc `json:"activities"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body.Activities, 1)
		assert.Equal(t, "Tickets booked", body.Activities[0].Title)

		rr = do(t, h, http.MethodGet, "/v1/me/activities?limit=0", "audience", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestReadyz(t *testing.T) {
	h := newRouter(t, source{}, func(context.Context) error { return errors.New("db down") })
	rr := do(t, h, http.MethodGet, "/v1/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAdminNotifications(t *testing.T) {
	ch := make(chan service.AdminNotification, 1)
	h := newRouter(t, source{ch: ch})

	rr := do(t, h, http.MethodGet, "/v1/admin/notifications", "organizer", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	ch <- service.AdminNotification{
		Type:    "event_booked",
		EventID: uuid.New(),
		Message: "Event Launch booked",
		At:      time.Date(2031, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	close(ch)

	rr = do(t, h, http.MethodGet, "/v1/admin/notifications", "admin", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "event: event_booked\n")
	assert.Contains(t, rr.Body.String(), `"message":"Event Launch booked"`)
}
