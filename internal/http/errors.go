package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
)

var statusByKind = []struct {
	kind   error
	status int
}{
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrState, http.StatusUnprocessableEntity},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrRetryable, http.StatusServiceUnavailable},
}

var fallbackLogger = observability.NewLogger("info")

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": reason}. Errors without a kind are logged and
// hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	var msg string
	switch status {
	case http.StatusInternalServerError:
		observability.LoggerFrom(r.Context(), fallbackLogger).WithError(err).Error("request failed")
		msg = "internal error"
	case http.StatusServiceUnavailable:
		msg = "temporarily unavailable, try again"
	default:
		reason, ok := domain.Reason(err)
		if !ok {
			reason = kindMessage(err)
		}
		msg = reason
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func kindMessage(err error) string {
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			return m.kind.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}
