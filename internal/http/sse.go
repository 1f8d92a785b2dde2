package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
)

const keepAlive = 25 * time.Second

// AdminNotifications streams admin notifications as server-sent events until the client
// disconnects.
func (h *Handlers) AdminNotifications(w http.ResponseWriter, r *http.Request) {
	if err := CallerFrom(r.Context()).Require(domain.RoleAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	ctx := r.Context()
	events, err := h.notifications.Subscribe(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	log := observability.LoggerFrom(ctx, fallbackLogger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				log.WithError(err).Warn("encode notification")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
