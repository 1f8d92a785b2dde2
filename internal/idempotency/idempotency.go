package idempotency

import (
	"bytes"
	"context"
	"net/http"
	"time"

	redisadapter "github.com/robertarktes/event-bookings-and-payouts/internal/adapters/redis"
)

const (
	Header    = "Idempotency-Key"
	minKeyLen = 16
	lockTTL   = 30 * time.Second
)

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Idempotency replays the first completed response recorded for a key.
type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

// Middleware applies to POST requests. Keys are scoped by scope(r) so that two callers
// cannot replay each other's responses. Only responses below 500 are recorded.
func (i *Idempotency) Middleware(scope func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(Header)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < minKeyLen {
				writeError(w, http.StatusBadRequest, "invalid Idempotency-Key")
				return
			}
			if scope != nil {
				key = scope(r) + ":" + key
			}
			ctx := r.Context()

			existing, err := i.store.Get(ctx, key)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, try again")
				return
			}
			if existing != nil {
				replay(w, existing)
				return
			}

			locked, err := i.store.Lock(ctx, key, lockTTL)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, try again")
				return
			}
			if !locked {
				writeError(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
				return
			}
			defer i.store.Unlock(context.WithoutCancel(ctx), key)

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status < http.StatusInternalServerError {
				_ = i.store.Set(context.WithoutCancel(ctx), key, redisadapter.IdempResponse{
					Status:      rec.status,
					ContentType: rec.Header().Get("Content-Type"),
					Result:      rec.body.Bytes(),
				}, i.ttl)
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *redisadapter.IdempResponse) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Result)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
