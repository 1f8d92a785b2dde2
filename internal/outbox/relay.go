package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
)

type Publisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Relay moves outbox records to the broker. Delivery is at least once: the message id
// is the record's dedupe key so consumers can drop repeats.
type Relay struct {
	store    *crdb.Store
	pub      Publisher
	logger   observability.Logger
	batch    int
	interval time.Duration
	now      func() time.Time
}

func NewRelay(store *crdb.Store, pub Publisher, logger observability.Logger, batch int, interval time.Duration) *Relay {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{store: store, pub: pub, logger: logger, batch: batch, interval: interval, now: time.Now}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Warn("outbox relay failed")
		}
		// A full batch means more are probably waiting.
		if err == nil && n == r.batch {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one claimed batch and returns how many records were marked
// published. Records after a failed publish stay queued for the next round.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var published int
	var pubErr error

	err := r.store.RunTx(ctx, func(ctx context.Context, tx crdb.DB) error {
		published, pubErr = 0, nil
		repo := r.store.Outbox(tx)

		records, err := repo.ClaimBatch(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			observability.OutboxLag.Set(0)
			return nil
		}
		observability.OutboxLag.Set(r.now().Sub(records[0].CreatedAt).Seconds())

		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Timestamp:   rec.CreatedAt,
				Type:        rec.EventType,
				Body:        rec.Payload,
			}
			if err := r.pub.Publish(ctx, rec.EventType, msg); err != nil {
				pubErr = err
				break
			}
			if err := repo.MarkPublished(ctx, rec.ID, r.now().UTC()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, pubErr
}
