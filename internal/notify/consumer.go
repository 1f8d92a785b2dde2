package notify

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
)

// Dispatcher hands queued emails to a Mailer.
type Dispatcher struct {
	mailer Mailer
	logger observability.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDispatcher(mailer Mailer, logger observability.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, logger: logger, seen: map[string]struct{}{}}
}

// Run handles deliveries until ctx ends or the channel closes.
func (d *Dispatcher) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case del, ok := <-deliveries:
			if !ok {
				return nil
			}
			d.Handle(ctx, del)
		}
	}
}

// Handle acks a delivered email, nacks undecodable ones without requeue and requeues
// on a mailer failure. Redeliveries of an already sent message id are acked unsent.
func (d *Dispatcher) Handle(ctx context.Context, del amqp.Delivery) {
	log := d.logger.WithField("message_id", del.MessageId).WithField("routing_key", del.RoutingKey)

	tmpl, ok := TemplateOf(del.RoutingKey)
	var e Email
	if !ok || json.Unmarshal(del.Body, &e) != nil || e.Template != tmpl {
		log.Warn("dropping undecodable message")
		_ = del.Nack(false, false)
		return
	}

	if del.MessageId != "" && d.wasSent(del.MessageId) {
		_ = del.Ack(false)
		return
	}

	if err := d.mailer.Send(ctx, e); err != nil {
		log.WithError(err).Error("send failed")
		_ = del.Nack(false, !del.Redelivered)
		return
	}
	d.markSent(del.MessageId)
	_ = del.Ack(false)
}

func (d *Dispatcher) wasSent(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

func (d *Dispatcher) markSent(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = struct{}{}
}
