package rabbit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
)

type Publisher struct {
	ch       *amqp.Channel
	exchange string
	retries  int
}

// NewPublisher declares the topic exchange and puts the channel in confirm mode, so
// Publish returns only once the broker has taken the message.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Wrap(err, "confirm mode")
	}
	return &Publisher{ch: ch, exchange: exchange, retries: 3}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	var err error
	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if err = p.publishOnce(ctx, key, msg); err == nil {
			return nil
		}
	}
	return errors.Wrapf(err, "publish %s", key)
}

func (p *Publisher) publishOnce(ctx context.Context, key string, msg amqp.Publishing) error {
	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("broker nacked message")
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
