package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/notify"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	acks, nacks, requeues int
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	if requeue {
		a.requeues++
	}
	return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

type failingMailer struct{ err error }

func (f failingMailer) Send(context.Context, notify.Email) error { return f.err }

func reminder() notify.Email {
	return notify.Email{
		Template:      notify.TemplatePaymentReminder,
		RecipientID:   uuid.MustParse("9a3e2f6c-1d7b-4c1e-8f0a-5b6c7d8e9f01"),
		RecipientRole: domain.RoleOrganizer,
		EventID:       uuid.MustParse("2b4d6f80-1a3c-4e5f-9a7b-0c2d4e6f8a1b"),
		EventName:     "Launch",
		Subject:       "Payment reminder for Launch",
		Fields:        map[string]string{"amount_due": "5000.00", "event_date": "2031-03-08", "days_left": "1"},
		Urgent:        true,
	}
}

func delivery(t *testing.T, ack amqp.Acknowledger, id string, e notify.Email) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(e)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, MessageId: id, RoutingKey: e.RoutingKey(), Body: body}
}

func TestRender(t *testing.T) {
	body, err := notify.Render(reminder())
	require.NoError(t, err)
	assert.Equal(t, "URGENT: 5000.00 is still due for Launch on 2031-03-08. 1 day(s) left.", body)

	cancelled := notify.Email{
		Template:  notify.TemplateEventCancelled,
		EventName: "Launch",
		Fields:    map[string]string{"event_date": "2031-03-08"},
	}
	body, err = notify.Render(cancelled)
	require.NoError(t, err)
	assert.Equal(t, "Launch on 2031-03-08 has been cancelled.", body)

	_, err = notify.Render(notify.Email{Template: "nope"})
	assert.Error(t, err)
}

func TestDispatcher(t *testing.T) {
	logger := observability.NewLogger("error")
	ctx := context.Background()

	t.Run("sends once per message id", func(t *testing.T) {
		var out bytes.Buffer
		d := notify.NewDispatcher(notify.NewLogMailer(&out), logger)
		ack := &ackRecorder{}
		e := reminder()

		d.Handle(ctx, delivery(t, ack, e.DedupeKey("d1"), e))
		d.Handle(ctx, delivery(t, ack, e.DedupeKey("d1"), e))

		assert.Equal(t, 2, ack.acks)
		assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("\n")))

		var line map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &line))
		assert.Equal(t, "payment_reminder", line["template"])
		assert.Equal(t, true, line["urgent"])
	})

	t.Run("undecodable is dropped", func(t *testing.T) {
		d := notify.NewDispatcher(failingMailer{}, logger)
		ack := &ackRecorder{}
		d.Handle(ctx, amqp.Delivery{Acknowledger: ack, RoutingKey: "email.payment_reminder", Body: []byte("{")})

		mismatched := delivery(t, ack, "", reminder())
		mismatched.RoutingKey = "email.feedback_request"
		d.Handle(ctx, mismatched)

		assert.Equal(t, 2, ack.nacks)
		assert.Zero(t, ack.requeues)
	})

	t.Run("mailer failure requeues once", func(t *testing.T) {
		d := notify.NewDispatcher(failingMailer{err: errors.New("smtp down")}, logger)
		ack := &ackRecorder{}

		del := delivery(t, ack, "m1", reminder())
		d.Handle(ctx, del)
		del.Redelivered = true
		d.Handle(ctx, del)

		assert.Equal(t, 2, ack.nacks)
		assert.Equal(t, 1, ack.requeues)
	})
}
