package notify

import (
	"bytes"
	"context"
	"io"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

var bodies = map[string]string{
	TemplateEventBooked: `Your event {{.EventName}} is booked for {{f "event_date"}} ({{f "slot"}}).
Total {{f "total_amount"}}, paid {{f "paid_amount"}}, pending {{f "pending_amount"}}.`,
	TemplateEventRescheduled:    `{{.EventName}} moved from {{f "old_date"}} ({{f "old_slot"}}) to {{f "new_date"}} ({{f "new_slot"}}).`,
	TemplateEventCancelled:      `{{.EventName}} on {{f "event_date"}} has been cancelled.{{if f "refund_amount"}} A refund of {{f "refund_amount"}} has been initiated.{{end}}`,
	TemplateBookingConfirmed:    `Booking {{f "booking_id"}}: {{f "total_tickets"}} tickets for {{.EventName}} on {{f "event_date"}}, total {{f "total_price"}}.`,
	TemplateBookingCancelled:    `Booking {{f "booking_id"}} for {{.EventName}} is cancelled. Refund: {{f "refund_amount"}}.`,
	TemplateFeedbackRequest:     `Thanks for attending {{.EventName}}. Tell us how it went: {{f "feedback_url"}}`,
	TemplatePaymentReminder:     `{{if .Urgent}}URGENT: {{end}}{{f "amount_due"}} is still due for {{.EventName}} on {{f "event_date"}}. {{f "days_left"}} day(s) left.`,
	TemplateOverdueCancellation: `{{.EventName}} on {{f "event_date"}} was cancelled because {{f "amount_due"}} was not paid in time.`,
}

var templates = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(bodies))
	for name, body := range bodies {
		out[name] = template.Must(template.New(name).Funcs(template.FuncMap{
			"f": func(string) string { return "" },
		}).Parse(body))
	}
	return out
}()

// Render produces the plain-text body of e.
func Render(e Email) (string, error) {
	tmpl, ok := templates[e.Template]
	if !ok {
		return "", errors.Newf("unknown template %q", e.Template)
	}
	t, err := tmpl.Clone()
	if err != nil {
		return "", err
	}
	t.Funcs(template.FuncMap{"f": func(k string) string { return e.Fields[k] }})

	var buf bytes.Buffer
	if err := t.Execute(&buf, e); err != nil {
		return "", errors.Wrapf(err, "render %s", e.Template)
	}
	return buf.String(), nil
}

// LogMailer writes each rendered message to a structured delivery log instead of an
// SMTP relay.
type LogMailer struct {
	log *logrus.Logger
}

func NewLogMailer(out io.Writer) *LogMailer {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{})
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, e Email) error {
	body, err := Render(e)
	if err != nil {
		return err
	}
	m.log.WithContext(ctx).WithFields(logrus.Fields{
		"template":       e.Template,
		"recipient_id":   e.RecipientID.String(),
		"recipient_role": string(e.RecipientRole),
		"event_id":       e.EventID.String(),
		"subject":        e.Subject,
		"urgent":         e.Urgent,
	}).Info(body)
	return nil
}
