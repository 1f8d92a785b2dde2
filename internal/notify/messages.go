package notify

import (
	"strings"

	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

// Email templates. The routing key of a message is "email.<template>".
const (
	TemplateEventBooked         = "event_booked"
	TemplateEventRescheduled    = "event_rescheduled"
	TemplateEventCancelled      = "event_cancelled"
	TemplateBookingConfirmed    = "booking_confirmed"
	TemplateBookingCancelled    = "booking_cancelled"
	TemplateFeedbackRequest     = "feedback_request"
	TemplatePaymentReminder     = "payment_reminder"
	TemplateOverdueCancellation = "overdue_cancellation"
)

const routingPrefix = "email."

// Email is a queued message for one recipient.
type Email struct {
	Template      string            `json:"template"`
	RecipientID   uuid.UUID         `json:"recipient_id"`
	RecipientRole domain.Role       `json:"recipient_role"`
	EventID       uuid.UUID         `json:"event_id"`
	EventName     string            `json:"event_name"`
	Subject       string            `json:"subject"`
	Fields        map[string]string `json:"fields,omitempty"`
	Urgent        bool              `json:"urgent,omitempty"`
}

func (e Email) RoutingKey() string {
	return routingPrefix + e.Template
}

// DedupeKey identifies the message across retries. scope separates repeated sends of
// the same template, such as reminders on different days.
func (e Email) DedupeKey(scope string) string {
	parts := []string{e.Template, e.EventID.String(), e.RecipientID.String()}
	if scope != "" {
		parts = append(parts, scope)
	}
	return strings.Join(parts, ":")
}

// TemplateOf extracts the template from a routing key.
func TemplateOf(routingKey string) (string, bool) {
	return strings.CutPrefix(routingKey, routingPrefix)
}
