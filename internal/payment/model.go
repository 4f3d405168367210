// Package payment provides Stripe integration and the payment event audit log.
package payment

import "time"

// Webhook event types the reconciliation pipeline understands. Anything else
// is recorded and acknowledged without side effects.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.paid"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is one entry in the append-only payment event log. EventID is the
// provider's event id and doubles as the idempotency key for webhook
// redelivery.
type Event struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id"`
	Type              string    `json:"type"`
	UserID            *string   `json:"user_id,omitempty"`
	ProgramID         *string   `json:"program_id,omitempty"`
	AmountTotal       *int64    `json:"amount_total,omitempty"` // cents
	Currency          *string   `json:"currency,omitempty"`
	ExternalReference *string   `json:"external_reference,omitempty"` // checkout session id
	CreatedAt         time.Time `json:"created_at"`
}
