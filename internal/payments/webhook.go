package payments

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/zsp-sports/gymbooking/internal/domain"
)

// Provider event types the booking core reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventIntentSucceeded   = "payment_intent.succeeded"
)

// WebhookEvent is the provider-neutral view of a confirmation event: the
// transaction id that keys exactly-once finalization plus the order metadata
// we attached at checkout time.
type WebhookEvent struct {
	Type          string
	TransactionID string
	AmountCents   int64
	Method        string
	Status        string
	Metadata      map[string]string
}

// WebhookVerifier checks the provider signature over the raw request body
// and decodes the event. An invalid signature is a provider failure; the
// handler must answer non-2xx so nothing downstream runs.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

func (v *WebhookVerifier) Verify(payload []byte, signature string) (*WebhookEvent, error) {
	// Events are signed under the account's API version, which can trail the
	// SDK's pinned one; only the signature decides authenticity here.
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature: %v", domain.ErrProviderFailure, err)
	}

	switch string(event.Type) {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %v", domain.ErrProviderFailure, err)
		}
		return &WebhookEvent{
			Type:          EventCheckoutCompleted,
			TransactionID: sess.ID,
			AmountCents:   sess.AmountTotal,
			Method:        "card",
			Status:        string(sess.PaymentStatus),
			Metadata:      sess.Metadata,
		}, nil
	case EventIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w: decode payment intent: %v", domain.ErrProviderFailure, err)
		}
		return &WebhookEvent{
			Type:          EventIntentSucceeded,
			TransactionID: intent.ID,
			AmountCents:   intent.Amount,
			Method:        "card",
			Status:        string(intent.Status),
			Metadata:      intent.Metadata,
		}, nil
	default:
		return &WebhookEvent{Type: string(event.Type)}, nil
	}
}
