package payment

import (
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// CheckoutParams represents parameters for creating a Checkout Session.
type CheckoutParams struct {
	UserID       string
	ProgramID    string
	ProgramTitle string
	PriceCents   int64
	Currency     string
	SuccessURL   string
	CancelURL    string
}

// Client is an interface for Stripe operations to enable testing with mocks.
type Client interface {
	CreateCheckoutSession(params *CheckoutParams) (*stripe.CheckoutSession, error)
}

// StripeClient implements the Client interface using the real Stripe SDK.
type StripeClient struct{}

// NewStripeClient creates a new Stripe client with the given API key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// CreateCheckoutSession creates a one-time payment Checkout Session for a
// program. The user and program ids ride along as session metadata so the
// webhook handler can reconcile the purchase without a provider lookup.
func (c *StripeClient) CreateCheckoutSession(params *CheckoutParams) (*stripe.CheckoutSession, error) {
	currency := params.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(params.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.ProgramTitle),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	sessionParams.AddMetadata("user_id", params.UserID)
	sessionParams.AddMetadata("program_id", params.ProgramID)

	return session.New(sessionParams)
}
