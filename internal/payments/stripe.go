package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/zsp-sports/gymbooking/config"
	"github.com/zsp-sports/gymbooking/internal/domain"
)

// CheckoutParams describes one provider checkout for one pending order. The
// order metadata rides along on the session so the webhook can correlate the
// confirmation back to our records without any provider-side state.
type CheckoutParams struct {
	OrderID         int64
	CustomerID      int64
	PackageID       int64
	AthleteIDs      []int64
	PackageName     string
	UnitAmountCents int64
	Quantity        int64
}

type CheckoutSession struct {
	ID  string
	URL string
}

type IntentParams struct {
	OrderID     int64
	AmountCents int64
	CustomerID  int64
	PackageID   int64
	AthleteIDs  []int64
}

// StripeClient wraps the Stripe SDK. It is constructed once at startup and
// injected; nothing reads the package-level stripe globals.
type StripeClient struct {
	api        *client.API
	successURL string
	cancelURL  string
}

func NewStripeClient(cfg config.StripeConfig) *StripeClient {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeClient{
		api:        api,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.PackageName),
				},
				UnitAmount: stripe.Int64(p.UnitAmountCents),
			},
			Quantity: stripe.Int64(p.Quantity),
		}},
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
	}
	params.Context = ctx
	applyOrderMetadata(&params.Params, p.OrderID, p.CustomerID, p.PackageID, p.AthleteIDs)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", domain.ErrProviderFailure, err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, p IntentParams) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.Context = ctx
	applyOrderMetadata(&params.Params, p.OrderID, p.CustomerID, p.PackageID, p.AthleteIDs)

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: create payment intent: %v", domain.ErrProviderFailure, err)
	}
	return intent.ClientSecret, nil
}

// applyOrderMetadata stamps the order correlation data on a provider object.
// order_id is mandatory: finalization refuses any confirmation without it.
func applyOrderMetadata(params *stripe.Params, orderID, customerID, packageID int64, athleteIDs []int64) {
	params.AddMetadata("order_id", strconv.FormatInt(orderID, 10))
	params.AddMetadata("customer_id", strconv.FormatInt(customerID, 10))
	params.AddMetadata("package_id", strconv.FormatInt(packageID, 10))
	if ids, err := json.Marshal(athleteIDs); err == nil {
		params.AddMetadata("athlete_ids", string(ids))
	}
}
