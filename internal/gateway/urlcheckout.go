package gateway

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

// URLCheckout is the one-shot hosted-checkout flow. It mints the session id
// locally and never contacts the provider to open a session; ExecutePayment
// likewise fabricates a successful response. The real hosted-checkout
// protocol is not integrated, so both paths log a warning.
// TODO: replace the simulated execute with the provider's hosted-checkout
// execute call once merchant onboarding for that product line lands.
type URLCheckout struct {
	Orders    order.Store
	Endpoints bkash.Endpoints
	URLs      URLs
	Logger    zerolog.Logger
}

// Name identifies the strategy in logs and metrics.
func (u *URLCheckout) Name() string { return "url" }

// CreatePayment persists a locally minted session id and redirects the payer
// to the hosted checkout page with the session parameters in the query.
func (u *URLCheckout) CreatePayment(ctx context.Context, o *order.Order) (CheckoutResult, error) {
	u.Logger.Warn().Int64("order_id", o.ID).Msg("hosted-checkout session is minted locally, no provider create call")

	paymentID := "bkash_" + uuid.NewString()
	if err := u.Orders.SetMeta(ctx, o.ID, order.MetaPaymentID, paymentID); err != nil {
		return CheckoutResult{Result: ResultFail}, err
	}

	q := url.Values{}
	q.Set("invoice", o.Number)
	q.Set("amount", o.TotalAmount)
	q.Set("callback", u.URLs.PaymentCallback())
	q.Set("payerRef", o.BillingPhone)
	q.Set("paymentID", paymentID)
	redirect := u.Endpoints.Hosted("/start") + "?" + q.Encode()

	return CheckoutResult{Result: ResultSuccess, Redirect: redirect}, nil
}

// ExecutePayment fabricates a settled response without contacting the
// provider.
func (u *URLCheckout) ExecutePayment(_ context.Context, paymentID string) (bkash.Response, error) {
	u.Logger.Warn().Str("payment_id", paymentID).Msg("hosted-checkout execute is simulated")
	return bkash.Response{
		"statusCode": "0000",
		"paymentID":  paymentID,
		"trxID":      "trx_" + uuid.NewString(),
	}, nil
}
