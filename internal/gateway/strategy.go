package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

// Checkout result literals, kept as-is from the host platform's contract.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)

// CheckoutResult is the outward contract of every checkout strategy: either
// a redirect URL for the payer or a failure marker.
type CheckoutResult struct {
	Result   string `json:"result"`
	Redirect string `json:"redirect,omitempty"`
}

// Strategy is one of the two interchangeable checkout orchestrations,
// selected once from configuration.
type Strategy interface {
	Name() string
	CreatePayment(ctx context.Context, o *order.Order) (CheckoutResult, error)
	ExecutePayment(ctx context.Context, paymentID string) (bkash.Response, error)
}

// Mode selects the configured checkout strategy.
type Mode string

const (
	ModeTokenized Mode = "tokenized"
	ModeURL       Mode = "url"
)

// ParseMode normalises a configured mode string, defaulting to tokenized.
func ParseMode(value string) Mode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "url":
		return ModeURL
	default:
		return ModeTokenized
	}
}

// URLs builds the redirect and callback targets the flows use. PublicBaseURL
// is this service's own externally reachable base; the storefront URLs
// belong to the host platform.
type URLs struct {
	PublicBaseURL string
	CheckoutURL   string
	ReceiptURL    string
}

// CallbackPath is the inbound route the provider redirects the payer to.
const CallbackPath = "/payments/bkash/callback"

// AgreementCallback returns the callback URL for the agreement-approval
// flow, tagged so the reconciler can route it before payment callbacks.
func (u URLs) AgreementCallback(orderID int64) string {
	q := url.Values{}
	q.Set("bkashify_callback_agreement", "1")
	q.Set("order_id", strconv.FormatInt(orderID, 10))
	return strings.TrimRight(u.PublicBaseURL, "/") + CallbackPath + "?" + q.Encode()
}

// PaymentCallback returns the callback URL for the payment flow.
func (u URLs) PaymentCallback() string {
	return strings.TrimRight(u.PublicBaseURL, "/") + CallbackPath + "?bkashify_callback=1"
}

// Checkout returns the storefront checkout page, optionally carrying a
// notice flag the storefront can render as an error message.
func (u URLs) Checkout(notice string) string {
	if notice == "" {
		return u.CheckoutURL
	}
	return appendQuery(u.CheckoutURL, url.Values{"notice": {notice}})
}

// OrderPay returns the storefront order-payment page, which re-enters the
// gateway for the payment phase once an agreement is in place.
func (u URLs) OrderPay(orderID int64) string {
	return appendQuery(u.CheckoutURL, url.Values{"order-pay": {strconv.FormatInt(orderID, 10)}})
}

// Receipt returns the order receipt page. Failure and cancel land here too;
// the notice flag tells the storefront which state to render.
func (u URLs) Receipt(orderID int64, notice string) string {
	q := url.Values{"order": {strconv.FormatInt(orderID, 10)}}
	if notice != "" {
		q.Set("notice", notice)
	}
	return appendQuery(u.ReceiptURL, q)
}

func appendQuery(base string, q url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s", base, sep, q.Encode())
}
