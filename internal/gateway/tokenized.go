package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

// Tokenized drives the recurring-billing checkout. The flow is two-phase and
// callback-driven: without an agreement on the order it creates one and
// sends the payer off to approve it; with an agreement in place it creates
// the actual payment session. The transitions in between happen in the
// reconciler, never here.
type Tokenized struct {
	Orders     order.Store
	Agreements *bkash.AgreementClient
	Payments   *bkash.PaymentClient
	URLs       URLs
	Logger     zerolog.Logger
}

// Name identifies the strategy in logs and metrics.
func (t *Tokenized) Name() string { return "tokenized" }

// CreatePayment runs exactly one of the two phases, gated on the presence of
// a stored agreement id.
func (t *Tokenized) CreatePayment(ctx context.Context, o *order.Order) (CheckoutResult, error) {
	agreementID := o.MetaValue(order.MetaAgreementID)
	if agreementID == "" {
		return t.createAgreement(ctx, o)
	}
	return t.createPayment(ctx, o, agreementID)
}

func (t *Tokenized) createAgreement(ctx context.Context, o *order.Order) (CheckoutResult, error) {
	t.Logger.Info().Int64("order_id", o.ID).Msg("no agreement on order, starting agreement creation")

	resp, err := t.Agreements.CreateAgreement(ctx, bkash.AgreementParams{
		PayerReference: o.BillingPhone,
		Amount:         o.TotalAmount,
		CallbackURL:    t.URLs.AgreementCallback(o.ID),
		Invoice:        o.Number,
	})
	if err != nil {
		return CheckoutResult{Result: ResultFail}, err
	}
	paymentID := resp.Str("paymentID")
	redirect := resp.Str("bkashURL")
	if paymentID == "" || redirect == "" {
		return CheckoutResult{Result: ResultFail}, &bkash.ProtocolError{Op: "create agreement", Err: fmt.Errorf("response missing paymentID or bkashURL")}
	}
	if err := t.Orders.SetMeta(ctx, o.ID, order.MetaTempAgreementID, paymentID); err != nil {
		return CheckoutResult{Result: ResultFail}, err
	}
	t.Logger.Info().Int64("order_id", o.ID).Str("payment_id", paymentID).Msg("agreement created, redirecting payer for approval")
	return CheckoutResult{Result: ResultSuccess, Redirect: redirect}, nil
}

func (t *Tokenized) createPayment(ctx context.Context, o *order.Order, agreementID string) (CheckoutResult, error) {
	t.Logger.Info().Int64("order_id", o.ID).Str("agreement_id", agreementID).Msg("agreement present, creating payment")

	resp, err := t.Payments.CreatePayment(ctx, bkash.PaymentParams{
		AgreementID:    agreementID,
		PayerReference: o.BillingPhone,
		Amount:         o.TotalAmount,
		Invoice:        o.Number,
		CallbackURL:    t.URLs.PaymentCallback(),
	})
	if err != nil {
		return CheckoutResult{Result: ResultFail}, err
	}
	paymentID := resp.Str("paymentID")
	redirect := resp.Str("bkashURL")
	if paymentID == "" || redirect == "" {
		return CheckoutResult{Result: ResultFail}, &bkash.ProtocolError{Op: "create payment", Err: fmt.Errorf("response missing paymentID or bkashURL")}
	}
	if err := t.Orders.SetMeta(ctx, o.ID, order.MetaPaymentID, paymentID); err != nil {
		return CheckoutResult{Result: ResultFail}, err
	}
	t.Logger.Info().Int64("order_id", o.ID).Str("payment_id", paymentID).Msg("payment created")
	return CheckoutResult{Result: ResultSuccess, Redirect: redirect}, nil
}

// ExecutePayment finalises an approved payment session.
func (t *Tokenized) ExecutePayment(ctx context.Context, paymentID string) (bkash.Response, error) {
	return t.Payments.ExecutePayment(ctx, paymentID)
}
