package bkash

import "context"

// PaymentParams carries the fields of a tokenized payment-create request.
type PaymentParams struct {
	AgreementID     string
	PayerReference  string
	Amount          string
	Invoice         string
	CallbackURL     string
	AssociationInfo string
}

// PaymentClient exposes the one-shot payment operations. Re-invoking
// CreatePayment opens a new provider-side session; callers must not retry
// blindly.
type PaymentClient struct {
	*Client
}

// CreatePayment opens a payment session against an existing agreement and
// returns the provider response carrying paymentID and bkashURL.
func (p *PaymentClient) CreatePayment(ctx context.Context, params PaymentParams) (Response, error) {
	body := map[string]any{
		"mode":                  "0001",
		"agreementID":           params.AgreementID,
		"payerReference":        params.PayerReference,
		"callbackURL":           params.CallbackURL,
		"amount":                params.Amount,
		"currency":              "BDT",
		"intent":                "sale",
		"merchantInvoiceNumber": params.Invoice,
	}
	if params.AssociationInfo != "" {
		body["merchantAssociationInfo"] = params.AssociationInfo
	}
	return p.send(ctx, "/create", body, "create payment")
}

// ExecutePayment finalises a payment session after the payer approved it.
func (p *PaymentClient) ExecutePayment(ctx context.Context, paymentID string) (Response, error) {
	return p.send(ctx, "/execute", map[string]any{"paymentID": paymentID}, "execute payment")
}

// QueryPayment fetches the current state of a payment session.
func (p *PaymentClient) QueryPayment(ctx context.Context, paymentID string) (Response, error) {
	return p.send(ctx, "/payment/status", map[string]any{"paymentID": paymentID}, "query payment")
}

// SearchTransaction looks up a settled transaction by its trxID.
func (p *PaymentClient) SearchTransaction(ctx context.Context, trxID string) (Response, error) {
	return p.send(ctx, "/general/searchTransaction", map[string]any{"trxID": trxID}, "search transaction")
}
