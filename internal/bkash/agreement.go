package bkash

import "context"

// AgreementParams carries the fields of an agreement-create request.
type AgreementParams struct {
	PayerReference string
	Amount         string
	CallbackURL    string
	Invoice        string
}

// AgreementClient exposes the recurring-billing agreement operations.
type AgreementClient struct {
	*Client
}

// CreateAgreement opens an agreement pending the payer's approval. The
// response carries a paymentID identifying the pending approval session and
// the bkashURL the payer must be redirected to.
func (a *AgreementClient) CreateAgreement(ctx context.Context, params AgreementParams) (Response, error) {
	body := map[string]any{
		"mode":           "0000",
		"payerReference": params.PayerReference,
		"callbackURL":    params.CallbackURL,
		"amount":         params.Amount,
		"currency":       "BDT",
		"intent":         "sale",
	}
	if params.Invoice != "" {
		body["merchantInvoiceNumber"] = params.Invoice
	}
	return a.send(ctx, "/create", body, "create agreement")
}

// ExecuteAgreement completes an approved agreement; the response carries the
// durable agreementID.
func (a *AgreementClient) ExecuteAgreement(ctx context.Context, paymentID string) (Response, error) {
	return a.send(ctx, "/execute", map[string]any{"paymentID": paymentID}, "execute agreement")
}

// QueryAgreementStatus fetches the state of an agreement.
func (a *AgreementClient) QueryAgreementStatus(ctx context.Context, agreementID string) (Response, error) {
	return a.send(ctx, "/agreement/status", map[string]any{"agreementID": agreementID}, "query agreement")
}

// CancelAgreement revokes an agreement.
func (a *AgreementClient) CancelAgreement(ctx context.Context, agreementID string) (Response, error) {
	return a.send(ctx, "/agreement/cancel", map[string]any{"agreementID": agreementID}, "cancel agreement")
}
