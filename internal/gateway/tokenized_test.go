package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bkash-gateway/internal/gateway"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

// fakeProvider counts create calls per mode and replies with a canned body.
type fakeProvider struct {
	agreementCreates atomic.Int64
	paymentCreates   atomic.Int64
	reply            map[string]any
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/create" {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	switch body["mode"] {
	case "0000":
		f.agreementCreates.Add(1)
	case "0001":
		f.paymentCreates.Add(1)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f.reply)
}

func newTokenized(t *testing.T, provider *fakeProvider) (*gateway.Tokenized, *order.MemStore) {
	t.Helper()
	payments, agreements := newAPIClients(t, provider)
	store := order.NewMemStore()
	return &gateway.Tokenized{
		Orders:     store,
		Agreements: agreements,
		Payments:   payments,
		URLs:       testURLs,
		Logger:     zerolog.Nop(),
	}, store
}

func TestTokenizedStartsAgreementPhaseWithoutAgreement(t *testing.T) {
	provider := &fakeProvider{reply: map[string]any{
		"statusCode":    "0000",
		"statusMessage": "Successful",
		"paymentID":     "TEST123",
		"bkashURL":      "https://pay/x",
	}}
	strategy, store := newTokenized(t, provider)

	ord := &order.Order{
		ID:           42,
		Number:       "42",
		Status:       order.StatusPending,
		TotalAmount:  "500.00",
		BillingPhone: "01700000000",
		Meta:         map[string]string{},
	}
	store.Put(ord)

	res, err := strategy.CreatePayment(context.Background(), ord)
	require.NoError(t, err)
	require.Equal(t, gateway.ResultSuccess, res.Result)
	require.Equal(t, "https://pay/x", res.Redirect)

	require.EqualValues(t, 1, provider.agreementCreates.Load())
	require.EqualValues(t, 0, provider.paymentCreates.Load())

	got, err := store.Get(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "TEST123", got.MetaValue(order.MetaTempAgreementID))
	require.Empty(t, got.MetaValue(order.MetaPaymentID))
}

func TestTokenizedStartsPaymentPhaseWithAgreement(t *testing.T) {
	provider := &fakeProvider{reply: map[string]any{
		"statusCode": "0000",
		"paymentID":  "PAY456",
		"bkashURL":   "https://pay/y",
	}}
	strategy, store := newTokenized(t, provider)

	ord := &order.Order{
		ID:           7,
		Number:       "7",
		Status:       order.StatusPending,
		TotalAmount:  "120.50",
		BillingPhone: "01811111111",
		Meta:         map[string]string{order.MetaAgreementID: "AGR9"},
	}
	store.Put(ord)

	res, err := strategy.CreatePayment(context.Background(), ord)
	require.NoError(t, err)
	require.Equal(t, gateway.ResultSuccess, res.Result)
	require.Equal(t, "https://pay/y", res.Redirect)

	require.EqualValues(t, 0, provider.agreementCreates.Load())
	require.EqualValues(t, 1, provider.paymentCreates.Load())

	got, err := store.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "PAY456", got.MetaValue(order.MetaPaymentID))
}

func TestTokenizedCreateFailureLeavesOrderUntouched(t *testing.T) {
	provider := &fakeProvider{reply: map[string]any{
		"statusCode":    "2001",
		"statusMessage": "Invalid App Key",
	}}
	strategy, store := newTokenized(t, provider)

	ord := &order.Order{
		ID:          9,
		Number:      "9",
		Status:      order.StatusPending,
		TotalAmount: "10.00",
		Meta:        map[string]string{},
	}
	store.Put(ord)

	_, err := strategy.CreatePayment(context.Background(), ord)
	require.Error(t, err)

	got, getErr := store.Get(context.Background(), 9)
	require.NoError(t, getErr)
	require.Empty(t, got.MetaValue(order.MetaTempAgreementID))
	require.Empty(t, got.MetaValue(order.MetaPaymentID))
}

func TestTokenizedRejectsIncompleteCreateResponse(t *testing.T) {
	provider := &fakeProvider{reply: map[string]any{
		"statusCode": "0000",
		"paymentID":  "TEST123",
		// bkashURL missing
	}}
	strategy, store := newTokenized(t, provider)

	ord := &order.Order{
		ID:          11,
		Number:      "11",
		Status:      order.StatusPending,
		TotalAmount: "55.00",
		Meta:        map[string]string{},
	}
	store.Put(ord)

	res, err := strategy.CreatePayment(context.Background(), ord)
	require.Error(t, err)
	require.Equal(t, gateway.ResultFail, res.Result)
}
