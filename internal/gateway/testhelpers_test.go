package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/gateway"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

var testURLs = gateway.URLs{
	PublicBaseURL: "https://gw.example.com",
	CheckoutURL:   "https://shop.example.com/checkout",
	ReceiptURL:    "https://shop.example.com/receipt",
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newAPIClients wires real payment/agreement clients against the given fake
// provider handler, with a pre-seeded token so no grant call happens.
func newAPIClients(t *testing.T, handler http.Handler) (*bkash.PaymentClient, *bkash.AgreementClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := newRedis(t)
	tm := &bkash.TokenManager{
		Creds: bkash.Credentials{
			AppKey:    "key",
			AppSecret: "secret",
			Username:  "user",
			Password:  "pass",
			Sandbox:   true,
		},
		Cache:  client,
		Logger: zerolog.Nop(),
	}
	rec := map[string]any{
		"token":        "TEST-TOKEN",
		"refreshToken": "TEST-REFRESH",
		"expiresAt":    time.Now().Add(time.Hour).Unix(),
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, client.Set(context.Background(), tm.CacheKey(), raw, time.Hour).Err())

	base := &bkash.Client{
		Creds:     tm.Creds,
		Tokens:    tm,
		Endpoints: bkash.Endpoints{Sandbox: true, CheckoutBase: srv.URL},
		Logger:    zerolog.Nop(),
	}
	return &bkash.PaymentClient{Client: base}, &bkash.AgreementClient{Client: base}
}

// stubStrategy lets callback tests control ExecutePayment outcomes directly.
type stubStrategy struct {
	name    string
	execute func(ctx context.Context, paymentID string) (bkash.Response, error)
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) CreatePayment(context.Context, *order.Order) (gateway.CheckoutResult, error) {
	return gateway.CheckoutResult{Result: gateway.ResultFail}, nil
}

func (s *stubStrategy) ExecutePayment(ctx context.Context, paymentID string) (bkash.Response, error) {
	return s.execute(ctx, paymentID)
}
