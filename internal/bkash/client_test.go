package bkash_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
)

// seedToken primes the Redis cache so client calls never hit a grant endpoint.
func seedToken(t *testing.T, client *redis.Client, tm *bkash.TokenManager) {
	t.Helper()
	rec := map[string]any{
		"token":        "SEEDED-TOKEN",
		"refreshToken": "SEEDED-REFRESH",
		"expiresAt":    time.Now().Add(time.Hour).Unix(),
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, client.Set(context.Background(), tm.CacheKey(), raw, time.Hour).Err())
}

func newTestClients(t *testing.T, apiURL string) (*bkash.PaymentClient, *bkash.AgreementClient) {
	t.Helper()
	client := testRedis(t)
	tm := newTokenManager(client, "", "")
	seedToken(t, client, tm)
	base := &bkash.Client{
		Creds:     tm.Creds,
		Tokens:    tm,
		Endpoints: bkash.Endpoints{Sandbox: true, CheckoutBase: apiURL},
		Logger:    zerolog.Nop(),
	}
	return &bkash.PaymentClient{Client: base}, &bkash.AgreementClient{Client: base}
}

func TestClientSendsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		require.Equal(t, "SEEDED-TOKEN", r.Header.Get("Authorization"))
		require.Equal(t, "key", r.Header.Get("X-App-Key"))
		fmt.Fprint(w, `{"statusCode":"0000","paymentID":"P1"}`)
	}))
	t.Cleanup(srv.Close)

	payments, _ := newTestClients(t, srv.URL)
	resp, err := payments.ExecutePayment(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, "P1", resp.Str("paymentID"))
}

func TestClientNonSuccessStatusCodeIsRejection(t *testing.T) {
	// Any statusCode other than the literal success code is a failure,
	// whatever else the response carries.
	codes := []string{"2001", "2054", "9999", "0001"}
	for _, code := range codes {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `{"statusCode":%q,"statusMessage":"nope","paymentID":"P1","bkashURL":"https://pay/x"}`, code)
		}))
		payments, _ := newTestClients(t, srv.URL)

		_, err := payments.QueryPayment(context.Background(), "P1")
		require.ErrorIs(t, err, bkash.ErrUnavailable, "statusCode %s", code)
		var rejected *bkash.BusinessError
		require.ErrorAs(t, err, &rejected)
		require.Equal(t, code, rejected.StatusCode)
		srv.Close()
	}
}

func TestClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>gateway timeout</html>`)
	}))
	t.Cleanup(srv.Close)

	payments, _ := newTestClients(t, srv.URL)
	_, err := payments.ExecutePayment(context.Background(), "P1")
	require.ErrorIs(t, err, bkash.ErrUnavailable)
	var protocol *bkash.ProtocolError
	require.ErrorAs(t, err, &protocol)
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	payments, _ := newTestClients(t, srv.URL)
	_, err := payments.ExecutePayment(context.Background(), "P1")
	require.ErrorIs(t, err, bkash.ErrUnavailable)
	var transport *bkash.TransportError
	require.ErrorAs(t, err, &transport)
}

func TestClientAbortsWithoutToken(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	t.Cleanup(srv.Close)

	client := testRedis(t)
	// Grant endpoint that always fails; no cached token.
	grant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(grant.Close)

	tm := newTokenManager(client, grant.URL, grant.URL)
	base := &bkash.Client{
		Creds:     tm.Creds,
		Tokens:    tm,
		Endpoints: bkash.Endpoints{Sandbox: true, CheckoutBase: srv.URL},
		Logger:    zerolog.Nop(),
	}
	payments := &bkash.PaymentClient{Client: base}

	_, err := payments.CreatePayment(context.Background(), bkash.PaymentParams{AgreementID: "AGR1"})
	require.ErrorIs(t, err, bkash.ErrTokenUnavailable)
	require.EqualValues(t, 0, atomic.LoadInt32(&calls), "no API call may be made without a token")
}

func TestAgreementCreateUsesAgreementMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "0000", body["mode"])
		require.Equal(t, "BDT", body["currency"])
		require.Equal(t, "sale", body["intent"])
		require.NotContains(t, body, "agreementID")
		fmt.Fprint(w, `{"statusCode":"0000","paymentID":"A1","bkashURL":"https://pay/a"}`)
	}))
	t.Cleanup(srv.Close)

	_, agreements := newTestClients(t, srv.URL)
	resp, err := agreements.CreateAgreement(context.Background(), bkash.AgreementParams{
		PayerReference: "01700000000",
		Amount:         "500.00",
		CallbackURL:    "https://merchant/cb",
		Invoice:        "INV-9",
	})
	require.NoError(t, err)
	require.Equal(t, "A1", resp.Str("paymentID"))
}

func TestPaymentCreateUsesPaymentMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "0001", body["mode"])
		require.Equal(t, "AGR9", body["agreementID"])
		require.Equal(t, "INV-9", body["merchantInvoiceNumber"])
		fmt.Fprint(w, `{"statusCode":"0000","paymentID":"P9","bkashURL":"https://pay/p"}`)
	}))
	t.Cleanup(srv.Close)

	payments, _ := newTestClients(t, srv.URL)
	resp, err := payments.CreatePayment(context.Background(), bkash.PaymentParams{
		AgreementID:    "AGR9",
		PayerReference: "01700000000",
		Amount:         "500.00",
		Invoice:        "INV-9",
		CallbackURL:    "https://merchant/cb",
	})
	require.NoError(t, err)
	require.Equal(t, "P9", resp.Str("paymentID"))
}
