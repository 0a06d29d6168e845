package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/gateway"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

type fixedStrategy struct {
	result gateway.CheckoutResult
	err    error
}

func (f *fixedStrategy) Name() string { return "tokenized" }

func (f *fixedStrategy) CreatePayment(context.Context, *order.Order) (gateway.CheckoutResult, error) {
	return f.result, f.err
}

func (f *fixedStrategy) ExecutePayment(context.Context, string) (bkash.Response, error) {
	return nil, nil
}

func newHandlerRouter(store *order.MemStore, strategy gateway.Strategy, enabled bool) http.Handler {
	h := &gateway.Handler{
		Gateway: &gateway.Gateway{
			Orders:   store,
			Strategy: strategy,
			Logger:   zerolog.Nop(),
			Enabled:  enabled,
			AppKey:   "key",
			User:     "user",
		},
		Orders: store,
		Logger: zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Post("/payments/bkash/process/{orderId}", h.Process)
	return r
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestProcessReturnsStrategyResult(t *testing.T) {
	store := order.NewMemStore()
	store.Put(&order.Order{ID: 5, Status: order.StatusPending, Meta: map[string]string{}})
	router := newHandlerRouter(store, &fixedStrategy{result: gateway.CheckoutResult{
		Result:   gateway.ResultSuccess,
		Redirect: "https://pay/x",
	}}, true)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/bkash/process/5", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "success", body["result"])
	require.Equal(t, "https://pay/x", body["redirect"])
}

func TestProcessDisabledGateway(t *testing.T) {
	router := newHandlerRouter(order.NewMemStore(), &fixedStrategy{}, false)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/bkash/process/5", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestProcessUnknownOrder(t *testing.T) {
	router := newHandlerRouter(order.NewMemStore(), &fixedStrategy{}, true)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/bkash/process/404", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProcessInvalidOrderID(t *testing.T) {
	router := newHandlerRouter(order.NewMemStore(), &fixedStrategy{}, true)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/bkash/process/abc", nil))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProcessProviderFailureAnswersWithFailResult(t *testing.T) {
	store := order.NewMemStore()
	store.Put(&order.Order{ID: 5, Status: order.StatusPending, Meta: map[string]string{}})
	router := newHandlerRouter(store, &fixedStrategy{
		result: gateway.CheckoutResult{Result: gateway.ResultFail},
		err:    &bkash.BusinessError{Op: "create payment", StatusCode: "2001", StatusMessage: "Invalid App Key"},
	}, true)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/bkash/process/5", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "fail", body["result"])
	require.NotContains(t, body, "redirect")
}

func TestGatewayAvailability(t *testing.T) {
	g := &gateway.Gateway{Enabled: true, AppKey: "key", User: "user"}
	require.True(t, g.Available())

	for _, mutate := range []func(*gateway.Gateway){
		func(g *gateway.Gateway) { g.Enabled = false },
		func(g *gateway.Gateway) { g.AppKey = "  " },
		func(g *gateway.Gateway) { g.User = "" },
	} {
		broken := *g
		mutate(&broken)
		require.False(t, broken.Available())
	}
}
