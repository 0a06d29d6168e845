package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/bkash-gateway/internal/common"
	"github.com/noah-isme/bkash-gateway/internal/obs"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

// Gateway is the single host-facing entry point for initiating a payment.
// The strategy is resolved once at construction from configuration; orders
// stay reconcilable across mode changes because their metadata alone
// encodes the flow state.
type Gateway struct {
	Orders   order.Store
	Strategy Strategy
	Logger   zerolog.Logger

	Enabled bool
	AppKey  string
	User    string
}

// Available reports whether the gateway can take payments: enabled, with an
// app key and a portal username configured.
func (g *Gateway) Available() bool {
	return g.Enabled && strings.TrimSpace(g.AppKey) != "" && strings.TrimSpace(g.User) != ""
}

// ProcessPayment loads the order and delegates to the configured strategy,
// returning its result verbatim.
func (g *Gateway) ProcessPayment(ctx context.Context, orderID int64) (CheckoutResult, error) {
	ctx, span := otel.Tracer("gateway.Gateway").Start(ctx, "Gateway.ProcessPayment")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("checkout.strategy", g.Strategy.Name()),
	)

	o, err := g.Orders.Get(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		if err == order.ErrNotFound {
			return CheckoutResult{Result: ResultFail}, common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
		}
		return CheckoutResult{Result: ResultFail}, err
	}

	result, err := g.Strategy.CreatePayment(ctx, o)
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(g.Strategy.Name(), result.Result).Inc()
	}
	if err != nil {
		span.RecordError(err)
		g.Logger.Error().Err(err).Int64("order_id", orderID).Str("strategy", g.Strategy.Name()).Msg("checkout failed")
	}
	return result, err
}
