package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/common"
	"github.com/noah-isme/bkash-gateway/internal/obs"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Reconciler correlates the provider's browser redirect with the original
// order and finalises the flow. Agreement callbacks are checked before
// payment callbacks; exactly one parameter set must be present.
//
// The provider signs nothing on this redirect, so the only hardening is a
// replay guard over the raw query.
type Reconciler struct {
	Orders     order.Store
	Agreements *bkash.AgreementClient
	Strategy   Strategy
	URLs       URLs
	Replay     replayStore
	ReplayTTL  time.Duration
	Logger     zerolog.Logger
}

// Handle processes the inbound callback redirect.
func (rc *Reconciler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gateway.Reconciler").Start(r.Context(), "Reconciler.Handle")
	defer span.End()
	r = r.WithContext(ctx)

	params := r.URL.Query()

	if rc.Replay != nil && rc.ReplayTTL > 0 {
		key := "bkcb:" + common.Sha256Hex(r.URL.RawQuery)
		ok, err := rc.Replay.SetNX(ctx, key, "1", rc.ReplayTTL).Result()
		if err != nil {
			span.RecordError(err)
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate callback", nil)
			return
		}
	}

	switch {
	case params.Has("bkashify_callback_agreement") && params.Has("order_id") && params.Has("paymentID"):
		span.SetAttributes(attribute.String("callback.kind", "agreement"))
		rc.handleAgreement(ctx, w, r, params)
	case params.Has("bkashify_callback") && params.Has("paymentID") && params.Has("status"):
		span.SetAttributes(attribute.String("callback.kind", "payment"))
		rc.handlePayment(ctx, w, r, params)
	default:
		common.JSONError(w, http.StatusBadRequest, "INVALID_CALLBACK", "unrecognised callback parameters", nil)
	}
}

func (rc *Reconciler) handleAgreement(ctx context.Context, w http.ResponseWriter, r *http.Request, params url.Values) {
	paymentID := strings.TrimSpace(params.Get("paymentID"))
	status := strings.TrimSpace(params.Get("status"))
	orderID, err := strconv.ParseInt(strings.TrimSpace(params.Get("order_id")), 10, 64)
	if err != nil {
		rc.count("agreement", "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_CALLBACK", "invalid order_id", nil)
		return
	}
	rc.Logger.Info().Int64("order_id", orderID).Str("payment_id", paymentID).Str("status", status).Msg("agreement callback")

	if _, err := rc.Orders.Get(ctx, orderID); err != nil {
		rc.count("agreement", "not_found")
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "invalid order", nil)
		return
	}

	if !strings.EqualFold(status, "success") {
		rc.Logger.Info().Int64("order_id", orderID).Msg("agreement approval failed or cancelled")
		if err := rc.Orders.UpdateStatus(ctx, orderID, order.StatusCancelled, "bKash agreement was not approved."); err != nil {
			rc.Logger.Error().Err(err).Int64("order_id", orderID).Msg("cancel order failed")
		}
		rc.count("agreement", "declined")
		http.Redirect(w, r, rc.URLs.Checkout(""), http.StatusFound)
		return
	}

	resp, err := rc.Agreements.ExecuteAgreement(ctx, paymentID)
	if err == nil {
		if agreementID := resp.Str("agreementID"); agreementID != "" {
			if err := rc.Orders.SetMeta(ctx, orderID, order.MetaAgreementID, agreementID); err != nil {
				rc.Logger.Error().Err(err).Int64("order_id", orderID).Msg("persist agreement id failed")
			}
			_ = rc.Orders.DeleteMeta(ctx, orderID, order.MetaTempAgreementID)
			rc.Logger.Info().Int64("order_id", orderID).Str("agreement_id", agreementID).Msg("agreement executed")
			rc.count("agreement", "executed")
			// On to the payment phase, which re-enters the gateway.
			http.Redirect(w, r, rc.URLs.OrderPay(orderID), http.StatusFound)
			return
		}
		err = errors.New("execute agreement response missing agreementID")
	}
	rc.Logger.Error().Err(err).Int64("order_id", orderID).Msg("agreement execution failed")
	rc.count("agreement", "error")
	http.Redirect(w, r, rc.URLs.Checkout("agreement_execution_failed"), http.StatusFound)
}

func (rc *Reconciler) handlePayment(ctx context.Context, w http.ResponseWriter, r *http.Request, params url.Values) {
	paymentID := strings.TrimSpace(params.Get("paymentID"))
	status := strings.ToLower(strings.TrimSpace(params.Get("status")))

	orderID, err := rc.Orders.FindIDByMeta(ctx, order.MetaPaymentID, paymentID)
	if err != nil {
		rc.count("payment", "not_found")
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found for this payment ID", nil)
		return
	}
	if _, err := rc.Orders.Get(ctx, orderID); err != nil {
		rc.count("payment", "not_found")
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "invalid order", nil)
		return
	}
	rc.Logger.Info().Int64("order_id", orderID).Str("payment_id", paymentID).Str("status", status).Msg("payment callback")

	var notice string
	switch status {
	case "success":
		notice = rc.settle(ctx, orderID, paymentID)
	case "failure":
		if err := rc.Orders.UpdateStatus(ctx, orderID, order.StatusFailed, "bKash payment failed. Payment ID: "+paymentID); err != nil {
			rc.Logger.Error().Err(err).Int64("order_id", orderID).Msg("mark order failed")
		}
		rc.count("payment", "failed")
		notice = "payment_failed"
	case "cancel":
		if err := rc.Orders.UpdateStatus(ctx, orderID, order.StatusCancelled, "bKash payment cancelled. Payment ID: "+paymentID); err != nil {
			rc.Logger.Error().Err(err).Int64("order_id", orderID).Msg("mark order cancelled")
		}
		rc.count("payment", "cancelled")
		notice = "payment_cancelled"
	default:
		rc.count("payment", "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_STATUS", "invalid payment status", nil)
		return
	}

	// The receipt page is the destination for every handled status,
	// including failure and cancel; the notice flag tells it what to show.
	http.Redirect(w, r, rc.URLs.Receipt(orderID, notice), http.StatusFound)
}

// settle executes the payment and marks the order paid on provider success.
// Any failure leaves the order in its prior state; only a notice flag is
// carried to the receipt redirect.
func (rc *Reconciler) settle(ctx context.Context, orderID int64, paymentID string) string {
	resp, err := rc.Strategy.ExecutePayment(ctx, paymentID)
	if err != nil || resp.StatusCode() != "0000" {
		rc.Logger.Error().Err(err).Int64("order_id", orderID).Str("payment_id", paymentID).Msg("payment execution failed")
		rc.count("payment", "execute_failed")
		return "payment_execution_failed"
	}
	trxID := resp.Str("trxID")
	if err := rc.Orders.MarkPaid(ctx, orderID, trxID); err != nil {
		rc.Logger.Error().Err(err).Int64("order_id", orderID).Msg("mark order paid failed")
		rc.count("payment", "error")
		return "payment_settlement_failed"
	}
	_ = rc.Orders.SetMeta(ctx, orderID, order.MetaTransactionStatus, "Completed")
	_ = rc.Orders.AddNote(ctx, orderID, fmt.Sprintf("bKash payment successful. Transaction ID: %s", trxID))
	rc.Logger.Info().Int64("order_id", orderID).Str("trx_id", trxID).Msg("payment executed")
	rc.count("payment", "paid")
	return ""
}

func (rc *Reconciler) count(kind, outcome string) {
	if obs.CallbackTotal != nil {
		obs.CallbackTotal.WithLabelValues(kind, outcome).Inc()
	}
}
