package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/common"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

// Handler exposes the host-facing HTTP surface: checkout initiation, payment
// status polling, and the manual token/agreement operations.
type Handler struct {
	Gateway    *Gateway
	Orders     order.Store
	Payments   *bkash.PaymentClient
	Agreements *bkash.AgreementClient
	Tokens     *bkash.TokenManager
	Logger     zerolog.Logger
}

// Process initiates a payment for the order and returns the strategy result.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Gateway == nil {
		common.JSONError(w, http.StatusInternalServerError, "GATEWAY_NOT_CONFIGURED", "gateway unavailable", nil)
		return
	}
	if !h.Gateway.Available() {
		common.JSONError(w, http.StatusServiceUnavailable, "GATEWAY_DISABLED", "gateway is not enabled or not fully configured", nil)
		return
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid orderId", nil)
		return
	}
	result, err := h.Gateway.ProcessPayment(r.Context(), orderID)
	if err != nil {
		if appErr, ok := common.AsAppError(err); ok {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
			return
		}
		// Provider failures still answer with the fail result; the cause
		// stays in the logs.
		common.JSON(w, http.StatusOK, result)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

// Status reports the provider-side state of the order's payment session.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid orderId", nil)
		return
	}
	o, err := h.Orders.Get(r.Context(), orderID)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	}
	paymentID := o.MetaValue(order.MetaPaymentID)
	if paymentID == "" {
		common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "no payment session on this order", nil)
		return
	}
	resp, err := h.Payments.QueryPayment(r.Context(), paymentID)
	if err != nil {
		common.JSONError(w, providerStatus(err), "PROVIDER_UNAVAILABLE", "could not query payment status", nil)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// RefreshToken manually exchanges the cached refresh token for a new bearer
// token. The expiry path never calls this; it exists as an operator action.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Tokens.Refresh(r.Context()); err != nil {
		common.JSONError(w, http.StatusBadGateway, "TOKEN_UNAVAILABLE", "token refresh failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// AgreementStatus reports the provider-side state of an agreement.
func (h *Handler) AgreementStatus(w http.ResponseWriter, r *http.Request) {
	agreementID := strings.TrimSpace(chi.URLParam(r, "agreementId"))
	if agreementID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "agreementId is required", nil)
		return
	}
	resp, err := h.Agreements.QueryAgreementStatus(r.Context(), agreementID)
	if err != nil {
		common.JSONError(w, providerStatus(err), "PROVIDER_UNAVAILABLE", "could not query agreement status", nil)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// CancelAgreement revokes a recurring-billing agreement.
func (h *Handler) CancelAgreement(w http.ResponseWriter, r *http.Request) {
	agreementID := strings.TrimSpace(chi.URLParam(r, "agreementId"))
	if agreementID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "agreementId is required", nil)
		return
	}
	resp, err := h.Agreements.CancelAgreement(r.Context(), agreementID)
	if err != nil {
		common.JSONError(w, providerStatus(err), "PROVIDER_UNAVAILABLE", "agreement cancellation failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// SearchTransaction looks up a settled transaction by its trxID.
func (h *Handler) SearchTransaction(w http.ResponseWriter, r *http.Request) {
	trxID := strings.TrimSpace(chi.URLParam(r, "trxId"))
	if trxID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "trxId is required", nil)
		return
	}
	resp, err := h.Payments.SearchTransaction(r.Context(), trxID)
	if err != nil {
		common.JSONError(w, providerStatus(err), "PROVIDER_UNAVAILABLE", "transaction lookup failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

func parseOrderID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid order id")
	}
	return id, nil
}

func providerStatus(err error) int {
	var rejected *bkash.BusinessError
	if errors.As(err, &rejected) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
