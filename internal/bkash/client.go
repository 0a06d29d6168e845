package bkash

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/bkash-gateway/internal/obs"
)

// successStatusCode is the provider's literal success code. Anything else in
// a response that carries a statusCode field is a rejection, regardless of
// the HTTP status.
const successStatusCode = "0000"

// Response is a decoded provider payload. Field access goes through Str so
// callers tolerate the provider's loosely typed JSON.
type Response map[string]any

// Str returns the named field as a string, or "" when absent or non-string.
func (r Response) Str(key string) string {
	if r == nil {
		return ""
	}
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// StatusCode returns the provider status code field, if present.
func (r Response) StatusCode() string { return r.Str("statusCode") }

// Client performs authenticated JSON POSTs against the tokenized-checkout
// API. Payment and agreement operations share this transport.
type Client struct {
	Creds     Credentials
	Tokens    *TokenManager
	Endpoints Endpoints
	HTTP      *http.Client
	Logger    zerolog.Logger
	Timeout   time.Duration
}

func (c *Client) send(ctx context.Context, path string, body any, op string) (Response, error) {
	ctx, span := otel.Tracer("bkash.Client").Start(ctx, "bkash."+op)
	defer span.End()
	span.SetAttributes(attribute.String("bkash.endpoint", path))

	result := "error"
	defer func() {
		if obs.ProviderCallTotal != nil {
			obs.ProviderCallTotal.WithLabelValues(opLabel(op), result).Inc()
		}
	}()

	token, err := c.Tokens.Token(ctx)
	if err != nil {
		c.Logger.Error().Str("op", op).Msg("request aborted: no token")
		span.RecordError(err)
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.Endpoints.Checkout(path), bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("X-App-Key", c.Creds.AppKey)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		c.Logger.Error().Err(err).Str("op", op).Msg("provider request failed")
		span.RecordError(err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, &TransportError{Op: op, Err: err}
	}
	var data Response
	if err := json.Unmarshal(raw, &data); err != nil {
		c.Logger.Error().Err(err).Str("op", op).Msg("provider response is not valid JSON")
		span.RecordError(err)
		return nil, &ProtocolError{Op: op, Err: err}
	}
	if code := data.StatusCode(); code != "" && code != successStatusCode {
		rejectErr := &BusinessError{Op: op, StatusCode: code, StatusMessage: data.Str("statusMessage")}
		c.Logger.Error().Str("op", op).Str("status_code", code).Str("status_message", data.Str("statusMessage")).Msg("provider rejected request")
		span.RecordError(rejectErr)
		result = "rejected"
		return nil, rejectErr
	}
	result = "success"
	return data, nil
}

func opLabel(op string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(op)), " ", "_")
}
