package bkash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bkash-gateway/internal/common"
	"github.com/noah-isme/bkash-gateway/internal/lock"
	"github.com/noah-isme/bkash-gateway/internal/obs"
)

// tokenSafetyMargin is subtracted from the provider TTL to absorb clock skew
// and request latency.
const tokenSafetyMargin = 60 * time.Second

// Credentials identify one merchant against the provider. They are supplied
// by configuration and never persisted by this package.
type Credentials struct {
	AppKey    string
	AppSecret string
	Username  string
	Password  string
	Sandbox   bool
}

type tokenRecord struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type grantResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenManager obtains, caches and refreshes bearer tokens. The cache lives
// in Redis keyed per credential set, so two merchants (or sandbox vs live)
// never share a token. A Redis lock serialises the refresh-if-expired check
// across concurrent requests.
type TokenManager struct {
	Creds     Credentials
	Endpoints Endpoints
	HTTP      *http.Client
	Cache     *redis.Client
	Locker    lock.Locker
	Logger    zerolog.Logger
	Timeout   time.Duration
	Now       func() time.Time
}

// CacheKey returns the Redis key holding this credential set's token record.
func (t *TokenManager) CacheKey() string {
	sandbox := "live"
	if t.Creds.Sandbox {
		sandbox = "sandbox"
	}
	return "bkash:token:" + common.Sha256Hex(t.Creds.AppKey+"|"+sandbox)[:16]
}

// Token returns a valid bearer token, granting a new one when the cached
// record is absent or expired. Failure yields ErrTokenUnavailable.
func (t *TokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := t.cached(ctx); ok {
		if obs.TokenRequestTotal != nil {
			obs.TokenRequestTotal.WithLabelValues("cache_hit").Inc()
		}
		return token, nil
	}

	var token string
	run := func(ctx context.Context) error {
		// Another request may have completed the grant while we waited.
		if cached, ok := t.cached(ctx); ok {
			token = cached
			return nil
		}
		granted, err := t.grant(ctx)
		if err != nil {
			return err
		}
		token = granted
		return nil
	}

	var err error
	if t.Locker.R != nil {
		err = t.Locker.WithLock(ctx, t.CacheKey()+":lock", 30*time.Second, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		if obs.TokenRequestTotal != nil {
			obs.TokenRequestTotal.WithLabelValues("error").Inc()
		}
		t.Logger.Error().Err(err).Msg("token fetch failed")
		return "", ErrTokenUnavailable
	}
	if obs.TokenRequestTotal != nil {
		obs.TokenRequestTotal.WithLabelValues("granted").Inc()
	}
	return token, nil
}

// Refresh exchanges the cached refresh token for a new bearer token. When no
// refresh token is cached it falls back to a fresh grant. This is a manually
// invoked operation; the expiry path in Token never calls it.
func (t *TokenManager) Refresh(ctx context.Context) (string, error) {
	rec, ok := t.record(ctx)
	if !ok || rec.RefreshToken == "" {
		t.Logger.Info().Msg("refresh token missing, falling back to grant")
		token, err := t.grant(ctx)
		if err != nil {
			return "", ErrTokenUnavailable
		}
		return token, nil
	}

	body := map[string]string{
		"app_key":       t.Creds.AppKey,
		"app_secret":    t.Creds.AppSecret,
		"refresh_token": rec.RefreshToken,
	}
	token, err := t.tokenCall(ctx, t.Endpoints.Refresh(), body, "refresh token")
	if err != nil {
		return "", ErrTokenUnavailable
	}
	return token, nil
}

func (t *TokenManager) cached(ctx context.Context) (string, bool) {
	rec, ok := t.record(ctx)
	if !ok {
		return "", false
	}
	if t.now().Unix() >= rec.ExpiresAt {
		t.Logger.Debug().Time("expired_at", time.Unix(rec.ExpiresAt, 0)).Msg("cached token expired")
		return "", false
	}
	return rec.Token, true
}

func (t *TokenManager) record(ctx context.Context) (tokenRecord, bool) {
	if t.Cache == nil {
		return tokenRecord{}, false
	}
	raw, err := t.Cache.Get(ctx, t.CacheKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			t.Logger.Warn().Err(err).Msg("token cache read failed")
		}
		return tokenRecord{}, false
	}
	var rec tokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Token == "" {
		return tokenRecord{}, false
	}
	return rec, true
}

func (t *TokenManager) grant(ctx context.Context) (string, error) {
	body := map[string]string{
		"app_key":    t.Creds.AppKey,
		"app_secret": t.Creds.AppSecret,
	}
	return t.tokenCall(ctx, t.Endpoints.Grant(), body, "grant token")
}

func (t *TokenManager) tokenCall(ctx context.Context, url string, body map[string]string, op string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &ProtocolError{Op: op, Err: err}
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// Token endpoints authenticate with merchant portal credentials, not a
	// bearer token.
	req.Header.Set("username", t.Creds.Username)
	req.Header.Set("password", t.Creds.Password)

	client := t.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	var grant grantResponse
	if err := json.Unmarshal(raw, &grant); err != nil {
		return "", &ProtocolError{Op: op, Err: err}
	}
	if grant.IDToken == "" || grant.RefreshToken == "" || grant.ExpiresIn <= 0 {
		return "", &ProtocolError{Op: op, Err: fmt.Errorf("response missing token fields")}
	}

	ttl := time.Duration(grant.ExpiresIn)*time.Second - tokenSafetyMargin
	rec := tokenRecord{
		Token:        grant.IDToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    t.now().Add(ttl).Unix(),
	}
	if t.Cache != nil {
		encoded, err := json.Marshal(rec)
		if err == nil {
			if err := t.Cache.Set(ctx, t.CacheKey(), encoded, ttl).Err(); err != nil {
				t.Logger.Warn().Err(err).Msg("token cache write failed")
			}
		}
	}
	t.Logger.Info().Time("expires_at", time.Unix(rec.ExpiresAt, 0)).Msg("token obtained")
	return rec.Token, nil
}

func (t *TokenManager) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
