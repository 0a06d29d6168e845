package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":       "postgres://localhost:5432/gateway",
		"REDIS_URL":          "redis://localhost:6379/0",
		"BKASH_APP_KEY":      "key",
		"BKASH_APP_SECRET":   "secret",
		"BKASH_USERNAME":     "user",
		"BKASH_PASSWORD":     "pass",
		"PUBLIC_BASE_URL":    "https://gw.example.com",
		"STORE_CHECKOUT_URL": "https://shop.example.com/checkout",
		"STORE_RECEIPT_URL":  "https://shop.example.com/receipt",
		// Clear anything the host environment might set.
		"BKASH_ENABLED":       "",
		"BKASH_SANDBOX":       "",
		"BKASH_CHECKOUT_MODE": "",
		"BKASH_TIMEOUT":       "",
		"CALLBACK_REPLAY_TTL": "",
		"PORT":                "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(validEnv())
	require.NoError(t, err)

	require.True(t, cfg.Enabled)
	require.True(t, cfg.Sandbox)
	require.Equal(t, "tokenized", cfg.CheckoutMode)
	require.Equal(t, 20*time.Second, cfg.ProviderTimeout)
	require.Equal(t, time.Hour, cfg.CallbackReplayTTL)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	env := validEnv()
	env["BKASH_APP_SECRET"] = ""

	_, err := LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadRejectsUnknownCheckoutMode(t *testing.T) {
	env := validEnv()
	env["BKASH_CHECKOUT_MODE"] = "iframe"

	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	env := validEnv()
	env["BKASH_SANDBOX"] = "no"
	env["BKASH_CHECKOUT_MODE"] = "URL"
	env["BKASH_TIMEOUT"] = "5s"
	env["PORT"] = "9090"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)

	require.False(t, cfg.Sandbox)
	require.Equal(t, "url", cfg.CheckoutMode)
	require.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestHTTPAddrKeepsExplicitColon(t *testing.T) {
	cfg := &Config{Port: ":7000"}
	require.Equal(t, ":7000", cfg.HTTPAddr())
}

func TestParseDurationFallsBackOnGarbage(t *testing.T) {
	require.Equal(t, 20*time.Second, parseDuration("not-a-duration", "20s"))
	require.Equal(t, time.Hour, parseDuration("", "1h"))
}
