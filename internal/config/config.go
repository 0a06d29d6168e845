package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"required"`

	// Merchant credentials for the provider.
	Enabled   bool
	Sandbox   bool
	AppKey    string `validate:"required"`
	AppSecret string `validate:"required"`
	Username  string `validate:"required"`
	Password  string `validate:"required"`

	// tokenized or url.
	CheckoutMode string `validate:"oneof=tokenized url"`

	// PublicBaseURL is this service's externally reachable base, used to
	// build provider callback URLs. The store URLs belong to the host
	// storefront.
	PublicBaseURL    string `validate:"required,url"`
	StoreCheckoutURL string `validate:"required,url"`
	StoreReceiptURL  string `validate:"required,url"`

	ProviderTimeout   time.Duration
	CallbackReplayTTL time.Duration

	// Endpoint overrides, empty in production.
	GrantURL        string
	RefreshURL      string
	CheckoutBaseURL string
	HostedBaseURL   string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:            valueOrDefault(k.String("APP_ENV"), "development"),
		Port:              valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:       k.String("DATABASE_URL"),
		RedisURL:          k.String("REDIS_URL"),
		Enabled:           parseBool(valueOrDefault(k.String("BKASH_ENABLED"), "yes")),
		Sandbox:           parseBool(valueOrDefault(k.String("BKASH_SANDBOX"), "yes")),
		AppKey:            k.String("BKASH_APP_KEY"),
		AppSecret:         k.String("BKASH_APP_SECRET"),
		Username:          k.String("BKASH_USERNAME"),
		Password:          k.String("BKASH_PASSWORD"),
		CheckoutMode:      valueOrDefault(strings.ToLower(strings.TrimSpace(k.String("BKASH_CHECKOUT_MODE"))), "tokenized"),
		PublicBaseURL:     strings.TrimSpace(k.String("PUBLIC_BASE_URL")),
		StoreCheckoutURL:  strings.TrimSpace(k.String("STORE_CHECKOUT_URL")),
		StoreReceiptURL:   strings.TrimSpace(k.String("STORE_RECEIPT_URL")),
		ProviderTimeout:   parseDuration(k.String("BKASH_TIMEOUT"), "20s"),
		CallbackReplayTTL: parseDuration(k.String("CALLBACK_REPLAY_TTL"), "1h"),
		GrantURL:          strings.TrimSpace(k.String("BKASH_GRANT_URL")),
		RefreshURL:        strings.TrimSpace(k.String("BKASH_REFRESH_URL")),
		CheckoutBaseURL:   strings.TrimSpace(k.String("BKASH_CHECKOUT_BASE_URL")),
		HostedBaseURL:     strings.TrimSpace(k.String("BKASH_HOSTED_BASE_URL")),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadForTests overrides environment variables for the duration of one Load.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
