package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/bkash-gateway/internal/bkash"
	"github.com/noah-isme/bkash-gateway/internal/config"
	"github.com/noah-isme/bkash-gateway/internal/gateway"
	"github.com/noah-isme/bkash-gateway/internal/health"
	"github.com/noah-isme/bkash-gateway/internal/lock"
	"github.com/noah-isme/bkash-gateway/internal/obs"
	"github.com/noah-isme/bkash-gateway/internal/order"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "bkash_gateway")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "bkash-gateway"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	creds := bkash.Credentials{
		AppKey:    cfg.AppKey,
		AppSecret: cfg.AppSecret,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Sandbox:   cfg.Sandbox,
	}
	endpoints := bkash.Endpoints{
		Sandbox:      cfg.Sandbox,
		GrantURL:     cfg.GrantURL,
		RefreshURL:   cfg.RefreshURL,
		CheckoutBase: cfg.CheckoutBaseURL,
		HostedBase:   cfg.HostedBaseURL,
	}
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	tokens := &bkash.TokenManager{
		Creds:     creds,
		Endpoints: endpoints,
		HTTP:      httpClient,
		Cache:     redisClient,
		Locker:    lock.Locker{R: redisClient},
		Logger:    logger.With().Str("component", "token").Logger(),
		Timeout:   cfg.ProviderTimeout,
	}
	apiClient := &bkash.Client{
		Creds:     creds,
		Tokens:    tokens,
		Endpoints: endpoints,
		HTTP:      httpClient,
		Logger:    logger.With().Str("component", "bkash").Logger(),
		Timeout:   cfg.ProviderTimeout,
	}
	payments := &bkash.PaymentClient{Client: apiClient}
	agreements := &bkash.AgreementClient{Client: apiClient}

	orders := order.NewPGStore(pool)
	urls := gateway.URLs{
		PublicBaseURL: cfg.PublicBaseURL,
		CheckoutURL:   cfg.StoreCheckoutURL,
		ReceiptURL:    cfg.StoreReceiptURL,
	}

	var strategy gateway.Strategy
	switch gateway.ParseMode(cfg.CheckoutMode) {
	case gateway.ModeURL:
		strategy = &gateway.URLCheckout{
			Orders:    orders,
			Endpoints: endpoints,
			URLs:      urls,
			Logger:    logger.With().Str("component", "url-checkout").Logger(),
		}
	default:
		strategy = &gateway.Tokenized{
			Orders:     orders,
			Agreements: agreements,
			Payments:   payments,
			URLs:       urls,
			Logger:     logger.With().Str("component", "tokenized-checkout").Logger(),
		}
	}

	gw := &gateway.Gateway{
		Orders:   orders,
		Strategy: strategy,
		Logger:   logger.With().Str("component", "gateway").Logger(),
		Enabled:  cfg.Enabled,
		AppKey:   cfg.AppKey,
		User:     cfg.Username,
	}
	reconciler := &gateway.Reconciler{
		Orders:     orders,
		Agreements: agreements,
		Strategy:   strategy,
		URLs:       urls,
		Replay:     redisClient,
		ReplayTTL:  cfg.CallbackReplayTTL,
		Logger:     logger.With().Str("component", "callback").Logger(),
	}
	handler := &gateway.Handler{
		Gateway:    gw,
		Orders:     orders,
		Payments:   payments,
		Agreements: agreements,
		Tokens:     tokens,
		Logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug", middleware.Profiler())
	}

	healthHandler := health.Handler{Checker: readinessChecker{db: pool, redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	// Browser-facing: the provider redirects the payer here.
	r.Get(gateway.CallbackPath, reconciler.Handle)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/payments/bkash", func(p chi.Router) {
			p.Post("/process/{orderId}", handler.Process)
			p.Get("/{orderId}/status", handler.Status)
		})
		v.Route("/admin/bkash", func(a chi.Router) {
			a.Post("/token/refresh", handler.RefreshToken)
			a.Get("/agreements/{agreementId}", handler.AgreementStatus)
			a.Post("/agreements/{agreementId}/cancel", handler.CancelAgreement)
			a.Get("/transactions/{trxId}", handler.SearchTransaction)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Str("mode", cfg.CheckoutMode).Bool("sandbox", cfg.Sandbox).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func allowedOrigins() []string {
	raw := envOrDefault("CORS_ALLOWED_ORIGINS", "")
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}
