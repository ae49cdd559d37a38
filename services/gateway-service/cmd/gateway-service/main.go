package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/pawmarket/petcare/libs/auth"
	"github.com/pawmarket/petcare/libs/config"
	"github.com/pawmarket/petcare/libs/grpcx"
	"github.com/pawmarket/petcare/libs/httpx"
	otelx "github.com/pawmarket/petcare/libs/otel"
	"github.com/pawmarket/petcare/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	verifier, err := auth.NewVerifier(ctx, auth.VerifierConfig{
		HS256Secret:     config.String("JWT_SECRET", ""),
		JWKSURL:         config.String("JWKS_URL", ""),
		RefreshInterval: config.Duration("JWKS_REFRESH_INTERVAL", 5*time.Minute),
		Logger:          logger,
	})
	if err != nil {
		logger.Error("token verifier init failed", "err", err)
		os.Exit(1)
	}
	defer verifier.Close()

	var checks []runtime.ReadyCheck
	if addr := config.String("BOOKING_GRPC_ADDR", "booking-service:9093"); addr != "" {
		conn, err := grpcx.NewClient(addr, grpcx.DialOptions{})
		if err != nil {
			logger.Error("booking grpc client init failed", "err", err)
			os.Exit(1)
		}
		defer func() { _ = conn.Close() }()
		checks = append(checks, grpcx.HealthCheck("booking", conn, "booking"))
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, upstreams{
		auth:    mustParseURL(config.String("AUTH_URL", "http://auth-service:8081")),
		booking: mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
	}, verifier)

	limit := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, httpx.RedisLimiterOptions{
			Limit:    limit,
			Window:   time.Minute,
			Prefix:   config.String("RATE_LIMIT_PREFIX", "rl"),
			FailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
			Logger:   logger,
		})
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (redis)", "per_minute", limit, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limit, time.Minute, httpx.ClientKey).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			ExposedHeaders:   config.List("CORS_EXPOSED_HEADERS", "X-Request-Id,Retry-After"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
