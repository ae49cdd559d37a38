package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pawmarket/petcare/libs/config"
	"github.com/pawmarket/petcare/libs/db"
	"github.com/pawmarket/petcare/libs/grpcx"
	"github.com/pawmarket/petcare/libs/httpx"
	"github.com/pawmarket/petcare/libs/kafkax"
	otelx "github.com/pawmarket/petcare/libs/otel"
	"github.com/pawmarket/petcare/libs/runtime"
	"github.com/pawmarket/petcare/services/booking-service/internal/booking"
	"github.com/pawmarket/petcare/services/booking-service/internal/consumer"
	"github.com/pawmarket/petcare/services/booking-service/internal/directory"
	"github.com/pawmarket/petcare/services/booking-service/internal/handlers"
	"github.com/pawmarket/petcare/services/booking-service/internal/inbox"
	"github.com/pawmarket/petcare/services/booking-service/internal/outbox"
	"github.com/pawmarket/petcare/services/booking-service/internal/pricing"
	"github.com/pawmarket/petcare/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("booking-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	price, err := strconv.ParseFloat(config.String("DEFAULT_PRICE", "0"), 64)
	if err != nil {
		return fmt.Errorf("DEFAULT_PRICE: %w", err)
	}
	defaultPrice, err := pricing.NewStatic(price, config.String("DEFAULT_CURRENCY", "USD"))
	if err != nil {
		return err
	}

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

	pool, err := db.OpenWithOptions(ctx, dbURL, db.Options{
		MaxConns:        int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns:        int32(config.Int("DB_MIN_CONNS", 0)),
		MaxConnLifetime: config.Duration("DB_MAX_CONN_LIFETIME", 0),
		MaxConnIdleTime: config.Duration("DB_MAX_CONN_IDLE_TIME", 0),
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if config.Bool("AUTO_MIGRATE", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("schema migrated")
	}

	brokers := config.List("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	availabilityRepo := storage.NewAvailabilityRepository(pool, outboxRepo)
	reservationRepo := storage.NewReservationRepository(pool, outboxRepo)
	directoryRepo := storage.NewDirectoryRepository(pool)
	quoter := pricing.NewRateTable(storage.NewRatesRepository(pool), defaultPrice)

	if len(brokers) > 0 {
		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go outboxPublisher.Run(ctx)

		applier := directory.NewApplier(directoryRepo, logger)
		directoryConsumer := consumer.New(pool, logger, inbox.NewRepository(), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  config.List("DIRECTORY_TOPICS", strings.Join(directory.Topics, ",")),
		}, applier.Apply)
		go directoryConsumer.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox publishing and directory sync disabled")
	}

	bookingHandler := handlers.NewBookingHandler(
		booking.NewCoordinator(availabilityRepo, reservationRepo, directoryRepo, quoter),
		booking.NewResolver(availabilityRepo, reservationRepo),
		booking.NewPublisher(availabilityRepo),
		logger,
	)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	bookingHandler.Register(mux)

	limits := httpLimitsFromEnv()
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(limits.BodyBytes),
		httpx.WithTimeout(limits.Timeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer()
	grpcx.RegisterHealth(ctx, grpcServer, logger, config.Duration("GRPC_HEALTH_INTERVAL", 5*time.Second), []string{"booking"}, checks...)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return err
	}

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
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
	grpcServer.GracefulStop()
	logger.Info("servers stopped")
	return nil
}

type httpLimits struct {
	BodyBytes int64
	Timeout   time.Duration
}

// httpLimitsFromEnv reads the same keys the gateway does.
func httpLimitsFromEnv() httpLimits {
	return httpLimits{
		BodyBytes: int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		Timeout:   config.Duration("REQUEST_TIMEOUT", 15*time.Second),
	}
}
