package grpcx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawmarket/petcare/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthCheck returns a readiness probe that asks a remote server for the
// status of service ("" is the whole server).
func HealthCheck(name string, conn grpc.ClientConnInterface, service string) runtime.ReadyCheck {
	client := healthpb.NewHealthClient(conn)
	return runtime.ReadyCheck{Name: name, Check: func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("grpc health %q: %s", service, resp.GetStatus())
		}
		return nil
	}}
}

// RegisterHealth installs a health server whose status follows checks. It
// re-evaluates every interval until ctx is done, then reports NOT_SERVING.
func RegisterHealth(ctx context.Context, srv *grpc.Server, logger *slog.Logger, interval time.Duration, services []string, checks ...runtime.ReadyCheck) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if interval <= 0 {
		interval = 5 * time.Second
	}
	names := append([]string{""}, services...)

	set := func(status healthpb.HealthCheckResponse_ServingStatus) {
		for _, name := range names {
			hs.SetServingStatus(name, status)
		}
	}
	eval := func() {
		failures := runtime.RunChecks(ctx, 2*time.Second, checks...)
		if len(failures) > 0 {
			logger.Warn("grpc health not serving", "failures", failures)
			set(healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		set(healthpb.HealthCheckResponse_SERVING)
	}

	eval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				return
			case <-ticker.C:
				eval()
			}
		}
	}()
	return hs
}
