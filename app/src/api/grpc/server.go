package grpcapi

import (
	"context"
	"time"

	"electric-ping/app/src/infra"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the ping recorder.
const ServiceName = "electricping.Recorder"

// NewServer constructs a gRPC server carrying the standard health service.
// The returned health server starts in NOT_SERVING for ServiceName.
func NewServer(logger *infra.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(logger),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	grpc_prometheus.Register(server)
	return server, healthServer
}

// MonitorReadiness runs check every interval and publishes the outcome as the
// serving status of ServiceName until ctx is done.
func MonitorReadiness(ctx context.Context, hs *health.Server, check func(context.Context) error, interval time.Duration, logger *infra.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := false
	for {
		err := probe(ctx, check, interval)
		switch {
		case err == nil && !serving:
			hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
			logger.Printf(ctx, "gRPC health: %s serving", ServiceName)
			serving = true
		case err != nil && serving:
			hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			logger.Warnf(ctx, "gRPC health: %s not serving: %v", ServiceName, err)
			serving = false
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, check func(context.Context) error, timeout time.Duration) error {
	if check == nil {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return check(probeCtx)
}

func loggingInterceptor(logger *infra.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			logger.Printf(ctx, "gRPC %s failed in %s: %v", info.FullMethod, duration, err)
		} else {
			logger.Debugf(ctx, "gRPC %s completed in %s", info.FullMethod, duration)
		}
		return resp, err
	}
}
