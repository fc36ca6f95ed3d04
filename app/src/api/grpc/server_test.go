package grpcapi

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"electric-ping/app/src/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
)

func TestNewServerRegistersHealth(t *testing.T) {
	t.Log("Шаг 1: создаём gRPC-сервер и проверяем регистрацию health-сервиса")
	srv, _ := NewServer(infra.NewLogger(bytes.NewBuffer(nil), "test"))
	info := srv.GetServiceInfo()
	assert.Contains(t, info, "grpc.health.v1.Health")
}

func TestHealthReflectsReadiness(t *testing.T) {
	srv, hs := NewServer(nil)

	listener := bufconn.Listen(1 << 20)
	go func() {
		_ = srv.Serve(listener)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	t.Log("Шаг 1: до первой проверки сервис не готов")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status())

	var failing atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		MonitorReadiness(ctx, hs, func(context.Context) error {
			if failing.Load() {
				return errors.New("db down")
			}
			return nil
		}, 5*time.Millisecond, nil)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	t.Log("Шаг 2: успешная проверка переводит сервис в SERVING")
	assert.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_SERVING }, time.Second, 5*time.Millisecond)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.True(t, proto.Equal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, resp))

	t.Log("Шаг 3: ошибка проверки возвращает NOT_SERVING")
	failing.Store(true)
	assert.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_NOT_SERVING }, time.Second, 5*time.Millisecond)
}
