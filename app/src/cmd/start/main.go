package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	grpcapi "electric-ping/app/src/api/grpc"
	httpapi "electric-ping/app/src/api/http"
	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

const readinessInterval = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initApplication(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	logger := app.Logger
	defer func() { _ = logger.Sync() }()

	infra.LogConfig(ctx, logger, cfg)
	metricsServer := infra.StartMetricsServer(cfg.MetricsPort, logger)

	var proxy http.Handler
	if app.Proxy != nil {
		proxy = app.Proxy
	}
	httpServer := newHTTPServer(cfg.HTTPPort, app.Service, proxy, logger)
	httpListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		logger.Fatalf(ctx, "failed to listen on HTTP port %s: %v", cfg.HTTPPort, err)
	}

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
		grpcListener net.Listener
	)
	if cfg.GRPCPort != "" {
		grpcServer, healthServer = grpcapi.NewServer(logger)
		grpcListener, err = net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			logger.Fatalf(ctx, "failed to listen on gRPC port %s: %v", cfg.GRPCPort, err)
		}
	}

	var background sync.WaitGroup
	if healthServer != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			grpcapi.MonitorReadiness(ctx, healthServer, app.Repository.Ping, readinessInterval, logger)
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf(ctx, "HTTP server shutdown error: %v", err)
		}
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		if grpcServer != nil {
			healthServer.Shutdown()
			grpcServer.GracefulStop()
		}
	}()

	serverErrs := make(chan error, 2)
	var serverGroup sync.WaitGroup

	serverGroup.Add(1)
	go func() {
		defer serverGroup.Done()
		logger.Printf(ctx, "HTTP server listening on %s", httpListener.Addr())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcServer != nil {
		serverGroup.Add(1)
		go func() {
			defer serverGroup.Done()
			logger.Printf(ctx, "gRPC server listening on %s", grpcListener.Addr())
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				serverErrs <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serverErrs:
	}

	stop()
	serverGroup.Wait()
	background.Wait()

	if serveErr != nil {
		logger.Printf(ctx, "server error: %v", serveErr)
	}
	logger.Println(ctx, "server stopped")
}

// newHTTPServer leaves WriteTimeout unset: live shape requests are long polls.
func newHTTPServer(port string, service domain.RecorderService, proxy http.Handler, logger *infra.Logger) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           httpapi.NewServer(service, proxy, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
