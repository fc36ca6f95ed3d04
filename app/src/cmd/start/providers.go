package main

import (
	"context"
	"io"

	"electric-ping/app/src/api/shapeproxy"
	"electric-ping/app/src/core"
	dbpostgres "electric-ping/app/src/database"
	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"
)

func provideConfig(ctx context.Context) (infra.Config, error) {
	cfg := infra.LoadConfig()
	if cfg.ElectricSecretID == "" {
		return cfg, nil
	}

	secrets, err := infra.NewSecretsClient(ctx)
	if err != nil {
		return cfg, err
	}
	return infra.ResolveElectricCredentials(ctx, cfg, secrets)
}

func provideServiceName() string {
	return "electric-ping"
}

func provideLogger(out io.Writer, serviceName string, cfg infra.Config) *infra.Logger {
	return infra.NewLoggerWithLevel(out, serviceName, cfg.LogLevel)
}

func provideRecorder(repo domain.PingRepository, logger *infra.Logger) domain.RecorderService {
	return core.NewRecorder(repo, logger)
}

// provideShapeProxy returns nil when no Electric endpoint is configured; the
// proxy route is then not mounted.
func provideShapeProxy(cfg infra.Config, logger *infra.Logger) (*shapeproxy.Proxy, error) {
	if cfg.ElectricURL == "" {
		logger.Println(context.Background(), "shape proxy disabled (ELECTRIC_URL is empty)")
		return nil, nil
	}
	return shapeproxy.New(shapeproxy.Config{
		ElectricURL: cfg.ElectricURL,
		Token:       cfg.ElectricToken,
		DatabaseID:  cfg.ElectricDatabaseID,
		Table:       cfg.ShapeTable,
		Timeout:     cfg.ProxyTimeout,
	}, logger)
}

func provideRepository(ctx context.Context, cfg infra.Config, logger *infra.Logger) (domain.PingRepository, func(), error) {
	if dbpostgres.ShouldCheckDatabase(cfg) {
		if err := dbpostgres.WaitForDatabase(ctx, cfg, logger); err != nil {
			logger.Printf(ctx, "database connectivity check failed: %v", err)
		} else {
			logger.Println(ctx, "database connectivity check succeeded")
		}
	} else {
		logger.Println(ctx, "database connectivity check skipped (no DSN or host/port configured)")
	}

	return dbpostgres.SetupRepository(ctx, cfg, logger)
}
