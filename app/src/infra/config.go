package infra

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultElectricURL = "https://api-dev-production.electric-sql.com/"

type Config struct {
	HTTPPort           string
	GRPCPort           string
	MetricsPort        string
	LogLevel           string
	DatabaseDriver     string
	DatabaseDSN        string
	DatabaseHost       string
	DatabasePort       string
	DatabaseUser       string
	DatabasePassword   string
	DatabaseName       string
	MigrationsDir      string
	ElectricURL        string
	ElectricToken      string
	ElectricDatabaseID string
	ElectricSecretID   string
	ShapeTable         string
	ProxyTimeout       time.Duration
}

var configKeys = map[string]string{
	"HTTP_PORT":            "8080",
	"GRPC_PORT":            "50051",
	"METRICS_PORT":         "2112",
	"LOG_LEVEL":            "info",
	"DB_DRIVER":            "postgres",
	"DB_DSN":               "",
	"DB_HOST":              "",
	"DB_PORT":              "",
	"DB_USER":              "",
	"DB_PASSWORD":          "",
	"DB_NAME":              "",
	"MIGRATIONS_DIR":       "",
	"ELECTRIC_URL":         defaultElectricURL,
	"ELECTRIC_TOKEN":       "",
	"ELECTRIC_DATABASE_ID": "",
	"ELECTRIC_SECRET_ID":   "",
	"SHAPE_TABLE":          "ping",
	"PROXY_TIMEOUT":        "0s",
}

// NewViper returns a viper instance reading the process environment and, when
// present, a .env file in the working directory. Real environment variables
// win over the file.
func NewViper(envFiles ...string) *viper.Viper {
	v := viper.New()
	for key, def := range configKeys {
		v.SetDefault(key, def)
	}
	v.AutomaticEnv()

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.MergeInConfig()
	}
	return v
}

func LoadConfig() Config {
	return ConfigFrom(NewViper())
}

// ConfigFrom maps viper keys onto Config.
func ConfigFrom(v *viper.Viper) Config {
	return Config{
		HTTPPort:           v.GetString("HTTP_PORT"),
		GRPCPort:           v.GetString("GRPC_PORT"),
		MetricsPort:        v.GetString("METRICS_PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseDriver:     v.GetString("DB_DRIVER"),
		DatabaseDSN:        v.GetString("DB_DSN"),
		DatabaseHost:       v.GetString("DB_HOST"),
		DatabasePort:       v.GetString("DB_PORT"),
		DatabaseUser:       v.GetString("DB_USER"),
		DatabasePassword:   v.GetString("DB_PASSWORD"),
		DatabaseName:       v.GetString("DB_NAME"),
		MigrationsDir:      v.GetString("MIGRATIONS_DIR"),
		ElectricURL:        v.GetString("ELECTRIC_URL"),
		ElectricToken:      v.GetString("ELECTRIC_TOKEN"),
		ElectricDatabaseID: v.GetString("ELECTRIC_DATABASE_ID"),
		ElectricSecretID:   v.GetString("ELECTRIC_SECRET_ID"),
		ShapeTable:         v.GetString("SHAPE_TABLE"),
		ProxyTimeout:       v.GetDuration("PROXY_TIMEOUT"),
	}
}

func LogConfig(ctx context.Context, logger *Logger, cfg Config) {
	logger.Printf(ctx, "HTTP_PORT=%s", cfg.HTTPPort)
	logger.Printf(ctx, "GRPC_PORT=%s", emptyFallback(cfg.GRPCPort, "(disabled)"))
	logger.Printf(ctx, "METRICS_PORT=%s", emptyFallback(cfg.MetricsPort, "(disabled)"))
	logger.Printf(ctx, "LOG_LEVEL=%s", cfg.LogLevel)
	logger.Printf(ctx, "DB_DRIVER=%s", cfg.DatabaseDriver)
	if cfg.DatabaseDSN != "" {
		logger.Printf(ctx, "DB_DSN set (length %d)", len(cfg.DatabaseDSN))
	} else {
		logger.Println(ctx, "DB_DSN not provided")
	}
	logger.Printf(ctx, "DB_HOST=%s", emptyFallback(cfg.DatabaseHost, "(not set)"))
	logger.Printf(ctx, "DB_PORT=%s", emptyFallback(cfg.DatabasePort, "(not set)"))
	logger.Printf(ctx, "DB_USER=%s", emptyFallback(cfg.DatabaseUser, "(not set)"))
	if cfg.DatabasePassword != "" {
		logger.Println(ctx, "DB_PASSWORD set (redacted)")
	} else {
		logger.Println(ctx, "DB_PASSWORD not provided")
	}
	logger.Printf(ctx, "DB_NAME=%s", emptyFallback(cfg.DatabaseName, "(not set)"))
	logger.Printf(ctx, "MIGRATIONS_DIR=%s", emptyFallback(cfg.MigrationsDir, "(default)"))
	logger.Printf(ctx, "ELECTRIC_URL=%s", cfg.ElectricURL)
	if cfg.ElectricToken != "" {
		logger.Println(ctx, "ELECTRIC_TOKEN set (redacted)")
	} else {
		logger.Println(ctx, "ELECTRIC_TOKEN not provided")
	}
	logger.Printf(ctx, "ELECTRIC_DATABASE_ID=%s", emptyFallback(cfg.ElectricDatabaseID, "(not set)"))
	logger.Printf(ctx, "ELECTRIC_SECRET_ID=%s", emptyFallback(cfg.ElectricSecretID, "(not set)"))
	logger.Printf(ctx, "SHAPE_TABLE=%s", cfg.ShapeTable)
	logger.Printf(ctx, "PROXY_TIMEOUT=%s", cfg.ProxyTimeout)
}

func emptyFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
