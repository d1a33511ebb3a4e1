package di

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stackit-dev/stackit/internal/auth"
	"github.com/stackit-dev/stackit/internal/config"
	httpapp "github.com/stackit-dev/stackit/internal/http"
	"github.com/stackit-dev/stackit/internal/metrics"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/qa"
	"github.com/stackit-dev/stackit/internal/rate"
	"github.com/stackit-dev/stackit/internal/storage"
	"github.com/stackit-dev/stackit/internal/store"
	"github.com/stackit-dev/stackit/internal/store/postgres"
	"github.com/stackit-dev/stackit/internal/store/sqlite"
	"github.com/stackit-dev/stackit/internal/tracing"
)

const metricsNamespace = "stackit"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

// ProvideStore opens the configured database.
func ProvideStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.DB.Driver {
	case "postgres":
		st, err = postgres.Open(ctx, cfg.DB.DSN)
	case "", "sqlite":
		st, err = sqlite.Open(cfg.DB.Path)
	default:
		err = fmt.Errorf("unknown database driver %q", cfg.DB.Driver)
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database opened", zap.String("driver", cfg.DB.Driver))
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("close database", zap.Error(err))
		}
	}
	return st, cleanup, nil
}

func ProvideCollector() *metrics.Collector {
	return metrics.NewCollector(metricsNamespace)
}

// ProvideTracing starts the OTLP exporter when tracing is enabled.
func ProvideTracing(ctx context.Context, cfg config.Config, logger *zap.Logger) (*tracing.Provider, func(), error) {
	provider, err := tracing.Init(ctx, cfg.Tracing, cfg.Environment)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}
	return provider, cleanup, nil
}

func ProvideTracer(provider *tracing.Provider) trace.Tracer {
	return provider.Tracer()
}

func ProvideGateway(cfg config.Config, logger *zap.Logger, collector *metrics.Collector, tracer trace.Tracer) *moderation.Gateway {
	return moderation.NewGateway(cfg.Moderation, &http.Client{}, logger.Named("moderation"), collector, tracer)
}

func ProvideDeps(st store.Store, screener qa.Screener, logger *zap.Logger, collector *metrics.Collector, tracer trace.Tracer) qa.Deps {
	return qa.Deps{
		Store:    st,
		Screener: screener,
		Logger:   logger.Named("qa"),
		Metrics:  collector,
		Tracer:   tracer,
	}
}

func ProvideAuth(st store.Store, cfg config.Config) *auth.Service {
	return auth.NewService(st, cfg.Auth)
}

func ProvideStorage(cfg config.Config, logger *zap.Logger, collector *metrics.Collector) (*storage.Service, error) {
	return storage.New(cfg.Storage, logger.Named("storage"), collector)
}

func ProvideLimiter() *rate.MemoryLimiter {
	return rate.NewMemory()
}

func ProvideServer(svc httpapp.Services, cfg config.Config) *httpapp.Server {
	return httpapp.NewServer(svc, cfg)
}
