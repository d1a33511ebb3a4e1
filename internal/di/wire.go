//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/stackit-dev/stackit/internal/config"
	httpapp "github.com/stackit-dev/stackit/internal/http"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/qa"
	"github.com/stackit-dev/stackit/internal/rate"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideStore,
	ProvideCollector,
	ProvideTracing,
	ProvideTracer,
	ProvideGateway,
	wire.Bind(new(qa.Screener), new(*moderation.Gateway)),
	wire.Bind(new(httpapp.Moderator), new(*moderation.Gateway)),
	ProvideDeps,
	qa.NewPipeline,
	qa.NewAcceptance,
	qa.NewLedger,
	qa.NewCatalog,
	qa.NewAccounts,
	ProvideAuth,
	ProvideStorage,
	ProvideLimiter,
	wire.Bind(new(rate.Limiter), new(*rate.MemoryLimiter)),
	wire.Struct(new(httpapp.Services), "*"),
	ProvideServer,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
