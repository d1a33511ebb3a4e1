package di

import (
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/config"
	httpapp "github.com/stackit-dev/stackit/internal/http"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/qa"
	"github.com/stackit-dev/stackit/internal/store"
)

// Container holds all application dependencies
type Container struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    store.Store
	Gateway  *moderation.Gateway
	Accounts *qa.Accounts
	Server   *httpapp.Server
}
