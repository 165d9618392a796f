package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Additional-Code/palate/internal/cache"
	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/database"
	"github.com/Additional-Code/palate/internal/logger"
	"github.com/Additional-Code/palate/internal/messaging"
	"github.com/Additional-Code/palate/internal/notification"
	"github.com/Additional-Code/palate/internal/observability"
	repositoryaccount "github.com/Additional-Code/palate/internal/repository/account"
	repositoryorder "github.com/Additional-Code/palate/internal/repository/order"
	"github.com/Additional-Code/palate/internal/schema"
	grpcserver "github.com/Additional-Code/palate/internal/server/grpc"
	httpserver "github.com/Additional-Code/palate/internal/server/http"
	serviceaccount "github.com/Additional-Code/palate/internal/service/account"
	serviceorder "github.com/Additional-Code/palate/internal/service/order"
	transporthttp "github.com/Additional-Code/palate/internal/transport/http"
	"github.com/Additional-Code/palate/internal/worker"
	workerorder "github.com/Additional-Code/palate/internal/worker/order"
)

// Infra provides config, logging and connections without any domain wiring.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	database.Module,
	fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
	}),
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	cache.Module,
	messaging.Module,
	observability.Module,
	observability.MetricsModule,
	schema.Module,
	notification.Module,
	repositoryorder.Module,
	repositoryaccount.Module,
	serviceorder.Module,
	serviceaccount.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring.
var Module = HTTP
