package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/ordersync/internal/cache"
	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/database"
	"github.com/Additional-Code/ordersync/internal/logger"
	"github.com/Additional-Code/ordersync/internal/messaging"
	"github.com/Additional-Code/ordersync/internal/observability"
	repositoryorder "github.com/Additional-Code/ordersync/internal/repository/order"
	"github.com/Additional-Code/ordersync/internal/runlock"
	"github.com/Additional-Code/ordersync/internal/scheduler"
	grpcserver "github.com/Additional-Code/ordersync/internal/server/grpc"
	httpserver "github.com/Additional-Code/ordersync/internal/server/http"
	serviceorder "github.com/Additional-Code/ordersync/internal/service/order"
	"github.com/Additional-Code/ordersync/internal/service/syncer"
	"github.com/Additional-Code/ordersync/internal/shopify"
	transporthttp "github.com/Additional-Code/ordersync/internal/transport/http"
	"github.com/Additional-Code/ordersync/internal/worker"
	workerorder "github.com/Additional-Code/ordersync/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	serviceorder.Module,
	shopify.Module,
	runlock.Module,
	syncer.Module,
)

// HTTP wires the HTTP and gRPC transports and the incremental scheduler on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
	scheduler.Module,
)

// Worker exposes background event processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring.
var Module = HTTP
