package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Additional-Code/ordersync/internal/transport/http/order"
	synctransport "github.com/Additional-Code/ordersync/internal/transport/http/sync"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	synctransport.Module,
)
