package order

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/cache"
	"github.com/Additional-Code/ordersync/internal/messaging"
	"github.com/Additional-Code/ordersync/internal/service/syncer"
	"github.com/Additional-Code/ordersync/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/ordersync/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderSyncedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderSyncedHandler evicts cached reads that a freshly synced order makes stale.
func NewOrderSyncedHandler(store cache.Store, logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.synced", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.String("run.id", msg.Headers[messaging.HeaderRunID]),
		))
		defer span.End()

		var event syncer.OrderSyncedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order synced event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		var errs []error
		if event.OrderID > 0 {
			errs = append(errs, store.Delete(ctx, cache.OrderKey(event.OrderID)))
		}
		errs = append(errs, store.Delete(ctx, cache.RemoteCountKey(event.StoreID)))
		if err := errors.Join(errs...); err != nil {
			logger.Warn("cache eviction failed",
				zap.Int64("order_id", event.OrderID),
				zap.Int("store", event.StoreID),
				zap.Error(err),
			)
			span.RecordError(err)
			return err
		}

		logger.Debug("order synced event processed",
			zap.String("run_id", event.RunID),
			zap.Int("store", event.StoreID),
			zap.Int64("remote_order_id", event.RemoteOrderID),
			zap.Int64("order_id", event.OrderID),
		)

		return nil
	}

	return worker.HandlerRegistration{
		EventType: syncer.EventTypeOrderSynced,
		Handler:   handler,
	}
}
