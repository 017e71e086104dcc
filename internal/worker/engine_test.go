package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/clock"
	"github.com/Additional-Code/ordersync/internal/messaging"
)

func TestEngineDispatchesByEventType(t *testing.T) {
	bus := messaging.NewMemoryClient("orders.synced", 8, zap.NewNop())
	var synced, other atomic.Int32

	e := newEngine(bus, zap.NewNop(), clock.New(),
		HandlerRegistration{EventType: "order.synced", Handler: func(context.Context, messaging.Message) error {
			synced.Add(1)
			return nil
		}},
		HandlerRegistration{EventType: "order.other", Handler: func(context.Context, messaging.Message) error {
			other.Add(1)
			return nil
		}},
		HandlerRegistration{EventType: "", Handler: nil},
	)

	require.NoError(t, e.start(context.Background()))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, []byte("k"), []byte("{}"), map[string]string{messaging.HeaderEventType: "order.synced"}))
	require.NoError(t, bus.Publish(ctx, []byte("k"), []byte("{}"), map[string]string{messaging.HeaderEventType: "order.synced"}))
	require.NoError(t, bus.Publish(ctx, []byte("k"), []byte("{}"), map[string]string{messaging.HeaderEventType: "unknown"}))

	assert.Eventually(t, func() bool { return synced.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, other.Load())

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.stop(stopCtx))
}

func TestEngineWithoutHandlersDoesNotStart(t *testing.T) {
	e := newEngine(messaging.NewMemoryClient("t", 1, zap.NewNop()), zap.NewNop(), clock.New())
	require.NoError(t, e.start(context.Background()))
	assert.Nil(t, e.cancel)
	require.NoError(t, e.stop(context.Background()))
}
