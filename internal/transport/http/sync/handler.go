package sync

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/ordersync/internal/clock"
	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/dto"
	"github.com/Additional-Code/ordersync/internal/presentation/http/response"
	"github.com/Additional-Code/ordersync/internal/service/syncer"
	"github.com/Additional-Code/ordersync/internal/shopify"
	"github.com/Additional-Code/ordersync/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/ordersync/transport/http/sync")

// Syncer is the orchestrator surface used by the handlers.
type Syncer interface {
	Backfill(ctx context.Context, req syncer.BackfillRequest) (*syncer.Result, error)
	Incremental(ctx context.Context, req syncer.IncrementalRequest) (*syncer.Result, error)
	SyncNow(ctx context.Context, selector string, limit int) (*syncer.BulkResult, error)
	CountRemoteOrders(ctx context.Context, store int) (int, error)
}

// Catalog lists configured stores.
type Catalog interface {
	Stores() []int
	Valid(store int) bool
}

// Handler exposes sync endpoints over HTTP.
type Handler struct {
	svc     Syncer
	catalog Catalog
	clock   clock.Clock
	window  time.Duration
}

// NewHandler constructs a sync Handler.
func NewHandler(svc *syncer.Service, resolver *shopify.Resolver, cfg config.Config) *Handler {
	return newHandler(svc, resolver, clock.New(), cfg.Sync.Window)
}

func newHandler(svc Syncer, catalog Catalog, clk clock.Clock, window time.Duration) *Handler {
	return &Handler{svc: svc, catalog: catalog, clock: clk, window: window}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/stores", h.listStores)
	e.GET("/stores/:store/orders/count", h.countOrders)
	e.POST("/stores/:store/sync/backfill", h.backfill)
	e.POST("/stores/:store/sync/incremental", h.incremental)
	e.POST("/sync/now", h.syncNow)
}

type backfillPayload struct {
	Since  *time.Time `json:"since"`
	Cursor string     `json:"cursor"`
	Limit  int        `json:"limit"`
}

type incrementalPayload struct {
	UpdatedSince  *time.Time `json:"updated_since"`
	WindowMinutes int        `json:"window_minutes"`
	Cursor        string     `json:"cursor"`
	Limit         int        `json:"limit"`
}

type syncNowPayload struct {
	Store string `json:"store"`
	Limit int    `json:"limit"`
}

func (h *Handler) listStores(c echo.Context) error {
	b := response.New(c)

	numbers := h.catalog.Stores()
	stores := make([]dto.StoreResponse, 0, len(numbers))
	for _, n := range numbers {
		stores = append(stores, dto.StoreResponse{Number: n, Valid: h.catalog.Valid(n)})
	}

	return b.WithData(stores).WithMeta("total", len(stores)).Build()
}

func (h *Handler) countOrders(c echo.Context) error {
	b := response.New(c)

	store, err := storeParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "stores.countOrders", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	count, err := h.svc.CountRemoteOrders(ctx, store)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}

	return b.WithData(map[string]int{"store": store, "count": count}).Build()
}

func (h *Handler) backfill(c echo.Context) error {
	b := response.New(c)

	store, err := storeParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload backfillPayload
	if err := bindOptional(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "stores.backfill", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	res, err := h.svc.Backfill(ctx, syncer.BackfillRequest{
		Store:  store,
		Since:  payload.Since,
		Cursor: strings.TrimSpace(payload.Cursor),
		Limit:  payload.Limit,
	})
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}

	return b.WithData(dto.NewSyncResultResponse(res)).Build()
}

func (h *Handler) incremental(c echo.Context) error {
	b := response.New(c)

	store, err := storeParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload incrementalPayload
	if err := bindOptional(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	if payload.WindowMinutes < 0 {
		return b.WithError(errorbank.BadRequest("window_minutes must not be negative")).Build()
	}

	since := h.clock.Now().Add(-h.window)
	switch {
	case payload.UpdatedSince != nil:
		since = *payload.UpdatedSince
	case payload.WindowMinutes > 0:
		since = h.clock.Now().Add(-time.Duration(payload.WindowMinutes) * time.Minute)
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "stores.incremental", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	res, err := h.svc.Incremental(ctx, syncer.IncrementalRequest{
		Store:        store,
		UpdatedSince: since,
		Cursor:       strings.TrimSpace(payload.Cursor),
		Limit:        payload.Limit,
	})
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}

	status := http.StatusOK
	if res.Skipped {
		status = http.StatusAccepted
	}

	return b.WithStatus(status).WithData(dto.NewSyncResultResponse(res)).Build()
}

func (h *Handler) syncNow(c echo.Context) error {
	b := response.New(c)

	var payload syncNowPayload
	if err := bindOptional(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	if strings.TrimSpace(payload.Store) == "" {
		payload.Store = "all"
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "sync.now", trace.WithAttributes(attribute.String("store.selector", payload.Store)))
	defer span.End()

	bulk, err := h.svc.SyncNow(ctx, payload.Store, payload.Limit)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}

	out := dto.BulkSyncResponse{RunID: bulk.RunID, Stores: make([]dto.StoreOutcomeResponse, 0, len(bulk.Stores))}
	failed := 0
	for _, o := range bulk.Stores {
		item := dto.StoreOutcomeResponse{Store: o.Store}
		if o.Err != nil {
			failed++
			appErr := toAppError(o.Err)
			item.Error = &dto.ErrorResponse{Kind: string(appErr.Kind()), Message: appErr.Message()}
		} else {
			res := dto.NewSyncResultResponse(o.Result)
			item.Result = &res
		}
		out.Stores = append(out.Stores, item)
	}

	return b.WithData(out).WithMeta("failed_stores", failed).Build()
}

func storeParam(c echo.Context) (int, error) {
	store, err := shopify.ParseStore(c.Param("store"))
	if err != nil {
		return 0, errorbank.BadRequest("invalid store", errorbank.WithCause(err))
	}
	return store, nil
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c echo.Context, v any) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	if err := c.Bind(v); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return nil
}
