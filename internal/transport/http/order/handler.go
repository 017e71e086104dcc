package order

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/ordersync/internal/dto"
	"github.com/Additional-Code/ordersync/internal/entity"
	"github.com/Additional-Code/ordersync/internal/presentation/http/response"
	service "github.com/Additional-Code/ordersync/internal/service/order"
	"github.com/Additional-Code/ordersync/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/ordersync/transport/http/order")

// Reader is the read service surface used by the handlers.
type Reader interface {
	Get(ctx context.Context, id int64) (*entity.Order, error)
	ListByStore(ctx context.Context, store, limit, offset int) (*service.Page, error)
}

// Handler exposes mirrored orders over HTTP.
type Handler struct {
	svc Reader
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/orders/:id", h.getByID)
	e.GET("/stores/:store/orders", h.listByStore)
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) listByStore(c echo.Context) error {
	b := response.New(c)

	store, err := strconv.Atoi(c.Param("store"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid store", errorbank.WithCause(err))).Build()
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return b.WithError(err).Build()
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.listByStore", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	page, err := h.svc.ListByStore(ctx, store, limit, offset)
	if err != nil {
		return b.WithError(err).Build()
	}

	orders := make([]dto.OrderResponse, 0, len(page.Orders))
	for i := range page.Orders {
		orders = append(orders, dto.NewOrderResponse(&page.Orders[i]))
	}

	return b.WithData(orders).
		WithMeta("total", page.Total).
		WithMeta("limit", page.Limit).
		WithMeta("offset", page.Offset).
		Build()
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err))
	}
	return n, nil
}
