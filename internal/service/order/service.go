package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/cache"
	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/entity"
	repo "github.com/Additional-Code/ordersync/internal/repository/order"
	"github.com/Additional-Code/ordersync/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/ordersync/service/order")

const (
	defaultListLimit = 50
	maxListLimit     = 250
)

// Reader is the read side of the order mirror.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	ListByStore(ctx context.Context, store, limit, offset int) ([]entity.Order, error)
	CountByStore(ctx context.Context, store int) (int, error)
}

// Service serves mirrored orders to the transports.
type Service struct {
	repo     Reader
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Cache, p.Config.Cache.DefaultTTL, p.Logger)
}

// New builds a Service around any Reader.
func New(r Reader, store cache.Store, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: r, cache: store, cacheTTL: ttl, logger: logger}
}

// Get retrieves an order with its items by id, consulting cache first.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if id <= 0 {
		return nil, errorbank.BadRequest("order id must be positive")
	}

	order, err := s.getFromCache(ctx, id)
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return order, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	order, err = s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("id", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", id), zap.Error(err))
	}

	return order, nil
}

// Page is one slice of a store's mirrored orders.
type Page struct {
	Orders []entity.Order
	Total  int
	Limit  int
	Offset int
}

// ListByStore pages through the mirrored orders of a store without their items.
func (s *Service) ListByStore(ctx context.Context, store, limit, offset int) (*Page, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ListByStore", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	if store <= 0 {
		return nil, errorbank.BadRequest("store number must be positive")
	}
	if offset < 0 {
		return nil, errorbank.BadRequest("offset must not be negative")
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	orders, err := s.repo.ListByStore(ctx, store, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	total, err := s.repo.CountByStore(ctx, store)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to count orders", errorbank.WithCause(err))
	}

	return &Page{Orders: orders, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	raw, err := s.cache.Get(ctx, cache.OrderKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, cache.OrderKey(order.ID), raw, s.cacheTTL)
}
