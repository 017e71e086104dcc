package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/cache"
	"github.com/Additional-Code/ordersync/internal/clock"
	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/entity"
	"github.com/Additional-Code/ordersync/internal/messaging"
	orderrepo "github.com/Additional-Code/ordersync/internal/repository/order"
	"github.com/Additional-Code/ordersync/internal/runlock"
	"github.com/Additional-Code/ordersync/internal/shopify"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/ordersync/service/syncer")
	serviceMeter  = otel.Meter("github.com/Additional-Code/ordersync/service/syncer")
)

// StatusAny asks the remote for orders in every state; its default hides closed and cancelled ones.
const StatusAny = "any"

// Fetcher reads orders from the remote store.
type Fetcher interface {
	ListOrders(ctx context.Context, cred shopify.Credential, q shopify.PageQuery) (*shopify.OrderPage, error)
	CountOrders(ctx context.Context, cred shopify.Credential) (int, error)
}

// CredentialResolver maps store selectors to credentials.
type CredentialResolver interface {
	Resolve(selector any) (shopify.Credential, error)
	Stores() []int
}

// OrderWriter persists one mapped order atomically.
type OrderWriter interface {
	Upsert(ctx context.Context, order *entity.Order, items []entity.OrderItem) (int64, error)
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client     *shopify.Client
	Resolver   *shopify.Resolver
	Repository *orderrepo.Repository
	Locker     runlock.Locker
	Publisher  messaging.Client
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// Deps is the explicit dependency set used by NewWithDeps.
type Deps struct {
	Fetcher   Fetcher
	Resolver  CredentialResolver
	Writer    OrderWriter
	Locker    runlock.Locker
	Publisher messaging.Client
	Cache     cache.Store
	Clock     clock.Clock
	Logger    *zap.Logger
	// PageLimit is used when a request does not set one.
	PageLimit     int
	CountCacheTTL time.Duration
}

// Service orchestrates backfill, incremental and bulk sync runs.
type Service struct {
	fetcher   Fetcher
	resolver  CredentialResolver
	writer    OrderWriter
	locker    runlock.Locker
	publisher messaging.Client
	cache     cache.Store
	clock     clock.Clock
	logger    *zap.Logger
	pageLimit int
	countTTL  time.Duration

	persisted metric.Int64Counter
	failed    metric.Int64Counter
	skipped   metric.Int64Counter
}

// NewService wires the orchestrator from the Fx graph.
func NewService(p Params) *Service {
	return NewWithDeps(Deps{
		Fetcher:       p.Client,
		Resolver:      p.Resolver,
		Writer:        p.Repository,
		Locker:        p.Locker,
		Publisher:     p.Publisher,
		Cache:         p.Cache,
		Logger:        p.Logger,
		PageLimit:     p.Config.Sync.PageLimit,
		CountCacheTTL: p.Config.Sync.CountCacheTTL,
	})
}

// NewWithDeps builds a Service from explicit dependencies.
func NewWithDeps(d Deps) *Service {
	s := &Service{
		fetcher:   d.Fetcher,
		resolver:  d.Resolver,
		writer:    d.Writer,
		locker:    d.Locker,
		publisher: d.Publisher,
		cache:     d.Cache,
		clock:     d.Clock,
		logger:    d.Logger,
		pageLimit: d.PageLimit,
		countTTL:  d.CountCacheTTL,
	}
	if s.locker == nil {
		s.locker = runlock.NewLocal()
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.pageLimit <= 0 || s.pageLimit > config.MaxPageLimit {
		s.pageLimit = config.MaxPageLimit
	}

	if counter, err := serviceMeter.Int64Counter("ordersync.orders.persisted", metric.WithDescription("Orders written to the mirror")); err == nil {
		s.persisted = counter
	}
	if counter, err := serviceMeter.Int64Counter("ordersync.orders.failed", metric.WithDescription("Orders that failed to map or persist")); err == nil {
		s.failed = counter
	}
	if counter, err := serviceMeter.Int64Counter("ordersync.runs.skipped", metric.WithDescription("Incremental runs skipped because the store was busy")); err == nil {
		s.skipped = counter
	}

	return s
}

// Backfill syncs one page of orders created after req.Since, or the page behind req.Cursor.
func (s *Service) Backfill(ctx context.Context, req BackfillRequest) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := serviceTracer.Start(ctx, "SyncService.Backfill", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("store.number", req.Store),
	))
	defer span.End()

	cred, err := s.resolve(runID, req.Store)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	res, err := s.syncPage(ctx, runID, cred, s.backfillQuery(req.Since, req.Cursor, req.Limit))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return res, nil
}

// BackfillAll follows cursors until the listing ends or maxPages pages were synced.
// maxPages <= 0 means no page cap.
func (s *Service) BackfillAll(ctx context.Context, store int, since *time.Time, limit, maxPages int) (*RunSummary, error) {
	runID := uuid.NewString()
	ctx, span := serviceTracer.Start(ctx, "SyncService.BackfillAll", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("store.number", store),
	))
	defer span.End()

	cred, err := s.resolve(runID, store)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	summary := &RunSummary{RunID: runID, Store: store}
	err = s.followPages(ctx, summary, maxPages, func(cursor string) (*Result, error) {
		return s.syncPage(ctx, runID, cred, s.backfillQuery(since, cursor, limit))
	})
	if err != nil {
		recordSpanError(span, err)
		return summary, err
	}
	return summary, nil
}

// Incremental syncs one page of orders updated after req.UpdatedSince. Only one
// incremental run per store is in flight; a concurrent call returns a skipped result.
func (s *Service) Incremental(ctx context.Context, req IncrementalRequest) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := serviceTracer.Start(ctx, "SyncService.Incremental", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("store.number", req.Store),
	))
	defer span.End()

	release, ok, err := s.acquire(ctx, runID, req.Store)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if !ok {
		return &Result{RunID: runID, Store: req.Store, Skipped: true}, nil
	}
	defer release()

	cred, err := s.resolve(runID, req.Store)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	res, err := s.syncPage(ctx, runID, cred, s.incrementalQuery(req.UpdatedSince, req.Cursor, req.Limit))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return res, nil
}

// RunIncremental holds the store lock for a whole multi-page incremental run.
func (s *Service) RunIncremental(ctx context.Context, store int, updatedSince time.Time, limit, maxPages int) (*RunSummary, error) {
	runID := uuid.NewString()
	ctx, span := serviceTracer.Start(ctx, "SyncService.RunIncremental", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("store.number", store),
	))
	defer span.End()

	summary := &RunSummary{RunID: runID, Store: store}

	release, ok, err := s.acquire(ctx, runID, store)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if !ok {
		summary.Skipped = true
		return summary, nil
	}
	defer release()

	cred, err := s.resolve(runID, store)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	err = s.followPages(ctx, summary, maxPages, func(cursor string) (*Result, error) {
		return s.syncPage(ctx, runID, cred, s.incrementalQuery(updatedSince, cursor, limit))
	})
	if err != nil {
		recordSpanError(span, err)
		return summary, err
	}

	s.logger.Info("incremental run finished",
		zap.String("run_id", runID),
		zap.Int("store", store),
		zap.Int("pages", summary.Pages),
		zap.Int("orders", summary.OrdersProcessed),
		zap.Int("failed", len(summary.Errors)),
		zap.Bool("has_next_page", summary.HasNextPage),
	)
	return summary, nil
}

// SyncNow fetches the most recent page of orders for one store or, with "all",
// for every configured store. A failing store never affects the others.
func (s *Service) SyncNow(ctx context.Context, selector string, limit int) (*BulkResult, error) {
	runID := uuid.NewString()
	ctx, span := serviceTracer.Start(ctx, "SyncService.SyncNow", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("store.selector", selector),
	))
	defer span.End()

	var stores []int
	sel := strings.TrimSpace(selector)
	if sel == "" || strings.EqualFold(sel, "all") {
		stores = s.resolver.Stores()
	} else {
		n, err := shopify.ParseStore(sel)
		if err != nil {
			s.logger.Error("bulk sync rejected store selector",
				zap.String("run_id", runID),
				zap.String("store.selector", selector),
				zap.Error(err),
			)
			recordSpanError(span, err)
			return nil, err
		}
		stores = []int{n}
	}

	bulk := &BulkResult{RunID: runID, Stores: make([]StoreOutcome, len(stores))}
	query := shopify.FirstPage(s.limit(limit), shopify.Filters{Status: StatusAny})

	var wg sync.WaitGroup
	for i, store := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := StoreOutcome{Store: store}
			cred, err := s.resolve(runID, store)
			if err == nil {
				outcome.Result, err = s.syncPage(ctx, runID, cred, query)
			}
			if err != nil {
				outcome.Err = err
				s.logger.Error("bulk sync failed for store",
					zap.String("run_id", runID),
					zap.Int("store", store),
					zap.Error(err),
				)
			}
			bulk.Stores[i] = outcome
		}()
	}
	wg.Wait()

	return bulk, nil
}

// CountRemoteOrders returns the remote order count of a store, cached briefly.
func (s *Service) CountRemoteOrders(ctx context.Context, store int) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "SyncService.CountRemoteOrders", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	key := cache.RemoteCountKey(store)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			if n, convErr := strconv.Atoi(string(raw)); convErr == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return n, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("count cache get failed", zap.Int("store", store), zap.Error(err))
		}
	}

	cred, err := s.resolver.Resolve(store)
	if err != nil {
		s.logger.Error("count remote orders rejected store", zap.Int("store", store), zap.Error(err))
		recordSpanError(span, err)
		return 0, err
	}

	n, err := s.fetcher.CountOrders(ctx, cred)
	if err != nil {
		s.logger.Error("count remote orders failed", zap.Int("store", store), zap.Error(err))
		recordSpanError(span, err)
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, []byte(strconv.Itoa(n)), s.countTTL); err != nil {
			s.logger.Warn("count cache set failed", zap.Int("store", store), zap.Error(err))
		}
	}
	return n, nil
}

// Stores lists configured store numbers.
func (s *Service) Stores() []int {
	return s.resolver.Stores()
}

func (s *Service) backfillQuery(since *time.Time, cursor string, limit int) shopify.PageQuery {
	if cursor != "" {
		return shopify.NextPage(s.limit(limit), cursor)
	}
	return shopify.FirstPage(s.limit(limit), shopify.Filters{Status: StatusAny, CreatedAtMin: since})
}

func (s *Service) incrementalQuery(updatedSince time.Time, cursor string, limit int) shopify.PageQuery {
	if cursor != "" {
		return shopify.NextPage(s.limit(limit), cursor)
	}
	f := shopify.Filters{Status: StatusAny}
	if !updatedSince.IsZero() {
		since := updatedSince
		f.UpdatedAtMin = &since
	}
	return shopify.FirstPage(s.limit(limit), f)
}

func (s *Service) limit(n int) int {
	switch {
	case n <= 0:
		return s.pageLimit
	case n > config.MaxPageLimit:
		return config.MaxPageLimit
	default:
		return n
	}
}

func (s *Service) resolve(runID string, store int) (shopify.Credential, error) {
	cred, err := s.resolver.Resolve(store)
	if err != nil {
		s.logger.Error("store credentials rejected",
			zap.String("run_id", runID),
			zap.Int("store", store),
			zap.Error(err),
		)
		return shopify.Credential{}, err
	}
	return cred, nil
}

func (s *Service) acquire(ctx context.Context, runID string, store int) (func(), bool, error) {
	release, ok, err := s.locker.TryAcquire(ctx, store)
	if err != nil {
		s.logger.Error("run lock unavailable", zap.String("run_id", runID), zap.Int("store", store), zap.Error(err))
		return nil, false, err
	}
	if !ok {
		s.logger.Info("incremental run already in progress, skipping", zap.String("run_id", runID), zap.Int("store", store))
		if s.skipped != nil {
			s.skipped.Add(ctx, 1, metric.WithAttributes(attribute.Int("store", store)))
		}
		return nil, false, nil
	}
	return release, true, nil
}

func (s *Service) followPages(ctx context.Context, summary *RunSummary, maxPages int, page func(cursor string) (*Result, error)) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := page(cursor)
		if err != nil {
			return err
		}
		summary.add(res)
		if !res.HasNextPage || (maxPages > 0 && summary.Pages >= maxPages) {
			return nil
		}
		cursor = res.NextCursor
	}
}

// syncPage fetches one page and persists every order independently.
func (s *Service) syncPage(ctx context.Context, runID string, cred shopify.Credential, q shopify.PageQuery) (*Result, error) {
	logger := s.logger.With(zap.String("run_id", runID), zap.Int("store", cred.StoreNumber))

	page, err := s.fetcher.ListOrders(ctx, cred, q)
	if err != nil {
		logger.Error("fetch orders page failed", zap.Bool("cursor", q.Cursor() != ""), zap.Error(err))
		return nil, fmt.Errorf("fetch orders for store %d: %w", cred.StoreNumber, err)
	}

	res := &Result{
		RunID:       runID,
		Store:       cred.StoreNumber,
		HasNextPage: page.HasNext,
		NextCursor:  page.NextCursor,
	}
	for _, raw := range page.Orders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.syncOrder(ctx, logger, runID, cred.StoreNumber, raw, res)
	}

	logger.Info("orders page synced",
		zap.Int("orders", len(page.Orders)),
		zap.Int("persisted", res.OrdersProcessed),
		zap.Int("failed", len(res.Errors)),
		zap.Bool("has_next_page", res.HasNextPage),
	)
	return res, nil
}

func (s *Service) syncOrder(ctx context.Context, logger *zap.Logger, runID string, store int, raw json.RawMessage, res *Result) {
	order, items, err := MapOrder(store, raw)
	if err != nil {
		var merr *MappingError
		remoteID := ""
		if errors.As(err, &merr) {
			remoteID = merr.RemoteOrderID
		}
		s.recordFailure(ctx, logger, res, remoteID, "mapping", err)
		return
	}

	remoteID := strconv.FormatInt(order.RemoteOrderID, 10)
	orderID, err := s.writer.Upsert(ctx, order, items)
	if err != nil {
		s.recordFailure(ctx, logger, res, remoteID, "persist", err)
		return
	}

	res.OrdersProcessed++
	if s.persisted != nil {
		s.persisted.Add(ctx, 1, metric.WithAttributes(attribute.Int("store", store)))
	}
	s.publish(ctx, logger, OrderSyncedEvent{
		RunID:         runID,
		StoreID:       store,
		RemoteOrderID: order.RemoteOrderID,
		OrderID:       orderID,
		Name:          order.Name,
		ItemCount:     len(items),
		SyncedAt:      s.clock.Now().UTC(),
	})
}

func (s *Service) recordFailure(ctx context.Context, logger *zap.Logger, res *Result, remoteID, stage string, err error) {
	res.Errors = append(res.Errors, OrderError{Store: res.Store, RemoteOrderID: remoteID, Reason: err.Error()})
	if s.failed != nil {
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.Int("store", res.Store), attribute.String("stage", stage)))
	}
	logger.Warn("order sync failed",
		zap.String("remote_order_id", remoteID),
		zap.String("stage", stage),
		zap.Error(err),
	)
}

func (s *Service) publish(ctx context.Context, logger *zap.Logger, event OrderSyncedEvent) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Warn("encode order synced event", zap.Error(err))
		return
	}
	key := fmt.Sprintf("store-%d-order-%d", event.StoreID, event.RemoteOrderID)
	headers := map[string]string{
		messaging.HeaderEventType: EventTypeOrderSynced,
		messaging.HeaderRunID:     event.RunID,
	}
	if err := s.publisher.Publish(ctx, []byte(key), payload, headers); err != nil {
		logger.Warn("publish order synced event",
			zap.Int64("remote_order_id", event.RemoteOrderID),
			zap.Error(err),
		)
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
