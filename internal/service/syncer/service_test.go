package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/ordersync/internal/cache"
	"github.com/Additional-Code/ordersync/internal/clock"
	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/database/dbtest"
	"github.com/Additional-Code/ordersync/internal/entity"
	"github.com/Additional-Code/ordersync/internal/messaging"
	orderrepo "github.com/Additional-Code/ordersync/internal/repository/order"
	"github.com/Additional-Code/ordersync/internal/runlock"
	"github.com/Additional-Code/ordersync/internal/shopify"
)

// fakeRemote serves orders.json pages keyed by page_info ("" for the first page).
type fakeRemote struct {
	mu       sync.Mutex
	pages    map[string]remotePage
	requests []url.Values
	count    int
	counts   atomic.Int32
	status   int
}

type remotePage struct {
	orders []string
	next   string
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/orders/count.json"):
		f.counts.Add(1)
		_, _ = fmt.Fprintf(w, `{"count": %d}`, f.count)
		return
	case strings.HasSuffix(r.URL.Path, "/orders.json"):
	default:
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Query())
	status := f.status
	page, ok := f.pages[r.URL.Query().Get("page_info")]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.Error(w, `{"errors":"unknown page"}`, http.StatusBadRequest)
		return
	}
	if page.next != "" {
		w.Header().Set("Link", fmt.Sprintf(`<https://%s%s?limit=250&page_info=%s>; rel="next"`, r.Host, r.URL.Path, page.next))
	}
	_, _ = io.WriteString(w, `{"orders":[`+strings.Join(page.orders, ",")+`]}`)
}

func (f *fakeRemote) Requests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.requests))
	copy(out, f.requests)
	return out
}

func remoteOrder(id int64) string {
	return fmt.Sprintf(`{"id":%d,"name":"#%d","currency":"USD","total_price":"10.00","created_at":"2024-05-01T10:00:00Z","updated_at":"2024-05-02T10:00:00Z","line_items":[{"id":%d,"title":"Mug","quantity":1,"price":"10.00"}]}`, id, id, id*10)
}

type harness struct {
	svc       *Service
	repo      *orderrepo.Repository
	locker    *runlock.Local
	publisher *messaging.MemoryClient
	cache     *cache.MemoryStore
	clock     *clock.Fake
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, remote http.Handler, stores ...config.StoreDescriptor) *harness {
	t.Helper()

	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	if len(stores) == 0 {
		stores = []config.StoreDescriptor{{Number: 1, Domain: "one.myshopify.com", AccessToken: "tok-1"}}
	}
	cfg := config.Config{Shopify: config.Shopify{
		Stores:       stores,
		APIVersion:   "2024-10",
		DomainSuffix: ".myshopify.com",
	}}

	core, logs := observer.New(zap.InfoLevel)
	fake := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	policy := shopify.DefaultRetryPolicy()
	client := shopify.NewClient(shopify.Options{
		HTTPClient: srv.Client(),
		Policy:     &policy,
		Clock:      fake,
		BaseURL:    srv.URL,
	})

	h := &harness{
		repo:      orderrepo.NewRepository(dbtest.NewSQLite(t)),
		locker:    runlock.NewLocal(),
		publisher: messaging.NewMemoryClient("orders.synced", 64, zap.NewNop()),
		cache:     cache.NewMemoryStore(time.Minute),
		clock:     fake,
		logs:      logs,
	}
	h.svc = NewWithDeps(Deps{
		Fetcher:       client,
		Resolver:      shopify.NewResolver(cfg),
		Writer:        h.repo,
		Locker:        h.locker,
		Publisher:     h.publisher,
		Cache:         h.cache,
		Clock:         fake,
		Logger:        zap.New(core),
		PageLimit:     50,
		CountCacheTTL: time.Minute,
	})
	return h
}

func TestBackfillFollowsCursorAcrossPages(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{
		"":    {orders: []string{remoteOrder(1001), remoteOrder(1002)}, next: "abc"},
		"abc": {orders: []string{remoteOrder(1003)}},
	}}
	h := newHarness(t, remote)
	ctx := context.Background()
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := h.svc.Backfill(ctx, BackfillRequest{Store: 1, Since: &since, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, first.OrdersProcessed)
	assert.Empty(t, first.Errors)
	assert.True(t, first.HasNextPage)
	assert.Equal(t, "abc", first.NextCursor)
	assert.NotEmpty(t, first.RunID)

	second, err := h.svc.Backfill(ctx, BackfillRequest{Store: 1, Since: &since, Cursor: first.NextCursor, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, second.OrdersProcessed)
	assert.False(t, second.HasNextPage)
	assert.Empty(t, second.NextCursor)

	reqs := remote.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "2", reqs[0].Get("limit"))
	assert.Equal(t, "any", reqs[0].Get("status"))
	assert.Equal(t, "2024-01-01T00:00:00Z", reqs[0].Get("created_at_min"))
	assert.Equal(t, url.Values{"limit": {"2"}, "page_info": {"abc"}}, reqs[1])

	n, err := h.repo.CountByStore(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Len(t, h.publisher.Published(), 3)
}

func TestBackfillIsIdempotent(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{
		"": {orders: []string{remoteOrder(1001), remoteOrder(1002)}},
	}}
	h := newHarness(t, remote)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := h.svc.Backfill(ctx, BackfillRequest{Store: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, res.OrdersProcessed)
	}

	n, err := h.repo.CountByStore(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	order, err := h.repo.GetByRemoteID(ctx, 1, 1001)
	require.NoError(t, err)
	full, err := h.repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, full.Items, 1)
}

func TestBackfillIsolatesBadOrders(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{
		"": {orders: []string{remoteOrder(1), `{"id":2,"total_price":"abc"}`, remoteOrder(3)}},
	}}
	h := newHarness(t, remote)
	ctx := context.Background()

	res, err := h.svc.Backfill(ctx, BackfillRequest{Store: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.OrdersProcessed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "2", res.Errors[0].RemoteOrderID)
	assert.Equal(t, 1, res.Errors[0].Store)
	assert.Contains(t, res.Errors[0].Reason, "total_price")

	_, err = h.repo.GetByRemoteID(ctx, 1, 2)
	assert.Error(t, err)
}

type failingWriter struct {
	OrderWriter
	failID int64
}

func (w failingWriter) Upsert(ctx context.Context, order *entity.Order, items []entity.OrderItem) (int64, error) {
	if order.RemoteOrderID == w.failID {
		return 0, fmt.Errorf("insert items: constraint violated")
	}
	return w.OrderWriter.Upsert(ctx, order, items)
}

func TestBackfillContinuesAfterPersistFailure(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{
		"": {orders: []string{remoteOrder(1), remoteOrder(2), remoteOrder(3)}},
	}}
	h := newHarness(t, remote)
	h.svc.writer = failingWriter{OrderWriter: h.repo, failID: 2}

	res, err := h.svc.Backfill(context.Background(), BackfillRequest{Store: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.OrdersProcessed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "2", res.Errors[0].RemoteOrderID)
	assert.Len(t, h.publisher.Published(), 2)
}

func TestIncrementalSkipsWhenStoreBusy(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{"": {orders: []string{remoteOrder(1)}}}}
	h := newHarness(t, remote)
	ctx := context.Background()

	release, ok, err := h.locker.TryAcquire(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := h.svc.Incremental(ctx, IncrementalRequest{Store: 1, UpdatedSince: h.clock.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.OrdersProcessed)
	assert.Empty(t, remote.Requests())

	release()

	res, err = h.svc.Incremental(ctx, IncrementalRequest{Store: 1, UpdatedSince: h.clock.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.OrdersProcessed)

	reqs := remote.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "2024-06-01T11:00:00Z", reqs[0].Get("updated_at_min"))
	assert.Empty(t, reqs[0].Get("created_at_min"))
}

func TestIncrementalReleasesLockOnError(t *testing.T) {
	remote := &fakeRemote{status: http.StatusUnauthorized}
	h := newHarness(t, remote)
	ctx := context.Background()

	_, err := h.svc.Incremental(ctx, IncrementalRequest{Store: 1})
	require.Error(t, err)
	assert.True(t, shopify.IsPermanent(err))

	release, ok, err := h.locker.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestRunIncrementalStopsAtLastPage(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{
		"":   {orders: []string{remoteOrder(1)}, next: "p2"},
		"p2": {orders: []string{remoteOrder(2)}, next: "p3"},
		"p3": {orders: []string{remoteOrder(3)}},
	}}
	h := newHarness(t, remote)

	summary, err := h.svc.RunIncremental(context.Background(), 1, h.clock.Now().Add(-10*time.Minute), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 3, summary.OrdersProcessed)
	assert.False(t, summary.HasNextPage)
	assert.Len(t, remote.Requests(), 3)
	assert.Equal(t, "50", remote.Requests()[0].Get("limit"))
}

func TestBackfillAllHonoursPageCap(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{
		"":   {orders: []string{remoteOrder(1)}, next: "p2"},
		"p2": {orders: []string{remoteOrder(2)}, next: "p3"},
		"p3": {orders: []string{remoteOrder(3)}},
	}}
	h := newHarness(t, remote)

	summary, err := h.svc.BackfillAll(context.Background(), 1, nil, 500, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pages)
	assert.True(t, summary.HasNextPage)
	assert.Equal(t, "p3", summary.NextCursor)
	assert.Equal(t, "250", remote.Requests()[0].Get("limit"))
}

func TestSyncNowIsolatesStores(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{"": {orders: []string{remoteOrder(1)}}}}
	h := newHarness(t, remote,
		config.StoreDescriptor{Number: 1, Domain: "one.myshopify.com", AccessToken: "tok-1"},
		config.StoreDescriptor{Number: 2, Domain: "two.example.com", AccessToken: "tok-2"},
		config.StoreDescriptor{Number: 3, Domain: "three.myshopify.com", AccessToken: "tok-3"},
	)

	bulk, err := h.svc.SyncNow(context.Background(), "all", 10)
	require.NoError(t, err)
	require.Len(t, bulk.Stores, 3)

	assert.Equal(t, 1, bulk.Stores[0].Store)
	require.NoError(t, bulk.Stores[0].Err)
	assert.Equal(t, 1, bulk.Stores[0].Result.OrdersProcessed)

	assert.Equal(t, 2, bulk.Stores[1].Store)
	assert.Nil(t, bulk.Stores[1].Result)
	assert.True(t, shopify.IsConfig(bulk.Stores[1].Err))

	assert.Equal(t, 3, bulk.Stores[2].Store)
	require.NoError(t, bulk.Stores[2].Err)

	for _, q := range remote.Requests() {
		assert.Equal(t, url.Values{"limit": {"10"}, "status": {"any"}}, q)
	}
}

func TestSyncNowSingleStore(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{"": {orders: []string{remoteOrder(1)}}}}
	h := newHarness(t, remote)

	bulk, err := h.svc.SyncNow(context.Background(), "1", 0)
	require.NoError(t, err)
	require.Len(t, bulk.Stores, 1)
	assert.Equal(t, 1, bulk.Stores[0].Result.OrdersProcessed)

	_, err = h.svc.SyncNow(context.Background(), "first", 0)
	require.Error(t, err)
	assert.True(t, shopify.IsConfig(err))
}

func TestCountRemoteOrdersIsCached(t *testing.T) {
	remote := &fakeRemote{count: 42}
	h := newHarness(t, remote)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := h.svc.CountRemoteOrders(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 42, n)
	}
	assert.Equal(t, int32(1), remote.counts.Load())

	require.NoError(t, h.cache.Delete(ctx, cache.RemoteCountKey(1)))
	_, err := h.svc.CountRemoteOrders(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), remote.counts.Load())
}

func TestCountRemoteOrdersUnknownStore(t *testing.T) {
	remote := &fakeRemote{count: 42}
	h := newHarness(t, remote)

	_, err := h.svc.CountRemoteOrders(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, shopify.IsConfig(err))
	assert.Equal(t, int32(0), remote.counts.Load())

	entries := h.logs.FilterMessage("count remote orders rejected store").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9), entries[0].ContextMap()["store"])
}

func TestSyncNowLogsRejectedSelector(t *testing.T) {
	h := newHarness(t, &fakeRemote{})

	_, err := h.svc.SyncNow(context.Background(), "first", 0)
	require.Error(t, err)

	entries := h.logs.FilterMessage("bulk sync rejected store selector").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].ContextMap()["store.selector"])
}

func TestBackfillRetriesRateLimitedPage(t *testing.T) {
	var calls atomic.Int32
	remote := &fakeRemote{pages: map[string]remotePage{"": {orders: []string{remoteOrder(1)}}}}
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		remote.ServeHTTP(w, r)
	}))

	res, err := h.svc.Backfill(context.Background(), BackfillRequest{Store: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersProcessed)
	require.Len(t, h.clock.Sleeps(), 1)
	assert.GreaterOrEqual(t, h.clock.Sleeps()[0], 3*time.Second)
}

func TestOrderSyncedEventPayload(t *testing.T) {
	remote := &fakeRemote{pages: map[string]remotePage{"": {orders: []string{remoteOrder(77)}}}}
	h := newHarness(t, remote)

	res, err := h.svc.Backfill(context.Background(), BackfillRequest{Store: 1})
	require.NoError(t, err)

	msgs := h.publisher.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, EventTypeOrderSynced, msgs[0].Headers[messaging.HeaderEventType])
	assert.Equal(t, res.RunID, msgs[0].Headers[messaging.HeaderRunID])

	var event OrderSyncedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &event))
	assert.Equal(t, int64(77), event.RemoteOrderID)
	assert.Equal(t, 1, event.StoreID)
	assert.Equal(t, 1, event.ItemCount)
	assert.NotZero(t, event.OrderID)
}
