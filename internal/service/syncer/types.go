package syncer

import "time"

// EventTypeOrderSynced tags events published after an order is persisted.
const EventTypeOrderSynced = "order.synced"

// OrderError records one order that could not be synced. The run continues.
type OrderError struct {
	Store         int
	RemoteOrderID string
	Reason        string
}

// Result is the outcome of one page.
type Result struct {
	RunID           string
	Store           int
	OrdersProcessed int
	Errors          []OrderError
	HasNextPage     bool
	NextCursor      string
	// Skipped is set when another run for the store held the lock; nothing was fetched.
	Skipped bool
}

// BackfillRequest selects a page of orders created after Since.
// With a Cursor set, Since is ignored.
type BackfillRequest struct {
	Store  int
	Since  *time.Time
	Cursor string
	Limit  int
}

// IncrementalRequest selects a page of orders updated after UpdatedSince.
type IncrementalRequest struct {
	Store        int
	UpdatedSince time.Time
	Cursor       string
	Limit        int
}

// StoreOutcome is the result of one store within a bulk run. Exactly one of
// Result and Err is set.
type StoreOutcome struct {
	Store  int
	Result *Result
	Err    error
}

// BulkResult collects every store of a bulk run in ascending store order.
type BulkResult struct {
	RunID  string
	Stores []StoreOutcome
}

// RunSummary aggregates a multi-page run.
type RunSummary struct {
	RunID           string
	Store           int
	Pages           int
	OrdersProcessed int
	Errors          []OrderError
	HasNextPage     bool
	NextCursor      string
	Skipped         bool
}

func (s *RunSummary) add(r *Result) {
	s.Pages++
	s.OrdersProcessed += r.OrdersProcessed
	s.Errors = append(s.Errors, r.Errors...)
	s.HasNextPage = r.HasNextPage
	s.NextCursor = r.NextCursor
}

// OrderSyncedEvent is published for every persisted order.
type OrderSyncedEvent struct {
	RunID         string    `json:"run_id"`
	StoreID       int       `json:"store_id"`
	RemoteOrderID int64     `json:"remote_order_id"`
	OrderID       int64     `json:"order_id"`
	Name          string    `json:"name"`
	ItemCount     int       `json:"item_count"`
	SyncedAt      time.Time `json:"synced_at"`
}
