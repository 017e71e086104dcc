package dto

import "github.com/Additional-Code/ordersync/internal/service/syncer"

// OrderErrorResponse describes one order that failed within a run.
type OrderErrorResponse struct {
	Store         int    `json:"store"`
	RemoteOrderID string `json:"remote_order_id,omitempty"`
	Reason        string `json:"reason"`
}

// SyncResultResponse is the outcome of a single-page sync call.
type SyncResultResponse struct {
	RunID           string               `json:"run_id"`
	Store           int                  `json:"store"`
	OrdersProcessed int                  `json:"orders_processed"`
	Errors          []OrderErrorResponse `json:"errors"`
	HasNextPage     bool                 `json:"has_next_page"`
	NextCursor      *string              `json:"next_cursor"`
	Skipped         bool                 `json:"skipped,omitempty"`
}

// StoreOutcomeResponse is one store of a bulk run.
type StoreOutcomeResponse struct {
	Store  int                 `json:"store"`
	Result *SyncResultResponse `json:"result,omitempty"`
	Error  *ErrorResponse      `json:"error,omitempty"`
}

// ErrorResponse is a store-level failure inside an otherwise successful response.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BulkSyncResponse collects every store of a bulk run.
type BulkSyncResponse struct {
	RunID  string                 `json:"run_id"`
	Stores []StoreOutcomeResponse `json:"stores"`
}

// StoreResponse describes a configured store.
type StoreResponse struct {
	Number int  `json:"number"`
	Valid  bool `json:"valid"`
}

// NewSyncResultResponse converts an orchestrator result.
func NewSyncResultResponse(r *syncer.Result) SyncResultResponse {
	out := SyncResultResponse{
		RunID:           r.RunID,
		Store:           r.Store,
		OrdersProcessed: r.OrdersProcessed,
		Errors:          newOrderErrors(r.Errors),
		HasNextPage:     r.HasNextPage,
		Skipped:         r.Skipped,
	}
	if r.NextCursor != "" {
		cursor := r.NextCursor
		out.NextCursor = &cursor
	}
	return out
}

// NewRunSummaryResponse converts a multi-page run into the single-result shape.
func NewRunSummaryResponse(s *syncer.RunSummary) SyncResultResponse {
	return NewSyncResultResponse(&syncer.Result{
		RunID:           s.RunID,
		Store:           s.Store,
		OrdersProcessed: s.OrdersProcessed,
		Errors:          s.Errors,
		HasNextPage:     s.HasNextPage,
		NextCursor:      s.NextCursor,
		Skipped:         s.Skipped,
	})
}

func newOrderErrors(errs []syncer.OrderError) []OrderErrorResponse {
	out := make([]OrderErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, OrderErrorResponse{Store: e.Store, RemoteOrderID: e.RemoteOrderID, Reason: e.Reason})
	}
	return out
}
