package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/ordersync/internal/database"
	"github.com/Additional-Code/ordersync/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/ordersync/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// PersistError wraps any failure of the upsert transaction. Nothing of the order was written.
type PersistError struct {
	StoreID       int
	RemoteOrderID int64
	Op            string
	Err           error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist order %d of store %d: %s: %v", e.RemoteOrderID, e.StoreID, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// upsertColumns are overwritten when the (store_id, remote_order_id) key already exists.
// id and created_at are intentionally absent.
var upsertColumns = []string{
	"name",
	"order_number",
	"customer_name",
	"customer_email",
	"currency",
	"total_price",
	"subtotal_price",
	"total_tax",
	"total_discounts",
	"financial_status",
	"fulfillment_status",
	"tags",
	"shipping_name",
	"shipping_company",
	"shipping_address1",
	"shipping_address2",
	"shipping_city",
	"shipping_province",
	"shipping_country",
	"shipping_zip",
	"shipping_phone",
	"remote_created_at",
	"remote_updated_at",
	"processed_at",
	"closed_at",
	"cancelled_at",
	"updated_at",
}

// Repository encapsulates read/write access for mirrored orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
	now    func() time.Time
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
		now:    time.Now,
	}
}

// Upsert writes the order header and replaces its items in one transaction and
// returns the local order id.
func (r *Repository) Upsert(ctx context.Context, order *entity.Order, items []entity.OrderItem) (int64, error) {
	if order == nil {
		return 0, errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Upsert", trace.WithAttributes(
		attribute.Int("store.number", order.StoreID),
		attribute.Int64("order.remote_id", order.RemoteOrderID),
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	now := r.now().UTC()
	order.ID = 0
	order.CreatedAt = now
	order.UpdatedAt = now

	var orderID int64
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := r.upsertQuery(tx, order).Exec(ctx); err != nil {
			return r.persistErr(order, "upsert order", err)
		}

		err := tx.NewSelect().
			Model((*entity.Order)(nil)).
			Column("id").
			Where("store_id = ?", order.StoreID).
			Where("remote_order_id = ?", order.RemoteOrderID).
			Scan(ctx, &orderID)
		if err != nil {
			return r.persistErr(order, "select order id", err)
		}

		_, err = tx.NewDelete().
			Model((*entity.OrderItem)(nil)).
			Where("order_id = ?", orderID).
			Exec(ctx)
		if err != nil {
			return r.persistErr(order, "delete items", err)
		}

		if len(items) == 0 {
			return nil
		}

		rows := make([]entity.OrderItem, len(items))
		for i, item := range items {
			item.ID = 0
			item.OrderID = orderID
			rows[i] = item
		}
		if _, err := tx.NewInsert().Model(&rows).Returning("NULL").Exec(ctx); err != nil {
			return r.persistErr(order, "insert items", err)
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		var perr *PersistError
		if !errors.As(err, &perr) {
			err = r.persistErr(order, "transaction", err)
		}
		return 0, err
	}

	order.ID = orderID
	span.SetAttributes(attribute.Int64("order.id", orderID))

	return orderID, nil
}

func (r *Repository) upsertQuery(tx bun.Tx, order *entity.Order) *bun.InsertQuery {
	q := tx.NewInsert().
		Model(order).
		ExcludeColumn("id").
		Returning("NULL")

	if r.writer.Dialect().Name() == dialect.MySQL {
		q = q.On("DUPLICATE KEY UPDATE")
		for _, col := range upsertColumns {
			q = q.Set("? = VALUES(?)", bun.Ident(col), bun.Ident(col))
		}
		return q
	}

	q = q.On("CONFLICT (store_id, remote_order_id) DO UPDATE")
	for _, col := range upsertColumns {
		q = q.Set("? = EXCLUDED.?", bun.Ident(col), bun.Ident(col))
	}
	return q
}

func (r *Repository) persistErr(order *entity.Order, op string, err error) *PersistError {
	return &PersistError{StoreID: order.StoreID, RemoteOrderID: order.RemoteOrderID, Op: op, Err: err}
}

// GetByID fetches an order and its items using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().
		Model(order).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// GetByRemoteID fetches an order by its natural key.
func (r *Repository) GetByRemoteID(ctx context.Context, store int, remoteID int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByRemoteID", trace.WithAttributes(
		attribute.Int("store.number", store),
		attribute.Int64("order.remote_id", remoteID),
	))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().
		Model(order).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Where("?TableAlias.store_id = ?", store).
		Where("?TableAlias.remote_order_id = ?", remoteID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// ListByStore pages through a store's mirrored orders, most recently updated remotely first.
func (r *Repository) ListByStore(ctx context.Context, store, limit, offset int) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListByStore", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	var orders []entity.Order
	err := r.reader.NewSelect().
		Model(&orders).
		Where("store_id = ?", store).
		OrderExpr("remote_updated_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// CountByStore returns the number of mirrored orders of a store.
func (r *Repository) CountByStore(ctx context.Context, store int) (int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.CountByStore", trace.WithAttributes(attribute.Int("store.number", store)))
	defer span.End()

	n, err := r.reader.NewSelect().Model((*entity.Order)(nil)).Where("store_id = ?", store).Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return n, nil
}
