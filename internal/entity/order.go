package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order is the local mirror of one remote order, unique per (StoreID, RemoteOrderID).
// Monetary values keep the remote decimal text.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                int64      `bun:",pk,autoincrement"`
	StoreID           int        `bun:"store_id,notnull"`
	RemoteOrderID     int64      `bun:"remote_order_id,notnull"`
	Name              string     `bun:"name,notnull"`
	OrderNumber       *int64     `bun:"order_number"`
	CustomerName      string     `bun:"customer_name,notnull"`
	CustomerEmail     *string    `bun:"customer_email"`
	Currency          *string    `bun:"currency"`
	TotalPrice        *string    `bun:"total_price"`
	SubtotalPrice     *string    `bun:"subtotal_price"`
	TotalTax          *string    `bun:"total_tax"`
	TotalDiscounts    *string    `bun:"total_discounts"`
	FinancialStatus   *string    `bun:"financial_status"`
	FulfillmentStatus *string    `bun:"fulfillment_status"`
	Tags              []string   `bun:"tags,nullzero"`
	ShippingName      *string    `bun:"shipping_name"`
	ShippingCompany   *string    `bun:"shipping_company"`
	ShippingAddress1  *string    `bun:"shipping_address1"`
	ShippingAddress2  *string    `bun:"shipping_address2"`
	ShippingCity      *string    `bun:"shipping_city"`
	ShippingProvince  *string    `bun:"shipping_province"`
	ShippingCountry   *string    `bun:"shipping_country"`
	ShippingZip       *string    `bun:"shipping_zip"`
	ShippingPhone     *string    `bun:"shipping_phone"`
	RemoteCreatedAt   *time.Time `bun:"remote_created_at"`
	RemoteUpdatedAt   *time.Time `bun:"remote_updated_at"`
	ProcessedAt       *time.Time `bun:"processed_at"`
	ClosedAt          *time.Time `bun:"closed_at"`
	CancelledAt       *time.Time `bun:"cancelled_at"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id"`
}

// OrderItem is a line of an order. The set of items of an order is replaced on every sync.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID               int64   `bun:",pk,autoincrement"`
	OrderID          int64   `bun:"order_id,notnull"`
	RemoteLineItemID *int64  `bun:"remote_line_item_id"`
	ProductID        *int64  `bun:"product_id"`
	VariantID        *int64  `bun:"variant_id"`
	SKU              *string `bun:"sku"`
	Title            string  `bun:"title,notnull"`
	VariantTitle     *string `bun:"variant_title"`
	Quantity         int     `bun:"quantity,notnull"`
	Price            *string `bun:"price"`
}
