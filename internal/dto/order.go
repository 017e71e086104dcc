package dto

import (
	"time"

	"github.com/Additional-Code/ordersync/internal/entity"
)

// OrderResponse represents a mirrored order as exposed via transport layers.
type OrderResponse struct {
	ID                int64               `json:"id"`
	StoreID           int                 `json:"store_id"`
	RemoteOrderID     int64               `json:"remote_order_id"`
	Name              string              `json:"name"`
	OrderNumber       *int64              `json:"order_number,omitempty"`
	CustomerName      string              `json:"customer_name"`
	CustomerEmail     *string             `json:"customer_email,omitempty"`
	Currency          *string             `json:"currency,omitempty"`
	TotalPrice        *string             `json:"total_price,omitempty"`
	SubtotalPrice     *string             `json:"subtotal_price,omitempty"`
	TotalTax          *string             `json:"total_tax,omitempty"`
	TotalDiscounts    *string             `json:"total_discounts,omitempty"`
	FinancialStatus   *string             `json:"financial_status,omitempty"`
	FulfillmentStatus *string             `json:"fulfillment_status,omitempty"`
	Tags              []string            `json:"tags"`
	Shipping          *ShippingResponse   `json:"shipping,omitempty"`
	Items             []OrderItemResponse `json:"items"`
	RemoteCreatedAt   *time.Time          `json:"remote_created_at,omitempty"`
	RemoteUpdatedAt   *time.Time          `json:"remote_updated_at,omitempty"`
	ProcessedAt       *time.Time          `json:"processed_at,omitempty"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ShippingResponse is the flattened shipping address.
type ShippingResponse struct {
	Name     *string `json:"name,omitempty"`
	Company  *string `json:"company,omitempty"`
	Address1 *string `json:"address1,omitempty"`
	Address2 *string `json:"address2,omitempty"`
	City     *string `json:"city,omitempty"`
	Province *string `json:"province,omitempty"`
	Country  *string `json:"country,omitempty"`
	Zip      *string `json:"zip,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

// OrderItemResponse is one order line.
type OrderItemResponse struct {
	ID           int64   `json:"id"`
	SKU          *string `json:"sku,omitempty"`
	Title        string  `json:"title"`
	VariantTitle *string `json:"variant_title,omitempty"`
	Quantity     int     `json:"quantity"`
	Price        *string `json:"price,omitempty"`
	ProductID    *int64  `json:"product_id,omitempty"`
	VariantID    *int64  `json:"variant_id,omitempty"`
}

// NewOrderResponse converts an entity, including loaded items.
func NewOrderResponse(o *entity.Order) OrderResponse {
	resp := OrderResponse{
		ID:                o.ID,
		StoreID:           o.StoreID,
		RemoteOrderID:     o.RemoteOrderID,
		Name:              o.Name,
		OrderNumber:       o.OrderNumber,
		CustomerName:      o.CustomerName,
		CustomerEmail:     o.CustomerEmail,
		Currency:          o.Currency,
		TotalPrice:        o.TotalPrice,
		SubtotalPrice:     o.SubtotalPrice,
		TotalTax:          o.TotalTax,
		TotalDiscounts:    o.TotalDiscounts,
		FinancialStatus:   o.FinancialStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		Tags:              o.Tags,
		Items:             make([]OrderItemResponse, 0, len(o.Items)),
		RemoteCreatedAt:   o.RemoteCreatedAt,
		RemoteUpdatedAt:   o.RemoteUpdatedAt,
		ProcessedAt:       o.ProcessedAt,
		ClosedAt:          o.ClosedAt,
		CancelledAt:       o.CancelledAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}

	if o.ShippingName != nil || o.ShippingAddress1 != nil || o.ShippingCity != nil || o.ShippingCountry != nil {
		resp.Shipping = &ShippingResponse{
			Name:     o.ShippingName,
			Company:  o.ShippingCompany,
			Address1: o.ShippingAddress1,
			Address2: o.ShippingAddress2,
			City:     o.ShippingCity,
			Province: o.ShippingProvince,
			Country:  o.ShippingCountry,
			Zip:      o.ShippingZip,
			Phone:    o.ShippingPhone,
		}
	}

	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:           item.ID,
			SKU:          item.SKU,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			Quantity:     item.Quantity,
			Price:        item.Price,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
		})
	}

	return resp
}
