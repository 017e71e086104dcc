package shopify

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Money keeps the literal text of a monetary amount. Both JSON strings and bare
// numbers are accepted; the digits are never routed through a float.
type Money string

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*m = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = Money(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("money: %w", err)
		}
		*m = Money(n.String())
	}
	return nil
}

// Order is the subset of the remote order resource that is mirrored.
type Order struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	OrderNumber       *int64     `json:"order_number"`
	Email             string     `json:"email"`
	Currency          string     `json:"currency"`
	TotalPrice        Money      `json:"total_price"`
	SubtotalPrice     Money      `json:"subtotal_price"`
	TotalTax          Money      `json:"total_tax"`
	TotalDiscounts    Money      `json:"total_discounts"`
	FinancialStatus   *string    `json:"financial_status"`
	FulfillmentStatus *string    `json:"fulfillment_status"`
	Tags              string     `json:"tags"`
	Customer          *Customer  `json:"customer"`
	ShippingAddress   *Address   `json:"shipping_address"`
	LineItems         []LineItem `json:"line_items"`
	CreatedAt         string     `json:"created_at"`
	UpdatedAt         string     `json:"updated_at"`
	ProcessedAt       string     `json:"processed_at"`
	ClosedAt          string     `json:"closed_at"`
	CancelledAt       string     `json:"cancelled_at"`
}

// Customer is the buyer attached to an order.
type Customer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Address is a postal address.
type Address struct {
	Name         string `json:"name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Company      string `json:"company"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	Province     string `json:"province"`
	ProvinceCode string `json:"province_code"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	Zip          string `json:"zip"`
	Phone        string `json:"phone"`
}

// LineItem is one product line of an order.
type LineItem struct {
	ID           int64   `json:"id"`
	ProductID    *int64  `json:"product_id"`
	VariantID    *int64  `json:"variant_id"`
	Title        string  `json:"title"`
	VariantTitle *string `json:"variant_title"`
	SKU          *string `json:"sku"`
	Quantity     int     `json:"quantity"`
	Price        Money   `json:"price"`
}

// OrderPage is one page of an order listing. Orders are kept undecoded so a single
// malformed record cannot fail the whole page.
type OrderPage struct {
	Orders     []json.RawMessage
	NextCursor string
	HasNext    bool
}
