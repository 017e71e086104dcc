package syncer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/Additional-Code/ordersync/internal/entity"
	"github.com/Additional-Code/ordersync/internal/shopify"
)

// MappingError reports a remote order that cannot be turned into a row.
type MappingError struct {
	Store         int
	RemoteOrderID string
	Reason        string
}

func (e *MappingError) Error() string {
	if e.RemoteOrderID == "" {
		return fmt.Sprintf("map order of store %d: %s", e.Store, e.Reason)
	}
	return fmt.Sprintf("map order %s of store %d: %s", e.RemoteOrderID, e.Store, e.Reason)
}

// MapOrder decodes one raw remote order and converts it into the mirrored order and its items.
func MapOrder(store int, raw json.RawMessage) (*entity.Order, []entity.OrderItem, error) {
	var src shopify.Order
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, nil, &MappingError{Store: store, RemoteOrderID: peekID(raw), Reason: fmt.Sprintf("decode: %v", err)}
	}
	return mapOrder(store, &src)
}

func mapOrder(store int, src *shopify.Order) (*entity.Order, []entity.OrderItem, error) {
	if src.ID <= 0 {
		return nil, nil, &MappingError{Store: store, Reason: "missing order id"}
	}
	m := mapping{store: store, remoteID: strconv.FormatInt(src.ID, 10)}

	order := &entity.Order{
		StoreID:           store,
		RemoteOrderID:     src.ID,
		Name:              strings.TrimSpace(src.Name),
		OrderNumber:       src.OrderNumber,
		CustomerName:      customerName(src),
		CustomerEmail:     optional(email(src)),
		Currency:          optional(src.Currency),
		FinancialStatus:   optionalPtr(src.FinancialStatus),
		FulfillmentStatus: optionalPtr(src.FulfillmentStatus),
		Tags:              normalizeTags(src.Tags),
		TotalPrice:        m.money("total_price", src.TotalPrice),
		SubtotalPrice:     m.money("subtotal_price", src.SubtotalPrice),
		TotalTax:          m.money("total_tax", src.TotalTax),
		TotalDiscounts:    m.money("total_discounts", src.TotalDiscounts),
		RemoteCreatedAt:   m.timestamp("created_at", src.CreatedAt),
		RemoteUpdatedAt:   m.timestamp("updated_at", src.UpdatedAt),
		ProcessedAt:       m.timestamp("processed_at", src.ProcessedAt),
		ClosedAt:          m.timestamp("closed_at", src.ClosedAt),
		CancelledAt:       m.timestamp("cancelled_at", src.CancelledAt),
	}

	if addr := src.ShippingAddress; addr != nil {
		name := strings.TrimSpace(addr.Name)
		if name == "" {
			name = joinName(addr.FirstName, addr.LastName)
		}
		order.ShippingName = optional(name)
		order.ShippingCompany = optional(addr.Company)
		order.ShippingAddress1 = optional(addr.Address1)
		order.ShippingAddress2 = optional(addr.Address2)
		order.ShippingCity = optional(addr.City)
		order.ShippingProvince = optional(addr.Province)
		order.ShippingCountry = optional(addr.Country)
		order.ShippingZip = optional(addr.Zip)
		order.ShippingPhone = optional(addr.Phone)
	}

	items := make([]entity.OrderItem, 0, len(src.LineItems))
	for i, li := range src.LineItems {
		if li.Quantity < 0 {
			m.fail(fmt.Sprintf("line item %d: negative quantity %d", i, li.Quantity))
		}
		item := entity.OrderItem{
			ProductID:    li.ProductID,
			VariantID:    li.VariantID,
			SKU:          optionalPtr(li.SKU),
			Title:        strings.TrimSpace(li.Title),
			VariantTitle: optionalPtr(li.VariantTitle),
			Quantity:     li.Quantity,
			Price:        m.money(fmt.Sprintf("line item %d price", i), li.Price),
		}
		if li.ID > 0 {
			id := li.ID
			item.RemoteLineItemID = &id
		}
		items = append(items, item)
	}

	if m.err != nil {
		return nil, nil, m.err
	}
	return order, items, nil
}

// mapping collects the first field error so conversions stay readable.
type mapping struct {
	store    int
	remoteID string
	err      *MappingError
}

func (m *mapping) fail(reason string) {
	if m.err == nil {
		m.err = &MappingError{Store: m.store, RemoteOrderID: m.remoteID, Reason: reason}
	}
}

func (m *mapping) money(field string, v shopify.Money) *string {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return nil
	}
	if _, err := decimal.NewFromString(s); err != nil {
		m.fail(fmt.Sprintf("invalid %s %q", field, s))
		return nil
	}
	return &s
}

func (m *mapping) timestamp(field, v string) *time.Time {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		m.fail(fmt.Sprintf("invalid %s %q", field, s))
		return nil
	}
	t = t.UTC()
	return &t
}

func customerName(o *shopify.Order) string {
	if o.Customer != nil {
		if name := joinName(o.Customer.FirstName, o.Customer.LastName); name != "" {
			return name
		}
	}
	if e := email(o); e != "" {
		return e
	}
	return strings.TrimSpace(o.Name)
}

func email(o *shopify.Order) string {
	if e := strings.TrimSpace(o.Email); e != "" {
		return e
	}
	if o.Customer != nil {
		return strings.TrimSpace(o.Customer.Email)
	}
	return ""
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// normalizeTags returns nil rather than an empty slice so "no tags" is stored as NULL.
func normalizeTags(raw string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		tag := norm.NFC.String(strings.TrimSpace(part))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

func peekID(raw json.RawMessage) string {
	var head struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ID.String()
}
