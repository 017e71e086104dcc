package syncer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapOrderCustomerNameFallbacks(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "first and last", raw: `{"id":1,"name":"#1","customer":{"first_name":"Ada","last_name":"Lovelace"}}`, want: "Ada Lovelace"},
		{name: "first only", raw: `{"id":1,"name":"#1","customer":{"first_name":"Ada"}}`, want: "Ada"},
		{name: "order email", raw: `{"id":1,"name":"#1","email":"ada@example.com","customer":{"first_name":" "}}`, want: "ada@example.com"},
		{name: "customer email", raw: `{"id":1,"name":"#1","customer":{"email":"c@example.com"}}`, want: "c@example.com"},
		{name: "display name", raw: `{"id":1,"name":"#1"}`, want: "#1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order, _, err := MapOrder(1, json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, order.CustomerName)
		})
	}
}

func TestMapOrderTags(t *testing.T) {
	order, _, err := MapOrder(1, json.RawMessage(`{"id":1,"tags":"cafe\u0301, ,b,b,caf\u00e9"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\u00e9", "b"}, order.Tags)

	order, _, err = MapOrder(1, json.RawMessage(`{"id":1,"tags":" , "}`))
	require.NoError(t, err)
	assert.Nil(t, order.Tags)

	order, _, err = MapOrder(1, json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	assert.Nil(t, order.Tags)
}

func TestMapOrderNullShipping(t *testing.T) {
	order, items, err := MapOrder(1, json.RawMessage(`{"id":1,"shipping_address":null,"line_items":[]}`))
	require.NoError(t, err)
	assert.Nil(t, order.ShippingName)
	assert.Nil(t, order.ShippingAddress1)
	assert.Nil(t, order.ShippingCity)
	assert.Nil(t, order.ShippingCountry)
	assert.Nil(t, order.ShippingZip)
	assert.Empty(t, items)
}

func TestMapOrderMoneyKeepsText(t *testing.T) {
	order, items, err := MapOrder(1, json.RawMessage(`{"id":1,"total_price":0.10,"subtotal_price":"1234567890.123456789","line_items":[{"title":"x","quantity":1,"price":"0.30"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "0.10", *order.TotalPrice)
	assert.Equal(t, "1234567890.123456789", *order.SubtotalPrice)
	assert.Nil(t, order.TotalTax)
	require.Len(t, items, 1)
	assert.Equal(t, "0.30", *items[0].Price)
	assert.Nil(t, items[0].RemoteLineItemID)
}

func TestMapOrderErrors(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		remoteID string
		reason   string
	}{
		{name: "not json", raw: `{"id":7,`, reason: "decode"},
		{name: "wrong type", raw: `{"id":7,"line_items":"nope"}`, remoteID: "7", reason: "decode"},
		{name: "missing id", raw: `{"name":"#1"}`, reason: "missing order id"},
		{name: "bad money", raw: `{"id":8,"total_price":"12,50"}`, remoteID: "8", reason: "invalid total_price"},
		{name: "bad date", raw: `{"id":9,"created_at":"yesterday"}`, remoteID: "9", reason: "invalid created_at"},
		{name: "negative quantity", raw: `{"id":10,"line_items":[{"quantity":-1,"price":"1.00"}]}`, remoteID: "10", reason: "negative quantity"},
		{name: "bad item price", raw: `{"id":11,"line_items":[{"quantity":1,"price":"free"}]}`, remoteID: "11", reason: "line item 0 price"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := MapOrder(2, json.RawMessage(tc.raw))
			require.Error(t, err)

			var merr *MappingError
			require.True(t, errors.As(err, &merr))
			assert.Equal(t, 2, merr.Store)
			assert.Equal(t, tc.remoteID, merr.RemoteOrderID)
			assert.Contains(t, merr.Reason, tc.reason)
		})
	}
}
