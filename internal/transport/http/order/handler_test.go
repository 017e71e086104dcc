package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/ordersync/internal/entity"
	service "github.com/Additional-Code/ordersync/internal/service/order"
	"github.com/Additional-Code/ordersync/pkg/errorbank"
)

type fakeReader struct {
	listArgs [3]int
}

func (f *fakeReader) Get(_ context.Context, id int64) (*entity.Order, error) {
	if id != 7 {
		return nil, errorbank.NotFound("order not found")
	}
	price := "4.50"
	return &entity.Order{
		ID: 7, StoreID: 1, RemoteOrderID: 1001, Name: "#1001", CustomerName: "Ada",
		Items: []entity.OrderItem{{ID: 1, OrderID: 7, Title: "Mug", Quantity: 2, Price: &price}},
	}, nil
}

func (f *fakeReader) ListByStore(_ context.Context, store, limit, offset int) (*service.Page, error) {
	f.listArgs = [3]int{store, limit, offset}
	return &service.Page{Orders: []entity.Order{{ID: 1, StoreID: store}, {ID: 2, StoreID: store}}, Total: 9, Limit: 2, Offset: offset}, nil
}

func serve(t *testing.T, h *Handler, path string) (int, map[string]any) {
	t.Helper()

	e := echo.New()
	Register(e, h)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return rec.Code, payload
}

func TestGetOrder(t *testing.T) {
	status, payload := serve(t, &Handler{svc: &fakeReader{}}, "/orders/7")
	require.Equal(t, http.StatusOK, status)

	data := payload["data"].(map[string]any)
	assert.Equal(t, "#1001", data["name"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "4.50", items[0].(map[string]any)["price"])
}

func TestGetOrderErrors(t *testing.T) {
	status, payload := serve(t, &Handler{svc: &fakeReader{}}, "/orders/8")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", payload["error"].(map[string]any)["kind"])

	status, _ = serve(t, &Handler{svc: &fakeReader{}}, "/orders/x")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListStoreOrders(t *testing.T) {
	reader := &fakeReader{}
	status, payload := serve(t, &Handler{svc: reader}, "/stores/3/orders?limit=2&offset=4")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, [3]int{3, 2, 4}, reader.listArgs)
	assert.Len(t, payload["data"].([]any), 2)
	assert.Equal(t, float64(9), payload["meta"].(map[string]any)["total"])

	status, _ = serve(t, &Handler{svc: reader}, "/stores/3/orders?limit=many")
	assert.Equal(t, http.StatusBadRequest, status)
}
