package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	appcart "github.com/shippingkart/backend/internal/application/cart"
	appcheckout "github.com/shippingkart/backend/internal/application/checkout"
	appinventory "github.com/shippingkart/backend/internal/application/inventory"
	apporder "github.com/shippingkart/backend/internal/application/order"
	"github.com/shippingkart/backend/internal/domain/product"
	"github.com/shippingkart/backend/internal/infrastructure/id"
	"github.com/shippingkart/backend/internal/infrastructure/memory"
	paymentinfra "github.com/shippingkart/backend/internal/infrastructure/payment"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	products := memory.NewProductRepository()
	for i, stock := range []int{10, 3, 0} {
		p, err := product.New(fmt.Sprintf("p%d", i+1), fmt.Sprintf("product %d", i+1), int64(1000*(i+1)), stock)
		if err != nil {
			t.Fatalf("seed product: %v", err)
		}
		if err := products.Save(context.Background(), p); err != nil {
			t.Fatalf("seed save: %v", err)
		}
	}

	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	attempts := memory.NewAttemptRepository()

	inventoryService := appinventory.NewService(products, time.Second)
	cartService := appcart.NewService(carts, inventoryService, time.Second)
	orderService := apporder.NewService(orders)
	checkoutService := appcheckout.NewService(
		cartService, inventoryService, products, orders, attempts,
		paymentinfra.NewVerdictProcessor(), id.NewUUIDGenerator(), nil,
		appcheckout.Metrics{},
	)

	handler := NewHandler(cartService, checkoutService, orderService, products, zap.NewNop(), HTTPMetrics{})
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, userID, role string, body any) (int, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, raw
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	status, _ := doJSON(t, srv, http.MethodGet, "/healthz", "", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestCatalogIsPublic(t *testing.T) {
	srv := newTestServer(t)

	status, raw := doJSON(t, srv, http.MethodGet, "/api/products", "", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	var list []productDTO
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 products, got %d", len(list))
	}

	status, _ = doJSON(t, srv, http.MethodGet, "/api/products/ghost", "", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", status)
	}
}

func TestIdentityRequired(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/cart", "/api/orders"} {
		status, _ := doJSON(t, srv, http.MethodGet, path, "", "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, status)
		}
	}
}

func TestCartLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, raw := doJSON(t, srv, http.MethodGet, "/api/cart", "u1", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	var c cartDTO
	if err := json.Unmarshal(raw, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", c.Items)
	}

	status, raw = doJSON(t, srv, http.MethodPost, "/api/cart/items", "u1", "",
		upsertCartItemRequest{ProductID: "p1", Quantity: 2})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Items) != 1 || c.Items[0].Quantity != 2 {
		t.Fatalf("expected one line qty 2, got %+v", c.Items)
	}

	// Same product again replaces the quantity.
	status, raw = doJSON(t, srv, http.MethodPost, "/api/cart/items", "u1", "",
		upsertCartItemRequest{ProductID: "p1", Quantity: 5})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Items) != 1 || c.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity replaced, got %+v", c.Items)
	}

	status, raw = doJSON(t, srv, http.MethodDelete, "/api/cart/items/p1", "u1", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Items) != 0 {
		t.Fatalf("expected emptied cart, got %+v", c.Items)
	}
}

func TestCartUpsertErrors(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		body any
		want int
	}{
		{"zero quantity", upsertCartItemRequest{ProductID: "p1", Quantity: 0}, http.StatusBadRequest},
		{"unknown product", upsertCartItemRequest{ProductID: "ghost", Quantity: 1}, http.StatusNotFound},
		{"over stock", upsertCartItemRequest{ProductID: "p2", Quantity: 4}, http.StatusConflict},
		{"sold out", upsertCartItemRequest{ProductID: "p3", Quantity: 1}, http.StatusConflict},
	}
	for _, tc := range cases {
		status, raw := doJSON(t, srv, http.MethodPost, "/api/cart/items", "u1", "", tc.body)
		if status != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, status, raw)
		}
	}

	// Malformed body.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/cart/items", bytes.NewReader([]byte("{")))
	req.Header.Set("X-User-Id", "u1")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", resp.StatusCode)
	}
}

func TestCheckoutFlow(t *testing.T) {
	srv := newTestServer(t)

	status, raw := doJSON(t, srv, http.MethodPost, "/api/cart/items", "u1", "",
		upsertCartItemRequest{ProductID: "p1", Quantity: 2})
	if status != http.StatusOK {
		t.Fatalf("add to cart: %d: %s", status, raw)
	}

	status, raw = doJSON(t, srv, http.MethodPost, "/api/checkout", "u1", "", checkoutRequest{
		ShippingAddress: "1 Main St",
		AttemptToken:    "t1",
		PaymentOK:       true,
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, raw)
	}
	var ord orderDTO
	if err := json.Unmarshal(raw, &ord); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ord.TotalCents != 2000 || ord.Status != "processing" || ord.PaymentStatus != "paid" {
		t.Fatalf("unexpected order: %+v", ord)
	}

	status, raw = doJSON(t, srv, http.MethodGet, "/api/orders", "u1", "", nil)
	if status != http.StatusOK {
		t.Fatalf("list orders: %d: %s", status, raw)
	}
	var list []orderDTO
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != ord.ID {
		t.Fatalf("unexpected order list: %+v", list)
	}

	status, _ = doJSON(t, srv, http.MethodGet, "/api/orders/"+ord.ID, "u1", "", nil)
	if status != http.StatusOK {
		t.Fatalf("owner get: expected 200, got %d", status)
	}

	// Another user cannot see the order.
	status, _ = doJSON(t, srv, http.MethodGet, "/api/orders/"+ord.ID, "u2", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("foreign get: expected 404, got %d", status)
	}
}

func TestCheckoutErrors(t *testing.T) {
	srv := newTestServer(t)

	// Empty cart.
	status, _ := doJSON(t, srv, http.MethodPost, "/api/checkout", "u1", "", checkoutRequest{
		ShippingAddress: "1 Main St",
		AttemptToken:    "t-empty",
		PaymentOK:       true,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("empty cart: expected 400, got %d", status)
	}

	// Missing shipping address.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/checkout", "u1", "", checkoutRequest{
		AttemptToken: "t-addr",
		PaymentOK:    true,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("missing address: expected 400, got %d", status)
	}

	// Declined payment.
	status, raw := doJSON(t, srv, http.MethodPost, "/api/cart/items", "u1", "",
		upsertCartItemRequest{ProductID: "p1", Quantity: 1})
	if status != http.StatusOK {
		t.Fatalf("add to cart: %d: %s", status, raw)
	}
	status, _ = doJSON(t, srv, http.MethodPost, "/api/checkout", "u1", "", checkoutRequest{
		ShippingAddress: "1 Main St",
		AttemptToken:    "t-declined",
		PaymentOK:       false,
	})
	if status != http.StatusPaymentRequired {
		t.Fatalf("declined payment: expected 402, got %d", status)
	}
}

func TestAdminStatusUpdate(t *testing.T) {
	srv := newTestServer(t)

	status, raw := doJSON(t, srv, http.MethodPost, "/api/cart/items", "u1", "",
		upsertCartItemRequest{ProductID: "p1", Quantity: 1})
	if status != http.StatusOK {
		t.Fatalf("add to cart: %d: %s", status, raw)
	}
	status, raw = doJSON(t, srv, http.MethodPost, "/api/checkout", "u1", "", checkoutRequest{
		ShippingAddress: "1 Main St",
		AttemptToken:    "t1",
		PaymentOK:       true,
	})
	if status != http.StatusCreated {
		t.Fatalf("checkout: %d: %s", status, raw)
	}
	var ord orderDTO
	if err := json.Unmarshal(raw, &ord); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path := "/api/admin/orders/" + ord.ID + "/status"

	// Non-admin cannot touch fulfillment.
	status, _ = doJSON(t, srv, http.MethodPut, path, "u1", "", updateOrderStatusRequest{Status: "shipped"})
	if status != http.StatusUnauthorized {
		t.Fatalf("non-admin: expected 401, got %d", status)
	}

	status, raw = doJSON(t, srv, http.MethodPut, path, "admin-1", RoleAdmin, updateOrderStatusRequest{Status: "shipped"})
	if status != http.StatusOK {
		t.Fatalf("admin ship: expected 200, got %d: %s", status, raw)
	}
	if err := json.Unmarshal(raw, &ord); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ord.Status != "shipped" {
		t.Fatalf("expected shipped, got %s", ord.Status)
	}

	// Skipping a step is rejected.
	status, _ = doJSON(t, srv, http.MethodPut, path, "admin-1", RoleAdmin, updateOrderStatusRequest{Status: "shipped"})
	if status != http.StatusBadRequest {
		t.Fatalf("repeat ship: expected 400, got %d", status)
	}
}
