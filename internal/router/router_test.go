package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablefront/pos/internal/auth"
	"github.com/tablefront/pos/internal/config"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/events"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/router"
	"github.com/tablefront/pos/internal/service"
	"github.com/tablefront/pos/internal/store/memstore"
)

type apiClient struct {
	t      *testing.T
	h      http.Handler
	access string
}

func (c *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.access != "" {
		req.Header.Set("Authorization", "Bearer "+c.access)
	}
	rr := httptest.NewRecorder()
	c.h.ServeHTTP(rr, req)
	return rr
}

// call sends the request, checks the status and decodes the body into out.
func (c *apiClient) call(method, path string, body any, want int, out any) {
	c.t.Helper()
	rr := c.do(method, path, body)
	require.Equal(c.t, want, rr.Code, "%s %s: %s", method, path, rr.Body.String())
	if out != nil {
		require.NoError(c.t, json.NewDecoder(rr.Body).Decode(out))
	}
}

func newTestServer(t *testing.T) (*apiClient, *config.Config) {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()

	hash, err := auth.HashPassword("admin-pass")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser(ctx, model.User{
		ID: uuid.New(), Username: "admin", Role: enum.UserRoleAdmin,
		HashedPassword: hash, IsActive: true, CreatedAt: time.Now(),
	}))

	catalog := service.NewCatalogService(st, st, "INR")
	tables := service.NewTableService(st, events.Noop{})
	orders := service.NewOrderService(st, tables, catalog, service.OrderConfig{
		TaxRate:   decimal.RequireFromString("0.10"),
		Pricing:   enum.PricingSnapshot,
		Currency:  "INR",
		Publisher: events.Noop{},
	})
	require.NoError(t, catalog.Load(ctx))
	require.NoError(t, tables.Load(ctx))
	require.NoError(t, orders.Load(ctx))

	cfg := &config.Config{
		JWTSecret:   "router-test-secret",
		CORSOrigins: []string{"http://localhost:5173"},
		MediaDir:    t.TempDir(),
		MediaURL:    "/media",
	}
	h := router.New(cfg, router.Services{Catalog: catalog, Tables: tables, Orders: orders, Users: st})
	return &apiClient{t: t, h: h}, cfg
}

func TestHealth(t *testing.T) {
	c, _ := newTestServer(t)
	rr := c.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRestaurantRoutesRequireToken(t *testing.T) {
	c, _ := newTestServer(t)
	for _, path := range []string{
		"/api/restaurant/main-categories/",
		"/api/restaurant/product-items/",
		"/api/restaurant/tables/",
		"/api/restaurant/orders/kitchen/",
		"/api/restaurant/staff/",
	} {
		assert.Equal(t, http.StatusUnauthorized, c.do("GET", path, nil).Code, path)
	}
}

func TestMediaIsServed(t *testing.T) {
	c, cfg := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.MediaDir, "rolls.png"), []byte("png"), 0o644))

	rr := c.do("GET", "/media/rolls.png", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "png", rr.Body.String())
}

func TestStaffRoutes(t *testing.T) {
	c, _ := newTestServer(t)

	var login struct {
		Access string `json:"access"`
	}
	c.call("POST", "/api/auth/login/", map[string]string{"username": "admin", "password": "admin-pass"}, http.StatusOK, &login)
	c.access = login.Access

	c.call("POST", "/api/restaurant/staff/", map[string]string{
		"username": "waiter", "password": "waiter123", "first_name": "John", "last_name": "Waiter", "role": "waiter",
	}, http.StatusCreated, nil)

	var staff []struct {
		Username string `json:"username"`
	}
	c.call("GET", "/api/restaurant/staff/?role=waiter", nil, http.StatusOK, &staff)
	require.Len(t, staff, 1)
	assert.Equal(t, "waiter", staff[0].Username)

	c.access = ""
	c.call("POST", "/api/auth/login/", map[string]string{"username": "waiter", "password": "waiter123"}, http.StatusOK, &login)
	c.access = login.Access
	c.call("GET", "/api/restaurant/staff/", nil, http.StatusForbidden, nil)
}

// TestSeatingEndToEnd walks one seating through floor plan, catalog, order,
// kitchen, bill and close.
func TestSeatingEndToEnd(t *testing.T) {
	c, _ := newTestServer(t)

	var login struct {
		Access string `json:"access"`
		Role   string `json:"role"`
	}
	c.call("POST", "/api/auth/login/", map[string]string{"username": "admin", "password": "admin-pass"}, http.StatusOK, &login)
	require.Equal(t, enum.UserRoleAdmin, login.Role)
	c.access = login.Access

	var cat struct{ ID string }
	c.call("POST", "/api/restaurant/main-categories/", map[string]any{"name": "Starters"}, http.StatusCreated, &cat)

	var rolls, lassi struct{ ID string }
	c.call("POST", "/api/restaurant/product-items/", map[string]any{"main_category": cat.ID, "name": "Spring Rolls", "price": "120"}, http.StatusCreated, &rolls)
	c.call("POST", "/api/restaurant/product-items/", map[string]any{"main_category": cat.ID, "name": "Lassi", "price": "80"}, http.StatusCreated, &lassi)

	// Category with items cannot go.
	c.call("DELETE", "/api/restaurant/main-categories/delete/"+cat.ID+"/", nil, http.StatusConflict, nil)

	var table struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	c.call("POST", "/api/restaurant/tables/", map[string]any{"table_number": "T1", "seats": 4}, http.StatusCreated, &table)
	require.Equal(t, enum.TableStatusAvailable, table.Status)

	var order struct {
		ID    string `json:"id"`
		Items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	c.call("POST", "/api/restaurant/orders/open/", map[string]any{"table_id": table.ID, "customer_name": "Alice"}, http.StatusCreated, &order)
	openedID := order.ID

	c.call("GET", "/api/restaurant/tables/"+table.ID+"/", nil, http.StatusOK, &table)
	assert.Equal(t, enum.TableStatusOccupied, table.Status)

	// A second seating on the same table is refused.
	c.call("POST", "/api/restaurant/orders/open/", map[string]any{"table_id": table.ID, "customer_name": "Bob"}, http.StatusConflict, nil)

	c.call("POST", "/api/restaurant/orders/", map[string]any{
		"table_id": table.ID,
		"items": []map[string]any{
			{"menu_item_id": rolls.ID, "quantity": 2},
			{"menu_item_id": lassi.ID, "quantity": 1},
		},
	}, http.StatusOK, &order)
	require.Equal(t, openedID, order.ID)
	require.Len(t, order.Items, 2)

	var queue struct {
		Pending []struct {
			TableNumber string `json:"table_number"`
		} `json:"pending"`
	}
	c.call("GET", "/api/restaurant/orders/kitchen/", nil, http.StatusOK, &queue)
	require.Len(t, queue.Pending, 2)
	assert.Equal(t, "T1", queue.Pending[0].TableNumber)

	c.call("POST", "/api/restaurant/orders/"+order.ID+"/accept-all/", nil, http.StatusOK, &order)
	for _, it := range order.Items {
		assert.Equal(t, enum.OrderItemStatusInProgress, it.Status)
	}
	itemPath := "/api/restaurant/orders/" + order.ID + "/items/" + order.Items[0].ID + "/status/"
	c.call("PUT", itemPath, map[string]string{"status": "ready"}, http.StatusOK, nil)
	c.call("PUT", itemPath, map[string]string{"status": "pending"}, http.StatusConflict, nil)

	var bill struct {
		Subtotal string `json:"subtotal"`
		Tax      string `json:"tax"`
		Total    string `json:"total"`
	}
	c.call("GET", "/api/restaurant/orders/"+order.ID+"/bill/", nil, http.StatusOK, &bill)
	assert.Equal(t, "320.00", bill.Subtotal)
	assert.Equal(t, "32.00", bill.Tax)
	assert.Equal(t, "352.00", bill.Total)

	var closed []struct {
		Status string `json:"status"`
	}
	c.call("POST", "/api/restaurant/orders/close/", map[string]string{"table_id": table.ID}, http.StatusOK, &closed)
	require.Len(t, closed, 1)
	assert.Equal(t, enum.OrderStatusServed, closed[0].Status)

	c.call("GET", "/api/restaurant/tables/"+table.ID+"/", nil, http.StatusOK, &table)
	assert.Equal(t, enum.TableStatusCleaning, table.Status)

	c.call("POST", "/api/restaurant/tables/"+table.ID+"/reset/", nil, http.StatusOK, &table)
	assert.Equal(t, enum.TableStatusAvailable, table.Status)

	c.call("GET", "/api/restaurant/orders/table/"+table.ID+"/active/", nil, http.StatusNotFound, nil)
}
