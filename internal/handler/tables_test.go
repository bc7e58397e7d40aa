package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/handler"
	"github.com/tablefront/pos/internal/middleware"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/service"
)

// --- Mock TableService ---

type mockTableService struct {
	listFn      func(status string) []model.Table
	getFn       func(id uuid.UUID) (model.Table, bool)
	reserveFn   func(ctx context.Context, id uuid.UUID) (model.Table, error)
	cancelResFn func(ctx context.Context, id uuid.UUID) (model.Table, error)
	resetFn     func(ctx context.Context, id uuid.UUID) (model.Table, error)
	setStatusFn func(ctx context.Context, id uuid.UUID, status string) (model.Table, error)
	addFn       func(ctx context.Context, p service.TablePatch) (model.Table, error)
	updateFn    func(ctx context.Context, id uuid.UUID, p service.TablePatch) (model.Table, error)
	deleteFn    func(ctx context.Context, id uuid.UUID) error
}

func (m *mockTableService) ListTables(status string) []model.Table {
	if m.listFn != nil {
		return m.listFn(status)
	}
	return nil
}

func (m *mockTableService) GetTable(id uuid.UUID) (model.Table, bool) {
	if m.getFn != nil {
		return m.getFn(id)
	}
	return model.Table{}, false
}

func (m *mockTableService) Reserve(ctx context.Context, id uuid.UUID) (model.Table, error) {
	if m.reserveFn != nil {
		return m.reserveFn(ctx, id)
	}
	return model.Table{}, fmt.Errorf("not mocked")
}

func (m *mockTableService) CancelReservation(ctx context.Context, id uuid.UUID) (model.Table, error) {
	if m.cancelResFn != nil {
		return m.cancelResFn(ctx, id)
	}
	return model.Table{}, fmt.Errorf("not mocked")
}

func (m *mockTableService) ResetForService(ctx context.Context, id uuid.UUID) (model.Table, error) {
	if m.resetFn != nil {
		return m.resetFn(ctx, id)
	}
	return model.Table{}, fmt.Errorf("not mocked")
}

func (m *mockTableService) SetStatus(ctx context.Context, id uuid.UUID, status string) (model.Table, error) {
	if m.setStatusFn != nil {
		return m.setStatusFn(ctx, id, status)
	}
	return model.Table{}, fmt.Errorf("not mocked")
}

func (m *mockTableService) AddTable(ctx context.Context, p service.TablePatch) (model.Table, error) {
	if m.addFn != nil {
		return m.addFn(ctx, p)
	}
	return model.Table{}, fmt.Errorf("not mocked")
}

func (m *mockTableService) UpdateTable(ctx context.Context, id uuid.UUID, p service.TablePatch) (model.Table, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, p)
	}
	return model.Table{}, fmt.Errorf("not mocked")
}

func (m *mockTableService) DeleteTable(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return fmt.Errorf("not mocked")
}

// --- Helpers ---

func setupTableRouter(svc *mockTableService) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testSecret))
	r.Route("/api/restaurant/tables", handler.NewTableHandler(svc).RegisterRoutes)
	return r
}

func testTable(number, status string) model.Table {
	return model.Table{
		ID:          uuid.New(),
		TableNumber: number,
		Seats:       4,
		Location:    "Main hall",
		Status:      status,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

// --- Tests ---

func TestTables_List(t *testing.T) {
	var gotStatus string
	svc := &mockTableService{listFn: func(status string) []model.Table {
		gotStatus = status
		return []model.Table{testTable("T1", "available"), testTable("T2", "available")}
	}}
	router := setupTableRouter(svc)

	rr := doRequest(t, router, "GET", "/api/restaurant/tables/?status=available", nil, tokenFor(t, "waiter"))
	wantStatus(t, rr, http.StatusOK)
	if resp := decodeList(t, rr); len(resp) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(resp))
	}
	if gotStatus != "available" {
		t.Errorf("expected status filter available, got %q", gotStatus)
	}

	rr = doRequest(t, router, "GET", "/api/restaurant/tables/?status=broken", nil, tokenFor(t, "waiter"))
	wantStatus(t, rr, http.StatusBadRequest)
}

func TestTables_Get(t *testing.T) {
	table := testTable("T1", "occupied")
	table.CurrentCustomer = "Alice"
	svc := &mockTableService{getFn: func(id uuid.UUID) (model.Table, bool) {
		return table, id == table.ID
	}}
	router := setupTableRouter(svc)

	rr := doRequest(t, router, "GET", "/api/restaurant/tables/"+table.ID.String()+"/", nil, tokenFor(t, "chef"))
	wantStatus(t, rr, http.StatusOK)
	if got := decodeMap(t, rr)["current_customer"]; got != "Alice" {
		t.Errorf("expected current_customer Alice, got %v", got)
	}

	rr = doRequest(t, router, "GET", "/api/restaurant/tables/"+uuid.New().String()+"/", nil, tokenFor(t, "chef"))
	wantStatus(t, rr, http.StatusNotFound)
}

func TestTables_Create(t *testing.T) {
	var got service.TablePatch
	svc := &mockTableService{addFn: func(_ context.Context, p service.TablePatch) (model.Table, error) {
		got = p
		tb := testTable(*p.TableNumber, "available")
		tb.Seats = *p.Seats
		return tb, nil
	}}
	router := setupTableRouter(svc)

	rr := doRequest(t, router, "POST", "/api/restaurant/tables/", map[string]interface{}{
		"table_number": "T9",
		"seats":        6,
	}, tokenFor(t, "admin"))
	wantStatus(t, rr, http.StatusCreated)
	if got.Location != nil {
		t.Errorf("expected location to be omitted, got %q", *got.Location)
	}
	resp := decodeMap(t, rr)
	if resp["seats"] != float64(6) || resp["status"] != "available" {
		t.Errorf("unexpected table: %v", resp)
	}

	rr = doRequest(t, router, "POST", "/api/restaurant/tables/", map[string]interface{}{"seats": 2}, tokenFor(t, "admin"))
	wantStatus(t, rr, http.StatusBadRequest)

	rr = doRequest(t, router, "POST", "/api/restaurant/tables/", map[string]interface{}{"table_number": "T10"}, tokenFor(t, "waiter"))
	wantStatus(t, rr, http.StatusForbidden)
}

func TestTables_DeleteOccupied(t *testing.T) {
	svc := &mockTableService{deleteFn: func(_ context.Context, id uuid.UUID) error {
		return fmt.Errorf("%w: table T1 is occupied", service.ErrConstraint)
	}}
	router := setupTableRouter(svc)

	rr := doRequest(t, router, "DELETE", "/api/restaurant/tables/delete/"+uuid.New().String()+"/", nil, tokenFor(t, "admin"))
	wantStatus(t, rr, http.StatusConflict)
}

func TestTables_Transitions(t *testing.T) {
	invalid := func(_ context.Context, id uuid.UUID) (model.Table, error) {
		return model.Table{}, fmt.Errorf("%w: cannot reserve a table that is occupied", service.ErrInvalidTransition)
	}
	ok := func(status string) func(context.Context, uuid.UUID) (model.Table, error) {
		return func(_ context.Context, id uuid.UUID) (model.Table, error) {
			tb := testTable("T1", status)
			tb.ID = id
			return tb, nil
		}
	}

	tests := []struct {
		name   string
		svc    *mockTableService
		action string
		role   string
		want   int
		status string
	}{
		{"reserve", &mockTableService{reserveFn: ok("reserved")}, "reserve", "waiter", http.StatusOK, "reserved"},
		{"reserve occupied", &mockTableService{reserveFn: invalid}, "reserve", "waiter", http.StatusConflict, ""},
		{"cancel reservation", &mockTableService{cancelResFn: ok("available")}, "cancel-reservation", "admin", http.StatusOK, "available"},
		{"reset", &mockTableService{resetFn: ok("available")}, "reset", "waiter", http.StatusOK, "available"},
		{"chef cannot reset", &mockTableService{resetFn: ok("available")}, "reset", "chef", http.StatusForbidden, ""},
		{"customer cannot reserve", &mockTableService{reserveFn: ok("reserved")}, "reserve", "customer", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTableRouter(tt.svc)
			path := "/api/restaurant/tables/" + uuid.New().String() + "/" + tt.action + "/"
			rr := doRequest(t, router, "POST", path, nil, tokenFor(t, tt.role))
			wantStatus(t, rr, tt.want)
			if tt.status != "" {
				if got := decodeMap(t, rr)["status"]; got != tt.status {
					t.Errorf("expected status %s, got %v", tt.status, got)
				}
			}
		})
	}
}

func TestTables_SetStatusOverride(t *testing.T) {
	var got string
	svc := &mockTableService{setStatusFn: func(_ context.Context, id uuid.UUID, status string) (model.Table, error) {
		got = status
		if status == "flooded" {
			return model.Table{}, fmt.Errorf("%w: invalid table status %q", service.ErrValidation, status)
		}
		return testTable("T1", status), nil
	}}
	router := setupTableRouter(svc)
	path := "/api/restaurant/tables/" + uuid.New().String() + "/status/"

	rr := doRequest(t, router, "PUT", path, map[string]string{"status": "cleaning"}, tokenFor(t, "admin"))
	wantStatus(t, rr, http.StatusOK)
	if got != "cleaning" {
		t.Errorf("expected cleaning passed through, got %q", got)
	}

	rr = doRequest(t, router, "PUT", path, map[string]string{"status": "flooded"}, tokenFor(t, "admin"))
	wantStatus(t, rr, http.StatusBadRequest)

	rr = doRequest(t, router, "PUT", path, map[string]string{"status": "available"}, tokenFor(t, "waiter"))
	wantStatus(t, rr, http.StatusForbidden)
}
