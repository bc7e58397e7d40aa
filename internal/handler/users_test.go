package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/auth"
	"github.com/tablefront/pos/internal/handler"
	"github.com/tablefront/pos/internal/middleware"
)

func setupStaffRouter(st *mockAuthStore) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/auth", handler.NewAuthHandler(st, testSecret).RegisterRoutes)
	r.Route("/api/restaurant", func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		r.Route("/staff", handler.NewUserHandler(st).RegisterRoutes)
	})
	return r
}

func seedStaff(t *testing.T) *mockAuthStore {
	t.Helper()
	st := newMockAuthStore()

	waiter := makeTestUser(t, "rajesh", "waiter")
	waiter.FirstName, waiter.LastName, waiter.Phone = "Rajesh", "Kumar", "+91 98765 43210"
	st.addUser(waiter)

	chef := makeTestUser(t, "priya", "chef")
	chef.FirstName, chef.LastName, chef.Phone = "Priya", "Sharma", "+91 98765 43211"
	st.addUser(chef)

	retired := makeTestUser(t, "vikram", "waiter")
	retired.FirstName, retired.LastName, retired.Phone = "Vikram", "Singh", "+91 98765 43214"
	retired.IsActive = false
	st.addUser(retired)
	return st
}

func staffNames(t *testing.T, list []map[string]interface{}) []string {
	t.Helper()
	var out []string
	for _, u := range list {
		out = append(out, u["username"].(string))
	}
	return out
}

func TestStaff_ListFilters(t *testing.T) {
	router := setupStaffRouter(seedStaff(t))
	admin := tokenFor(t, "admin")

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"priya", "rajesh", "vikram"}},
		{"?role=waiter", []string{"rajesh", "vikram"}},
		{"?status=active", []string{"priya", "rajesh"}},
		{"?role=waiter&status=inactive", []string{"vikram"}},
		{"?search=SHARMA", []string{"priya"}},
		{"?search=43210", []string{"rajesh"}},
		{"?search=nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := doRequest(t, router, "GET", "/api/restaurant/staff/"+tt.query, nil, admin)
			wantStatus(t, rr, http.StatusOK)
			got := staffNames(t, decodeList(t, rr))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}

	rr := doRequest(t, router, "GET", "/api/restaurant/staff/?role=manager", nil, admin)
	wantStatus(t, rr, http.StatusBadRequest)
	rr = doRequest(t, router, "GET", "/api/restaurant/staff/?status=on-leave", nil, admin)
	wantStatus(t, rr, http.StatusBadRequest)
}

func TestStaff_AdminOnly(t *testing.T) {
	router := setupStaffRouter(seedStaff(t))

	for _, role := range []string{"waiter", "chef", "customer"} {
		rr := doRequest(t, router, "GET", "/api/restaurant/staff/", nil, tokenFor(t, role))
		wantStatus(t, rr, http.StatusForbidden)
	}
	rr := doRequest(t, router, "GET", "/api/restaurant/staff/", nil, "")
	wantStatus(t, rr, http.StatusUnauthorized)
}

func TestStaff_Create(t *testing.T) {
	st := seedStaff(t)
	router := setupStaffRouter(st)
	admin := tokenFor(t, "admin")

	rr := doRequest(t, router, "POST", "/api/restaurant/staff/", map[string]string{
		"username":   "amit",
		"password":   "amit-pass",
		"first_name": "Amit",
		"last_name":  "Patel",
		"email":      "amit@restaurant.com",
		"role":       "waiter",
	}, admin)
	wantStatus(t, rr, http.StatusCreated)
	resp := decodeMap(t, rr)
	if resp["is_active"] != true || resp["role"] != "waiter" {
		t.Errorf("unexpected staff member: %v", resp)
	}
	if _, ok := resp["hashed_password"]; ok {
		t.Error("response must not carry the password hash")
	}

	// The new account can log in.
	rr = doRequest(t, router, "POST", "/api/auth/login/", map[string]string{"username": "amit", "password": "amit-pass"}, "")
	wantStatus(t, rr, http.StatusOK)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing role", map[string]string{"username": "x", "password": "secret1"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "x", "password": "abc", "role": "chef"}, http.StatusBadRequest},
		{"bad email", map[string]string{"username": "x", "password": "secret1", "role": "chef", "email": "nope"}, http.StatusBadRequest},
		{"unknown role", map[string]string{"username": "x", "password": "secret1", "role": "cashier"}, http.StatusBadRequest},
		{"taken username", map[string]string{"username": "Rajesh", "password": "secret1", "role": "chef"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/api/restaurant/staff/", tt.body, admin)
			wantStatus(t, rr, tt.want)
		})
	}
}

func TestStaff_Update(t *testing.T) {
	st := seedStaff(t)
	router := setupStaffRouter(st)
	admin := tokenFor(t, "admin")
	chef, _ := st.GetUserByUsername(context.Background(), "priya")
	path := "/api/restaurant/staff/update/" + chef.ID.String() + "/"

	rr := doRequest(t, router, "PUT", path, map[string]interface{}{
		"phone":    "+91 90000 00000",
		"role":     "waiter",
		"password": "new-secret",
	}, admin)
	wantStatus(t, rr, http.StatusOK)
	resp := decodeMap(t, rr)
	if resp["phone"] != "+91 90000 00000" || resp["role"] != "waiter" || resp["first_name"] != "Priya" {
		t.Errorf("unexpected staff member after update: %v", resp)
	}

	got, _ := st.GetUserByID(context.Background(), chef.ID)
	if !auth.CheckPassword(got.HashedPassword, "new-secret") {
		t.Error("password was not re-hashed")
	}

	rr = doRequest(t, router, "PUT", path, map[string]string{"username": "rajesh"}, admin)
	wantStatus(t, rr, http.StatusConflict)
	rr = doRequest(t, router, "PUT", path, map[string]string{"username": "  "}, admin)
	wantStatus(t, rr, http.StatusBadRequest)
	rr = doRequest(t, router, "PUT", "/api/restaurant/staff/update/"+uuid.New().String()+"/", map[string]string{"phone": "1"}, admin)
	wantStatus(t, rr, http.StatusNotFound)
	rr = doRequest(t, router, "PUT", "/api/restaurant/staff/update/not-a-uuid/", map[string]string{"phone": "1"}, admin)
	wantStatus(t, rr, http.StatusBadRequest)
}

func TestStaff_Deactivate(t *testing.T) {
	st := seedStaff(t)
	router := setupStaffRouter(st)
	admin := tokenFor(t, "admin")
	waiter, _ := st.GetUserByUsername(context.Background(), "rajesh")

	rr := doRequest(t, router, "DELETE", "/api/restaurant/staff/delete/"+waiter.ID.String()+"/", nil, admin)
	wantStatus(t, rr, http.StatusNoContent)

	got, err := st.GetUserByID(context.Background(), waiter.ID)
	if err != nil {
		t.Fatalf("deactivated account should be kept: %v", err)
	}
	if got.IsActive {
		t.Error("expected account to be inactive")
	}

	rr = doRequest(t, router, "POST", "/api/auth/login/", map[string]string{"username": "rajesh", "password": "correct-password"}, "")
	wantStatus(t, rr, http.StatusUnauthorized)

	// Reactivation goes through update.
	rr = doRequest(t, router, "PUT", "/api/restaurant/staff/update/"+waiter.ID.String()+"/", map[string]bool{"is_active": true}, admin)
	wantStatus(t, rr, http.StatusOK)
	rr = doRequest(t, router, "POST", "/api/auth/login/", map[string]string{"username": "rajesh", "password": "correct-password"}, "")
	wantStatus(t, rr, http.StatusOK)

	rr = doRequest(t, router, "DELETE", "/api/restaurant/staff/delete/"+uuid.New().String()+"/", nil, admin)
	wantStatus(t, rr, http.StatusNotFound)
}

func TestStaff_CannotDeactivateSelf(t *testing.T) {
	st := seedStaff(t)
	self := makeTestUser(t, "admin", "admin")
	st.addUser(self)
	router := setupStaffRouter(st)

	tok, err := auth.GenerateToken(testSecret, self.ID, "admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	rr := doRequest(t, router, "DELETE", "/api/restaurant/staff/delete/"+self.ID.String()+"/", nil, tok)
	wantStatus(t, rr, http.StatusConflict)
	rr = doRequest(t, router, "PUT", "/api/restaurant/staff/update/"+self.ID.String()+"/", map[string]bool{"is_active": false}, tok)
	wantStatus(t, rr, http.StatusConflict)

	if got, _ := st.GetUserByID(context.Background(), self.ID); !got.IsActive {
		t.Error("admin account should still be active")
	}
}
