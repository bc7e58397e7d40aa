package handler_test

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/auth"
	"github.com/tablefront/pos/internal/handler"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

// --- Mock store ---

type mockAuthStore struct {
	byUsername map[string]model.User
	byID       map[uuid.UUID]model.User
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{
		byUsername: make(map[string]model.User),
		byID:       make(map[uuid.UUID]model.User),
	}
}

func (m *mockAuthStore) addUser(u model.User) {
	m.byUsername[strings.ToLower(u.Username)] = u
	m.byID[u.ID] = u
}

func (m *mockAuthStore) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	u, ok := m.byUsername[strings.ToLower(username)]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *mockAuthStore) GetUserByID(_ context.Context, id uuid.UUID) (model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *mockAuthStore) CreateUser(_ context.Context, u model.User) error {
	if _, ok := m.byUsername[strings.ToLower(u.Username)]; ok {
		return store.ErrConflict
	}
	m.addUser(u)
	return nil
}

func (m *mockAuthStore) ListUsers(_ context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *mockAuthStore) UpdateUser(_ context.Context, u model.User) error {
	old, ok := m.byID[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	if other, ok := m.byUsername[strings.ToLower(u.Username)]; ok && other.ID != u.ID {
		return store.ErrConflict
	}
	delete(m.byUsername, strings.ToLower(old.Username))
	m.addUser(u)
	return nil
}

// --- Helpers ---

func makeTestUser(t *testing.T, username, role string) model.User {
	t.Helper()
	hash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return model.User{
		ID:             uuid.New(),
		Username:       username,
		FirstName:      "Test",
		LastName:       "User",
		Role:           role,
		HashedPassword: hash,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}
}

func setupAuthRouter(st *mockAuthStore) *chi.Mux {
	h := handler.NewAuthHandler(st, testSecret)
	r := chi.NewRouter()
	r.Route("/api/auth", h.RegisterRoutes)
	return r
}

// --- Login tests ---

func TestLogin_ValidCredentials(t *testing.T) {
	st := newMockAuthStore()
	user := makeTestUser(t, "waiter1", "waiter")
	st.addUser(user)
	r := setupAuthRouter(st)

	rr := doRequest(t, r, "POST", "/api/auth/login/", map[string]string{
		"username": "waiter1",
		"password": "correct-password",
	}, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeMap(t, rr)
	for _, key := range []string{"access", "refresh"} {
		if s, _ := resp[key].(string); s == "" {
			t.Errorf("expected non-empty %s", key)
		}
	}
	if resp["user_id"] != user.ID.String() {
		t.Errorf("user_id: got %v, want %s", resp["user_id"], user.ID)
	}
	if resp["role"] != "waiter" {
		t.Errorf("role: got %v, want waiter", resp["role"])
	}
	if resp["first_name"] != "Test" {
		t.Errorf("first_name: got %v, want Test", resp["first_name"])
	}

	claims, err := auth.ValidateToken(testSecret, resp["access"].(string))
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != "waiter" {
		t.Errorf("claims: got %v/%s", claims.UserID, claims.Role)
	}
}

func TestLogin_Rejected(t *testing.T) {
	st := newMockAuthStore()
	st.addUser(makeTestUser(t, "waiter1", "waiter"))
	inactive := makeTestUser(t, "gone", "chef")
	inactive.IsActive = false
	st.addUser(inactive)
	r := setupAuthRouter(st)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"username": "waiter1", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "nobody", "password": "correct-password"}, http.StatusUnauthorized},
		{"inactive user", map[string]string{"username": "gone", "password": "correct-password"}, http.StatusUnauthorized},
		{"missing password", map[string]string{"username": "waiter1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, "POST", "/api/auth/login/", tt.body, "")
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

// --- Register tests ---

func TestRegister_CustomerIsPublic(t *testing.T) {
	st := newMockAuthStore()
	r := setupAuthRouter(st)

	rr := doRequest(t, r, "POST", "/api/auth/register/", map[string]string{
		"username":   "alice",
		"password":   "secret123",
		"first_name": "Alice",
	}, "")

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeMap(t, rr)
	if resp["role"] != "customer" {
		t.Errorf("role: got %v, want customer", resp["role"])
	}
	if _, ok := resp["hashed_password"]; ok {
		t.Error("response must not expose the password hash")
	}

	stored, err := st.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if !auth.CheckPassword(stored.HashedPassword, "secret123") {
		t.Error("stored hash does not match password")
	}
}

func TestRegister_StaffNeedsAdmin(t *testing.T) {
	st := newMockAuthStore()
	r := setupAuthRouter(st)
	body := map[string]string{"username": "chef2", "password": "secret123", "role": "chef"}

	rr := doRequest(t, r, "POST", "/api/auth/register/", body, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("anonymous: got %d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = doRequest(t, r, "POST", "/api/auth/register/", body, tokenFor(t, "waiter"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("waiter: got %d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = doRequest(t, r, "POST", "/api/auth/register/", body, tokenFor(t, "admin"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
}

func TestRegister_Validation(t *testing.T) {
	st := newMockAuthStore()
	st.addUser(makeTestUser(t, "taken", "customer"))
	r := setupAuthRouter(st)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing username", map[string]string{"password": "secret123"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "bob", "password": "123"}, http.StatusBadRequest},
		{"bad role", map[string]string{"username": "bob", "password": "secret123", "role": "owner"}, http.StatusBadRequest},
		{"duplicate username", map[string]string{"username": "TAKEN", "password": "secret123"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, "POST", "/api/auth/register/", tt.body, "")
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

// --- Refresh tests ---

func TestRefresh_ValidToken(t *testing.T) {
	st := newMockAuthStore()
	user := makeTestUser(t, "admin", "admin")
	st.addUser(user)
	r := setupAuthRouter(st)

	refreshToken, err := auth.GenerateRefreshToken(testSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rr := doRequest(t, r, "POST", "/api/auth/refresh/", map[string]string{"refresh": refreshToken}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeMap(t, rr)
	if s, _ := resp["access"].(string); s == "" {
		t.Error("expected non-empty access")
	}
}

func TestRefresh_Rejected(t *testing.T) {
	st := newMockAuthStore()
	r := setupAuthRouter(st)

	orphan, err := auth.GenerateRefreshToken(testSecret, uuid.New())
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}
	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"garbage", map[string]string{"refresh": "not-a-valid-token"}, http.StatusUnauthorized},
		{"deleted user", map[string]string{"refresh": orphan}, http.StatusUnauthorized},
		{"missing", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, "POST", "/api/auth/refresh/", tt.body, "")
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
