package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/auth"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/middleware"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

// UserStore defines the persistence methods needed by staff handlers.
// Satisfied by every store.Store backend; narrow interface for testability.
type UserStore interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
	CreateUser(ctx context.Context, u model.User) error
	UpdateUser(ctx context.Context, u model.User) error
}

// UserHandler handles staff account administration.
type UserHandler struct {
	store UserStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store UserStore) *UserHandler {
	return &UserHandler{store: store}
}

// RegisterRoutes registers staff endpoints. Every route is admin only.
// Expected to be mounted at /api/restaurant/staff.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequireRole(enum.UserRoleAdmin))
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}/", h.Get)
	r.Put("/update/{id}/", h.Update)
	r.Delete("/delete/{id}/", h.Delete)
}

// --- Request / Response types ---

type createUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

type updateUserRequest struct {
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

// --- Handlers ---

// List returns accounts, optionally narrowed by ?role=, ?status=active|inactive
// and ?search= (name, username, phone or email).
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := q.Get("role")
	if role != "" && !enum.IsValidRole(role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}
	status := q.Get("status")
	if status != "" && status != "active" && status != "inactive" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be active or inactive"})
		return
	}
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("ERROR: list users: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		if role != "" && u.Role != role {
			continue
		}
		if status != "" && u.IsActive != (status == "active") {
			continue
		}
		if search != "" && !userMatches(u, search) {
			continue
		}
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "user")
	if !ok {
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeUserStoreError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Create adds a staff member.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || req.Role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username, password, and role are required"})
		return
	}
	if msg := validateUserFields(&req.Password, &req.Email, &req.Role); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("ERROR: create user: hash password: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	user := model.User{
		ID:             uuid.New(),
		Username:       req.Username,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		Role:           req.Role,
		HashedPassword: hash,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		writeUserStoreError(w, "create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Update edits the given fields of an account. A password, when sent, is re-hashed.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "user")
	if !ok {
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		if trimmed == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username cannot be empty"})
			return
		}
		req.Username = &trimmed
	}
	if msg := validateUserFields(req.Password, req.Email, req.Role); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	if req.IsActive != nil && !*req.IsActive && isCaller(r, id) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot deactivate your own account"})
		return
	}

	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeUserStoreError(w, "update user", err)
		return
	}
	applyString(&u.Username, req.Username)
	applyString(&u.FirstName, req.FirstName)
	applyString(&u.LastName, req.LastName)
	applyString(&u.Email, req.Email)
	applyString(&u.Phone, req.Phone)
	applyString(&u.Role, req.Role)
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			log.Printf("ERROR: update user: hash password: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		u.HashedPassword = hash
	}

	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		writeUserStoreError(w, "update user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Delete deactivates an account. The record is kept so past orders still
// reference a known waiter.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "user")
	if !ok {
		return
	}
	if isCaller(r, id) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot deactivate your own account"})
		return
	}

	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeUserStoreError(w, "delete user", err)
		return
	}
	u.IsActive = false
	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		writeUserStoreError(w, "delete user", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// validateUserFields checks the optional fields shared by create and update.
func validateUserFields(password, email, role *string) string {
	if password != nil && len(*password) < 6 {
		return "password must be at least 6 characters"
	}
	if email != nil && *email != "" && !strings.Contains(*email, "@") {
		return "invalid email format"
	}
	if role != nil && !enum.IsValidRole(*role) {
		return "invalid role"
	}
	return ""
}

func userMatches(u model.User, search string) bool {
	for _, field := range []string{u.FirstName + " " + u.LastName, u.Username, u.Phone, u.Email} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func isCaller(r *http.Request, id uuid.UUID) bool {
	return id != uuid.Nil && callerID(r) == id
}

func writeUserStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "username already exists"})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
