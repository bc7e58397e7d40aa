package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/middleware"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/service"
)

// TableService defines the table methods needed by table handlers.
// Satisfied by *service.TableService; narrow interface for testability.
type TableService interface {
	ListTables(status string) []model.Table
	GetTable(id uuid.UUID) (model.Table, bool)
	Reserve(ctx context.Context, id uuid.UUID) (model.Table, error)
	CancelReservation(ctx context.Context, id uuid.UUID) (model.Table, error)
	ResetForService(ctx context.Context, id uuid.UUID) (model.Table, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (model.Table, error)
	AddTable(ctx context.Context, p service.TablePatch) (model.Table, error)
	UpdateTable(ctx context.Context, id uuid.UUID, p service.TablePatch) (model.Table, error)
	DeleteTable(ctx context.Context, id uuid.UUID) error
}

// TableHandler handles floor plan and table lifecycle endpoints. Seating a
// customer goes through the order endpoints so occupancy and the active order
// change together.
type TableHandler struct {
	svc TableService
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableService) *TableHandler {
	return &TableHandler{svc: svc}
}

// RegisterRoutes registers table endpoints.
// Expected to be mounted at /api/restaurant/tables.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}/", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRoleAdmin, enum.UserRoleWaiter))
		r.Post("/{id}/reserve/", h.Reserve)
		r.Post("/{id}/cancel-reservation/", h.CancelReservation)
		r.Post("/{id}/reset/", h.Reset)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRoleAdmin))
		r.Post("/", h.Create)
		r.Put("/update/{id}/", h.Update)
		r.Delete("/delete/{id}/", h.Delete)
		r.Put("/{id}/status/", h.SetStatus)
	})
}

// --- Request / Response types ---

type tableRequest struct {
	TableNumber *string `json:"table_number"`
	Seats       *int32  `json:"seats"`
	Location    *string `json:"location"`
}

type tableStatusRequest struct {
	Status string `json:"status"`
}

type tableResponse struct {
	ID              uuid.UUID `json:"id"`
	TableNumber     string    `json:"table_number"`
	Seats           int32     `json:"seats"`
	Location        string    `json:"location"`
	Status          string    `json:"status"`
	CurrentCustomer string    `json:"current_customer"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toTableResponse(t model.Table) tableResponse {
	return tableResponse{
		ID:              t.ID,
		TableNumber:     t.TableNumber,
		Seats:           t.Seats,
		Location:        t.Location,
		Status:          t.Status,
		CurrentCustomer: t.CurrentCustomer,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// --- Handlers ---

// List returns tables ordered by table number, optionally narrowed by ?status=.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !enum.IsValidTableStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
		return
	}

	tables := h.svc.ListTables(status)
	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}
	t, found := h.svc.GetTable(id)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TableNumber == nil || *req.TableNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_number is required"})
		return
	}

	t, err := h.svc.AddTable(r.Context(), service.TablePatch(req))
	if err != nil {
		writeServiceError(w, "create table", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTableResponse(t))
}

func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}
	var req tableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.svc.UpdateTable(r.Context(), id, service.TablePatch(req))
	if err != nil {
		writeServiceError(w, "update table", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

// Delete removes a table. Occupied tables are rejected with 409.
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}
	if err := h.svc.DeleteTable(r.Context(), id); err != nil {
		writeServiceError(w, "delete table", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus is the admin override; the transition itself is not checked.
func (h *TableHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}
	var req tableStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.svc.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, "set table status", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

func (h *TableHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reserve table", h.svc.Reserve)
}

func (h *TableHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel reservation", h.svc.CancelReservation)
}

// Reset marks a cleaned table available again.
func (h *TableHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reset table", h.svc.ResetForService)
}

// --- Helpers ---

func (h *TableHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uuid.UUID) (model.Table, error)) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}
	t, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}
