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

// CategoryService defines the catalog methods needed by category handlers.
// Satisfied by *service.CatalogService; narrow interface for testability.
type CategoryService interface {
	ListCategories() []model.Category
	AddCategory(ctx context.Context, p service.CategoryPatch) (model.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, p service.CategoryPatch) (model.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	ListSubcategories(categoryID *uuid.UUID) []model.Subcategory
	AddSubcategory(ctx context.Context, p service.CategoryPatch) (model.Subcategory, error)
	UpdateSubcategory(ctx context.Context, id uuid.UUID, p service.CategoryPatch) (model.Subcategory, error)
	DeleteSubcategory(ctx context.Context, id uuid.UUID) error
}

// CategoryHandler handles main and sub category CRUD endpoints.
type CategoryHandler struct {
	svc CategoryService
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(svc CategoryService) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

// RegisterMainRoutes registers main category endpoints.
// Expected to be mounted at /api/restaurant/main-categories.
func (h *CategoryHandler) RegisterMainRoutes(r chi.Router) {
	r.Get("/", h.ListMain)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRoleAdmin))
		r.Post("/", h.CreateMain)
		r.Put("/update/{id}/", h.UpdateMain)
		r.Delete("/delete/{id}/", h.DeleteMain)
	})
}

// RegisterSubRoutes registers subcategory endpoints.
// Expected to be mounted at /api/restaurant/sub-categories.
func (h *CategoryHandler) RegisterSubRoutes(r chi.Router) {
	r.Get("/", h.ListSub)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRoleAdmin))
		r.Post("/", h.CreateSub)
		r.Put("/update/{id}/", h.UpdateSub)
		r.Delete("/delete/{id}/", h.DeleteSub)
	})
}

// --- Request / Response types ---

// categoryRequest is shared by create and update. Omitted fields keep their
// current value on update.
type categoryRequest struct {
	MainCategory *string `json:"main_category"`
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	IsActive     *bool   `json:"is_active"`
	DisplayOrder *int32  `json:"display_order"`
}

type categoryResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsActive     bool      `json:"is_active"`
	DisplayOrder int32     `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

type subcategoryResponse struct {
	ID           uuid.UUID `json:"id"`
	MainCategory uuid.UUID `json:"main_category"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsActive     bool      `json:"is_active"`
	DisplayOrder int32     `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCategoryResponse(c model.Category) categoryResponse {
	return categoryResponse{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		IsActive:     c.IsActive,
		DisplayOrder: c.DisplayOrder,
		CreatedAt:    c.CreatedAt,
	}
}

func toSubcategoryResponse(sc model.Subcategory) subcategoryResponse {
	return subcategoryResponse{
		ID:           sc.ID,
		MainCategory: sc.CategoryID,
		Name:         sc.Name,
		Description:  sc.Description,
		IsActive:     sc.IsActive,
		DisplayOrder: sc.DisplayOrder,
		CreatedAt:    sc.CreatedAt,
	}
}

// decodeCategoryRequest reads the body into a patch. withParent controls
// whether main_category is accepted.
func decodeCategoryRequest(w http.ResponseWriter, r *http.Request, withParent bool) (service.CategoryPatch, bool) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return service.CategoryPatch{}, false
	}

	p := service.CategoryPatch{
		Name:         req.Name,
		Description:  req.Description,
		IsActive:     req.IsActive,
		DisplayOrder: req.DisplayOrder,
	}
	if withParent && req.MainCategory != nil {
		id, err := uuid.Parse(*req.MainCategory)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid main_category"})
			return service.CategoryPatch{}, false
		}
		p.CategoryID = &id
	}
	return p, true
}

// --- Main category handlers ---

// ListMain returns all main categories in display order.
func (h *CategoryHandler) ListMain(w http.ResponseWriter, r *http.Request) {
	cats := h.svc.ListCategories()
	resp := make([]categoryResponse, len(cats))
	for i, c := range cats {
		resp[i] = toCategoryResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CategoryHandler) CreateMain(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeCategoryRequest(w, r, false)
	if !ok {
		return
	}
	if p.Name == nil || *p.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	c, err := h.svc.AddCategory(r.Context(), p)
	if err != nil {
		writeServiceError(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

func (h *CategoryHandler) UpdateMain(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "category")
	if !ok {
		return
	}
	p, ok := decodeCategoryRequest(w, r, false)
	if !ok {
		return
	}

	c, err := h.svc.UpdateCategory(r.Context(), id, p)
	if err != nil {
		writeServiceError(w, "update category", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// DeleteMain removes a category. It is rejected with 409 while subcategories
// or menu items still reference it.
func (h *CategoryHandler) DeleteMain(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "category")
	if !ok {
		return
	}
	if err := h.svc.DeleteCategory(r.Context(), id); err != nil {
		writeServiceError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Subcategory handlers ---

// ListSub returns subcategories, optionally narrowed by ?main_category=.
func (h *CategoryHandler) ListSub(w http.ResponseWriter, r *http.Request) {
	var parent *uuid.UUID
	if v := r.URL.Query().Get("main_category"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid main_category"})
			return
		}
		parent = &id
	}

	subs := h.svc.ListSubcategories(parent)
	resp := make([]subcategoryResponse, len(subs))
	for i, sc := range subs {
		resp[i] = toSubcategoryResponse(sc)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CategoryHandler) CreateSub(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeCategoryRequest(w, r, true)
	if !ok {
		return
	}
	if p.CategoryID == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "main_category is required"})
		return
	}
	if p.Name == nil || *p.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	sc, err := h.svc.AddSubcategory(r.Context(), p)
	if err != nil {
		writeServiceError(w, "create subcategory", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubcategoryResponse(sc))
}

func (h *CategoryHandler) UpdateSub(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "subcategory")
	if !ok {
		return
	}
	p, ok := decodeCategoryRequest(w, r, true)
	if !ok {
		return
	}

	sc, err := h.svc.UpdateSubcategory(r.Context(), id, p)
	if err != nil {
		writeServiceError(w, "update subcategory", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubcategoryResponse(sc))
}

func (h *CategoryHandler) DeleteSub(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "subcategory")
	if !ok {
		return
	}
	if err := h.svc.DeleteSubcategory(r.Context(), id); err != nil {
		writeServiceError(w, "delete subcategory", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
