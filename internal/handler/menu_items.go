package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/media"
	"github.com/tablefront/pos/internal/middleware"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/service"
)

// MenuItemService defines the catalog methods needed by menu item handlers.
// Satisfied by *service.CatalogService; narrow interface for testability.
type MenuItemService interface {
	ListMenuItems(f service.MenuItemFilter) []model.MenuItem
	ResolveMenuItem(id uuid.UUID) (model.MenuItem, error)
	AddMenuItem(ctx context.Context, p service.MenuItemPatch) (model.MenuItem, error)
	UpdateMenuItem(ctx context.Context, id uuid.UUID, p service.MenuItemPatch) (model.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id uuid.UUID) error
	RecordRating(ctx context.Context, r model.ItemRating) (model.MenuItem, error)
	Choices() service.Choices
}

// MenuItemHandler handles product item, rating and choice endpoints.
type MenuItemHandler struct {
	svc MenuItemService
}

// NewMenuItemHandler creates a new MenuItemHandler.
func NewMenuItemHandler(svc MenuItemService) *MenuItemHandler {
	return &MenuItemHandler{svc: svc}
}

// RegisterRoutes registers product item endpoints.
// Expected to be mounted at /api/restaurant/product-items.
func (h *MenuItemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}/", h.Get)
	r.Post("/{id}/ratings/", h.Rate)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRoleAdmin))
		r.Post("/", h.Create)
		r.Put("/update/{id}/", h.Update)
		r.Delete("/delete/{id}/", h.Delete)
	})
}

// RegisterChoiceRoutes registers the enumeration endpoint.
// Expected to be mounted at /api/restaurant/product-choices.
func (h *MenuItemHandler) RegisterChoiceRoutes(r chi.Router) {
	r.Get("/", h.Choices)
}

// --- Request / Response types ---

// menuItemRequest is shared by create and update, in JSON or multipart form.
// Money fields are strings. An empty sub_category clears it.
type menuItemRequest struct {
	MainCategory     *string `json:"main_category"`
	SubCategory      *string `json:"sub_category"`
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	Price            *string `json:"price"`
	Currency         *string `json:"currency"`
	TaxPercentage    *string `json:"tax_percentage"`
	IsAvailable      *bool   `json:"is_available"`
	IsActive         *bool   `json:"is_active"`
	IsFeatured       *bool   `json:"is_featured"`
	PrepareTime      *int32  `json:"prepare_time"`
	StockAvailable   *int32  `json:"stock_available"`
	MaxOrderQuantity *int32  `json:"max_order_quantity"`
	VariantType      *string `json:"variant_type"`
	QuantityValue    *string `json:"quantity_value"`
	QuantityUnit     *string `json:"quantity_unit"`
	DisplayOrder     *int32  `json:"display_order"`
	ImageURL         *string `json:"image_url"`

	image *model.ImageUpload
}

type ratingRequest struct {
	Rating      int32   `json:"rating"`
	Comment     string  `json:"comment"`
	OrderItemID *string `json:"order_item_id"`
	CustomerID  string  `json:"customer_id"`
}

type menuItemResponse struct {
	ID               uuid.UUID  `json:"id"`
	MainCategory     uuid.UUID  `json:"main_category"`
	SubCategory      *uuid.UUID `json:"sub_category"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Price            string     `json:"price"`
	Currency         string     `json:"currency"`
	CurrencySymbol   string     `json:"currency_symbol"`
	TaxPercentage    string     `json:"tax_percentage"`
	IsAvailable      bool       `json:"is_available"`
	IsActive         bool       `json:"is_active"`
	IsFeatured       bool       `json:"is_featured"`
	PrepareTime      *int32     `json:"prepare_time"`
	StockAvailable   *int32     `json:"stock_available"`
	MaxOrderQuantity *int32     `json:"max_order_quantity"`
	VariantType      string     `json:"variant_type"`
	QuantityValue    string     `json:"quantity_value"`
	QuantityUnit     string     `json:"quantity_unit"`
	DisplayOrder     int32      `json:"display_order"`
	ImageURL         string     `json:"image_url"`
	AverageRating    float64    `json:"average_rating"`
	TotalRatings     int        `json:"total_ratings"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toMenuItemResponse(m model.MenuItem) menuItemResponse {
	// Always format with 2 decimal places for consistent money representation.
	return menuItemResponse{
		ID:               m.ID,
		MainCategory:     m.CategoryID,
		SubCategory:      m.SubcategoryID,
		Name:             m.Name,
		Description:      m.Description,
		Price:            m.Price.StringFixed(2),
		Currency:         m.Currency,
		CurrencySymbol:   service.CurrencySymbol(m.Currency),
		TaxPercentage:    m.TaxPercentage.StringFixed(2),
		IsAvailable:      m.IsAvailable,
		IsActive:         m.IsActive,
		IsFeatured:       m.IsFeatured,
		PrepareTime:      m.PrepareTime,
		StockAvailable:   m.StockAvailable,
		MaxOrderQuantity: m.MaxOrderQuantity,
		VariantType:      m.VariantType,
		QuantityValue:    m.QuantityValue.StringFixed(2),
		QuantityUnit:     m.QuantityUnit,
		DisplayOrder:     m.DisplayOrder,
		ImageURL:         m.ImageURL,
		AverageRating:    m.AverageRating,
		TotalRatings:     m.TotalRatings,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// --- Handlers ---

// List returns menu items in display order. Query params: main_category,
// sub_category, available, active, search.
func (h *MenuItemHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.MenuItemFilter{
		AvailableOnly: q.Get("available") == "true",
		ActiveOnly:    q.Get("active") == "true",
		Search:        q.Get("search"),
	}
	for key, dst := range map[string]**uuid.UUID{"main_category": &f.CategoryID, "sub_category": &f.SubcategoryID} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + key})
			return
		}
		*dst = &id
	}

	items := h.svc.ListMenuItems(f)
	resp := make([]menuItemResponse, len(items))
	for i, m := range items {
		resp[i] = toMenuItemResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MenuItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "menu item")
	if !ok {
		return
	}
	m, err := h.svc.ResolveMenuItem(id)
	if err != nil {
		writeServiceError(w, "get menu item", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(m))
}

// Create accepts JSON or a multipart form with an optional "image" file.
func (h *MenuItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMenuItemRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.MainCategory == nil || *req.MainCategory == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "main_category is required"})
		return
	}
	if req.Name == nil || *req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Price == nil || *req.Price == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price is required"})
		return
	}

	p, err := req.patch()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m, err := h.svc.AddMenuItem(r.Context(), p)
	if err != nil {
		writeServiceError(w, "create menu item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMenuItemResponse(m))
}

func (h *MenuItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "menu item")
	if !ok {
		return
	}
	req, err := decodeMenuItemRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	p, err := req.patch()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m, err := h.svc.UpdateMenuItem(r.Context(), id, p)
	if err != nil {
		writeServiceError(w, "update menu item", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(m))
}

func (h *MenuItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "menu item")
	if !ok {
		return
	}
	if err := h.svc.DeleteMenuItem(r.Context(), id); err != nil {
		writeServiceError(w, "delete menu item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rate appends a rating and returns the item with its refreshed aggregate.
// customer_id defaults to the caller.
func (h *MenuItemHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "menu item")
	if !ok {
		return
	}

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rating := model.ItemRating{ItemID: id, Rating: req.Rating, Comment: req.Comment, CustomerID: req.CustomerID}
	if req.OrderItemID != nil && *req.OrderItemID != "" {
		oid, err := uuid.Parse(*req.OrderItemID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_item_id"})
			return
		}
		rating.OrderItemID = &oid
	}
	if rating.CustomerID == "" {
		if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
			rating.CustomerID = claims.UserID.String()
		}
	}

	m, err := h.svc.RecordRating(r.Context(), rating)
	if err != nil {
		writeServiceError(w, "record rating", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMenuItemResponse(m))
}

// Choices returns the variant, unit and currency enumerations.
func (h *MenuItemHandler) Choices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Choices())
}

// --- Helpers ---

const maxMultipartMemory = media.MaxImageBytes + 1<<20

func decodeMenuItemRequest(w http.ResponseWriter, r *http.Request) (menuItemRequest, error) {
	var req menuItemRequest
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid request body")
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartMemory+1<<20)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return req, fmt.Errorf("invalid multipart form: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	form := r.MultipartForm.Value
	str := func(key string) *string {
		if v, ok := form[key]; ok && len(v) > 0 {
			s := v[0]
			return &s
		}
		return nil
	}
	boolean := func(key string) (*bool, error) {
		s := str(key)
		if s == nil {
			return nil, nil
		}
		b, err := strconv.ParseBool(*s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", key)
		}
		return &b, nil
	}
	integer := func(key string) (*int32, error) {
		s := str(key)
		if s == nil || *s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(*s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", key)
		}
		v := int32(n)
		return &v, nil
	}

	req.MainCategory = str("main_category")
	req.SubCategory = str("sub_category")
	req.Name = str("name")
	req.Description = str("description")
	req.Price = str("price")
	req.Currency = str("currency")
	req.TaxPercentage = str("tax_percentage")
	req.VariantType = str("variant_type")
	req.QuantityValue = str("quantity_value")
	req.QuantityUnit = str("quantity_unit")
	req.ImageURL = str("image_url")

	var err error
	for key, dst := range map[string]**bool{"is_available": &req.IsAvailable, "is_active": &req.IsActive, "is_featured": &req.IsFeatured} {
		if *dst, err = boolean(key); err != nil {
			return req, err
		}
	}
	for key, dst := range map[string]**int32{
		"prepare_time":       &req.PrepareTime,
		"stock_available":    &req.StockAvailable,
		"max_order_quantity": &req.MaxOrderQuantity,
		"display_order":      &req.DisplayOrder,
	} {
		if *dst, err = integer(key); err != nil {
			return req, err
		}
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, fmt.Errorf("invalid image: %v", err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, media.MaxImageBytes+1))
	if err != nil {
		return req, fmt.Errorf("read image: %v", err)
	}
	req.image = &model.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return req, nil
}

// patch converts the wire request into a service patch, parsing IDs and money.
func (req menuItemRequest) patch() (service.MenuItemPatch, error) {
	p := service.MenuItemPatch{
		Name:             req.Name,
		Description:      req.Description,
		IsAvailable:      req.IsAvailable,
		IsActive:         req.IsActive,
		IsFeatured:       req.IsFeatured,
		PrepareTime:      req.PrepareTime,
		StockAvailable:   req.StockAvailable,
		MaxOrderQuantity: req.MaxOrderQuantity,
		VariantType:      req.VariantType,
		QuantityUnit:     req.QuantityUnit,
		DisplayOrder:     req.DisplayOrder,
		ImageURL:         req.ImageURL,
		Image:            req.image,
	}
	if req.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*req.Currency))
		p.Currency = &c
	}

	if req.MainCategory != nil {
		id, err := uuid.Parse(*req.MainCategory)
		if err != nil {
			return p, errors.New("invalid main_category")
		}
		p.CategoryID = &id
	}
	if req.SubCategory != nil {
		id := uuid.Nil
		if *req.SubCategory != "" {
			var err error
			if id, err = uuid.Parse(*req.SubCategory); err != nil {
				return p, errors.New("invalid sub_category")
			}
		}
		p.SubcategoryID = &id
	}

	for _, f := range []struct {
		key string
		src *string
		dst **decimal.Decimal
	}{
		{"price", req.Price, &p.Price},
		{"tax_percentage", req.TaxPercentage, &p.TaxPercentage},
		{"quantity_value", req.QuantityValue, &p.QuantityValue},
	} {
		if f.src == nil || *f.src == "" {
			continue
		}
		d, err := decimal.NewFromString(*f.src)
		if err != nil {
			return p, fmt.Errorf("invalid %s", f.key)
		}
		*f.dst = &d
	}
	return p, nil
}
