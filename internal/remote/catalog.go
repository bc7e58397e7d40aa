package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

const (
	categoriesPath    = "/api/restaurant/main-categories/"
	subcategoriesPath = "/api/restaurant/sub-categories/"
	itemsPath         = "/api/restaurant/product-items/"
)

// Catalog is a store.CatalogRepository served by the remote API.
type Catalog struct {
	c *Client
}

var _ store.CatalogRepository = (*Catalog)(nil)

func NewCatalog(c *Client) *Catalog {
	return &Catalog{c: c}
}

// --- Wire types ---

type categoryPayload struct {
	ID           uuid.UUID  `json:"id,omitempty"`
	MainCategory *uuid.UUID `json:"main_category,omitempty"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	IsActive     bool       `json:"is_active"`
	DisplayOrder int32      `json:"display_order"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
}

// itemRequest mirrors the product-items write body. Money travels as
// fixed-point strings; an empty sub_category clears it.
type itemRequest struct {
	ID               uuid.UUID `json:"id"`
	MainCategory     uuid.UUID `json:"main_category"`
	SubCategory      string    `json:"sub_category"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Price            string    `json:"price"`
	Currency         string    `json:"currency"`
	TaxPercentage    string    `json:"tax_percentage"`
	IsAvailable      bool      `json:"is_available"`
	IsActive         bool      `json:"is_active"`
	IsFeatured       bool      `json:"is_featured"`
	PrepareTime      *int32    `json:"prepare_time,omitempty"`
	StockAvailable   *int32    `json:"stock_available,omitempty"`
	MaxOrderQuantity *int32    `json:"max_order_quantity,omitempty"`
	VariantType      string    `json:"variant_type"`
	QuantityValue    string    `json:"quantity_value"`
	QuantityUnit     string    `json:"quantity_unit"`
	DisplayOrder     int32     `json:"display_order"`
	ImageURL         string    `json:"image_url"`
}

type itemResponse struct {
	ID               uuid.UUID       `json:"id"`
	MainCategory     uuid.UUID       `json:"main_category"`
	SubCategory      *uuid.UUID      `json:"sub_category"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	TaxPercentage    decimal.Decimal `json:"tax_percentage"`
	IsAvailable      bool            `json:"is_available"`
	IsActive         bool            `json:"is_active"`
	IsFeatured       bool            `json:"is_featured"`
	PrepareTime      *int32          `json:"prepare_time"`
	StockAvailable   *int32          `json:"stock_available"`
	MaxOrderQuantity *int32          `json:"max_order_quantity"`
	VariantType      string          `json:"variant_type"`
	QuantityValue    decimal.Decimal `json:"quantity_value"`
	QuantityUnit     string          `json:"quantity_unit"`
	DisplayOrder     int32           `json:"display_order"`
	ImageURL         string          `json:"image_url"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toCategoryPayload(c model.Category) categoryPayload {
	return categoryPayload{ID: c.ID, Name: c.Name, Description: c.Description, IsActive: c.IsActive, DisplayOrder: c.DisplayOrder, CreatedAt: c.CreatedAt}
}

func (p categoryPayload) category() model.Category {
	return model.Category{ID: p.ID, Name: p.Name, Description: p.Description, IsActive: p.IsActive, DisplayOrder: p.DisplayOrder, CreatedAt: p.CreatedAt}
}

func toSubcategoryPayload(sc model.Subcategory) categoryPayload {
	catID := sc.CategoryID
	return categoryPayload{ID: sc.ID, MainCategory: &catID, Name: sc.Name, Description: sc.Description, IsActive: sc.IsActive, DisplayOrder: sc.DisplayOrder, CreatedAt: sc.CreatedAt}
}

func (p categoryPayload) subcategory() model.Subcategory {
	sc := model.Subcategory{ID: p.ID, Name: p.Name, Description: p.Description, IsActive: p.IsActive, DisplayOrder: p.DisplayOrder, CreatedAt: p.CreatedAt}
	if p.MainCategory != nil {
		sc.CategoryID = *p.MainCategory
	}
	return sc
}

func toItemRequest(m model.MenuItem) itemRequest {
	req := itemRequest{
		ID:               m.ID,
		MainCategory:     m.CategoryID,
		Name:             m.Name,
		Description:      m.Description,
		Price:            m.Price.StringFixed(2),
		Currency:         m.Currency,
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
	}
	if m.SubcategoryID != nil {
		req.SubCategory = m.SubcategoryID.String()
	}
	return req
}

// fields lists the request as multipart form values, in a stable order.
func (r itemRequest) fields() [][2]string {
	out := [][2]string{
		{"id", r.ID.String()},
		{"main_category", r.MainCategory.String()},
		{"sub_category", r.SubCategory},
		{"name", r.Name},
		{"description", r.Description},
		{"price", r.Price},
		{"currency", r.Currency},
		{"tax_percentage", r.TaxPercentage},
		{"is_available", strconv.FormatBool(r.IsAvailable)},
		{"is_active", strconv.FormatBool(r.IsActive)},
		{"is_featured", strconv.FormatBool(r.IsFeatured)},
		{"variant_type", r.VariantType},
		{"quantity_value", r.QuantityValue},
		{"quantity_unit", r.QuantityUnit},
		{"display_order", strconv.Itoa(int(r.DisplayOrder))},
		{"image_url", r.ImageURL},
	}
	for _, opt := range []struct {
		key string
		v   *int32
	}{
		{"prepare_time", r.PrepareTime},
		{"stock_available", r.StockAvailable},
		{"max_order_quantity", r.MaxOrderQuantity},
	} {
		if opt.v != nil {
			out = append(out, [2]string{opt.key, strconv.Itoa(int(*opt.v))})
		}
	}
	return out
}

func (r itemResponse) item() model.MenuItem {
	return model.MenuItem{
		ID:               r.ID,
		CategoryID:       r.MainCategory,
		SubcategoryID:    r.SubCategory,
		Name:             r.Name,
		Description:      r.Description,
		Price:            r.Price,
		Currency:         r.Currency,
		TaxPercentage:    r.TaxPercentage,
		IsAvailable:      r.IsAvailable,
		IsActive:         r.IsActive,
		IsFeatured:       r.IsFeatured,
		PrepareTime:      r.PrepareTime,
		StockAvailable:   r.StockAvailable,
		MaxOrderQuantity: r.MaxOrderQuantity,
		VariantType:      r.VariantType,
		QuantityValue:    r.QuantityValue,
		QuantityUnit:     r.QuantityUnit,
		DisplayOrder:     r.DisplayOrder,
		ImageURL:         r.ImageURL,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// itemBody encodes m as JSON, or as multipart when it carries an upload.
func itemBody(m model.MenuItem) body {
	req := toItemRequest(m)
	if m.Image == nil {
		return jsonBody(req)
	}
	img := *m.Image
	return func() (io.Reader, string, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, f := range req.fields() {
			if err := mw.WriteField(f[0], f[1]); err != nil {
				return nil, "", err
			}
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Filename))
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return &buf, mw.FormDataContentType(), nil
	}
}

// ── Categories ──

func (r *Catalog) ListCategories(ctx context.Context) ([]model.Category, error) {
	var resp []categoryPayload
	if err := r.c.do(ctx, http.MethodGet, categoriesPath, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Category, len(resp))
	for i, p := range resp {
		out[i] = p.category()
	}
	return out, nil
}

func (r *Catalog) CreateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	var resp categoryPayload
	if err := r.c.do(ctx, http.MethodPost, categoriesPath, jsonBody(toCategoryPayload(c)), &resp); err != nil {
		return model.Category{}, err
	}
	return resp.category(), nil
}

func (r *Catalog) UpdateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	var resp categoryPayload
	path := categoriesPath + "update/" + c.ID.String() + "/"
	if err := r.c.do(ctx, http.MethodPut, path, jsonBody(toCategoryPayload(c)), &resp); err != nil {
		return model.Category{}, err
	}
	return resp.category(), nil
}

func (r *Catalog) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return r.c.do(ctx, http.MethodDelete, categoriesPath+"delete/"+id.String()+"/", nil, nil)
}

// ── Subcategories ──

func (r *Catalog) ListSubcategories(ctx context.Context) ([]model.Subcategory, error) {
	var resp []categoryPayload
	if err := r.c.do(ctx, http.MethodGet, subcategoriesPath, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Subcategory, len(resp))
	for i, p := range resp {
		out[i] = p.subcategory()
	}
	return out, nil
}

func (r *Catalog) CreateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	var resp categoryPayload
	if err := r.c.do(ctx, http.MethodPost, subcategoriesPath, jsonBody(toSubcategoryPayload(sc)), &resp); err != nil {
		return model.Subcategory{}, err
	}
	return resp.subcategory(), nil
}

func (r *Catalog) UpdateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	var resp categoryPayload
	path := subcategoriesPath + "update/" + sc.ID.String() + "/"
	if err := r.c.do(ctx, http.MethodPut, path, jsonBody(toSubcategoryPayload(sc)), &resp); err != nil {
		return model.Subcategory{}, err
	}
	return resp.subcategory(), nil
}

func (r *Catalog) DeleteSubcategory(ctx context.Context, id uuid.UUID) error {
	return r.c.do(ctx, http.MethodDelete, subcategoriesPath+"delete/"+id.String()+"/", nil, nil)
}

// ── Menu items ──

func (r *Catalog) ListMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	var resp []itemResponse
	if err := r.c.do(ctx, http.MethodGet, itemsPath, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.MenuItem, len(resp))
	for i, it := range resp {
		out[i] = it.item()
	}
	return out, nil
}

func (r *Catalog) CreateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	var resp itemResponse
	if err := r.c.do(ctx, http.MethodPost, itemsPath, itemBody(m), &resp); err != nil {
		return model.MenuItem{}, err
	}
	return resp.item(), nil
}

func (r *Catalog) UpdateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	var resp itemResponse
	path := itemsPath + "update/" + m.ID.String() + "/"
	if err := r.c.do(ctx, http.MethodPut, path, itemBody(m), &resp); err != nil {
		return model.MenuItem{}, err
	}
	return resp.item(), nil
}

func (r *Catalog) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	return r.c.do(ctx, http.MethodDelete, itemsPath+"delete/"+id.String()+"/", nil, nil)
}
