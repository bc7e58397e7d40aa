package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category is a top-level menu section.
type Category struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	DisplayOrder int32     `json:"display_order" db:"display_order"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Subcategory groups menu items inside a Category.
type Subcategory struct {
	ID           uuid.UUID `json:"id" db:"id"`
	CategoryID   uuid.UUID `json:"category_id" db:"category_id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	DisplayOrder int32     `json:"display_order" db:"display_order"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// MenuItem is a sellable catalog entry. AverageRating and TotalRatings are
// derived from recorded ratings and are never persisted with the item.
type MenuItem struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	CategoryID       uuid.UUID       `json:"category_id" db:"category_id"`
	SubcategoryID    *uuid.UUID      `json:"sub_category_id" db:"sub_category_id"`
	Name             string          `json:"name" db:"name"`
	Description      string          `json:"description" db:"description"`
	Price            decimal.Decimal `json:"price" db:"price"`
	Currency         string          `json:"currency" db:"currency"`
	TaxPercentage    decimal.Decimal `json:"tax_percentage" db:"tax_percentage"`
	IsAvailable      bool            `json:"is_available" db:"is_available"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	IsFeatured       bool            `json:"is_featured" db:"is_featured"`
	PrepareTime      *int32          `json:"prepare_time" db:"prepare_time"`
	StockAvailable   *int32          `json:"stock_available" db:"stock_available"`
	MaxOrderQuantity *int32          `json:"max_order_quantity" db:"max_order_quantity"`
	VariantType      string          `json:"variant_type" db:"variant_type"`
	QuantityValue    decimal.Decimal `json:"quantity_value" db:"quantity_value"`
	QuantityUnit     string          `json:"quantity_unit" db:"quantity_unit"`
	DisplayOrder     int32           `json:"display_order" db:"display_order"`
	ImageURL         string          `json:"image_url" db:"image_url"`
	AverageRating    float64         `json:"average_rating" db:"-"`
	TotalRatings     int             `json:"total_ratings" db:"-"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`

	// Image is an upload that has not been stored yet. Backends that cannot
	// take the bytes expect it to be resolved into ImageURL first.
	Image *ImageUpload `json:"-" db:"-"`
}

// ImageUpload is a picture attached to a create or update request.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Orderable reports whether new order lines may reference the item.
func (m MenuItem) Orderable() bool {
	return m.IsActive && m.IsAvailable
}

// ItemRating is a single customer score for a menu item.
type ItemRating struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OrderItemID *uuid.UUID `json:"order_item_id" db:"order_item_id"`
	CustomerID  string     `json:"customer_id" db:"customer_id"`
	ItemID      uuid.UUID  `json:"item_id" db:"item_id"`
	Rating      int32      `json:"rating" db:"rating"`
	Comment     string     `json:"comment" db:"comment"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
