// Package store declares the persistence contract shared by every backend.
//
// Backends: memstore (in-process), sqlite (local durable cache), postgres
// (server database). The catalog half may also be served by remote.Catalog.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/model"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness or reference rule.
	ErrConflict = errors.New("record conflicts with existing data")
)

// CatalogRepository persists categories, subcategories and menu items.
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, c model.Category) (model.Category, error)
	UpdateCategory(ctx context.Context, c model.Category) (model.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	ListSubcategories(ctx context.Context) ([]model.Subcategory, error)
	CreateSubcategory(ctx context.Context, s model.Subcategory) (model.Subcategory, error)
	UpdateSubcategory(ctx context.Context, s model.Subcategory) (model.Subcategory, error)
	DeleteSubcategory(ctx context.Context, id uuid.UUID) error

	ListMenuItems(ctx context.Context) ([]model.MenuItem, error)
	CreateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error)
	UpdateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id uuid.UUID) error
}

// RatingRepository persists item ratings. Aggregates are derived by the caller.
type RatingRepository interface {
	ListRatings(ctx context.Context) ([]model.ItemRating, error)
	CreateRating(ctx context.Context, r model.ItemRating) error
	// DeleteRatingsForItem removes every rating of the item. The item itself
	// may live in another repository.
	DeleteRatingsForItem(ctx context.Context, itemID uuid.UUID) error
}

// TableRepository persists the floor plan.
type TableRepository interface {
	ListTables(ctx context.Context) ([]model.Table, error)
	CreateTable(ctx context.Context, t model.Table) error
	UpdateTable(ctx context.Context, t model.Table) error
	DeleteTable(ctx context.Context, id uuid.UUID) error
}

// OrderRepository persists orders and their lines.
type OrderRepository interface {
	// ListOrders returns every order with its items in creation order.
	ListOrders(ctx context.Context) ([]model.Order, error)
	// CreateOrder inserts the order header and any items it carries.
	CreateOrder(ctx context.Context, o model.Order) error
	// UpdateOrder rewrites the header fields (status, notes, customer, updated_at).
	UpdateOrder(ctx context.Context, o model.Order) error
	CreateOrderItem(ctx context.Context, it model.OrderItem) error
	// UpdateOrderItem rewrites the status and updated_at of a line.
	UpdateOrderItem(ctx context.Context, it model.OrderItem) error
}

// UserRepository persists staff and customer accounts.
type UserRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) error
	// ListUsers returns every account ordered by username.
	ListUsers(ctx context.Context) ([]model.User, error)
	// UpdateUser rewrites everything but the id and created_at.
	UpdateUser(ctx context.Context, u model.User) error
}

// Repository is the full set of persistence operations.
type Repository interface {
	CatalogRepository
	RatingRepository
	TableRepository
	OrderRepository
	UserRepository
}

// Store is a Repository that can group writes into one atomic unit.
type Store interface {
	Repository
	// WithinTx runs fn against a transactional view. If fn returns an error
	// nothing it wrote is kept.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
	Close() error
}
