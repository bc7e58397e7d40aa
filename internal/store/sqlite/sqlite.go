// Package sqlite is the local durable store.Store, built on sqlx and
// go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

//go:embed schema.sql
var schema string

// repo implements store.Repository on either the pool or a transaction.
type repo struct {
	x sqlx.ExtContext
}

// Store is a store.Store backed by a SQLite file.
type Store struct {
	*repo
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps an in-memory database on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{repo: &repo{x: db}, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&repo{x: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ── Catalog ──

func (r *repo) ListCategories(ctx context.Context) ([]model.Category, error) {
	const q = `SELECT id, name, description, is_active, display_order, created_at
		FROM categories ORDER BY display_order, name`
	var out []model.Category
	if err := sqlx.SelectContext(ctx, r.x, &out, q); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (r *repo) CreateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	const q = `INSERT INTO categories (id, name, description, is_active, display_order, created_at)
		VALUES (:id, :name, :description, :is_active, :display_order, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, c); err != nil {
		return model.Category{}, mapErr("create category", err)
	}
	return c, nil
}

func (r *repo) UpdateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	const q = `UPDATE categories SET name = :name, description = :description,
		is_active = :is_active, display_order = :display_order WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.x, q, c)
	if err := affected("update category", res, err); err != nil {
		return model.Category{}, err
	}
	return c, nil
}

func (r *repo) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	res, err := r.x.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	return affected("delete category", res, err)
}

func (r *repo) ListSubcategories(ctx context.Context) ([]model.Subcategory, error) {
	const q = `SELECT id, category_id, name, description, is_active, display_order, created_at
		FROM subcategories ORDER BY display_order, name`
	var out []model.Subcategory
	if err := sqlx.SelectContext(ctx, r.x, &out, q); err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	return out, nil
}

func (r *repo) CreateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	const q = `INSERT INTO subcategories (id, category_id, name, description, is_active, display_order, created_at)
		VALUES (:id, :category_id, :name, :description, :is_active, :display_order, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, sc); err != nil {
		return model.Subcategory{}, mapErr("create subcategory", err)
	}
	return sc, nil
}

func (r *repo) UpdateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	const q = `UPDATE subcategories SET category_id = :category_id, name = :name,
		description = :description, is_active = :is_active, display_order = :display_order
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.x, q, sc)
	if err := affected("update subcategory", res, err); err != nil {
		return model.Subcategory{}, err
	}
	return sc, nil
}

func (r *repo) DeleteSubcategory(ctx context.Context, id uuid.UUID) error {
	res, err := r.x.ExecContext(ctx, `DELETE FROM subcategories WHERE id = ?`, id)
	return affected("delete subcategory", res, err)
}

const menuItemColumns = `id, category_id, sub_category_id, name, description, price, currency,
	tax_percentage, is_available, is_active, is_featured, prepare_time, stock_available,
	max_order_quantity, variant_type, quantity_value, quantity_unit, display_order, image_url,
	created_at, updated_at`

func (r *repo) ListMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	q := `SELECT ` + menuItemColumns + ` FROM menu_items ORDER BY display_order, name`
	var out []model.MenuItem
	if err := sqlx.SelectContext(ctx, r.x, &out, q); err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	return out, nil
}

func (r *repo) CreateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	const q = `INSERT INTO menu_items (` + menuItemColumns + `) VALUES (
		:id, :category_id, :sub_category_id, :name, :description, :price, :currency,
		:tax_percentage, :is_available, :is_active, :is_featured, :prepare_time, :stock_available,
		:max_order_quantity, :variant_type, :quantity_value, :quantity_unit, :display_order, :image_url,
		:created_at, :updated_at)`
	m.Image = nil
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, m); err != nil {
		return model.MenuItem{}, mapErr("create menu item", err)
	}
	return m, nil
}

func (r *repo) UpdateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	const q = `UPDATE menu_items SET
		category_id = :category_id, sub_category_id = :sub_category_id, name = :name,
		description = :description, price = :price, currency = :currency,
		tax_percentage = :tax_percentage, is_available = :is_available, is_active = :is_active,
		is_featured = :is_featured, prepare_time = :prepare_time, stock_available = :stock_available,
		max_order_quantity = :max_order_quantity, variant_type = :variant_type,
		quantity_value = :quantity_value, quantity_unit = :quantity_unit,
		display_order = :display_order, image_url = :image_url, updated_at = :updated_at
		WHERE id = :id`
	m.Image = nil
	res, err := sqlx.NamedExecContext(ctx, r.x, q, m)
	if err := affected("update menu item", res, err); err != nil {
		return model.MenuItem{}, err
	}
	return m, nil
}

func (r *repo) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	res, err := r.x.ExecContext(ctx, `DELETE FROM menu_items WHERE id = ?`, id)
	return affected("delete menu item", res, err)
}

// ── Ratings ──

func (r *repo) ListRatings(ctx context.Context) ([]model.ItemRating, error) {
	const q = `SELECT id, order_item_id, customer_id, item_id, rating, comment, created_at
		FROM item_ratings ORDER BY created_at`
	var out []model.ItemRating
	if err := sqlx.SelectContext(ctx, r.x, &out, q); err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return out, nil
}

func (r *repo) CreateRating(ctx context.Context, rt model.ItemRating) error {
	const q = `INSERT INTO item_ratings (id, order_item_id, customer_id, item_id, rating, comment, created_at)
		VALUES (:id, :order_item_id, :customer_id, :item_id, :rating, :comment, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, rt); err != nil {
		return mapErr("create rating", err)
	}
	return nil
}

func (r *repo) DeleteRatingsForItem(ctx context.Context, itemID uuid.UUID) error {
	if _, err := r.x.ExecContext(ctx, `DELETE FROM item_ratings WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("delete ratings: %w", err)
	}
	return nil
}

// ── Tables ──

func (r *repo) ListTables(ctx context.Context) ([]model.Table, error) {
	const q = `SELECT id, table_number, seats, location, status, current_customer, created_at, updated_at
		FROM restaurant_tables ORDER BY table_number`
	var out []model.Table
	if err := sqlx.SelectContext(ctx, r.x, &out, q); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out, nil
}

func (r *repo) CreateTable(ctx context.Context, t model.Table) error {
	const q = `INSERT INTO restaurant_tables
		(id, table_number, seats, location, status, current_customer, created_at, updated_at)
		VALUES (:id, :table_number, :seats, :location, :status, :current_customer, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, t); err != nil {
		return mapErr("create table", err)
	}
	return nil
}

func (r *repo) UpdateTable(ctx context.Context, t model.Table) error {
	const q = `UPDATE restaurant_tables SET table_number = :table_number, seats = :seats,
		location = :location, status = :status, current_customer = :current_customer,
		updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.x, q, t)
	return affected("update table", res, err)
}

func (r *repo) DeleteTable(ctx context.Context, id uuid.UUID) error {
	res, err := r.x.ExecContext(ctx, `DELETE FROM restaurant_tables WHERE id = ?`, id)
	return affected("delete table", res, err)
}

// ── Orders ──

func (r *repo) ListOrders(ctx context.Context) ([]model.Order, error) {
	const qOrders = `SELECT id, table_id, waiter_id, customer_id, status, notes, created_at, updated_at
		FROM orders ORDER BY created_at`
	const qItems = `SELECT id, order_id, menu_item_id, name, unit_price, currency, quantity, status,
		customizations, created_at, updated_at
		FROM order_items ORDER BY created_at, rowid`

	var orders []model.Order
	if err := sqlx.SelectContext(ctx, r.x, &orders, qOrders); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var items []model.OrderItem
	if err := sqlx.SelectContext(ctx, r.x, &items, qItems); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return attachItems(orders, items), nil
}

func (r *repo) CreateOrder(ctx context.Context, o model.Order) error {
	const q = `INSERT INTO orders (id, table_id, waiter_id, customer_id, status, notes, created_at, updated_at)
		VALUES (:id, :table_id, :waiter_id, :customer_id, :status, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, o); err != nil {
		return mapErr("create order", err)
	}
	for i, it := range o.Items {
		if err := r.CreateOrderItem(ctx, it); err != nil {
			return fmt.Errorf("item[%d]: %w", i, err)
		}
	}
	return nil
}

func (r *repo) UpdateOrder(ctx context.Context, o model.Order) error {
	const q = `UPDATE orders SET customer_id = :customer_id, status = :status, notes = :notes,
		updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.x, q, o)
	return affected("update order", res, err)
}

func (r *repo) CreateOrderItem(ctx context.Context, it model.OrderItem) error {
	const q = `INSERT INTO order_items (id, order_id, menu_item_id, name, unit_price, currency,
		quantity, status, customizations, created_at, updated_at)
		VALUES (:id, :order_id, :menu_item_id, :name, :unit_price, :currency,
		:quantity, :status, :customizations, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, it); err != nil {
		return mapErr("create order item", err)
	}
	return nil
}

func (r *repo) UpdateOrderItem(ctx context.Context, it model.OrderItem) error {
	const q = `UPDATE order_items SET status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.x, q, it)
	return affected("update order item", res, err)
}

// ── Users ──

const userColumns = `id, username, first_name, last_name, email, phone, role, hashed_password, is_active, created_at`

func (r *repo) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.x, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return model.User{}, mapErr("get user", err)
	}
	return u, nil
}

func (r *repo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.x, &u, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	if err != nil {
		return model.User{}, mapErr("get user", err)
	}
	return u, nil
}

func (r *repo) CreateUser(ctx context.Context, u model.User) error {
	const q = `INSERT INTO users (` + userColumns + `) VALUES (:id, :username, :first_name, :last_name,
		:email, :phone, :role, :hashed_password, :is_active, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.x, q, u); err != nil {
		return mapErr("create user", err)
	}
	return nil
}

func (r *repo) ListUsers(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := sqlx.SelectContext(ctx, r.x, &out, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (r *repo) UpdateUser(ctx context.Context, u model.User) error {
	const q = `UPDATE users SET username = :username, first_name = :first_name, last_name = :last_name,
		email = :email, phone = :phone, role = :role, hashed_password = :hashed_password,
		is_active = :is_active WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.x, q, u)
	return affected("update user", res, err)
}

// --- Helpers ---

// attachItems groups items under their orders, keeping each list in the
// order given.
func attachItems(orders []model.Order, items []model.OrderItem) []model.Order {
	idx := make(map[uuid.UUID]int, len(orders))
	for i := range orders {
		orders[i].Items = []model.OrderItem{}
		idx[orders[i].ID] = i
	}
	for _, it := range items {
		if i, ok := idx[it.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return orders
}

// mapErr translates driver errors into store sentinels.
func mapErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %v", op, store.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// affected checks the outcome of an UPDATE or DELETE by primary key.
func affected(op string, res sql.Result, err error) error {
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}
