// Package postgres is the server-side store.Store, built on a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type repo struct {
	db DBTX
}

// Store is a store.Store over PostgreSQL.
type Store struct {
	*repo
	pool TxBeginner
	done func()
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool. Close closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{repo: &repo{db: pool}, pool: pool, done: pool.Close}
}

// Connect opens a pool for databaseURL and checks it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

func (s *Store) Close() error {
	if s.done != nil {
		s.done()
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&repo{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ── Catalog ──

func (r *repo) ListCategories(ctx context.Context) ([]model.Category, error) {
	const q = `SELECT id, name, description, is_active, display_order, created_at
		FROM categories ORDER BY display_order, name`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.DisplayOrder, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repo) CreateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	const q = `INSERT INTO categories (id, name, description, is_active, display_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(ctx, q, c.ID, c.Name, c.Description, c.IsActive, c.DisplayOrder, c.CreatedAt); err != nil {
		return model.Category{}, mapErr("create category", err)
	}
	return c, nil
}

func (r *repo) UpdateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	const q = `UPDATE categories SET name = $2, description = $3, is_active = $4, display_order = $5
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, c.ID, c.Name, c.Description, c.IsActive, c.DisplayOrder)
	if err := affected("update category", tag, err); err != nil {
		return model.Category{}, err
	}
	return c, nil
}

func (r *repo) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	return affected("delete category", tag, err)
}

func (r *repo) ListSubcategories(ctx context.Context) ([]model.Subcategory, error) {
	const q = `SELECT id, category_id, name, description, is_active, display_order, created_at
		FROM subcategories ORDER BY display_order, name`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer rows.Close()

	var out []model.Subcategory
	for rows.Next() {
		var sc model.Subcategory
		if err := rows.Scan(&sc.ID, &sc.CategoryID, &sc.Name, &sc.Description, &sc.IsActive, &sc.DisplayOrder, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *repo) CreateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	const q = `INSERT INTO subcategories (id, category_id, name, description, is_active, display_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, q, sc.ID, sc.CategoryID, sc.Name, sc.Description, sc.IsActive, sc.DisplayOrder, sc.CreatedAt)
	if err != nil {
		return model.Subcategory{}, mapErr("create subcategory", err)
	}
	return sc, nil
}

func (r *repo) UpdateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	const q = `UPDATE subcategories SET category_id = $2, name = $3, description = $4,
		is_active = $5, display_order = $6 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, sc.ID, sc.CategoryID, sc.Name, sc.Description, sc.IsActive, sc.DisplayOrder)
	if err := affected("update subcategory", tag, err); err != nil {
		return model.Subcategory{}, err
	}
	return sc, nil
}

func (r *repo) DeleteSubcategory(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subcategories WHERE id = $1`, id)
	return affected("delete subcategory", tag, err)
}

func (r *repo) ListMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	const q = `SELECT id, category_id, sub_category_id, name, description, price, currency,
		tax_percentage, is_available, is_active, is_featured, prepare_time, stock_available,
		max_order_quantity, variant_type, quantity_value, quantity_unit, display_order, image_url,
		created_at, updated_at
		FROM menu_items ORDER BY display_order, name`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	var out []model.MenuItem
	for rows.Next() {
		var (
			m                          model.MenuItem
			subID                      pgtype.UUID
			price, tax, qty            pgtype.Numeric
			prep, stock, maxQty        pgtype.Int4
		)
		err := rows.Scan(&m.ID, &m.CategoryID, &subID, &m.Name, &m.Description, &price, &m.Currency,
			&tax, &m.IsAvailable, &m.IsActive, &m.IsFeatured, &prep, &stock,
			&maxQty, &m.VariantType, &qty, &m.QuantityUnit, &m.DisplayOrder, &m.ImageURL,
			&m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		m.SubcategoryID = uuidPtr(subID)
		m.Price = numericToDecimal(price)
		m.TaxPercentage = numericToDecimal(tax)
		m.QuantityValue = numericToDecimal(qty)
		m.PrepareTime = int4Ptr(prep)
		m.StockAvailable = int4Ptr(stock)
		m.MaxOrderQuantity = int4Ptr(maxQty)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repo) CreateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	const q = `INSERT INTO menu_items (id, category_id, sub_category_id, name, description, price,
		currency, tax_percentage, is_available, is_active, is_featured, prepare_time, stock_available,
		max_order_quantity, variant_type, quantity_value, quantity_unit, display_order, image_url,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.db.Exec(ctx, q, m.ID, m.CategoryID, pgUUID(m.SubcategoryID), m.Name, m.Description,
		decimalToNumeric(m.Price), m.Currency, decimalToNumeric(m.TaxPercentage), m.IsAvailable,
		m.IsActive, m.IsFeatured, pgInt4(m.PrepareTime), pgInt4(m.StockAvailable),
		pgInt4(m.MaxOrderQuantity), m.VariantType, decimalToNumeric(m.QuantityValue), m.QuantityUnit,
		m.DisplayOrder, m.ImageURL, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return model.MenuItem{}, mapErr("create menu item", err)
	}
	m.Image = nil
	return m, nil
}

func (r *repo) UpdateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	const q = `UPDATE menu_items SET category_id = $2, sub_category_id = $3, name = $4,
		description = $5, price = $6, currency = $7, tax_percentage = $8, is_available = $9,
		is_active = $10, is_featured = $11, prepare_time = $12, stock_available = $13,
		max_order_quantity = $14, variant_type = $15, quantity_value = $16, quantity_unit = $17,
		display_order = $18, image_url = $19, updated_at = $20
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, m.ID, m.CategoryID, pgUUID(m.SubcategoryID), m.Name, m.Description,
		decimalToNumeric(m.Price), m.Currency, decimalToNumeric(m.TaxPercentage), m.IsAvailable,
		m.IsActive, m.IsFeatured, pgInt4(m.PrepareTime), pgInt4(m.StockAvailable),
		pgInt4(m.MaxOrderQuantity), m.VariantType, decimalToNumeric(m.QuantityValue), m.QuantityUnit,
		m.DisplayOrder, m.ImageURL, m.UpdatedAt)
	if err := affected("update menu item", tag, err); err != nil {
		return model.MenuItem{}, err
	}
	m.Image = nil
	return m, nil
}

func (r *repo) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	return affected("delete menu item", tag, err)
}

// ── Ratings ──

func (r *repo) ListRatings(ctx context.Context) ([]model.ItemRating, error) {
	const q = `SELECT id, order_item_id, customer_id, item_id, rating, comment, created_at
		FROM item_ratings ORDER BY created_at`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var out []model.ItemRating
	for rows.Next() {
		var (
			rt          model.ItemRating
			orderItemID pgtype.UUID
		)
		if err := rows.Scan(&rt.ID, &orderItemID, &rt.CustomerID, &rt.ItemID, &rt.Rating, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		rt.OrderItemID = uuidPtr(orderItemID)
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *repo) CreateRating(ctx context.Context, rt model.ItemRating) error {
	const q = `INSERT INTO item_ratings (id, order_item_id, customer_id, item_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, q, rt.ID, pgUUID(rt.OrderItemID), rt.CustomerID, rt.ItemID, rt.Rating, rt.Comment, rt.CreatedAt)
	if err != nil {
		return mapErr("create rating", err)
	}
	return nil
}

func (r *repo) DeleteRatingsForItem(ctx context.Context, itemID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM item_ratings WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete ratings: %w", err)
	}
	return nil
}

// ── Tables ──

func (r *repo) ListTables(ctx context.Context) ([]model.Table, error) {
	const q = `SELECT id, table_number, seats, location, status, current_customer, created_at, updated_at
		FROM restaurant_tables ORDER BY table_number`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []model.Table
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.TableNumber, &t.Seats, &t.Location, &t.Status, &t.CurrentCustomer, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repo) CreateTable(ctx context.Context, t model.Table) error {
	const q = `INSERT INTO restaurant_tables
		(id, table_number, seats, location, status, current_customer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, q, t.ID, t.TableNumber, t.Seats, t.Location, t.Status, t.CurrentCustomer, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mapErr("create table", err)
	}
	return nil
}

func (r *repo) UpdateTable(ctx context.Context, t model.Table) error {
	const q = `UPDATE restaurant_tables SET table_number = $2, seats = $3, location = $4,
		status = $5, current_customer = $6, updated_at = $7 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, t.ID, t.TableNumber, t.Seats, t.Location, t.Status, t.CurrentCustomer, t.UpdatedAt)
	return affected("update table", tag, err)
}

func (r *repo) DeleteTable(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM restaurant_tables WHERE id = $1`, id)
	return affected("delete table", tag, err)
}

// ── Orders ──

func (r *repo) ListOrders(ctx context.Context) ([]model.Order, error) {
	const qOrders = `SELECT id, table_id, waiter_id, customer_id, status, notes, created_at, updated_at
		FROM orders ORDER BY created_at, id`
	const qItems = `SELECT id, order_id, menu_item_id, name, unit_price, currency, quantity, status,
		customizations, created_at, updated_at
		FROM order_items ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, qOrders)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var orders []model.Order
	idx := map[uuid.UUID]int{}
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.TableID, &o.WaiterID, &o.CustomerID, &o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Items = []model.OrderItem{}
		idx[o.ID] = len(orders)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	rows, err = r.db.Query(ctx, qItems)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it     model.OrderItem
			price  pgtype.Numeric
			custom []byte
		)
		err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &price, &it.Currency,
			&it.Quantity, &it.Status, &custom, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.UnitPrice = numericToDecimal(price)
		if err := it.Customizations.Scan(custom); err != nil {
			return nil, fmt.Errorf("order item %s: %w", it.ID, err)
		}
		if i, ok := idx[it.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return orders, rows.Err()
}

func (r *repo) CreateOrder(ctx context.Context, o model.Order) error {
	const q = `INSERT INTO orders (id, table_id, waiter_id, customer_id, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, q, o.ID, o.TableID, o.WaiterID, o.CustomerID, o.Status, o.Notes, o.CreatedAt, o.UpdatedAt)
	if err != nil {
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
	const q = `UPDATE orders SET customer_id = $2, status = $3, notes = $4, updated_at = $5 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, o.ID, o.CustomerID, o.Status, o.Notes, o.UpdatedAt)
	return affected("update order", tag, err)
}

func (r *repo) CreateOrderItem(ctx context.Context, it model.OrderItem) error {
	const q = `INSERT INTO order_items (id, order_id, menu_item_id, name, unit_price, currency,
		quantity, status, customizations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	custom, err := it.Customizations.Value()
	if err != nil {
		return fmt.Errorf("encode customizations: %w", err)
	}
	_, err = r.db.Exec(ctx, q, it.ID, it.OrderID, it.MenuItemID, it.Name, decimalToNumeric(it.UnitPrice),
		it.Currency, it.Quantity, it.Status, custom, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return mapErr("create order item", err)
	}
	return nil
}

func (r *repo) UpdateOrderItem(ctx context.Context, it model.OrderItem) error {
	const q = `UPDATE order_items SET status = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, it.ID, it.Status, it.UpdatedAt)
	return affected("update order item", tag, err)
}

// ── Users ──

const userColumns = `id, username, first_name, last_name, email, phone, role, hashed_password, is_active, created_at`

func (r *repo) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *repo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
}

func (r *repo) getUser(ctx context.Context, q string, arg any) (model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName,
		&u.Email, &u.Phone, &u.Role, &u.HashedPassword, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return model.User{}, mapErr("get user", err)
	}
	return u, nil
}

func (r *repo) CreateUser(ctx context.Context, u model.User) error {
	const q = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, q, u.ID, u.Username, u.FirstName, u.LastName, u.Email, u.Phone,
		u.Role, u.HashedPassword, u.IsActive, u.CreatedAt)
	if err != nil {
		return mapErr("create user", err)
	}
	return nil
}

func (r *repo) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY lower(username)`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName,
			&u.Email, &u.Phone, &u.Role, &u.HashedPassword, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *repo) UpdateUser(ctx context.Context, u model.User) error {
	const q = `UPDATE users SET username = $2, first_name = $3, last_name = $4, email = $5,
		phone = $6, role = $7, hashed_password = $8, is_active = $9 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, u.ID, u.Username, u.FirstName, u.LastName, u.Email, u.Phone,
		u.Role, u.HashedPassword, u.IsActive)
	return affected("update user", tag, err)
}

// --- Helpers ---

func mapErr(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	case isUniqueViolation(err), isForeignKeyViolation(err), isCheckViolation(err):
		return fmt.Errorf("%s: %w: %v", op, store.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affected(op string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func pgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func pgInt4(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}

func int4Ptr(v pgtype.Int4) *int32 {
	if !v.Valid {
		return nil
	}
	n := v.Int32
	return &n
}
