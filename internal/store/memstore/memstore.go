// Package memstore is an in-process store.Store. Transactions run against a
// copy of the data set that replaces the original on success.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

type dataset struct {
	categories    map[uuid.UUID]model.Category
	subcategories map[uuid.UUID]model.Subcategory
	items         map[uuid.UUID]model.MenuItem
	ratings       []model.ItemRating
	tables        map[uuid.UUID]model.Table
	orders        map[uuid.UUID]model.Order
	users         map[uuid.UUID]model.User
}

func newDataset() *dataset {
	return &dataset{
		categories:    map[uuid.UUID]model.Category{},
		subcategories: map[uuid.UUID]model.Subcategory{},
		items:         map[uuid.UUID]model.MenuItem{},
		tables:        map[uuid.UUID]model.Table{},
		orders:        map[uuid.UUID]model.Order{},
		users:         map[uuid.UUID]model.User{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.subcategories {
		c.subcategories[k] = v
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	c.ratings = append([]model.ItemRating(nil), d.ratings...)
	for k, v := range d.tables {
		c.tables[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	return c
}

// repo implements store.Repository over a dataset guarded by mu.
type repo struct {
	mu *sync.Mutex
	d  *dataset
}

// Store is a store.Store held entirely in memory.
type Store struct {
	*repo
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{repo: &repo{mu: &sync.Mutex{}, d: newDataset()}}
}

// WithinTx runs fn against a private copy of the data. Other callers wait
// until the transaction finishes.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &repo{mu: &sync.Mutex{}, d: s.d.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.d = tx.d
	return nil
}

func (s *Store) Close() error { return nil }

// ── Catalog ──

func (r *repo) ListCategories(ctx context.Context) ([]model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Category, 0, len(r.d.categories))
	for _, c := range r.d.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *repo) CreateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.d.categories {
		if strings.EqualFold(other.Name, c.Name) {
			return model.Category{}, store.ErrConflict
		}
	}
	r.d.categories[c.ID] = c
	return c, nil
}

func (r *repo) UpdateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.categories[c.ID]; !ok {
		return model.Category{}, store.ErrNotFound
	}
	r.d.categories[c.ID] = c
	return c, nil
}

func (r *repo) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.categories[id]; !ok {
		return store.ErrNotFound
	}
	for _, sc := range r.d.subcategories {
		if sc.CategoryID == id {
			return store.ErrConflict
		}
	}
	for _, m := range r.d.items {
		if m.CategoryID == id {
			return store.ErrConflict
		}
	}
	delete(r.d.categories, id)
	return nil
}

func (r *repo) ListSubcategories(ctx context.Context) ([]model.Subcategory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Subcategory, 0, len(r.d.subcategories))
	for _, sc := range r.d.subcategories {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *repo) CreateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.categories[sc.CategoryID]; !ok {
		return model.Subcategory{}, store.ErrConflict
	}
	r.d.subcategories[sc.ID] = sc
	return sc, nil
}

func (r *repo) UpdateSubcategory(ctx context.Context, sc model.Subcategory) (model.Subcategory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.subcategories[sc.ID]; !ok {
		return model.Subcategory{}, store.ErrNotFound
	}
	r.d.subcategories[sc.ID] = sc
	return sc, nil
}

func (r *repo) DeleteSubcategory(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.subcategories[id]; !ok {
		return store.ErrNotFound
	}
	for _, m := range r.d.items {
		if m.SubcategoryID != nil && *m.SubcategoryID == id {
			return store.ErrConflict
		}
	}
	delete(r.d.subcategories, id)
	return nil
}

func (r *repo) ListMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.MenuItem, 0, len(r.d.items))
	for _, m := range r.d.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *repo) CreateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.categories[m.CategoryID]; !ok {
		return model.MenuItem{}, store.ErrConflict
	}
	m.Image = nil
	r.d.items[m.ID] = m
	return m, nil
}

func (r *repo) UpdateMenuItem(ctx context.Context, m model.MenuItem) (model.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.items[m.ID]; !ok {
		return model.MenuItem{}, store.ErrNotFound
	}
	m.Image = nil
	r.d.items[m.ID] = m
	return m, nil
}

func (r *repo) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.d.items, id)
	return nil
}

// ── Ratings ──

func (r *repo) ListRatings(ctx context.Context) ([]model.ItemRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ItemRating(nil), r.d.ratings...), nil
}

func (r *repo) CreateRating(ctx context.Context, rt model.ItemRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.ratings = append(r.d.ratings, rt)
	return nil
}

func (r *repo) DeleteRatingsForItem(ctx context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.d.ratings[:0]
	for _, rt := range r.d.ratings {
		if rt.ItemID != itemID {
			kept = append(kept, rt)
		}
	}
	r.d.ratings = kept
	return nil
}

// ── Tables ──

func (r *repo) ListTables(ctx context.Context) ([]model.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Table, 0, len(r.d.tables))
	for _, t := range r.d.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (r *repo) CreateTable(ctx context.Context, t model.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.d.tables {
		if other.TableNumber == t.TableNumber {
			return store.ErrConflict
		}
	}
	r.d.tables[t.ID] = t
	return nil
}

func (r *repo) UpdateTable(ctx context.Context, t model.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.tables[t.ID]; !ok {
		return store.ErrNotFound
	}
	for _, other := range r.d.tables {
		if other.ID != t.ID && other.TableNumber == t.TableNumber {
			return store.ErrConflict
		}
	}
	r.d.tables[t.ID] = t
	return nil
}

func (r *repo) DeleteTable(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.tables[id]; !ok {
		return store.ErrNotFound
	}
	for _, o := range r.d.orders {
		if o.TableID == id {
			return store.ErrConflict
		}
	}
	delete(r.d.tables, id)
	return nil
}

// ── Orders ──

func (r *repo) ListOrders(ctx context.Context) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Order, 0, len(r.d.orders))
	for _, o := range r.d.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *repo) CreateOrder(ctx context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.orders[o.ID]; ok {
		return store.ErrConflict
	}
	if _, ok := r.d.tables[o.TableID]; !ok {
		return store.ErrConflict
	}
	r.d.orders[o.ID] = o.Clone()
	return nil
}

func (r *repo) UpdateOrder(ctx context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.d.orders[o.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.CustomerID = o.CustomerID
	cur.Status = o.Status
	cur.Notes = o.Notes
	cur.UpdatedAt = o.UpdatedAt
	r.d.orders[o.ID] = cur
	return nil
}

func (r *repo) CreateOrderItem(ctx context.Context, it model.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.d.orders[it.OrderID]
	if !ok {
		return store.ErrConflict
	}
	o.Items = append(o.Items, it.Clone())
	r.d.orders[o.ID] = o
	return nil
}

func (r *repo) UpdateOrderItem(ctx context.Context, it model.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.d.orders[it.OrderID]
	if !ok {
		return store.ErrNotFound
	}
	idx := o.ItemIndex(it.ID)
	if idx < 0 {
		return store.ErrNotFound
	}
	o.Items[idx].Status = it.Status
	o.Items[idx].UpdatedAt = it.UpdatedAt
	r.d.orders[o.ID] = o
	return nil
}

// ── Users ──

func (r *repo) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.d.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *repo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.d.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (r *repo) CreateUser(ctx context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.d.users {
		if strings.EqualFold(other.Username, u.Username) {
			return store.ErrConflict
		}
	}
	r.d.users[u.ID] = u
	return nil
}

func (r *repo) ListUsers(ctx context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.d.users))
	for _, u := range r.d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out, nil
}

func (r *repo) UpdateUser(ctx context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.d.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range r.d.users {
		if id != u.ID && strings.EqualFold(other.Username, u.Username) {
			return store.ErrConflict
		}
	}
	u.CreatedAt = old.CreatedAt
	r.d.users[u.ID] = u
	return nil
}
