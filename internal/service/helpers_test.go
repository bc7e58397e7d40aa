package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/events"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
	"github.com/tablefront/pos/internal/store/memstore"
)

var errBoom = errors.New("disk on fire")

// failingStore wraps a real store and fails writes once fail is set.
type failingStore struct {
	store.Store
	fail error
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	if f.fail != nil {
		return f.fail
	}
	return f.Store.WithinTx(ctx, fn)
}

func (f *failingStore) UpdateTable(ctx context.Context, t model.Table) error {
	if f.fail != nil {
		return f.fail
	}
	return f.Store.UpdateTable(ctx, t)
}

func (f *failingStore) CreateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	if f.fail != nil {
		return model.Category{}, f.fail
	}
	return f.Store.CreateCategory(ctx, c)
}

func (f *failingStore) CreateRating(ctx context.Context, r model.ItemRating) error {
	if f.fail != nil {
		return f.fail
	}
	return f.Store.CreateRating(ctx, r)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx     context.Context
	store   *failingStore
	pub     *recordingPublisher
	catalog *CatalogService
	tables  *TableService
	orders  *OrderService

	category    model.Category
	springRolls model.MenuItem
	gulabJamun  model.MenuItem
	table       model.Table
	waiterID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := &failingStore{Store: memstore.New()}
	pub := &recordingPublisher{}

	catalog := NewCatalogService(st, st, "INR")
	tables := NewTableService(st, pub)
	orders := NewOrderService(st, tables, catalog, OrderConfig{
		TaxRate:   decimal.RequireFromString("0.10"),
		Pricing:   enum.PricingSnapshot,
		Currency:  "INR",
		Publisher: pub,
	})

	cat, err := catalog.AddCategory(ctx, CategoryPatch{Name: ptr("Appetizers")})
	require.NoError(t, err)
	springRolls, err := catalog.AddMenuItem(ctx, MenuItemPatch{
		CategoryID: &cat.ID,
		Name:       ptr("Spring Rolls"),
		Price:      ptr(decimal.NewFromInt(120)),
	})
	require.NoError(t, err)
	gulabJamun, err := catalog.AddMenuItem(ctx, MenuItemPatch{
		CategoryID: &cat.ID,
		Name:       ptr("Gulab Jamun"),
		Price:      ptr(decimal.NewFromInt(80)),
	})
	require.NoError(t, err)
	table, err := tables.AddTable(ctx, TablePatch{
		TableNumber: ptr("1"),
		Seats:       ptr(int32(4)),
		Location:    ptr("Main Hall"),
	})
	require.NoError(t, err)

	return &fixture{
		ctx:         ctx,
		store:       st,
		pub:         pub,
		catalog:     catalog,
		tables:      tables,
		orders:      orders,
		category:    cat,
		springRolls: springRolls,
		gulabJamun:  gulabJamun,
		table:       table,
		waiterID:    uuid.New(),
	}
}

func (f *fixture) addTable(t *testing.T, number string) model.Table {
	t.Helper()
	tb, err := f.tables.AddTable(f.ctx, TablePatch{TableNumber: ptr(number), Seats: ptr(int32(2))})
	require.NoError(t, err)
	return tb
}

func (f *fixture) tableStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()
	tb, ok := f.tables.GetTable(id)
	require.True(t, ok)
	return tb.Status
}

// requireOccupancyInvariant checks that every table is occupied exactly when
// an active order references it.
func (f *fixture) requireOccupancyInvariant(t *testing.T) {
	t.Helper()
	for _, tb := range f.tables.ListTables("") {
		_, active := f.orders.ActiveOrderForTable(tb.ID)
		require.Equal(t, active, tb.Status == enum.TableStatusOccupied,
			"table %s status %s, active order %v", tb.TableNumber, tb.Status, active)
	}
}

func ptr[T any](v T) *T { return &v }
