//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/service"
	"github.com/tablefront/pos/internal/store"
	"github.com/tablefront/pos/internal/store/postgres"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresStore runs the repository contract and one full seating against a real database.
func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := postgres.Migrate(connStr); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run must be a no-op.
	if err := postgres.Migrate(connStr); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	s, err := postgres.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)

	// --- Catalog ---
	cat, err := s.CreateCategory(ctx, model.Category{ID: uuid.New(), Name: "Appetizers", IsActive: true, CreatedAt: now})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := s.CreateCategory(ctx, model.Category{ID: uuid.New(), Name: "APPETIZERS", CreatedAt: now}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate category: expected ErrConflict, got %v", err)
	}

	maxQty := int32(10)
	rolls := model.MenuItem{
		ID: uuid.New(), CategoryID: cat.ID, Name: "Spring Rolls",
		Price: decimal.NewFromInt(120), Currency: "INR", TaxPercentage: decimal.NewFromInt(5),
		IsAvailable: true, IsActive: true, MaxOrderQuantity: &maxQty,
		VariantType: "none", QuantityValue: decimal.NewFromInt(6), QuantityUnit: "pcs",
		CreatedAt: now, UpdatedAt: now,
	}
	if _, err := s.CreateMenuItem(ctx, rolls); err != nil {
		t.Fatalf("create menu item: %v", err)
	}
	items, err := s.ListMenuItems(ctx)
	if err != nil {
		t.Fatalf("list menu items: %v", err)
	}
	if len(items) != 1 || !items[0].Price.Equal(rolls.Price) || items[0].SubcategoryID != nil {
		t.Fatalf("unexpected menu items: %+v", items)
	}
	if items[0].MaxOrderQuantity == nil || *items[0].MaxOrderQuantity != 10 {
		t.Fatalf("max_order_quantity not round-tripped: %+v", items[0].MaxOrderQuantity)
	}
	if err := s.DeleteCategory(ctx, cat.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("delete referenced category: expected ErrConflict, got %v", err)
	}
	if err := s.DeleteMenuItem(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete missing item: expected ErrNotFound, got %v", err)
	}

	// --- Ratings are not tied to the local catalog ---
	if err := s.CreateRating(ctx, model.ItemRating{ID: uuid.New(), ItemID: uuid.New(), Rating: 4, CreatedAt: now}); err != nil {
		t.Fatalf("rating for a remote item: %v", err)
	}
	if err := s.CreateRating(ctx, model.ItemRating{ID: uuid.New(), ItemID: rolls.ID, Rating: 5, CreatedAt: now}); err != nil {
		t.Fatalf("create rating: %v", err)
	}
	if err := s.DeleteRatingsForItem(ctx, rolls.ID); err != nil {
		t.Fatalf("delete ratings: %v", err)
	}
	if ratings, err := s.ListRatings(ctx); err != nil || len(ratings) != 1 {
		t.Fatalf("expected 1 rating left, got %d (%v)", len(ratings), err)
	}

	// --- Users ---
	chef := model.User{ID: uuid.New(), Username: "chef", Role: "chef", HashedPassword: "x", IsActive: true, CreatedAt: now}
	if err := s.CreateUser(ctx, chef); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, model.User{ID: uuid.New(), Username: "Admin", Role: "admin", HashedPassword: "y", IsActive: true, CreatedAt: now}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	chef.IsActive = false
	if err := s.UpdateUser(ctx, chef); err != nil {
		t.Fatalf("update user: %v", err)
	}
	chef.Username = "ADMIN"
	if err := s.UpdateUser(ctx, chef); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("rename onto taken username: expected ErrConflict, got %v", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0].Username != "Admin" || users[1].IsActive {
		t.Fatalf("unexpected users: %+v", users)
	}

	// --- Tables + orders through the services ---
	table := model.Table{ID: uuid.New(), TableNumber: "1", Seats: 4, Location: "Main Hall", Status: "available", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateTable(ctx, table); err != nil {
		t.Fatalf("create table: %v", err)
	}

	catalog := service.NewCatalogService(s, s, "INR")
	if err := catalog.Load(ctx); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	tables := service.NewTableService(s, nil)
	if err := tables.Load(ctx); err != nil {
		t.Fatalf("load tables: %v", err)
	}
	orders := service.NewOrderService(s, tables, catalog, service.OrderConfig{TaxRate: decimal.RequireFromString("0.10"), Currency: "INR"})
	if err := orders.Load(ctx); err != nil {
		t.Fatalf("load orders: %v", err)
	}

	waiter := uuid.New()
	order, err := orders.CreateOrUpdateOrder(ctx, table.ID, waiter, "Alice", []service.OrderItemInput{
		{MenuItemID: rolls.ID, Quantity: 2, Customizations: []string{"extra sauce"}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// The partial unique index rejects a second active order for the table.
	dup := model.Order{ID: uuid.New(), TableID: table.ID, WaiterID: waiter, Status: "pending", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateOrder(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second active order: expected ErrConflict, got %v", err)
	}

	bill, err := orders.ComputeBill(order.ID)
	if err != nil {
		t.Fatalf("compute bill: %v", err)
	}
	if bill.Total.StringFixed(2) != "264.00" {
		t.Fatalf("expected total 264.00, got %s", bill.Total.StringFixed(2))
	}

	if _, err := orders.CloseOrder(ctx, table.ID); err != nil {
		t.Fatalf("close order: %v", err)
	}

	// A fresh set of engines must see the persisted state.
	reloaded := service.NewTableService(s, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload tables: %v", err)
	}
	got, ok := reloaded.GetTable(table.ID)
	if !ok {
		t.Fatalf("table %s missing after reload", table.ID)
	}
	if got.Status != "cleaning" {
		t.Fatalf("expected cleaning, got %s", got.Status)
	}

	stored, err := s.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(stored) != 1 || stored[0].Status != "served" || len(stored[0].Items) != 1 {
		t.Fatalf("unexpected stored orders: %+v", stored)
	}
	if got := stored[0].Items[0].Customizations; len(got) != 1 || got[0] != "extra sauce" {
		t.Fatalf("customizations not round-tripped: %v", got)
	}
}

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}
