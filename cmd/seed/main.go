package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/auth"
	"github.com/tablefront/pos/internal/config"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/events"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/service"
	"github.com/tablefront/pos/internal/store"
	"github.com/tablefront/pos/internal/store/backend"
)

type seedUser struct {
	username, password, first, last, email, phone, role string
}

type seedItem struct {
	category, name, description, price string
	prepareTime                        int32
}

var demoUsers = []seedUser{
	{"waiter", "waiter123", "John", "Waiter", "waiter@restaurant.com", "+1-555-0102", enum.UserRoleWaiter},
	{"chef", "chef123", "Chef", "Master", "chef@restaurant.com", "+1-555-0103", enum.UserRoleChef},
	{"customer", "customer123", "Guest", "Customer", "customer@restaurant.com", "+1-555-0104", enum.UserRoleCustomer},
}

var demoCategories = [][2]string{
	{"Appetizers", "Start your meal with our delicious appetizers"},
	{"Main Course", "Hearty and satisfying main dishes"},
	{"Desserts", "Sweet treats to end your meal"},
	{"Beverages", "Refreshing drinks and beverages"},
}

var demoItems = []seedItem{
	{"Appetizers", "Spring Rolls", "Crispy vegetable spring rolls with sweet chili sauce", "120", 10},
	{"Appetizers", "Paneer Tikka", "Grilled cottage cheese marinated in spices", "180", 15},
	{"Main Course", "Butter Chicken", "Creamy tomato-based curry with tender chicken", "320", 20},
	{"Main Course", "Dal Makhani", "Slow-cooked black lentils in butter and cream", "220", 20},
	{"Desserts", "Gulab Jamun", "Soft milk dumplings soaked in rose syrup", "80", 5},
	{"Beverages", "Mango Lassi", "Chilled yogurt drink blended with mango", "90", 5},
}

var demoTables = []struct {
	number   string
	seats    int32
	location string
}{
	{"1", 4, "Main Hall"},
	{"2", 2, "Main Hall"},
	{"3", 6, "Garden"},
	{"4", 4, "Garden"},
	{"5", 8, "Private Room"},
}

func main() {
	// CLI flags
	username := flag.String("username", "", "Admin username")
	password := flag.String("password", "", "Admin password")
	name := flag.String("name", "", "Admin full name")
	demo := flag.Bool("demo", false, "Also seed demo staff, menu and floor plan")
	flag.Parse()

	// Fall back to environment variables
	if *username == "" {
		*username = os.Getenv("SEED_USERNAME")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *name == "" {
		*name = os.Getenv("SEED_NAME")
	}

	// Fall back to defaults
	if *username == "" {
		*username = "admin"
	}
	if *password == "" {
		*password = "admin123"
		log.Println("WARNING: Using default password 'admin123'. Change immediately in production!")
	}
	if *name == "" {
		*name = "Admin User"
	}

	cfg := config.Load()
	ctx := context.Background()

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()

	first, last, _ := strings.Cut(*name, " ")
	if err := seedAccount(ctx, st, seedUser{
		username: *username,
		password: *password,
		first:    first,
		last:     last,
		email:    "admin@restaurant.com",
		phone:    "+1-555-0101",
		role:     enum.UserRoleAdmin,
	}); err != nil {
		log.Fatalf("Failed to seed admin: %v", err)
	}

	if !*demo {
		log.Println("Seed completed successfully!")
		return
	}

	for _, u := range demoUsers {
		if err := seedAccount(ctx, st, u); err != nil {
			log.Fatalf("Failed to seed user %s: %v", u.username, err)
		}
	}
	if err := seedMenu(ctx, st, cfg.DefaultCurrency); err != nil {
		log.Fatalf("Failed to seed menu: %v", err)
	}
	if err := seedTables(ctx, st); err != nil {
		log.Fatalf("Failed to seed tables: %v", err)
	}

	log.Println("Seed completed successfully!")
}

// seedAccount creates the user unless the username is already taken.
func seedAccount(ctx context.Context, st store.Store, u seedUser) error {
	if _, err := st.GetUserByUsername(ctx, u.username); err == nil {
		log.Printf("User %s already exists, skipping", u.username)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(u.password)
	if err != nil {
		return err
	}
	if err := st.CreateUser(ctx, model.User{
		ID:             uuid.New(),
		Username:       u.username,
		FirstName:      u.first,
		LastName:       u.last,
		Email:          u.email,
		Phone:          u.phone,
		Role:           u.role,
		HashedPassword: hash,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}); err != nil {
		return err
	}
	log.Printf("Created %s user: %s", u.role, u.username)
	return nil
}

// seedMenu adds the demo categories and items that are not present yet,
// matching by name.
func seedMenu(ctx context.Context, st store.Store, currency string) error {
	catalog := service.NewCatalogService(st, st, currency)
	if err := catalog.Load(ctx); err != nil {
		return err
	}

	categories := make(map[string]uuid.UUID)
	for _, c := range catalog.ListCategories() {
		categories[c.Name] = c.ID
	}
	for i, c := range demoCategories {
		if _, ok := categories[c[0]]; ok {
			continue
		}
		order := int32(i + 1)
		created, err := catalog.AddCategory(ctx, service.CategoryPatch{
			Name:         &c[0],
			Description:  &c[1],
			DisplayOrder: &order,
		})
		if err != nil {
			return err
		}
		categories[created.Name] = created.ID
		log.Printf("Created category: %s", created.Name)
	}

	items := make(map[string]bool)
	for _, m := range catalog.ListMenuItems(service.MenuItemFilter{}) {
		items[m.Name] = true
	}
	for _, it := range demoItems {
		if items[it.name] {
			continue
		}
		categoryID := categories[it.category]
		price := decimal.RequireFromString(it.price)
		if _, err := catalog.AddMenuItem(ctx, service.MenuItemPatch{
			CategoryID:  &categoryID,
			Name:        &it.name,
			Description: &it.description,
			Price:       &price,
			PrepareTime: &it.prepareTime,
		}); err != nil {
			return err
		}
		log.Printf("Created menu item: %s (%s %s)", it.name, currency, price.StringFixed(2))
	}
	return nil
}

// seedTables adds the demo floor plan, skipping table numbers already in use.
func seedTables(ctx context.Context, st store.Store) error {
	tables := service.NewTableService(st, events.Noop{})
	if err := tables.Load(ctx); err != nil {
		return err
	}

	existing := make(map[string]bool)
	for _, t := range tables.ListTables("") {
		existing[t.TableNumber] = true
	}
	for _, t := range demoTables {
		if existing[t.number] {
			continue
		}
		if _, err := tables.AddTable(ctx, service.TablePatch{
			TableNumber: &t.number,
			Seats:       &t.seats,
			Location:    &t.location,
		}); err != nil {
			return err
		}
		log.Printf("Created table %s (%d seats, %s)", t.number, t.seats, t.location)
	}
	return nil
}
