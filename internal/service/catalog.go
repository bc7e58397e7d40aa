package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
	"golang.org/x/text/currency"
)

// CurrencyCodes are offered as choices to catalog editors. Any ISO 4217 code
// is accepted on write.
var CurrencyCodes = []string{"INR", "USD", "EUR", "GBP", "AED", "SGD"}

// ImageStore persists menu item pictures and returns the URL they are served at.
type ImageStore interface {
	Save(ctx context.Context, img model.ImageUpload) (string, error)
}

// CategoryPatch carries optional fields for creating or editing a category or
// subcategory. Nil fields are left unchanged (or defaulted on create).
type CategoryPatch struct {
	CategoryID   *uuid.UUID
	Name         *string
	Description  *string
	IsActive     *bool
	DisplayOrder *int32
}

// MenuItemPatch carries optional fields for creating or editing a menu item.
// A SubcategoryID pointing at uuid.Nil clears the subcategory.
type MenuItemPatch struct {
	CategoryID       *uuid.UUID
	SubcategoryID    *uuid.UUID
	Name             *string
	Description      *string
	Price            *decimal.Decimal
	Currency         *string
	TaxPercentage    *decimal.Decimal
	IsAvailable      *bool
	IsActive         *bool
	IsFeatured       *bool
	PrepareTime      *int32
	StockAvailable   *int32
	MaxOrderQuantity *int32
	VariantType      *string
	QuantityValue    *decimal.Decimal
	QuantityUnit     *string
	DisplayOrder     *int32
	ImageURL         *string
	Image            *model.ImageUpload
}

// MenuItemFilter narrows ListMenuItems. Zero value returns everything.
type MenuItemFilter struct {
	CategoryID    *uuid.UUID
	SubcategoryID *uuid.UUID
	AvailableOnly bool
	ActiveOnly    bool
	Search        string
}

// Choice is one selectable value with its display label.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Choices lists the enumerations a catalog editor picks from.
type Choices struct {
	VariantChoices  []Choice `json:"variant_choices"`
	UnitChoices     []Choice `json:"unit_choices"`
	CurrencyChoices []Choice `json:"currency_choices"`
}

type ratingTally struct {
	sum   int64
	count int
}

// CatalogService holds the menu in memory and writes through to its
// repository before applying any change.
type CatalogService struct {
	repo            store.CatalogRepository
	ratingRepo      store.RatingRepository
	images          ImageStore
	defaultCurrency string
	now             func() time.Time

	mu            sync.Mutex
	categories    map[uuid.UUID]model.Category
	subcategories map[uuid.UUID]model.Subcategory
	items         map[uuid.UUID]model.MenuItem
	ratings       map[uuid.UUID]ratingTally
}

// NewCatalogService creates an empty CatalogService. Call Load to hydrate it.
func NewCatalogService(repo store.CatalogRepository, ratings store.RatingRepository, defaultCurrency string) *CatalogService {
	return &CatalogService{
		repo:            repo,
		ratingRepo:      ratings,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
		categories:      map[uuid.UUID]model.Category{},
		subcategories:   map[uuid.UUID]model.Subcategory{},
		items:           map[uuid.UUID]model.MenuItem{},
		ratings:         map[uuid.UUID]ratingTally{},
	}
}

// SetImageStore makes uploads resolve to URLs before they reach the
// repository. Without one, uploads are handed to the repository as-is.
func (s *CatalogService) SetImageStore(images ImageStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = images
}

// Load replaces the in-memory snapshot with the repository contents.
func (s *CatalogService) Load(ctx context.Context) error {
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return persistErr("list categories", err)
	}
	subs, err := s.repo.ListSubcategories(ctx)
	if err != nil {
		return persistErr("list subcategories", err)
	}
	items, err := s.repo.ListMenuItems(ctx)
	if err != nil {
		return persistErr("list menu items", err)
	}
	var ratings []model.ItemRating
	if s.ratingRepo != nil {
		ratings, err = s.ratingRepo.ListRatings(ctx)
		if err != nil {
			return persistErr("list ratings", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = make(map[uuid.UUID]model.Category, len(cats))
	for _, c := range cats {
		s.categories[c.ID] = c
	}
	s.subcategories = make(map[uuid.UUID]model.Subcategory, len(subs))
	for _, sc := range subs {
		s.subcategories[sc.ID] = sc
	}
	s.items = make(map[uuid.UUID]model.MenuItem, len(items))
	for _, m := range items {
		s.items[m.ID] = m
	}
	s.ratings = map[uuid.UUID]ratingTally{}
	for _, r := range ratings {
		if _, ok := s.items[r.ItemID]; !ok {
			continue
		}
		t := s.ratings[r.ItemID]
		t.sum += int64(r.Rating)
		t.count++
		s.ratings[r.ItemID] = t
	}
	return nil
}

// Reload is Load under the name callers use after an external change.
func (s *CatalogService) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// ── Categories ──

func (s *CatalogService) ListCategories() []model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return displayLess(out[i].DisplayOrder, out[i].Name, out[j].DisplayOrder, out[j].Name)
	})
	return out
}

func (s *CatalogService) GetCategory(id uuid.UUID) (model.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	return c, ok
}

func (s *CatalogService) AddCategory(ctx context.Context, p CategoryPatch) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := model.Category{ID: uuid.New(), IsActive: true, CreatedAt: s.now()}
	applyCategoryPatch(&c, p)
	c.Name = strings.TrimSpace(c.Name)
	if err := s.checkCategoryName(c.ID, c.Name); err != nil {
		return model.Category{}, err
	}

	stored, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return model.Category{}, persistErr("create category", err)
	}
	s.categories[stored.ID] = stored
	return stored, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id uuid.UUID, p CategoryPatch) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return model.Category{}, notFoundf("category %s", id)
	}
	applyCategoryPatch(&c, p)
	c.Name = strings.TrimSpace(c.Name)
	if err := s.checkCategoryName(c.ID, c.Name); err != nil {
		return model.Category{}, err
	}

	stored, err := s.repo.UpdateCategory(ctx, c)
	if err != nil {
		return model.Category{}, persistErr("update category", err)
	}
	s.categories[id] = stored
	return stored, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return notFoundf("category %s", id)
	}
	for _, sc := range s.subcategories {
		if sc.CategoryID == id {
			return constraintf("category has subcategories")
		}
	}
	for _, m := range s.items {
		if m.CategoryID == id {
			return constraintf("category has menu items")
		}
	}

	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return persistErr("delete category", err)
	}
	delete(s.categories, id)
	return nil
}

func (s *CatalogService) checkCategoryName(id uuid.UUID, name string) error {
	if name == "" {
		return validationf("name is required")
	}
	for _, other := range s.categories {
		if other.ID != id && strings.EqualFold(other.Name, name) {
			return constraintf("category %q already exists", name)
		}
	}
	return nil
}

// ── Subcategories ──

// ListSubcategories returns all subcategories, or only those of categoryID
// when it is non-nil.
func (s *CatalogService) ListSubcategories(categoryID *uuid.UUID) []model.Subcategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Subcategory, 0, len(s.subcategories))
	for _, sc := range s.subcategories {
		if categoryID != nil && sc.CategoryID != *categoryID {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool {
		return displayLess(out[i].DisplayOrder, out[i].Name, out[j].DisplayOrder, out[j].Name)
	})
	return out
}

func (s *CatalogService) AddSubcategory(ctx context.Context, p CategoryPatch) (model.Subcategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CategoryID == nil {
		return model.Subcategory{}, validationf("main_category is required")
	}
	sc := model.Subcategory{ID: uuid.New(), IsActive: true, CreatedAt: s.now()}
	applySubcategoryPatch(&sc, p)
	sc.Name = strings.TrimSpace(sc.Name)
	if err := s.checkSubcategory(sc); err != nil {
		return model.Subcategory{}, err
	}

	stored, err := s.repo.CreateSubcategory(ctx, sc)
	if err != nil {
		return model.Subcategory{}, persistErr("create subcategory", err)
	}
	s.subcategories[stored.ID] = stored
	return stored, nil
}

func (s *CatalogService) UpdateSubcategory(ctx context.Context, id uuid.UUID, p CategoryPatch) (model.Subcategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.subcategories[id]
	if !ok {
		return model.Subcategory{}, notFoundf("subcategory %s", id)
	}
	oldCategory := sc.CategoryID
	applySubcategoryPatch(&sc, p)
	sc.Name = strings.TrimSpace(sc.Name)
	if err := s.checkSubcategory(sc); err != nil {
		return model.Subcategory{}, err
	}
	if sc.CategoryID != oldCategory {
		for _, m := range s.items {
			if m.SubcategoryID != nil && *m.SubcategoryID == id {
				return model.Subcategory{}, constraintf("subcategory has menu items in its current category")
			}
		}
	}

	stored, err := s.repo.UpdateSubcategory(ctx, sc)
	if err != nil {
		return model.Subcategory{}, persistErr("update subcategory", err)
	}
	s.subcategories[id] = stored
	return stored, nil
}

func (s *CatalogService) DeleteSubcategory(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subcategories[id]; !ok {
		return notFoundf("subcategory %s", id)
	}
	for _, m := range s.items {
		if m.SubcategoryID != nil && *m.SubcategoryID == id {
			return constraintf("subcategory has menu items")
		}
	}

	if err := s.repo.DeleteSubcategory(ctx, id); err != nil {
		return persistErr("delete subcategory", err)
	}
	delete(s.subcategories, id)
	return nil
}

func (s *CatalogService) checkSubcategory(sc model.Subcategory) error {
	if sc.Name == "" {
		return validationf("name is required")
	}
	if _, ok := s.categories[sc.CategoryID]; !ok {
		return validationf("main_category %s does not exist", sc.CategoryID)
	}
	for _, other := range s.subcategories {
		if other.ID != sc.ID && other.CategoryID == sc.CategoryID && strings.EqualFold(other.Name, sc.Name) {
			return constraintf("subcategory %q already exists in this category", sc.Name)
		}
	}
	return nil
}

// ── Menu items ──

func (s *CatalogService) ListMenuItems(f MenuItemFilter) []model.MenuItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.MenuItem, 0, len(s.items))
	for _, m := range s.items {
		if f.CategoryID != nil && m.CategoryID != *f.CategoryID {
			continue
		}
		if f.SubcategoryID != nil && (m.SubcategoryID == nil || *m.SubcategoryID != *f.SubcategoryID) {
			continue
		}
		if f.AvailableOnly && !m.IsAvailable {
			continue
		}
		if f.ActiveOnly && !m.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Name), search) {
			continue
		}
		out = append(out, s.withRatings(m))
	}
	sort.Slice(out, func(i, j int) bool {
		return displayLess(out[i].DisplayOrder, out[i].Name, out[j].DisplayOrder, out[j].Name)
	})
	return out
}

// ResolveMenuItem returns the current catalog entry for id.
func (s *CatalogService) ResolveMenuItem(id uuid.UUID) (model.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return model.MenuItem{}, notFoundf("menu item %s", id)
	}
	return s.withRatings(m), nil
}

func (s *CatalogService) AddMenuItem(ctx context.Context, p MenuItemPatch) (model.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m := model.MenuItem{
		ID:           uuid.New(),
		Currency:     s.defaultCurrency,
		IsAvailable:  true,
		IsActive:     true,
		VariantType:  enum.VariantTypeNone,
		QuantityUnit: enum.UnitPiece,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.CategoryID == nil {
		return model.MenuItem{}, validationf("main_category is required")
	}
	if p.Price == nil {
		return model.MenuItem{}, validationf("price is required")
	}
	if err := s.applyMenuItemPatch(&m, p); err != nil {
		return model.MenuItem{}, err
	}
	if err := s.resolveImage(ctx, &m); err != nil {
		return model.MenuItem{}, err
	}

	stored, err := s.repo.CreateMenuItem(ctx, m)
	if err != nil {
		return model.MenuItem{}, persistErr("create menu item", err)
	}
	stored.Image = nil
	s.items[stored.ID] = stored
	return s.withRatings(stored), nil
}

func (s *CatalogService) UpdateMenuItem(ctx context.Context, id uuid.UUID, p MenuItemPatch) (model.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.items[id]
	if !ok {
		return model.MenuItem{}, notFoundf("menu item %s", id)
	}
	if err := s.applyMenuItemPatch(&m, p); err != nil {
		return model.MenuItem{}, err
	}
	if err := s.resolveImage(ctx, &m); err != nil {
		return model.MenuItem{}, err
	}
	m.UpdatedAt = s.now()

	stored, err := s.repo.UpdateMenuItem(ctx, m)
	if err != nil {
		return model.MenuItem{}, persistErr("update menu item", err)
	}
	stored.Image = nil
	s.items[id] = stored
	return s.withRatings(stored), nil
}

func (s *CatalogService) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return notFoundf("menu item %s", id)
	}
	if err := s.repo.DeleteMenuItem(ctx, id); err != nil {
		return persistErr("delete menu item", err)
	}
	delete(s.items, id)
	delete(s.ratings, id)

	// The item is already gone; orphaned ratings are skipped on Load.
	if s.ratingRepo != nil {
		if err := s.ratingRepo.DeleteRatingsForItem(ctx, id); err != nil {
			log.Printf("WARN: delete ratings for menu item %s: %v", id, err)
		}
	}
	return nil
}

// applyMenuItemPatch writes p onto m and validates the result. m is a copy;
// on error the caller discards it.
func (s *CatalogService) applyMenuItemPatch(m *model.MenuItem, p MenuItemPatch) error {
	if p.CategoryID != nil {
		m.CategoryID = *p.CategoryID
	}
	if p.SubcategoryID != nil {
		if *p.SubcategoryID == uuid.Nil {
			m.SubcategoryID = nil
		} else {
			id := *p.SubcategoryID
			m.SubcategoryID = &id
		}
	}
	if p.Name != nil {
		m.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.Price != nil {
		m.Price = *p.Price
	}
	if p.Currency != nil {
		m.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.TaxPercentage != nil {
		m.TaxPercentage = *p.TaxPercentage
	}
	if p.IsAvailable != nil {
		m.IsAvailable = *p.IsAvailable
	}
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}
	if p.IsFeatured != nil {
		m.IsFeatured = *p.IsFeatured
	}
	if p.PrepareTime != nil {
		m.PrepareTime = int32Ptr(*p.PrepareTime)
	}
	if p.StockAvailable != nil {
		m.StockAvailable = int32Ptr(*p.StockAvailable)
	}
	if p.MaxOrderQuantity != nil {
		m.MaxOrderQuantity = int32Ptr(*p.MaxOrderQuantity)
	}
	if p.VariantType != nil {
		m.VariantType = *p.VariantType
	}
	if p.QuantityValue != nil {
		m.QuantityValue = *p.QuantityValue
	}
	if p.QuantityUnit != nil {
		m.QuantityUnit = *p.QuantityUnit
	}
	if p.DisplayOrder != nil {
		m.DisplayOrder = *p.DisplayOrder
	}
	if p.ImageURL != nil {
		m.ImageURL = *p.ImageURL
	}
	m.Image = p.Image

	// --- Validate ---
	if m.Name == "" {
		return validationf("name is required")
	}
	if !m.Price.IsPositive() {
		return validationf("price must be greater than zero")
	}
	if _, ok := s.categories[m.CategoryID]; !ok {
		return validationf("main_category %s does not exist", m.CategoryID)
	}
	if m.SubcategoryID != nil {
		sc, ok := s.subcategories[*m.SubcategoryID]
		if !ok {
			return validationf("sub_category %s does not exist", *m.SubcategoryID)
		}
		if sc.CategoryID != m.CategoryID {
			return validationf("sub_category does not belong to main_category")
		}
	}
	if _, err := currency.ParseISO(m.Currency); err != nil {
		return validationf("invalid currency %q", m.Currency)
	}
	if m.TaxPercentage.IsNegative() {
		return validationf("tax_percentage must not be negative")
	}
	if m.QuantityValue.IsNegative() {
		return validationf("quantity_value must not be negative")
	}
	for name, v := range map[string]*int32{
		"prepare_time":       m.PrepareTime,
		"stock_available":    m.StockAvailable,
		"max_order_quantity": m.MaxOrderQuantity,
	} {
		if v != nil && *v < 0 {
			return validationf("%s must not be negative", name)
		}
	}
	if !contains(enum.VariantTypes, m.VariantType) {
		return validationf("invalid variant_type %q", m.VariantType)
	}
	if !contains(enum.Units, m.QuantityUnit) {
		return validationf("invalid quantity_unit %q", m.QuantityUnit)
	}
	return nil
}

func (s *CatalogService) resolveImage(ctx context.Context, m *model.MenuItem) error {
	if m.Image == nil || s.images == nil {
		return nil
	}
	url, err := s.images.Save(ctx, *m.Image)
	if err != nil {
		return persistErr("save image", err)
	}
	m.ImageURL = url
	m.Image = nil
	return nil
}

// ── Ratings ──

// RecordRating appends a rating and returns the item with its refreshed
// average and count.
func (s *CatalogService) RecordRating(ctx context.Context, r model.ItemRating) (model.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Rating < 1 || r.Rating > 5 {
		return model.MenuItem{}, validationf("rating must be between 1 and 5")
	}
	m, ok := s.items[r.ItemID]
	if !ok {
		return model.MenuItem{}, notFoundf("menu item %s", r.ItemID)
	}
	if s.ratingRepo == nil {
		return model.MenuItem{}, fmt.Errorf("%w: ratings are not configured", ErrCollaborator)
	}
	r.ID = uuid.New()
	r.CreatedAt = s.now()

	if err := s.ratingRepo.CreateRating(ctx, r); err != nil {
		return model.MenuItem{}, persistErr("create rating", err)
	}
	t := s.ratings[r.ItemID]
	t.sum += int64(r.Rating)
	t.count++
	s.ratings[r.ItemID] = t
	return s.withRatings(m), nil
}

func (s *CatalogService) withRatings(m model.MenuItem) model.MenuItem {
	t := s.ratings[m.ID]
	m.TotalRatings = t.count
	m.AverageRating = 0
	if t.count > 0 {
		m.AverageRating = float64(t.sum) / float64(t.count)
	}
	return m
}

// ── Choices ──

func (s *CatalogService) Choices() Choices {
	c := Choices{}
	for _, v := range enum.VariantTypes {
		c.VariantChoices = append(c.VariantChoices, Choice{Value: v, Label: titleCase(v)})
	}
	for _, u := range enum.Units {
		c.UnitChoices = append(c.UnitChoices, Choice{Value: u, Label: u})
	}
	for _, code := range CurrencyCodes {
		c.CurrencyChoices = append(c.CurrencyChoices, Choice{Value: code, Label: code + " (" + CurrencySymbol(code) + ")"})
	}
	return c
}

// CurrencySymbol returns the display symbol for an ISO code, or the code
// itself when it is not recognised.
func CurrencySymbol(code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code
	}
	return fmt.Sprint(currency.Symbol(unit))
}

// --- Helpers ---

func applyCategoryPatch(c *model.Category, p CategoryPatch) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.DisplayOrder != nil {
		c.DisplayOrder = *p.DisplayOrder
	}
}

func applySubcategoryPatch(sc *model.Subcategory, p CategoryPatch) {
	if p.CategoryID != nil {
		sc.CategoryID = *p.CategoryID
	}
	if p.Name != nil {
		sc.Name = *p.Name
	}
	if p.Description != nil {
		sc.Description = *p.Description
	}
	if p.IsActive != nil {
		sc.IsActive = *p.IsActive
	}
	if p.DisplayOrder != nil {
		sc.DisplayOrder = *p.DisplayOrder
	}
}

func displayLess(ai int32, an string, bi int32, bn string) bool {
	if ai != bi {
		return ai < bi
	}
	return strings.ToLower(an) < strings.ToLower(bn)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func int32Ptr(v int32) *int32 { return &v }
