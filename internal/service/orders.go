package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/events"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

// MenuResolver looks up the current catalog entry for a menu item.
// Satisfied by *CatalogService.
type MenuResolver interface {
	ResolveMenuItem(id uuid.UUID) (model.MenuItem, error)
}

// allowedItemTransitions defines valid order item status transitions.
// Key is current status, value is the set of statuses it can move to.
var allowedItemTransitions = map[string][]string{
	enum.OrderItemStatusPending:    {enum.OrderItemStatusInProgress, enum.OrderItemStatusCancelled},
	enum.OrderItemStatusInProgress: {enum.OrderItemStatusReady},
}

// validateItemTransition checks if the transition from current to next is allowed.
func validateItemTransition(current, next string) error {
	allowed, ok := allowedItemTransitions[current]
	if !ok {
		return transitionf("cannot transition item from %s", current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return transitionf("cannot transition item from %s to %s", current, next)
}

// OrderItemInput is a single line requested by a waiter.
type OrderItemInput struct {
	MenuItemID     uuid.UUID
	Quantity       int32
	Customizations []string
}

// OrderFilter narrows ListOrders. Zero value returns everything.
type OrderFilter struct {
	TableID    *uuid.UUID
	Status     string
	ActiveOnly bool
}

// KitchenTicket is one cookable line with the table it goes to.
type KitchenTicket struct {
	OrderID     uuid.UUID       `json:"order_id"`
	TableID     uuid.UUID       `json:"table_id"`
	TableNumber string          `json:"table_number"`
	Item        model.OrderItem `json:"item"`
}

// KitchenQueue groups the lines of active orders by cooking stage.
type KitchenQueue struct {
	Pending    []KitchenTicket `json:"pending"`
	InProgress []KitchenTicket `json:"in_progress"`
	Ready      []KitchenTicket `json:"ready"`
}

// OrderConfig holds the billing policy and collaborators of an OrderService.
type OrderConfig struct {
	TaxRate   decimal.Decimal
	Pricing   string // enum.PricingSnapshot or enum.PricingCatalog
	Currency  string // used on bills with no lines
	Publisher events.Publisher
}

// OrderService owns the order aggregates. It writes orders and their table
// in one store transaction and applies the result to memory afterwards.
type OrderService struct {
	store   store.Store
	tables  *TableService
	menu    MenuResolver
	pub     events.Publisher
	taxRate decimal.Decimal
	pricing string
	curr    string
	now     func() time.Time

	mu     sync.Mutex
	orders map[uuid.UUID]model.Order
}

func NewOrderService(st store.Store, tables *TableService, menu MenuResolver, cfg OrderConfig) *OrderService {
	pub := cfg.Publisher
	if pub == nil {
		pub = events.Noop{}
	}
	pricing := cfg.Pricing
	if pricing == "" {
		pricing = enum.PricingSnapshot
	}
	return &OrderService{
		store:   st,
		tables:  tables,
		menu:    menu,
		pub:     pub,
		taxRate: cfg.TaxRate,
		pricing: pricing,
		curr:    cfg.Currency,
		now:     func() time.Time { return time.Now().UTC() },
		orders:  map[uuid.UUID]model.Order{},
	}
}

// Load replaces the in-memory orders with the repository contents.
func (s *OrderService) Load(ctx context.Context) error {
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return persistErr("list orders", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[uuid.UUID]model.Order, len(orders))
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return nil
}

// ── Opening and ordering ──

// OpenTable seats a customer and opens an empty order for the table. A table
// left occupied without an active order is taken over by the new order.
func (s *OrderService) OpenTable(ctx context.Context, tableID, waiterID uuid.UUID, customerName string) (model.Order, error) {
	customerName = strings.TrimSpace(customerName)
	if customerName == "" {
		return model.Order{}, validationf("customer name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activeOrderFor(tableID); ok {
		return model.Order{}, constraintf("table already has an active order")
	}
	o := s.newOrder(tableID, waiterID, customerName, "")

	table, err := s.tables.mutate(tableID, func(t model.Table) (model.Table, error) {
		next := t
		next.UpdatedAt = s.now()
		if t.Status != enum.TableStatusOccupied {
			var err error
			next, err = s.tables.advance(t, tableAssign)
			if err != nil {
				return model.Table{}, err
			}
		}
		next.CurrentCustomer = customerName
		err := s.store.WithinTx(ctx, func(tx store.Repository) error {
			if err := tx.CreateOrder(ctx, o); err != nil {
				return err
			}
			return tx.UpdateTable(ctx, next)
		})
		if err != nil {
			return model.Table{}, persistErr("open table", err)
		}
		return next, nil
	})
	if err != nil {
		return model.Order{}, err
	}

	s.orders[o.ID] = o
	s.publishOrder(ctx, events.OrderCreated, o)
	s.tables.publishStatus(ctx, table)
	return o.Clone(), nil
}

// CreateOrUpdateOrder appends items to the table's active order, or seats the
// table and opens a new order holding them when there is none.
func (s *OrderService) CreateOrUpdateOrder(ctx context.Context, tableID, waiterID uuid.UUID, customerID string, items []OrderItemInput) (model.Order, error) {
	if len(items) == 0 {
		return model.Order{}, validationf("items are required")
	}
	customerID = strings.TrimSpace(customerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.buildLines(items)
	if err != nil {
		return model.Order{}, err
	}

	if active, ok := s.activeOrderFor(tableID); ok {
		return s.appendLines(ctx, active, customerID, lines)
	}

	o := s.newOrder(tableID, waiterID, customerID, "")
	for i := range lines {
		lines[i].OrderID = o.ID
	}
	o.Items = lines

	table, err := s.tables.mutate(tableID, func(t model.Table) (model.Table, error) {
		next := t
		if t.Status != enum.TableStatusOccupied {
			if customerID == "" {
				return model.Table{}, validationf("customer name is required to seat a table")
			}
			var err error
			next, err = s.tables.advance(t, tableAssign)
			if err != nil {
				return model.Table{}, err
			}
			next.CurrentCustomer = customerID
		}
		err := s.store.WithinTx(ctx, func(tx store.Repository) error {
			if err := tx.CreateOrder(ctx, o); err != nil {
				return err
			}
			if next == t {
				return nil
			}
			return tx.UpdateTable(ctx, next)
		})
		if err != nil {
			return model.Table{}, persistErr("create order", err)
		}
		return next, nil
	})
	if err != nil {
		return model.Order{}, err
	}

	s.orders[o.ID] = o
	s.publishOrder(ctx, events.OrderCreated, o)
	s.tables.publishStatus(ctx, table)
	return o.Clone(), nil
}

func (s *OrderService) appendLines(ctx context.Context, active model.Order, customerID string, lines []model.OrderItem) (model.Order, error) {
	o := active.Clone()
	for i := range lines {
		lines[i].OrderID = o.ID
	}
	o.Items = append(o.Items, lines...)
	if o.CustomerID == "" {
		o.CustomerID = customerID
	}
	o.Status = rollupStatus(o.Items)
	o.UpdatedAt = s.now()

	err := s.store.WithinTx(ctx, func(tx store.Repository) error {
		for _, it := range lines {
			if err := tx.CreateOrderItem(ctx, it); err != nil {
				return err
			}
		}
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return model.Order{}, persistErr("add order items", err)
	}

	s.orders[o.ID] = o
	s.publishOrder(ctx, events.OrderItemsAdded, o)
	return o.Clone(), nil
}

// buildLines validates the requested items and snapshots name, price and
// currency from the catalog.
func (s *OrderService) buildLines(items []OrderItemInput) ([]model.OrderItem, error) {
	now := s.now()
	lines := make([]model.OrderItem, 0, len(items))
	for i, in := range items {
		if in.Quantity <= 0 {
			return nil, validationf("item[%d]: quantity must be > 0", i)
		}
		m, err := s.menu.ResolveMenuItem(in.MenuItemID)
		if err != nil {
			return nil, validationf("item[%d]: menu item %s not found", i, in.MenuItemID)
		}
		if !m.Orderable() {
			reason := "not available"
			if !m.IsActive {
				reason = "not active"
			}
			return nil, validationf("item[%d]: %s is %s", i, m.Name, reason)
		}
		if m.MaxOrderQuantity != nil && *m.MaxOrderQuantity > 0 && in.Quantity > *m.MaxOrderQuantity {
			return nil, validationf("item[%d]: at most %d of %s per order", i, *m.MaxOrderQuantity, m.Name)
		}
		lines = append(lines, model.OrderItem{
			ID:             uuid.New(),
			MenuItemID:     m.ID,
			Name:           m.Name,
			UnitPrice:      m.Price,
			Currency:       m.Currency,
			Quantity:       in.Quantity,
			Status:         enum.OrderItemStatusPending,
			Customizations: model.Customizations(append([]string{}, in.Customizations...)),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return lines, nil
}

// ── Item status ──

// AdvanceItemStatus moves one line forward. pending -> cancelled is the only
// backward-looking move allowed.
func (s *OrderService) AdvanceItemStatus(ctx context.Context, orderID, itemID uuid.UUID, newStatus string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, notFoundf("order %s", orderID)
	}
	if !current.IsActive() {
		return model.Order{}, transitionf("order is %s", current.Status)
	}
	idx := current.ItemIndex(itemID)
	if idx < 0 {
		return model.Order{}, notFoundf("order item %s", itemID)
	}
	if err := validateItemTransition(current.Items[idx].Status, newStatus); err != nil {
		return model.Order{}, err
	}

	now := s.now()
	o := current.Clone()
	o.Items[idx].Status = newStatus
	o.Items[idx].UpdatedAt = now
	o.Status = rollupStatus(o.Items)
	o.UpdatedAt = now

	err := s.store.WithinTx(ctx, func(tx store.Repository) error {
		if err := tx.UpdateOrderItem(ctx, o.Items[idx]); err != nil {
			return err
		}
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return model.Order{}, persistErr("update order item", err)
	}

	s.orders[o.ID] = o
	publish(ctx, s.pub, events.New(events.OrderItemStatus, map[string]string{
		"order_id":     o.ID.String(),
		"item_id":      itemID.String(),
		"status":       newStatus,
		"order_status": o.Status,
	}))
	return o.Clone(), nil
}

// CancelItem voids a line that the kitchen has not started.
func (s *OrderService) CancelItem(ctx context.Context, orderID, itemID uuid.UUID) (model.Order, error) {
	return s.AdvanceItemStatus(ctx, orderID, itemID, enum.OrderItemStatusCancelled)
}

// AcceptAllPending moves every pending line to in_progress. Calling it again
// with nothing pending is a no-op.
func (s *OrderService) AcceptAllPending(ctx context.Context, orderID uuid.UUID) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, notFoundf("order %s", orderID)
	}
	if !current.IsActive() {
		return model.Order{}, transitionf("order is %s", current.Status)
	}

	now := s.now()
	o := current.Clone()
	var changed []model.OrderItem
	for i := range o.Items {
		if o.Items[i].Status == enum.OrderItemStatusPending {
			o.Items[i].Status = enum.OrderItemStatusInProgress
			o.Items[i].UpdatedAt = now
			changed = append(changed, o.Items[i])
		}
	}
	if len(changed) == 0 {
		return current.Clone(), nil
	}
	o.Status = rollupStatus(o.Items)
	o.UpdatedAt = now

	err := s.store.WithinTx(ctx, func(tx store.Repository) error {
		for _, it := range changed {
			if err := tx.UpdateOrderItem(ctx, it); err != nil {
				return err
			}
		}
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return model.Order{}, persistErr("accept pending items", err)
	}

	s.orders[o.ID] = o
	for _, it := range changed {
		publish(ctx, s.pub, events.New(events.OrderItemStatus, map[string]string{
			"order_id":     o.ID.String(),
			"item_id":      it.ID.String(),
			"status":       it.Status,
			"order_status": o.Status,
		}))
	}
	return o.Clone(), nil
}

// ── Closing ──

// CloseOrder serves every active order on the table and sends the table to
// cleaning, in one transaction.
func (s *OrderService) CloseOrder(ctx context.Context, tableID uuid.UUID) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var closed []model.Order
	for _, o := range s.activeOrdersFor(tableID) {
		c := o.Clone()
		c.Status = enum.OrderStatusServed
		c.UpdatedAt = now
		closed = append(closed, c)
	}

	table, err := s.tables.mutate(tableID, func(t model.Table) (model.Table, error) {
		next, err := s.tables.advance(t, tableRelease)
		if err != nil {
			return model.Table{}, err
		}
		err = s.store.WithinTx(ctx, func(tx store.Repository) error {
			for _, o := range closed {
				if err := tx.UpdateOrder(ctx, o); err != nil {
					return err
				}
			}
			return tx.UpdateTable(ctx, next)
		})
		if err != nil {
			return model.Table{}, persistErr("close order", err)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Order, 0, len(closed))
	for _, o := range closed {
		s.orders[o.ID] = o
		s.publishOrder(ctx, events.OrderClosed, o)
		out = append(out, o.Clone())
	}
	s.tables.publishStatus(ctx, table)
	return out, nil
}

// CancelOrder abandons an order before the kitchen has started on it. Its
// pending lines are cancelled and the table goes to cleaning unless another
// active order still holds it.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, notFoundf("order %s", orderID)
	}
	if !current.IsActive() {
		return model.Order{}, transitionf("order is %s", current.Status)
	}
	for _, it := range current.Items {
		if it.Status == enum.OrderItemStatusInProgress || it.Status == enum.OrderItemStatusReady {
			return model.Order{}, transitionf("kitchen has already started on this order")
		}
	}

	now := s.now()
	o := current.Clone()
	var voided []model.OrderItem
	for i := range o.Items {
		if o.Items[i].Status == enum.OrderItemStatusPending {
			o.Items[i].Status = enum.OrderItemStatusCancelled
			o.Items[i].UpdatedAt = now
			voided = append(voided, o.Items[i])
		}
	}
	o.Status = enum.OrderStatusCancelled
	o.UpdatedAt = now

	othersActive := len(s.activeOrdersFor(o.TableID)) > 1
	table, err := s.tables.mutate(o.TableID, func(t model.Table) (model.Table, error) {
		next := t
		if !othersActive && t.Status == enum.TableStatusOccupied {
			var err error
			if next, err = s.tables.advance(t, tableRelease); err != nil {
				return model.Table{}, err
			}
		}
		err := s.store.WithinTx(ctx, func(tx store.Repository) error {
			for _, it := range voided {
				if err := tx.UpdateOrderItem(ctx, it); err != nil {
					return err
				}
			}
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
			if next == t {
				return nil
			}
			return tx.UpdateTable(ctx, next)
		})
		if err != nil {
			return model.Table{}, persistErr("cancel order", err)
		}
		return next, nil
	})
	if err != nil {
		return model.Order{}, err
	}

	s.orders[o.ID] = o
	s.publishOrder(ctx, events.OrderCancelled, o)
	s.tables.publishStatus(ctx, table)
	return o.Clone(), nil
}

// ── Queries ──

func (s *OrderService) GetOrder(id uuid.UUID) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return o.Clone(), true
}

// ListOrders returns matching orders, oldest first.
func (s *OrderService) ListOrders(f OrderFilter) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.TableID != nil && o.TableID != *f.TableID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.ActiveOnly && !o.IsActive() {
			continue
		}
		out = append(out, o.Clone())
	}
	sortOrders(out)
	return out
}

func (s *OrderService) ActiveOrderForTable(tableID uuid.UUID) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.activeOrderFor(tableID)
	if !ok {
		return model.Order{}, false
	}
	return o.Clone(), true
}

// KitchenQueue lists the lines of active orders by stage, oldest first.
// Cancelled lines are left out.
func (s *OrderService) KitchenQueue() KitchenQueue {
	s.mu.Lock()
	defer s.mu.Unlock()

	var q KitchenQueue
	for _, o := range s.orders {
		if !o.IsActive() {
			continue
		}
		var tableNumber string
		if t, ok := s.tables.GetTable(o.TableID); ok {
			tableNumber = t.TableNumber
		}
		for _, it := range o.Items {
			ticket := KitchenTicket{OrderID: o.ID, TableID: o.TableID, TableNumber: tableNumber, Item: it.Clone()}
			switch it.Status {
			case enum.OrderItemStatusPending:
				q.Pending = append(q.Pending, ticket)
			case enum.OrderItemStatusInProgress:
				q.InProgress = append(q.InProgress, ticket)
			case enum.OrderItemStatusReady:
				q.Ready = append(q.Ready, ticket)
			}
		}
	}
	for _, list := range [][]KitchenTicket{q.Pending, q.InProgress, q.Ready} {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Item.CreatedAt.Before(list[j].Item.CreatedAt)
		})
	}
	return q
}

// --- Helpers ---

func (s *OrderService) newOrder(tableID, waiterID uuid.UUID, customerID, notes string) model.Order {
	now := s.now()
	return model.Order{
		ID:         uuid.New(),
		TableID:    tableID,
		WaiterID:   waiterID,
		CustomerID: customerID,
		Status:     enum.OrderStatusPending,
		Notes:      notes,
		Items:      []model.OrderItem{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// activeOrderFor returns the oldest active order on the table. Callers hold s.mu.
func (s *OrderService) activeOrderFor(tableID uuid.UUID) (model.Order, bool) {
	active := s.activeOrdersFor(tableID)
	if len(active) == 0 {
		return model.Order{}, false
	}
	return active[0], true
}

func (s *OrderService) activeOrdersFor(tableID uuid.UUID) []model.Order {
	var out []model.Order
	for _, o := range s.orders {
		if o.TableID == tableID && o.IsActive() {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out
}

func (s *OrderService) publishOrder(ctx context.Context, typ string, o model.Order) {
	publish(ctx, s.pub, events.New(typ, map[string]any{
		"order_id":    o.ID.String(),
		"table_id":    o.TableID.String(),
		"status":      o.Status,
		"item_count":  len(o.Items),
		"customer_id": o.CustomerID,
	}))
}

// rollupStatus derives an active order's status from its live lines: all
// ready is ready, anything started is in_progress, otherwise pending.
func rollupStatus(items []model.OrderItem) string {
	live, ready, started := 0, 0, 0
	for _, it := range items {
		switch it.Status {
		case enum.OrderItemStatusCancelled:
			continue
		case enum.OrderItemStatusReady:
			ready++
			started++
		case enum.OrderItemStatusInProgress:
			started++
		}
		live++
	}
	switch {
	case live > 0 && ready == live:
		return enum.OrderStatusReady
	case started > 0:
		return enum.OrderStatusInProgress
	}
	return enum.OrderStatusPending
}

func sortOrders(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID.String() < orders[j].ID.String()
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
