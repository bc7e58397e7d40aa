package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/middleware"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/service"
)

// OrderService defines the order engine methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderService interface {
	OpenTable(ctx context.Context, tableID, waiterID uuid.UUID, customerName string) (model.Order, error)
	CreateOrUpdateOrder(ctx context.Context, tableID, waiterID uuid.UUID, customerID string, items []service.OrderItemInput) (model.Order, error)
	AdvanceItemStatus(ctx context.Context, orderID, itemID uuid.UUID, status string) (model.Order, error)
	CancelItem(ctx context.Context, orderID, itemID uuid.UUID) (model.Order, error)
	AcceptAllPending(ctx context.Context, orderID uuid.UUID) (model.Order, error)
	CloseOrder(ctx context.Context, tableID uuid.UUID) ([]model.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (model.Order, error)
	ComputeBill(orderID uuid.UUID) (model.Bill, error)
	GetOrder(id uuid.UUID) (model.Order, bool)
	ListOrders(f service.OrderFilter) []model.Order
	ActiveOrderForTable(tableID uuid.UUID) (model.Order, bool)
	KitchenQueue() service.KitchenQueue
}

// OrderHandler handles order lifecycle, kitchen and billing endpoints.
type OrderHandler struct {
	svc OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints.
// Expected to be mounted at /api/restaurant/orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}/", h.Get)
	r.Get("/table/{tableID}/active/", h.ActiveForTable)

	floor := middleware.RequireRole(enum.UserRoleAdmin, enum.UserRoleWaiter)
	kitchen := middleware.RequireRole(enum.UserRoleAdmin, enum.UserRoleWaiter, enum.UserRoleChef)

	r.Group(func(r chi.Router) {
		r.Use(floor)
		r.Post("/open/", h.Open)
		r.Post("/", h.CreateOrUpdate)
		r.Post("/close/", h.Close)
		r.Post("/{id}/cancel/", h.Cancel)
		r.Post("/{id}/items/{itemID}/cancel/", h.CancelItem)
		r.Get("/{id}/bill/", h.Bill)
	})

	r.Group(func(r chi.Router) {
		r.Use(kitchen)
		r.Get("/kitchen/", h.Kitchen)
		r.Put("/{id}/items/{itemID}/status/", h.UpdateItemStatus)
		r.Post("/{id}/accept-all/", h.AcceptAll)
	})
}

// --- Request / Response types ---

type openTableRequest struct {
	TableID      string `json:"table_id"`
	CustomerName string `json:"customer_name"`
}

type orderRequest struct {
	TableID    string             `json:"table_id"`
	CustomerID string             `json:"customer_id"`
	Items      []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	MenuItemID     string   `json:"menu_item_id"`
	Quantity       int32    `json:"quantity"`
	Customizations []string `json:"customizations"`
}

type closeRequest struct {
	TableID string `json:"table_id"`
}

type itemStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID         uuid.UUID           `json:"id"`
	TableID    uuid.UUID           `json:"table_id"`
	WaiterID   uuid.UUID           `json:"waiter_id"`
	CustomerID string              `json:"customer_id"`
	Status     string              `json:"status"`
	Notes      string              `json:"notes"`
	Items      []orderItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

type orderItemResponse struct {
	ID             uuid.UUID `json:"id"`
	MenuItemID     uuid.UUID `json:"menu_item_id"`
	Name           string    `json:"name"`
	UnitPrice      string    `json:"unit_price"`
	Currency       string    `json:"currency"`
	Quantity       int32     `json:"quantity"`
	Status         string    `json:"status"`
	Customizations []string  `json:"customizations"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type billLineResponse struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	Name        string    `json:"name"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	LineTotal   string    `json:"line_total"`
}

type billResponse struct {
	OrderID        uuid.UUID          `json:"order_id"`
	TableID        uuid.UUID          `json:"table_id"`
	Lines          []billLineResponse `json:"lines"`
	Subtotal       string             `json:"subtotal"`
	TaxRate        string             `json:"tax_rate"`
	Tax            string             `json:"tax"`
	Total          string             `json:"total"`
	Currency       string             `json:"currency"`
	CurrencySymbol string             `json:"currency_symbol"`
}

type kitchenTicketResponse struct {
	OrderID     uuid.UUID         `json:"order_id"`
	TableID     uuid.UUID         `json:"table_id"`
	TableNumber string            `json:"table_number"`
	Item        orderItemResponse `json:"item"`
}

type kitchenResponse struct {
	Pending    []kitchenTicketResponse `json:"pending"`
	InProgress []kitchenTicketResponse `json:"in_progress"`
	Ready      []kitchenTicketResponse `json:"ready"`
}

func toOrderResponse(o model.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = toOrderItemResponse(it)
	}
	return orderResponse{
		ID:         o.ID,
		TableID:    o.TableID,
		WaiterID:   o.WaiterID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Notes:      o.Notes,
		Items:      items,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toOrderItemResponse(it model.OrderItem) orderItemResponse {
	custom := []string(it.Customizations)
	if custom == nil {
		custom = []string{}
	}
	return orderItemResponse{
		ID:             it.ID,
		MenuItemID:     it.MenuItemID,
		Name:           it.Name,
		UnitPrice:      it.UnitPrice.StringFixed(2),
		Currency:       it.Currency,
		Quantity:       it.Quantity,
		Status:         it.Status,
		Customizations: custom,
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}
}

func toBillResponse(b model.Bill) billResponse {
	lines := make([]billLineResponse, len(b.Lines))
	for i, l := range b.Lines {
		lines[i] = billLineResponse{
			OrderItemID: l.OrderItemID,
			Name:        l.Name,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			LineTotal:   l.LineTotal.StringFixed(2),
		}
	}
	return billResponse{
		OrderID:        b.OrderID,
		TableID:        b.TableID,
		Lines:          lines,
		Subtotal:       b.Subtotal.StringFixed(2),
		TaxRate:        b.TaxRate.String(),
		Tax:            b.Tax.StringFixed(2),
		Total:          b.Total.StringFixed(2),
		Currency:       b.Currency,
		CurrencySymbol: service.CurrencySymbol(b.Currency),
	}
}

func toTickets(in []service.KitchenTicket) []kitchenTicketResponse {
	out := make([]kitchenTicketResponse, len(in))
	for i, t := range in {
		out[i] = kitchenTicketResponse{
			OrderID:     t.OrderID,
			TableID:     t.TableID,
			TableNumber: t.TableNumber,
			Item:        toOrderItemResponse(t.Item),
		}
	}
	return out
}

// --- Handlers ---

// Open seats a customer at a table and opens an empty order for it.
func (h *OrderHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tableID, err := uuid.Parse(req.TableID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table_id"})
		return
	}

	o, err := h.svc.OpenTable(r.Context(), tableID, callerID(r), req.CustomerName)
	if err != nil {
		writeServiceError(w, "open table", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// CreateOrUpdate appends items to the table's active order, opening one if
// the table has none.
func (h *OrderHandler) CreateOrUpdate(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tableID, err := uuid.Parse(req.TableID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table_id"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	items := make([]service.OrderItemInput, len(req.Items))
	for i, it := range req.Items {
		id, err := uuid.Parse(it.MenuItemID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatItemError(i, "invalid menu_item_id")})
			return
		}
		if it.Quantity < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatItemError(i, "quantity must be at least 1")})
			return
		}
		items[i] = service.OrderItemInput{MenuItemID: id, Quantity: it.Quantity, Customizations: it.Customizations}
	}

	_, existed := h.svc.ActiveOrderForTable(tableID)
	o, err := h.svc.CreateOrUpdateOrder(r.Context(), tableID, callerID(r), req.CustomerID, items)
	if err != nil {
		writeServiceError(w, "create or update order", err)
		return
	}
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, toOrderResponse(o))
}

// List returns orders. Query params: table, status, active.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.OrderFilter{
		Status:     q.Get("status"),
		ActiveOnly: q.Get("active") == "true",
	}
	if v := q.Get("table"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table filter"})
			return
		}
		f.TableID = &id
	}

	orders := h.svc.ListOrders(f)
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	o, found := h.svc.GetOrder(id)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) ActiveForTable(w http.ResponseWriter, r *http.Request) {
	tableID, ok := parseID(w, r, "tableID", "table")
	if !ok {
		return
	}
	o, found := h.svc.ActiveOrderForTable(tableID)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active order for table"})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Kitchen returns live order lines grouped by kitchen stage.
func (h *OrderHandler) Kitchen(w http.ResponseWriter, r *http.Request) {
	q := h.svc.KitchenQueue()
	writeJSON(w, http.StatusOK, kitchenResponse{
		Pending:    toTickets(q.Pending),
		InProgress: toTickets(q.InProgress),
		Ready:      toTickets(q.Ready),
	})
}

func (h *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemID", "order item")
	if !ok {
		return
	}
	var req itemStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	// Chefs move food forward; voiding a line is a floor decision.
	if req.Status == enum.OrderItemStatusCancelled && !isFloorStaff(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
		return
	}

	o, err := h.svc.AdvanceItemStatus(r.Context(), orderID, itemID, req.Status)
	if err != nil {
		writeServiceError(w, "update item status", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) CancelItem(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemID", "order item")
	if !ok {
		return
	}

	o, err := h.svc.CancelItem(r.Context(), orderID, itemID)
	if err != nil {
		writeServiceError(w, "cancel item", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// AcceptAll moves every pending line of the order into the kitchen.
func (h *OrderHandler) AcceptAll(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	o, err := h.svc.AcceptAllPending(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, "accept pending items", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) Bill(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	b, err := h.svc.ComputeBill(orderID)
	if err != nil {
		writeServiceError(w, "compute bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponse(b))
}

// Close serves every active order on the table and sends it to cleaning.
func (h *OrderHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tableID, err := uuid.Parse(req.TableID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table_id"})
		return
	}

	orders, err := h.svc.CloseOrder(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, "close order", err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	o, err := h.svc.CancelOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// --- Helpers ---

func formatItemError(idx int, msg string) string {
	return fmt.Sprintf("items[%d]: %s", idx, msg)
}

func callerID(r *http.Request) uuid.UUID {
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		return claims.UserID
	}
	return uuid.Nil
}

func isFloorStaff(r *http.Request) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	return claims != nil && (claims.Role == enum.UserRoleAdmin || claims.Role == enum.UserRoleWaiter)
}
