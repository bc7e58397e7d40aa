package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/enum"
)

// Order is the single mutable aggregate for a table seating. Items are
// append-only; their statuses move independently.
type Order struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	TableID    uuid.UUID   `json:"table_id" db:"table_id"`
	WaiterID   uuid.UUID   `json:"waiter_id" db:"waiter_id"`
	CustomerID string      `json:"customer_id" db:"customer_id"`
	Status     string      `json:"status" db:"status"`
	Notes      string      `json:"notes" db:"notes"`
	Items      []OrderItem `json:"items" db:"-"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the order still holds its table.
func (o Order) IsActive() bool {
	return enum.IsActiveOrderStatus(o.Status)
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	c := o
	c.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it.Clone()
	}
	return c
}

// ItemIndex returns the position of the item with the given ID, or -1.
func (o Order) ItemIndex(itemID uuid.UUID) int {
	for i, it := range o.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// OrderItem is one order line. Name, UnitPrice and Currency are captured from
// the catalog when the line is created.
type OrderItem struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrderID        uuid.UUID       `json:"order_id" db:"order_id"`
	MenuItemID     uuid.UUID       `json:"menu_item_id" db:"menu_item_id"`
	Name           string          `json:"name" db:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price" db:"unit_price"`
	Currency       string          `json:"currency" db:"currency"`
	Quantity       int32           `json:"quantity" db:"quantity"`
	Status         string          `json:"status" db:"status"`
	Customizations Customizations  `json:"customizations" db:"customizations"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

func (it OrderItem) Clone() OrderItem {
	c := it
	if it.Customizations != nil {
		c.Customizations = append(Customizations{}, it.Customizations...)
	}
	return c
}

// Customizations are free-text cooking notes stored as a JSON array.
type Customizations []string

// Value implements driver.Valuer.
func (c Customizations) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *Customizations) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Customizations{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("customizations: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("customizations: %w", err)
	}
	*c = out
	return nil
}

// BillLine is one priced line of a Bill.
type BillLine struct {
	OrderItemID uuid.UUID       `json:"order_item_id"`
	Name        string          `json:"name"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Bill is derived on demand from an order; it is never persisted.
type Bill struct {
	OrderID  uuid.UUID       `json:"order_id"`
	TableID  uuid.UUID       `json:"table_id"`
	Lines    []BillLine      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}
