package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/model"
)

// ComputeBill prices an order. It never changes state: calling it twice on
// an unchanged order gives the same bill.
func (s *OrderService) ComputeBill(orderID uuid.UUID) (model.Bill, error) {
	o, ok := s.GetOrder(orderID)
	if !ok {
		return model.Bill{}, notFoundf("order %s", orderID)
	}

	priceOf := snapshotPrice
	if s.pricing == enum.PricingCatalog && s.menu != nil {
		priceOf = func(it model.OrderItem) decimal.Decimal {
			m, err := s.menu.ResolveMenuItem(it.MenuItemID)
			if err != nil {
				// Deleted from the catalog since it was ordered.
				return it.UnitPrice
			}
			return m.Price
		}
	}
	return computeBill(o, s.taxRate, s.curr, priceOf), nil
}

func snapshotPrice(it model.OrderItem) decimal.Decimal { return it.UnitPrice }

// computeBill sums the live lines of o and applies taxRate to the subtotal.
// Tax is rounded to cents.
func computeBill(o model.Order, taxRate decimal.Decimal, fallbackCurrency string, priceOf func(model.OrderItem) decimal.Decimal) model.Bill {
	bill := model.Bill{
		OrderID:  o.ID,
		TableID:  o.TableID,
		Lines:    []model.BillLine{},
		Subtotal: decimal.Zero,
		TaxRate:  taxRate,
		Currency: fallbackCurrency,
	}
	for _, it := range o.Items {
		if it.Status == enum.OrderItemStatusCancelled {
			continue
		}
		price := priceOf(it)
		lineTotal := price.Mul(decimal.NewFromInt32(it.Quantity))
		bill.Lines = append(bill.Lines, model.BillLine{
			OrderItemID: it.ID,
			Name:        it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   price,
			LineTotal:   lineTotal,
		})
		bill.Subtotal = bill.Subtotal.Add(lineTotal)
		if len(bill.Lines) == 1 && it.Currency != "" {
			bill.Currency = it.Currency
		}
	}
	bill.Tax = bill.Subtotal.Mul(taxRate).Round(2)
	bill.Total = bill.Subtotal.Add(bill.Tax)
	return bill
}
