package enum

// ── State machines (CHECK constrained in the SQL backends) ──

const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in_progress"
	OrderStatusReady      = "ready"
	OrderStatusServed     = "served"
	OrderStatusCancelled  = "cancelled"
)

const (
	OrderItemStatusPending    = "pending"
	OrderItemStatusInProgress = "in_progress"
	OrderItemStatusReady      = "ready"
	OrderItemStatusCancelled  = "cancelled"
)

const (
	TableStatusAvailable = "available"
	TableStatusOccupied  = "occupied"
	TableStatusReserved  = "reserved"
	TableStatusCleaning  = "cleaning"
)

// ── Roles ──

const (
	UserRoleAdmin    = "admin"
	UserRoleWaiter   = "waiter"
	UserRoleChef     = "chef"
	UserRoleCustomer = "customer"
)

// ── Configurable labels (no DB constraint) ──

const (
	VariantTypeSize     = "size"
	VariantTypePortion  = "portion"
	VariantTypeQuantity = "quantity"
	VariantTypeNone     = "none"
)

const (
	UnitPiece = "pcs"
	UnitPlate = "plate"
	UnitGram  = "g"
	UnitKilo  = "kg"
	UnitML    = "ml"
	UnitLitre = "l"
)

// ── Bill pricing policy ──

const (
	PricingSnapshot = "snapshot"
	PricingCatalog  = "catalog"
)

// IsActiveOrderStatus reports whether an order in status s still holds its table.
func IsActiveOrderStatus(s string) bool {
	return s != OrderStatusServed && s != OrderStatusCancelled
}

func IsValidTableStatus(s string) bool {
	switch s {
	case TableStatusAvailable, TableStatusOccupied, TableStatusReserved, TableStatusCleaning:
		return true
	}
	return false
}

func IsValidRole(s string) bool {
	switch s {
	case UserRoleAdmin, UserRoleWaiter, UserRoleChef, UserRoleCustomer:
		return true
	}
	return false
}

var VariantTypes = []string{VariantTypeNone, VariantTypeSize, VariantTypePortion, VariantTypeQuantity}

var Units = []string{UnitPiece, UnitPlate, UnitGram, UnitKilo, UnitML, UnitLitre}
