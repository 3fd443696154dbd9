// Package resource defines the shared model for server-managed resources:
// resource types, structural cache keys, the list payload envelope, and the
// contracts for the resource cache and the remote collaborator that backs it.
package resource

// Type identifies a server-managed resource collection.
// The cache treats resource payloads as opaque JSON; the type only drives
// key construction and routing inside the remote collaborator.
type Type string

const (
	TypeProducts       Type = "products"
	TypeOrders         Type = "orders"
	TypeCustomers      Type = "customers"
	TypeDiscounts      Type = "discounts"
	TypeExpenses       Type = "expenses"
	TypeBudgets        Type = "budgets"
	TypeGoals          Type = "goals"
	TypeInventoryItems Type = "inventory-items"
	TypeStockMovements Type = "stock-movements"
	TypeGroceries      Type = "groceries"
	TypeMeals          Type = "meals"
	TypeMembers        Type = "members"
	TypeInvitations    Type = "invitations"
	TypeSpaces         Type = "spaces"
)

// String returns the string representation of Type
func (t Type) String() string {
	return string(t)
}

// Pagination describes offset-based pagination as returned by the remote API.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Status is the lifecycle state of a cache entry.
type Status string

const (
	// StatusIdle means the entry exists but no value has been fetched yet.
	StatusIdle Status = "idle"
	// StatusFetching means a fetch is in flight for this entry.
	StatusFetching Status = "fetching"
	// StatusFresh means the value reflects the last confirmed fetch or write.
	StatusFresh Status = "fresh"
	// StatusStale means the value is still served but a re-fetch is due.
	StatusStale Status = "stale"
	// StatusError means the last fetch failed; the previous value, if any,
	// is retained.
	StatusError Status = "error"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}
