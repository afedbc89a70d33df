package rbac

import "github.com/shopspring/decimal"

// OperationClass distinguishes the two limit categories.
type OperationClass string

const (
	ClassPayment OperationClass = "payment"
	ClassPayout  OperationClass = "payout"
)

// GlobalCeiling is the provider-wide maximum amount for any single operation.
var GlobalCeiling = decimal.RequireFromString("999999.99")

// Ceilings holds per-class maximum amounts for one role.
type Ceilings struct {
	Payment decimal.Decimal
	Payout  decimal.Decimal
}

// MonetaryLimits maps roles to operation ceilings. A role with no entry
// contributes a zero ceiling. Immutable after construction.
type MonetaryLimits struct {
	byRole map[string]Ceilings
}

// NewMonetaryLimits builds the limit table from the given entries.
func NewMonetaryLimits(entries map[string]Ceilings) *MonetaryLimits {
	byRole := make(map[string]Ceilings, len(entries))
	for role, c := range entries {
		if c.Payment.IsNegative() || c.Payout.IsNegative() {
			continue
		}
		byRole[role] = c
	}
	return &MonetaryLimits{byRole: byRole}
}

// DefaultMonetaryLimits returns the built-in ceilings per role.
func DefaultMonetaryLimits() *MonetaryLimits {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return NewMonetaryLimits(map[string]Ceilings{
		RoleSuperAdmin:         {Payment: GlobalCeiling, Payout: GlobalCeiling},
		RoleAdmin:              {Payment: d("500000"), Payout: d("250000")},
		RoleFinanceAdmin:       {Payment: d("500000"), Payout: d("500000")},
		RoleCommerceManager:    {Payment: d("100000"), Payout: d("50000")},
		RoleWarehouseManager:   {Payment: d("100000"), Payout: d("50000")},
		RoleCourierManager:     {Payment: d("100000"), Payout: d("50000")},
		RoleVendorManager:      {Payment: d("50000"), Payout: d("25000")},
		RoleCommerceAnalyst:    {Payment: d("10000")},
		RoleWarehouseAnalyst:   {Payment: d("10000")},
		RoleCourierAnalyst:     {Payment: d("10000")},
		RoleVendor:             {Payment: d("20000"), Payout: d("20000")},
		RoleCustomer:           {Payment: d("5000")},
		RoleDriver:             {Payment: d("500"), Payout: d("500")},
		RoleWarehouseOperative: {Payment: d("500")},
	})
}

// Ceiling returns the ceiling for one role and class. Unknown roles yield zero.
func (m *MonetaryLimits) Ceiling(role string, class OperationClass) decimal.Decimal {
	c, ok := m.byRole[role]
	if !ok {
		return decimal.Zero
	}
	if class == ClassPayout {
		return c.Payout
	}
	return c.Payment
}

// EffectiveCeiling returns the maximum ceiling across the held roles.
func (m *MonetaryLimits) EffectiveCeiling(roles []string, class OperationClass) decimal.Decimal {
	max := decimal.Zero
	for _, role := range roles {
		if c := m.Ceiling(role, class); c.GreaterThan(max) {
			max = c
		}
	}
	return max
}
