package rbac

// Domain scopes role authority to a business area.
type Domain string

const (
	DomainSocialCommerce  Domain = "SOCIAL_COMMERCE"
	DomainWarehousing     Domain = "WAREHOUSING"
	DomainCourierServices Domain = "COURIER_SERVICES"
	DomainGlobal          Domain = "GLOBAL"
)

// Well-known role names.
const (
	RoleSuperAdmin         = "SUPER_ADMIN"
	RoleAdmin              = "ADMIN"
	RoleFinanceAdmin       = "FINANCE_ADMIN"
	RoleCommerceManager    = "COMMERCE_MANAGER"
	RoleWarehouseManager   = "WAREHOUSE_MANAGER"
	RoleCourierManager     = "COURIER_MANAGER"
	RoleVendorManager      = "VENDOR_MANAGER"
	RoleCommerceAnalyst    = "COMMERCE_ANALYST"
	RoleWarehouseAnalyst   = "WAREHOUSE_ANALYST"
	RoleCourierAnalyst     = "COURIER_ANALYST"
	RoleVendor             = "VENDOR"
	RoleCustomer           = "CUSTOMER"
	RoleDriver             = "DRIVER"
	RoleWarehouseOperative = "WAREHOUSE_OPERATIVE"
)

// TerminalLevel is the privilege level at and below which a role may never
// assign other roles.
const TerminalLevel = 40

// Role describes a named authority with a privilege level and a domain.
type Role struct {
	Name   string
	Level  int
	Domain Domain
}

// RoleDef declares a role and the roles it directly inherits, used to build
// a Hierarchy.
type RoleDef struct {
	Name     string
	Level    int
	Domain   Domain
	Inherits []string
}

// DefaultRoles returns the built-in role graph. Deployments may replace it
// entirely via NewHierarchy.
func DefaultRoles() []RoleDef {
	return []RoleDef{
		{Name: RoleSuperAdmin, Level: 100, Domain: DomainGlobal, Inherits: []string{RoleAdmin}},
		{Name: RoleAdmin, Level: 90, Domain: DomainGlobal, Inherits: []string{RoleFinanceAdmin, RoleCommerceManager, RoleWarehouseManager, RoleCourierManager}},
		{Name: RoleFinanceAdmin, Level: 85, Domain: DomainGlobal},
		{Name: RoleCommerceManager, Level: 70, Domain: DomainSocialCommerce, Inherits: []string{RoleVendorManager, RoleCommerceAnalyst}},
		{Name: RoleWarehouseManager, Level: 70, Domain: DomainWarehousing, Inherits: []string{RoleWarehouseAnalyst, RoleWarehouseOperative}},
		{Name: RoleCourierManager, Level: 70, Domain: DomainCourierServices, Inherits: []string{RoleCourierAnalyst, RoleDriver}},
		{Name: RoleVendorManager, Level: 60, Domain: DomainSocialCommerce, Inherits: []string{RoleVendor}},
		{Name: RoleCommerceAnalyst, Level: 50, Domain: DomainSocialCommerce},
		{Name: RoleWarehouseAnalyst, Level: 50, Domain: DomainWarehousing},
		{Name: RoleCourierAnalyst, Level: 50, Domain: DomainCourierServices},
		{Name: RoleVendor, Level: 40, Domain: DomainSocialCommerce},
		{Name: RoleCustomer, Level: 30, Domain: DomainSocialCommerce},
		{Name: RoleDriver, Level: 30, Domain: DomainCourierServices},
		{Name: RoleWarehouseOperative, Level: 30, Domain: DomainWarehousing},
	}
}
