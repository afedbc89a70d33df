package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanAssignStrictOrdering(t *testing.T) {
	h := MustDefaultHierarchy()

	require.True(t, h.CanAssign(RoleVendorManager, RoleVendor))
	require.False(t, h.CanAssign(RoleVendor, RoleVendorManager))

	// Same level never assigns, even inside one domain.
	require.False(t, h.CanAssign(RoleCommerceManager, RoleWarehouseManager))
	require.False(t, h.CanAssign(RoleCommerceAnalyst, RoleWarehouseAnalyst))

	// GLOBAL roles assign across domains, strictly downward.
	require.True(t, h.CanAssign(RoleAdmin, RoleCourierManager))
	require.True(t, h.CanAssign(RoleSuperAdmin, RoleAdmin))
	require.False(t, h.CanAssign(RoleAdmin, RoleSuperAdmin))

	// Domain-bound managers stay inside their domain.
	require.False(t, h.CanAssign(RoleCommerceManager, RoleDriver))
	require.True(t, h.CanAssign(RoleCourierManager, RoleDriver))
}

func TestCanAssignTerminalRoles(t *testing.T) {
	h := MustDefaultHierarchy()
	for _, def := range DefaultRoles() {
		if def.Level > TerminalLevel {
			continue
		}
		for _, target := range DefaultRoles() {
			require.False(t, h.CanAssign(def.Name, target.Name),
				"terminal role %s must not assign %s", def.Name, target.Name)
		}
	}
}

func TestCanAssignUnknownRoles(t *testing.T) {
	h := MustDefaultHierarchy()
	require.False(t, h.CanAssign("NO_SUCH_ROLE", RoleVendor))
	require.False(t, h.CanAssign(RoleAdmin, "NO_SUCH_ROLE"))
	require.False(t, h.CanAssign("", ""))
}

func TestCanAccess(t *testing.T) {
	h := MustDefaultHierarchy()

	// Exact match always passes.
	require.True(t, h.CanAccess(RoleDriver, RoleDriver))

	// Higher level, same domain.
	require.True(t, h.CanAccess(RoleCommerceManager, RoleCustomer))
	require.False(t, h.CanAccess(RoleCustomer, RoleCommerceManager))

	// GLOBAL bypasses domain checks.
	require.True(t, h.CanAccess(RoleAdmin, RoleDriver))

	// Cross-domain analyst pairing is allowed for reads.
	require.True(t, h.CanAccess(RoleCommerceAnalyst, RoleWarehouseAnalyst))
	require.True(t, h.CanAccess(RoleWarehouseManager, RoleCourierAnalyst))

	// Cross-domain without a compatible pair is denied despite higher level.
	require.False(t, h.CanAccess(RoleWarehouseManager, RoleCustomer))

	require.False(t, h.CanAccess("NO_SUCH_ROLE", RoleDriver))
	require.False(t, h.CanAccess(RoleDriver, "NO_SUCH_ROLE"))
}

func TestInheritedRolesClosure(t *testing.T) {
	h := MustDefaultHierarchy()

	got := h.InheritedRoles(RoleVendorManager)
	require.Contains(t, got, RoleVendorManager, "closure must be reflexive")
	require.Contains(t, got, RoleVendor)

	// Transitive: ADMIN -> COMMERCE_MANAGER -> VENDOR_MANAGER -> VENDOR.
	require.True(t, h.Inherits(RoleAdmin, RoleVendor))
	require.True(t, h.Inherits(RoleSuperAdmin, RoleDriver))
	require.False(t, h.Inherits(RoleVendor, RoleVendorManager))

	require.Nil(t, h.InheritedRoles("NO_SUCH_ROLE"))
}

func TestNewHierarchyRejectsBadGraphs(t *testing.T) {
	_, err := NewHierarchy([]RoleDef{
		{Name: "A", Level: 50, Domain: DomainGlobal, Inherits: []string{"B"}},
		{Name: "B", Level: 40, Domain: DomainGlobal, Inherits: []string{"A"}},
	})
	require.Error(t, err, "cycle must be rejected")

	_, err = NewHierarchy([]RoleDef{
		{Name: "A", Level: 50, Domain: DomainGlobal, Inherits: []string{"MISSING"}},
	})
	require.Error(t, err)

	_, err = NewHierarchy([]RoleDef{
		{Name: "A", Level: 50, Domain: DomainGlobal},
		{Name: "A", Level: 60, Domain: DomainGlobal},
	})
	require.Error(t, err)
}

func TestIsDomainAdmin(t *testing.T) {
	h := MustDefaultHierarchy()
	require.True(t, h.IsDomainAdmin(RoleWarehouseManager, DomainWarehousing))
	require.False(t, h.IsDomainAdmin(RoleWarehouseManager, DomainSocialCommerce))
	require.False(t, h.IsDomainAdmin(RoleWarehouseOperative, DomainWarehousing))
	require.True(t, h.IsDomainAdmin(RoleAdmin, DomainCourierServices))
	require.False(t, h.IsDomainAdmin("NO_SUCH_ROLE", DomainGlobal))
}
