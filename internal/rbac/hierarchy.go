package rbac

import (
	"fmt"
	"sort"
)

// Hierarchy is the immutable role graph. It is built once at startup and is
// safe for concurrent use without locking.
type Hierarchy struct {
	roles     map[string]Role
	inherited map[string]map[string]struct{}
}

// crossDomainPair allows limited read access between domains at matching or
// descending privilege, e.g. analyst to analyst.
type crossDomainPair struct {
	user     string
	required string
}

var compatiblePairs = map[crossDomainPair]struct{}{
	{RoleCommerceAnalyst, RoleWarehouseAnalyst}:  {},
	{RoleCommerceAnalyst, RoleCourierAnalyst}:    {},
	{RoleWarehouseAnalyst, RoleCommerceAnalyst}:  {},
	{RoleWarehouseAnalyst, RoleCourierAnalyst}:   {},
	{RoleCourierAnalyst, RoleCommerceAnalyst}:    {},
	{RoleCourierAnalyst, RoleWarehouseAnalyst}:   {},
	{RoleCommerceManager, RoleWarehouseAnalyst}:  {},
	{RoleCommerceManager, RoleCourierAnalyst}:    {},
	{RoleWarehouseManager, RoleCommerceAnalyst}:  {},
	{RoleWarehouseManager, RoleCourierAnalyst}:   {},
	{RoleCourierManager, RoleCommerceAnalyst}:    {},
	{RoleCourierManager, RoleWarehouseAnalyst}:   {},
}

// NewHierarchy builds the hierarchy from role definitions, resolving the
// transitive inheritance closure up front. Returns an error on duplicate or
// unknown roles, or on an inheritance cycle.
func NewHierarchy(defs []RoleDef) (*Hierarchy, error) {
	roles := make(map[string]Role, len(defs))
	direct := make(map[string][]string, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("rbac: role name required")
		}
		if _, ok := roles[def.Name]; ok {
			return nil, fmt.Errorf("rbac: duplicate role %s", def.Name)
		}
		if def.Level < 0 {
			return nil, fmt.Errorf("rbac: role %s has negative level", def.Name)
		}
		roles[def.Name] = Role{Name: def.Name, Level: def.Level, Domain: def.Domain}
		direct[def.Name] = def.Inherits
	}
	for name, parents := range direct {
		for _, p := range parents {
			if _, ok := roles[p]; !ok {
				return nil, fmt.Errorf("rbac: role %s inherits unknown role %s", name, p)
			}
		}
	}

	inherited := make(map[string]map[string]struct{}, len(roles))
	for name := range roles {
		closure := make(map[string]struct{})
		if err := expand(name, direct, closure, map[string]bool{}); err != nil {
			return nil, err
		}
		inherited[name] = closure
	}
	return &Hierarchy{roles: roles, inherited: inherited}, nil
}

func expand(name string, direct map[string][]string, closure map[string]struct{}, visiting map[string]bool) error {
	if visiting[name] {
		return fmt.Errorf("rbac: inheritance cycle through %s", name)
	}
	if _, done := closure[name]; done {
		return nil
	}
	visiting[name] = true
	closure[name] = struct{}{}
	for _, parent := range direct[name] {
		if err := expand(parent, direct, closure, visiting); err != nil {
			return err
		}
	}
	visiting[name] = false
	return nil
}

// MustDefaultHierarchy builds the built-in hierarchy, panicking on definition
// errors. The default definitions are static so a failure is a programming bug.
func MustDefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(DefaultRoles())
	if err != nil {
		panic(err)
	}
	return h
}

// Known reports whether the role name exists in the hierarchy.
func (h *Hierarchy) Known(role string) bool {
	_, ok := h.roles[role]
	return ok
}

// Level returns the privilege level for a role, or -1 when unknown.
func (h *Hierarchy) Level(role string) int {
	r, ok := h.roles[role]
	if !ok {
		return -1
	}
	return r.Level
}

// DomainOf returns the domain for a role. Unknown roles return the empty domain.
func (h *Hierarchy) DomainOf(role string) Domain {
	return h.roles[role].Domain
}

// InheritedRoles returns the reflexive transitive inheritance set of a role,
// sorted for stable iteration. Unknown roles return nil.
func (h *Hierarchy) InheritedRoles(role string) []string {
	closure, ok := h.inherited[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(closure))
	for name := range closure {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Inherits reports whether user's closure contains required.
func (h *Hierarchy) Inherits(user, required string) bool {
	closure, ok := h.inherited[user]
	if !ok {
		return false
	}
	_, ok = closure[required]
	return ok
}

// CanAssign reports whether assigner may grant target to another principal.
// Terminal roles never assign; otherwise the assigner must sit strictly above
// the target and share its domain (or be GLOBAL). Strict greater-than keeps a
// manager from minting peers.
func (h *Hierarchy) CanAssign(assigner, target string) bool {
	a, ok := h.roles[assigner]
	if !ok {
		return false
	}
	t, ok := h.roles[target]
	if !ok {
		return false
	}
	if a.Level <= TerminalLevel {
		return false
	}
	if a.Level <= t.Level {
		return false
	}
	return a.Domain == DomainGlobal || a.Domain == t.Domain
}

// CanAccess reports whether a principal holding user satisfies a required role.
func (h *Hierarchy) CanAccess(user, required string) bool {
	u, ok := h.roles[user]
	if !ok {
		return false
	}
	r, ok := h.roles[required]
	if !ok {
		return false
	}
	if user == required {
		return true
	}
	if u.Level >= r.Level {
		if u.Domain == DomainGlobal || u.Domain == r.Domain {
			return true
		}
		if _, compatible := compatiblePairs[crossDomainPair{user, required}]; compatible {
			return true
		}
	}
	return h.Inherits(user, required)
}

// IsDomainAdmin reports whether the role administers the given domain. GLOBAL
// roles above the terminal threshold administer every domain; otherwise the
// role must belong to the domain and hold manager-grade privilege.
func (h *Hierarchy) IsDomainAdmin(role string, domain Domain) bool {
	r, ok := h.roles[role]
	if !ok {
		return false
	}
	if r.Domain == DomainGlobal {
		return r.Level > TerminalLevel
	}
	return r.Domain == domain && r.Level >= 60
}

// HasDomainRole reports whether the role operates within the domain at any
// privilege level. GLOBAL roles qualify for all domains.
func (h *Hierarchy) HasDomainRole(role string, domain Domain) bool {
	r, ok := h.roles[role]
	if !ok {
		return false
	}
	return r.Domain == DomainGlobal || r.Domain == domain
}
