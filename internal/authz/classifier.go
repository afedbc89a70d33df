package authz

import (
	"sort"
	"strings"

	"github.com/payflow/payflow/internal/rbac"
)

// DomainClassifier derives the business domain implied by a request. An
// explicit domain field always wins; otherwise the classifier matches
// configured identifier prefixes (longest first) against the order and
// transaction ids. Inherited order-id naming conventions live in config, not
// in code.
type DomainClassifier struct {
	prefixes []prefixRule
	fallback rbac.Domain
}

type prefixRule struct {
	prefix string
	domain rbac.Domain
}

// DefaultPrefixes mirrors the legacy order-id naming convention.
func DefaultPrefixes() map[string]rbac.Domain {
	return map[string]rbac.Domain{
		"WAREHOUSE_": rbac.DomainWarehousing,
		"WH_":        rbac.DomainWarehousing,
		"COURIER_":   rbac.DomainCourierServices,
		"DELIVERY_":  rbac.DomainCourierServices,
	}
}

// NewDomainClassifier builds a classifier from prefix rules and a fallback
// domain for unmatched identifiers.
func NewDomainClassifier(prefixes map[string]rbac.Domain, fallback rbac.Domain) *DomainClassifier {
	rules := make([]prefixRule, 0, len(prefixes))
	for p, d := range prefixes {
		if p == "" {
			continue
		}
		rules = append(rules, prefixRule{prefix: strings.ToUpper(p), domain: d})
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].prefix) != len(rules[j].prefix) {
			return len(rules[i].prefix) > len(rules[j].prefix)
		}
		return rules[i].prefix < rules[j].prefix
	})
	if fallback == "" {
		fallback = rbac.DomainSocialCommerce
	}
	return &DomainClassifier{prefixes: rules, fallback: fallback}
}

// Classify resolves the domain for a request. ids are tried in order; the
// first prefix match wins.
func (c *DomainClassifier) Classify(explicit rbac.Domain, ids ...string) rbac.Domain {
	if explicit != "" {
		return explicit
	}
	for _, id := range ids {
		upper := strings.ToUpper(id)
		for _, rule := range c.prefixes {
			if strings.HasPrefix(upper, rule.prefix) {
				return rule.domain
			}
		}
	}
	return c.fallback
}
