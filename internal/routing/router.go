// Package routing selects a payment provider from request locale data.
package routing

import (
	"strings"

	"github.com/payflow/payflow/internal/gateway"
)

// Router maps country and currency codes to providers. The tables are loaded
// once at startup and never mutated, so lookups need no locking. Country and
// currency routing are independent entry points; callers pick one explicitly.
type Router struct {
	countries        map[string]struct{}
	currencies       map[string]struct{}
	regionalProvider gateway.ProviderID
	defaultProvider  gateway.ProviderID
}

// DefaultCountries is the built-in regional country set (ISO-3166 alpha-2 and
// alpha-3 spellings accepted).
func DefaultCountries() []string {
	return []string{
		"NG", "NGA", "GH", "GHA", "ZA", "ZAF", "KE", "KEN", "EG", "EGY",
		"CI", "CIV", "SN", "SEN", "TZ", "TZA", "UG", "UGA", "RW", "RWA",
	}
}

// DefaultCurrencies is the built-in regional currency set.
func DefaultCurrencies() []string {
	return []string{"NGN", "GHS", "ZAR", "KES", "XOF", "EGP"}
}

// New builds a router from configured code sets.
func New(countries, currencies []string, regional, fallback gateway.ProviderID) *Router {
	toSet := func(codes []string) map[string]struct{} {
		set := make(map[string]struct{}, len(codes))
		for _, code := range codes {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code != "" {
				set[code] = struct{}{}
			}
		}
		return set
	}
	return &Router{
		countries:        toSet(countries),
		currencies:       toSet(currencies),
		regionalProvider: regional,
		defaultProvider:  fallback,
	}
}

// NewDefault builds the router with the built-in tables.
func NewDefault() *Router {
	return New(DefaultCountries(), DefaultCurrencies(), gateway.ProviderPaystack, gateway.ProviderStratus)
}

// SelectGateway routes by country code. Codes outside the regional set,
// including empty ones, go to the default provider.
func (r *Router) SelectGateway(countryCode string) gateway.ProviderID {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if _, ok := r.countries[code]; ok {
		return r.regionalProvider
	}
	return r.defaultProvider
}

// SelectGatewayByCurrency routes by currency code with the same default rule.
func (r *Router) SelectGatewayByCurrency(currencyCode string) gateway.ProviderID {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if _, ok := r.currencies[code]; ok {
		return r.regionalProvider
	}
	return r.defaultProvider
}
