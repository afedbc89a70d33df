package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit and pass through unscaled.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {},
	"KMF": {}, "KRW": {}, "PYG": {}, "RWF": {}, "UGX": {},
	"VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

var hundred = decimal.NewFromInt(100)

// IsZeroDecimal reports whether the currency has no minor unit.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]
	return ok
}

// ToMinorUnit converts a major-unit decimal amount to the provider's minimal
// unit. Zero-decimal currencies pass through; all others scale by 100 with
// round-half-up.
func ToMinorUnit(amount decimal.Decimal, currency string) int64 {
	if IsZeroDecimal(currency) {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnit is the exact inverse of ToMinorUnit for values it produced.
func FromMinorUnit(minor int64, currency string) decimal.Decimal {
	value := decimal.NewFromInt(minor)
	if IsZeroDecimal(currency) {
		return value
	}
	return value.Div(hundred)
}
