package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const BaseCountry = "BG"

// bgnPerEUR is the fixed lev/euro peg used for indicative euro amounts.
var bgnPerEUR = decimal.RequireFromString("1.95583")

// Country describes how prices are presented for a destination country.
type Country struct {
	Code     string
	Name     string
	Currency string
	// FixedPrice replaces the base price for every product when set.
	FixedPrice decimal.NullDecimal
}

var countries = map[string]Country{
	"BG": {Code: "BG", Name: "Bulgaria", Currency: "BGN"},
	"GR": {Code: "GR", Name: "Greece", Currency: "EUR", FixedPrice: fixedPrice("15.90")},
	"RO": {Code: "RO", Name: "Romania", Currency: "RON", FixedPrice: fixedPrice("79.90")},
}

func fixedPrice(amount string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(amount))
}

// Price is a resolved amount in major units. DisplayEUR is only set for the
// base country, where it is an indicative conversion and never charged.
type Price struct {
	Amount     decimal.Decimal
	Currency   string
	DisplayEUR decimal.NullDecimal
}

func (p Price) MinorUnits() int64 {
	return ToMinorUnits(p.Amount)
}

type Resolver struct {
	countries             map[string]Country
	shipping              map[string][]ShippingMethod
	freeShippingThreshold int64
}

func NewResolver() *Resolver {
	return &Resolver{
		countries:             countries,
		shipping:              shippingMethods,
		freeShippingThreshold: freeShippingThresholdBGN,
	}
}

// Country returns the pricing rules for code, falling back to the base
// country for anything unknown.
func (r *Resolver) Country(code string) Country {
	if country, ok := r.countries[NormalizeCountry(code)]; ok {
		return country
	}
	return r.countries[BaseCountry]
}

func (r *Resolver) Countries() []Country {
	codes := []string{"BG", "GR", "RO"}
	result := make([]Country, 0, len(codes))
	for _, code := range codes {
		result = append(result, r.countries[code])
	}
	return result
}

// ResolvePrice maps a base-country amount onto the destination country.
func (r *Resolver) ResolvePrice(countryCode string, baseAmount decimal.Decimal) Price {
	country := r.Country(countryCode)
	if country.FixedPrice.Valid {
		return Price{Amount: country.FixedPrice.Decimal, Currency: country.Currency}
	}

	return Price{
		Amount:     baseAmount,
		Currency:   country.Currency,
		DisplayEUR: decimal.NewNullDecimal(baseAmount.DivRound(bgnPerEUR, 2)),
	}
}

// VariantPrice resolves a catalog variant for a country, preferring a per
// variant override over the country rule.
func (r *Resolver) VariantPrice(variant Variant, countryCode string) (Price, error) {
	country := r.Country(countryCode)
	if override, ok := variant.Prices[country.Code]; ok && country.Code != BaseCountry {
		amount, err := decimal.NewFromString(strings.TrimSpace(override))
		if err != nil {
			return Price{}, fmt.Errorf("invalid %s price for variant %s: %w", country.Code, variant.ID, err)
		}
		return Price{Amount: amount, Currency: country.Currency}, nil
	}

	base, err := decimal.NewFromString(strings.TrimSpace(variant.Price))
	if err != nil {
		return Price{}, fmt.Errorf("invalid price for variant %s: %w", variant.ID, err)
	}
	return r.ResolvePrice(country.Code, base), nil
}

func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatMinor renders minor units as a two-decimal amount, e.g. 2800 -> "28.00".
func FormatMinor(minor int64) string {
	return FromMinorUnits(minor).StringFixed(2)
}
