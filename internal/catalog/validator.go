package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(catalog *Catalog) error {
	if catalog == nil {
		return fmt.Errorf("catalog is required")
	}

	if strings.TrimSpace(catalog.Shop.Name) == "" {
		return fmt.Errorf("shop name is required")
	}

	if len(catalog.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	productIDs := make(map[string]bool)
	variantIDs := make(map[string]bool)
	for i, product := range catalog.Products {
		if err := v.validateProduct(&product); err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}

		if productIDs[product.ID] {
			return fmt.Errorf("duplicate product id: %s", product.ID)
		}
		productIDs[product.ID] = true

		for _, variant := range product.Variants {
			if variantIDs[variant.ID] {
				return fmt.Errorf("duplicate variant id: %s", variant.ID)
			}
			variantIDs[variant.ID] = true
		}
	}

	return nil
}

func (v *Validator) validateProduct(product *Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return fmt.Errorf("product id is required")
	}

	if strings.TrimSpace(product.Title) == "" {
		return fmt.Errorf("product title is required")
	}

	if len(product.Variants) == 0 {
		return fmt.Errorf("product %s needs at least one variant", product.ID)
	}

	for i, variant := range product.Variants {
		if err := v.validateVariant(&variant); err != nil {
			return fmt.Errorf("variant %d validation failed: %w", i, err)
		}
	}

	return nil
}

func (v *Validator) validateVariant(variant *Variant) error {
	if strings.TrimSpace(variant.ID) == "" {
		return fmt.Errorf("variant id is required")
	}

	if err := validatePrice(variant.Price); err != nil {
		return fmt.Errorf("variant %s: %w", variant.ID, err)
	}

	for country, price := range variant.Prices {
		if len(country) != 2 || strings.ToUpper(country) != country {
			return fmt.Errorf("variant %s: price override key %q must be an upper-case country code", variant.ID, country)
		}
		if err := validatePrice(price); err != nil {
			return fmt.Errorf("variant %s %s: %w", variant.ID, country, err)
		}
	}

	return nil
}

func validatePrice(raw string) error {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("price %q is not a decimal", raw)
	}
	if !price.IsPositive() {
		return fmt.Errorf("price must be positive")
	}
	if price.Exponent() < -2 {
		return fmt.Errorf("price %q has more than two decimal places", raw)
	}
	return nil
}
