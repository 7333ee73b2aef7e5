package handlers

import (
	"net/http"

	"github.com/matchaleaf/storefront/internal/catalog"
)

type shippingMethodsResponse struct {
	Country               string                   `json:"country"`
	Currency              string                   `json:"currency"`
	FreeShippingThreshold *int64                   `json:"freeShippingThreshold,omitempty"`
	Methods               []catalog.ShippingMethod `json:"methods"`
}

type variantPrice struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Price      string `json:"price"`
	PriceMinor int64  `json:"priceMinor"`
	Currency   string `json:"currency"`
	DisplayEUR string `json:"displayEur,omitempty"`
	Available  bool   `json:"available"`
}

type productPrices struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Variants []variantPrice `json:"variants"`
}

type pricesResponse struct {
	Country  string          `json:"country"`
	Currency string          `json:"currency"`
	Products []productPrices `json:"products"`
}

func (h *Handlers) ShippingMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	country := h.resolver.Country(r.URL.Query().Get("country"))

	resp := shippingMethodsResponse{
		Country:  country.Code,
		Currency: country.Currency,
		Methods:  h.resolver.ResolveShippingMethods(country.Code),
	}
	if country.Code == catalog.BaseCountry {
		threshold := h.resolver.FreeShippingThreshold()
		resp.FreeShippingThreshold = &threshold
	}
	h.writeJSON(ctx, w, http.StatusOK, resp)
}

// Prices lists active products with prices resolved for the requested
// country. Variants with an unreadable price are left out.
func (h *Handlers) Prices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	country := h.resolver.Country(r.URL.Query().Get("country"))

	resp := pricesResponse{
		Country:  country.Code,
		Currency: country.Currency,
		Products: []productPrices{},
	}
	for _, product := range h.catalog.Products {
		if !product.Active {
			continue
		}
		entry := productPrices{ID: product.ID, Title: product.Title, Variants: []variantPrice{}}
		for _, variant := range product.Variants {
			price, err := h.resolver.VariantPrice(variant, country.Code)
			if err != nil {
				logger.Warn("skipping variant with invalid price", "variant_id", variant.ID, "error", err)
				continue
			}
			vp := variantPrice{
				ID:         variant.ID,
				Title:      variant.Title,
				Price:      price.Amount.StringFixed(2),
				PriceMinor: price.MinorUnits(),
				Currency:   price.Currency,
				Available:  variant.Available,
			}
			if price.DisplayEUR.Valid {
				vp.DisplayEUR = price.DisplayEUR.Decimal.StringFixed(2)
			}
			entry.Variants = append(entry.Variants, vp)
		}
		resp.Products = append(resp.Products, entry)
	}

	h.writeJSON(ctx, w, http.StatusOK, resp)
}
