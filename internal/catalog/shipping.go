package catalog

import (
	"github.com/matchaleaf/storefront/internal/models"
)

// freeShippingThresholdBGN is 60.00 BGN in minor units.
const freeShippingThresholdBGN int64 = 6000

// ShippingMethod prices are in minor units of Currency.
type ShippingMethod struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Price        int64               `json:"price"`
	Currency     string              `json:"currency"`
	CarrierCode  string              `json:"carrierCode"`
	CarrierName  string              `json:"carrierName"`
	DeliveryType models.DeliveryType `json:"deliveryType"`
	FreeEligible bool                `json:"freeEligible"`
}

var shippingMethods = map[string][]ShippingMethod{
	"BG": {
		{ID: "econt-office", Name: "Econt office", Price: 550, Currency: "BGN", CarrierCode: "econt", CarrierName: "Econt", DeliveryType: models.DeliveryOffice, FreeEligible: true},
		{ID: "econt-address", Name: "Econt to address", Price: 790, Currency: "BGN", CarrierCode: "econt", CarrierName: "Econt", DeliveryType: models.DeliveryAddress, FreeEligible: true},
		{ID: "sameday-easybox", Name: "Sameday easybox", Price: 490, Currency: "BGN", CarrierCode: "sameday", CarrierName: "Sameday", DeliveryType: models.DeliveryEasybox, FreeEligible: true},
		{ID: "speedy-address", Name: "Speedy to address", Price: 850, Currency: "BGN", CarrierCode: "speedy", CarrierName: "Speedy", DeliveryType: models.DeliveryAddress},
	},
	"GR": {
		{ID: "acs-office", Name: "ACS point", Price: 350, Currency: "EUR", CarrierCode: "acs", CarrierName: "ACS Courier", DeliveryType: models.DeliveryOffice},
		{ID: "acs-address", Name: "ACS to address", Price: 490, Currency: "EUR", CarrierCode: "acs", CarrierName: "ACS Courier", DeliveryType: models.DeliveryAddress},
	},
	"RO": {
		{ID: "sameday-easybox", Name: "Sameday easybox", Price: 1299, Currency: "RON", CarrierCode: "sameday", CarrierName: "Sameday", DeliveryType: models.DeliveryEasybox},
		{ID: "sameday-address", Name: "Sameday to address", Price: 1799, Currency: "RON", CarrierCode: "sameday", CarrierName: "Sameday", DeliveryType: models.DeliveryAddress},
		{ID: "fan-address", Name: "FAN Courier to address", Price: 1999, Currency: "RON", CarrierCode: "fan", CarrierName: "FAN Courier", DeliveryType: models.DeliveryAddress},
	},
}

// ResolveShippingMethods returns a copy of the methods offered in a country.
// Unknown countries get the base country's methods.
func (r *Resolver) ResolveShippingMethods(countryCode string) []ShippingMethod {
	country := r.Country(countryCode)
	methods := r.shipping[country.Code]
	result := make([]ShippingMethod, len(methods))
	copy(result, methods)
	return result
}

func (r *Resolver) FindShippingMethod(countryCode, methodID string) (ShippingMethod, bool) {
	for _, method := range r.ResolveShippingMethods(countryCode) {
		if method.ID == methodID {
			return method, true
		}
	}
	return ShippingMethod{}, false
}

// FreeShippingEligible reports whether a subtotal (minor units) clears the
// free shipping threshold. Only the base country has one.
func (r *Resolver) FreeShippingEligible(countryCode string, subtotal int64) bool {
	return r.Country(countryCode).Code == BaseCountry && subtotal >= r.freeShippingThreshold
}

// ShippingPrice is the amount charged for method given the cart subtotal.
func (r *Resolver) ShippingPrice(countryCode string, method ShippingMethod, subtotal int64) int64 {
	if method.FreeEligible && r.FreeShippingEligible(countryCode, subtotal) {
		return 0
	}
	return method.Price
}

func (r *Resolver) FreeShippingThreshold() int64 {
	return r.freeShippingThreshold
}
