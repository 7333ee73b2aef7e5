package services

import (
	"net/url"
	"strings"
)

const (
	CarrierEcont   = "econt"
	CarrierSpeedy  = "speedy"
	CarrierSameday = "sameday"
	CarrierACS     = "acs"
	CarrierFAN     = "fan"
)

// NormalizeCarrierCode returns the canonical code for known couriers and an
// empty string otherwise.
func NormalizeCarrierCode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	replacer := strings.NewReplacer(" ", "", "-", "", "_", "")
	normalized = replacer.Replace(normalized)

	switch normalized {
	case "econt", "econtexpress":
		return CarrierEcont
	case "speedy":
		return CarrierSpeedy
	case "sameday", "samedaycourier", "easybox":
		return CarrierSameday
	case "acs", "acscourier":
		return CarrierACS
	case "fan", "fancourier":
		return CarrierFAN
	default:
		return ""
	}
}

// CarrierDisplayName keeps unknown names untouched.
func CarrierDisplayName(carrier string) string {
	switch NormalizeCarrierCode(carrier) {
	case CarrierEcont:
		return "Econt"
	case CarrierSpeedy:
		return "Speedy"
	case CarrierSameday:
		return "Sameday"
	case CarrierACS:
		return "ACS Courier"
	case CarrierFAN:
		return "FAN Courier"
	default:
		return strings.TrimSpace(carrier)
	}
}

// BuildTrackingURL returns a courier tracking page. Unknown couriers and mock
// tracking numbers return empty.
func BuildTrackingURL(carrier, trackingNumber string) string {
	number := strings.TrimSpace(trackingNumber)
	if number == "" || strings.HasPrefix(number, "MOCK-") {
		return ""
	}

	escaped := url.QueryEscape(number)
	switch NormalizeCarrierCode(carrier) {
	case CarrierEcont:
		return "https://www.econt.com/services/track-shipment/" + url.PathEscape(number)
	case CarrierSpeedy:
		return "https://www.speedy.bg/bg/track-shipment?shipmentNumber=" + escaped
	case CarrierSameday:
		return "https://sameday.ro/awb-tracking/?awb=" + escaped
	case CarrierACS:
		return "https://www.acscourier.net/en/track-and-trace/?trackingNumber=" + escaped
	case CarrierFAN:
		return "https://www.fancourier.ro/awb-tracking/?tracking=" + escaped
	default:
		return ""
	}
}
