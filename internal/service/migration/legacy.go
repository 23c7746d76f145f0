package migration

import (
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/status"
)

// Top-level fields that only legacy documents carry.
var (
	deprecatedBookingFields = []string{"requestCode", "operatorUserCode", "price", "totalPrice", "isPaid"}
	flatRoutingFields       = []string{"departureAirport", "arrivalAirport", "departureDate", "flexibleDates"}
)

// IsLegacy reports whether doc lacks a field the current shape requires
// or still carries a deprecated one. The check is structural: a current
// document that omits a required field is classified as legacy too.
func IsLegacy(kind Kind, doc docstore.Document) bool {
	switch kind {
	case KindBookings:
		return legacyBooking(doc)
	case KindInvoices:
		return legacyInvoice(doc)
	case KindQuotes:
		return legacyQuote(doc)
	case KindQuoteRequests:
		return legacyRequest(doc)
	}
	return false
}

func legacyBooking(doc docstore.Document) bool {
	if hasAny(doc, deprecatedBookingFields...) {
		return true
	}
	operator, ok := doc["operator"].(map[string]any)
	if !ok || str(operator, "operatorUserCode") == "" {
		return true
	}
	if _, ok := doc["aircraft"].(map[string]any); !ok {
		return true
	}
	if _, ok := doc["payment"].(map[string]any); !ok {
		return true
	}
	return legacyStatus(status.Bookings, doc)
}

func legacyInvoice(doc docstore.Document) bool {
	if has(doc, "amount") && (!has(doc, "payments") || !has(doc, "currency")) {
		return true
	}
	if !has(doc, "amount") || !has(doc, "amountPending") {
		return true
	}
	return legacyStatus(status.Invoices, doc)
}

func legacyQuote(doc docstore.Document) bool {
	if !has(doc, "commission") || !has(doc, "totalPrice") {
		return true
	}
	return legacyStatus(status.Offers, doc)
}

func legacyRequest(doc docstore.Document) bool {
	if hasAny(doc, flatRoutingFields...) {
		return true
	}
	if _, ok := doc["routing"].(map[string]any); !ok {
		return true
	}
	if !has(doc, "expiresAt") {
		return true
	}
	return legacyStatus(status.Requests, doc)
}

// legacyStatus also treats an unrecognized status as legacy so the
// transform surfaces it as a failure instead of counting it as current.
func legacyStatus(m statusTable, doc docstore.Document) bool {
	s, ok := doc["status"].(string)
	if !ok {
		return true
	}
	return m.IsLegacy(s) || !m.Valid(s)
}

type statusTable interface {
	Valid(string) bool
	IsLegacy(string) bool
}

func has(doc docstore.Document, field string) bool {
	v, ok := doc[field]
	return ok && v != nil
}

func hasAny(doc docstore.Document, fields ...string) bool {
	for _, f := range fields {
		if _, ok := doc[f]; ok {
			return true
		}
	}
	return false
}

func str(doc map[string]any, field string) string {
	s, _ := doc[field].(string)
	return s
}

func num(doc map[string]any, field string) (float64, bool) {
	switch v := doc[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func sub(doc map[string]any, field string) map[string]any {
	m, _ := doc[field].(map[string]any)
	return m
}
