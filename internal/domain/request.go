package domain

import (
	"time"

	"github.com/Domenick1991/charterbooking/internal/status"
)

// Collections of the document store.
const (
	CollectionQuoteRequests = "quoteRequests"
	CollectionQuotes        = "quotes"
	CollectionBookings      = "bookings"
	CollectionInvoices      = "invoices"
	CollectionPayments      = "payments"
	CollectionOperators     = "operators"
	CollectionAircraft      = "aircraft"
)

type Routing struct {
	DepartureAirport string    `json:"departureAirport"`
	ArrivalAirport   string    `json:"arrivalAirport"`
	DepartureDate    time.Time `json:"departureDate"`
	FlexibleDates    bool      `json:"flexibleDates"`
}

type QuoteRequest struct {
	ID             string               `json:"id"`
	Code           string               `json:"code"`
	ClientID       string               `json:"clientId"`
	Routing        Routing              `json:"routing"`
	PassengerCount int                  `json:"passengerCount"`
	Notes          string               `json:"notes,omitempty"`
	Status         status.RequestStatus `json:"status"`
	OfferCount     int                  `json:"offerCount"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	ExpiresAt      time.Time            `json:"expiresAt"`
	MigratedAt     *time.Time           `json:"migratedAt,omitempty"`
	Version        int64                `json:"version"`
}

// Open reports whether offers may still be submitted against the request.
func (r *QuoteRequest) Open(now time.Time) bool {
	return !status.Requests.IsTerminal(r.Status) && now.Before(r.ExpiresAt)
}

type Offer struct {
	ID          string             `json:"id"`
	Code        string             `json:"code"`
	RequestID   string             `json:"requestId"`
	RequestCode string             `json:"requestCode"`
	OperatorID  string             `json:"operatorId"`
	ClientID    string             `json:"clientId"`
	AircraftID  string             `json:"aircraftId,omitempty"`
	Price       float64            `json:"price"`
	Commission  float64            `json:"commission"`
	TotalPrice  float64            `json:"totalPrice"`
	Currency    string             `json:"currency"`
	Notes       string             `json:"notes,omitempty"`
	Status      status.OfferStatus `json:"status"`
	BookingID   string             `json:"bookingId,omitempty"`
	InvoiceID   string             `json:"invoiceId,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	AcceptedAt  *time.Time         `json:"acceptedAt,omitempty"`
	MigratedAt  *time.Time         `json:"migratedAt,omitempty"`
	Version     int64              `json:"version"`
}

// Operator is the operator profile used to fill booking contact details.
type Operator struct {
	ID               string `json:"id"`
	OperatorUserCode string `json:"operatorUserCode"`
	CompanyName      string `json:"companyName,omitempty"`
	ContactName      string `json:"contactName,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
}

type Aircraft struct {
	ID               string    `json:"id"`
	OperatorUserCode string    `json:"operatorUserCode"`
	Registration     string    `json:"registration"`
	Model            string    `json:"model"`
	Category         string    `json:"category,omitempty"`
	Seats            int       `json:"seats"`
	CreatedAt        time.Time `json:"createdAt"`
	Version          int64     `json:"version"`
}
