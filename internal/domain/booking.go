package domain

import (
	"time"

	"github.com/Domenick1991/charterbooking/internal/status"
)

type Booking struct {
	ID             string               `json:"id"`
	Code           string               `json:"code"`
	RequestID      string               `json:"requestId"`
	OfferID        string               `json:"offerId"`
	ClientID       string               `json:"clientId"`
	FlightCode     string               `json:"flightCode"`
	Status         status.BookingStatus `json:"status"`
	Routing        Routing              `json:"routing"`
	PassengerCount int                  `json:"passengerCount"`
	Operator       OperatorDetails      `json:"operator"`
	Aircraft       AircraftDetails      `json:"aircraft"`
	Passengers     []Passenger          `json:"passengers"`
	Payment        PaymentSummary       `json:"payment"`
	Documents      DocumentRefs         `json:"documents"`
	History        BookingHistory       `json:"history"`
	Checklist      Checklist            `json:"checklist"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	MigratedAt     *time.Time           `json:"migratedAt,omitempty"`
	Version        int64                `json:"version"`
}

type OperatorDetails struct {
	OperatorUserCode string `json:"operatorUserCode"`
	CompanyName      string `json:"companyName,omitempty"`
	ContactName      string `json:"contactName,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
}

// AircraftDetails is empty until an aircraft is assigned.
type AircraftDetails struct {
	ID           string `json:"id,omitempty"`
	Registration string `json:"registration,omitempty"`
	Model        string `json:"model,omitempty"`
	Category     string `json:"category,omitempty"`
	Seats        int    `json:"seats,omitempty"`
}

type Passenger struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Nationality    string `json:"nationality,omitempty"`
	PassportNumber string `json:"passportNumber,omitempty"`
	TicketID       string `json:"ticketId,omitempty"`
}

// PaymentSummary keeps AmountPaid + AmountPending == TotalAmount.
type PaymentSummary struct {
	Subtotal      float64    `json:"subtotal"`
	Commission    float64    `json:"commission"`
	TotalAmount   float64    `json:"totalAmount"`
	AmountPaid    float64    `json:"amountPaid"`
	AmountPending float64    `json:"amountPending"`
	Currency      string     `json:"currency"`
	PaymentIDs    []string   `json:"paymentIds"`
	LastPaymentAt *time.Time `json:"lastPaymentAt,omitempty"`
}

func (p PaymentSummary) FullyPaid() bool {
	return p.TotalAmount > 0 && p.AmountPending <= 0
}

type DocumentRefs struct {
	InvoiceID   string   `json:"invoiceId,omitempty"`
	InvoiceCode string   `json:"invoiceCode,omitempty"`
	ContractID  string   `json:"contractId,omitempty"`
	TicketIDs   []string `json:"ticketIds,omitempty"`
}

// BookingHistory freezes the request and offer as they were at acceptance.
type BookingHistory struct {
	Request    map[string]any `json:"request,omitempty"`
	Offer      map[string]any `json:"offer,omitempty"`
	SnapshotAt time.Time      `json:"snapshotAt"`
}

type Checklist struct {
	OperatorConfirmed bool `json:"operatorConfirmed"`
	ClientConfirmed   bool `json:"clientConfirmed"`
	DocumentsComplete bool `json:"documentsComplete"`
	PaymentComplete   bool `json:"paymentComplete"`
}

func (c Checklist) Complete() bool {
	return c.OperatorConfirmed && c.ClientConfirmed && c.DocumentsComplete && c.PaymentComplete
}

func (b *Booking) ManifestComplete() bool {
	want := b.PassengerCount
	if want < 1 {
		want = 1
	}
	return len(b.Passengers) >= want
}

// Facts returns the guard inputs of the booking state machine.
func (b *Booking) Facts() status.Facts {
	return status.Facts{
		FullyPaid:         b.Payment.FullyPaid(),
		ManifestComplete:  b.ManifestComplete(),
		ChecklistComplete: b.Checklist.Complete(),
	}
}

type Invoice struct {
	ID               string               `json:"id"`
	Code             string               `json:"code"`
	BookingID        string               `json:"bookingId"`
	OfferID          string               `json:"offerId"`
	ClientID         string               `json:"clientId"`
	OperatorUserCode string               `json:"operatorUserCode"`
	Amount           float64              `json:"amount"`
	AmountPaid       float64              `json:"amountPaid"`
	AmountPending    float64              `json:"amountPending"`
	Currency         string               `json:"currency"`
	Status           status.InvoiceStatus `json:"status"`
	Payments         []string             `json:"payments"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
	MigratedAt       *time.Time           `json:"migratedAt,omitempty"`
	Version          int64                `json:"version"`
}

type Payment struct {
	ID            string               `json:"id"`
	Code          string               `json:"code"`
	BookingID     string               `json:"bookingId"`
	InvoiceID     string               `json:"invoiceId"`
	Amount        float64              `json:"amount"`
	Currency      string               `json:"currency"`
	Method        string               `json:"method"`
	Reference     string               `json:"reference,omitempty"`
	ProcessedBy   string               `json:"processedBy,omitempty"`
	Status        status.PaymentStatus `json:"status"`
	FailureReason string               `json:"failureReason,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	SettledAt     *time.Time           `json:"settledAt,omitempty"`
	Version       int64                `json:"version"`
}
