package lifecycle

import (
	"time"

	"github.com/Domenick1991/charterbooking/internal/domain"
)

type RoutingInput struct {
	DepartureAirport string    `json:"departureAirport" validate:"required,alphanum,min=3,max=4"`
	ArrivalAirport   string    `json:"arrivalAirport" validate:"required,alphanum,min=3,max=4"`
	DepartureDate    time.Time `json:"departureDate" validate:"required"`
	FlexibleDates    bool      `json:"flexibleDates"`
	PassengerCount   int       `json:"passengerCount" validate:"required,min=1,max=853"`
	Notes            string    `json:"notes" validate:"max=2000"`
}

type PriceInput struct {
	Price      float64 `json:"price" validate:"required,gt=0"`
	AircraftID string  `json:"aircraftId"`
	Notes      string  `json:"notes" validate:"max=2000"`
}

type PaymentInput struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Method      string  `json:"method" validate:"required,oneof=eft card cash wire"`
	Reference   string  `json:"reference" validate:"max=128"`
	ProcessedBy string  `json:"processedBy" validate:"max=64"`
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

type SettleInput struct {
	Outcome     Outcome `json:"outcome" validate:"required,oneof=completed failed"`
	Reason      string  `json:"reason" validate:"max=512"`
	ProcessedBy string  `json:"processedBy" validate:"max=64"`
}

type AircraftInput struct {
	Registration string `json:"registration" validate:"required,max=16"`
	Model        string `json:"model" validate:"required,max=64"`
	Category     string `json:"category" validate:"max=32"`
	Seats        int    `json:"seats" validate:"required,min=1,max=853"`
}

type PassengerInput struct {
	// ID keeps an existing manifest entry; empty assigns a new one.
	ID             string `json:"id"`
	FirstName      string `json:"firstName" validate:"required,max=64"`
	LastName       string `json:"lastName" validate:"required,max=64"`
	Nationality    string `json:"nationality" validate:"omitempty,len=2,alpha"`
	PassportNumber string `json:"passportNumber" validate:"max=32"`
}

// ChecklistInput sets the manually confirmed checklist flags. The payment
// flag follows settlement and cannot be set here.
type ChecklistInput struct {
	OperatorConfirmed *bool `json:"operatorConfirmed"`
	ClientConfirmed   *bool `json:"clientConfirmed"`
	DocumentsComplete *bool `json:"documentsComplete"`
}

func (in ChecklistInput) apply(c domain.Checklist) domain.Checklist {
	if in.OperatorConfirmed != nil {
		c.OperatorConfirmed = *in.OperatorConfirmed
	}
	if in.ClientConfirmed != nil {
		c.ClientConfirmed = *in.ClientConfirmed
	}
	if in.DocumentsComplete != nil {
		c.DocumentsComplete = *in.DocumentsComplete
	}
	return c
}

type ExpiryReport struct {
	Requests int `json:"requests"`
	Offers   int `json:"offers"`
	Skipped  int `json:"skipped"`
}
