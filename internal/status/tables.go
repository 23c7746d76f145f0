package status

import "github.com/Domenick1991/charterbooking/internal/apperr"

type RequestStatus string

const (
	RequestSubmitted     RequestStatus = "submitted"
	RequestQuoteReceived RequestStatus = "quote-received"
	RequestQuotesViewed  RequestStatus = "quotes-viewed"
	RequestAccepted      RequestStatus = "accepted"
	RequestRejected      RequestStatus = "rejected"
	RequestExpired       RequestStatus = "expired"
)

type OfferStatus string

const (
	OfferAwaitingAcknowledgement OfferStatus = "awaiting-acknowledgement"
	OfferPendingClientAcceptance OfferStatus = "pending-client-acceptance"
	OfferAcceptedByClient        OfferStatus = "accepted-by-client"
	OfferRejectedByClient        OfferStatus = "rejected-by-client"
	OfferExpired                 OfferStatus = "expired"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "pending-payment"
	BookingDepositPaid    BookingStatus = "deposit-paid"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingClientReady    BookingStatus = "client-ready"
	BookingFlightReady    BookingStatus = "flight-ready"
	BookingArchived       BookingStatus = "archived"
	BookingCancelled      BookingStatus = "cancelled"
	BookingCredited       BookingStatus = "credited"
	BookingRefunded       BookingStatus = "refunded"
)

type InvoiceStatus string

const (
	InvoiceOpen       InvoiceStatus = "open"
	InvoiceBalanceDue InvoiceStatus = "balance-due"
	InvoicePaid       InvoiceStatus = "paid"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Requests is the quote request machine.
var Requests = newMachine(KindQuoteRequest, machineDef[RequestStatus]{
	states: []RequestStatus{
		RequestSubmitted, RequestQuoteReceived, RequestQuotesViewed,
		RequestAccepted, RequestRejected, RequestExpired,
	},
	terminal: []RequestStatus{RequestAccepted, RequestRejected, RequestExpired},
	edges: map[RequestStatus]map[Event]RequestStatus{
		RequestSubmitted: {
			EventOfferReceived: RequestQuoteReceived,
			EventReject:        RequestRejected,
			EventExpire:        RequestExpired,
		},
		RequestQuoteReceived: {
			EventOfferReceived: RequestQuoteReceived,
			EventOffersViewed:  RequestQuotesViewed,
			EventAccept:        RequestAccepted,
			EventReject:        RequestRejected,
			EventExpire:        RequestExpired,
		},
		RequestQuotesViewed: {
			EventOfferReceived: RequestQuotesViewed,
			EventOffersViewed:  RequestQuotesViewed,
			EventAccept:        RequestAccepted,
			EventReject:        RequestRejected,
			EventExpire:        RequestExpired,
		},
	},
	legacy: map[string]RequestStatus{
		"pending":               RequestSubmitted,
		"draft":                 RequestSubmitted,
		"under-operator-review": RequestQuoteReceived,
		"under-offer":           RequestQuoteReceived,
		"quoted":                RequestQuoteReceived,
		"booked":                RequestAccepted,
		"cancelled":             RequestRejected,
	},
})

// Offers is the offer (quote) machine. Accepting an already accepted
// offer is a self-transition so redelivered client actions are no-ops.
var Offers = newMachine(KindQuote, machineDef[OfferStatus]{
	states: []OfferStatus{
		OfferAwaitingAcknowledgement, OfferPendingClientAcceptance,
		OfferAcceptedByClient, OfferRejectedByClient, OfferExpired,
	},
	terminal: []OfferStatus{OfferAcceptedByClient, OfferRejectedByClient, OfferExpired},
	edges: map[OfferStatus]map[Event]OfferStatus{
		OfferAwaitingAcknowledgement: {
			EventAcknowledge: OfferPendingClientAcceptance,
			EventExpire:      OfferExpired,
		},
		OfferPendingClientAcceptance: {
			EventAccept: OfferAcceptedByClient,
			EventReject: OfferRejectedByClient,
			EventExpire: OfferExpired,
		},
		OfferAcceptedByClient: {
			EventAccept: OfferAcceptedByClient,
		},
	},
	legacy: map[string]OfferStatus{
		"pending":  OfferPendingClientAcceptance,
		"accepted": OfferAcceptedByClient,
		"rejected": OfferRejectedByClient,
		"declined": OfferRejectedByClient,
	},
})

// Bookings is the booking machine. Entering client-ready needs full
// payment and a complete manifest; flight-ready also needs every
// checklist flag.
var Bookings = newMachine(KindBooking, machineDef[BookingStatus]{
	states: []BookingStatus{
		BookingPendingPayment, BookingDepositPaid, BookingConfirmed, BookingClientReady,
		BookingFlightReady, BookingArchived, BookingCancelled, BookingCredited, BookingRefunded,
	},
	terminal: []BookingStatus{BookingArchived, BookingCredited, BookingRefunded},
	edges: map[BookingStatus]map[Event]BookingStatus{
		BookingPendingPayment: {
			EventPartialPayment: BookingDepositPaid,
			EventFullPayment:    BookingConfirmed,
			EventCancel:         BookingCancelled,
		},
		BookingDepositPaid: {
			EventPartialPayment: BookingDepositPaid,
			EventFullPayment:    BookingConfirmed,
			EventCancel:         BookingCancelled,
		},
		BookingConfirmed: {
			EventClientReady: BookingClientReady,
			EventCancel:      BookingCancelled,
		},
		BookingClientReady: {
			EventFlightReady: BookingFlightReady,
			EventCancel:      BookingCancelled,
		},
		BookingFlightReady: {
			EventArchive: BookingArchived,
			EventCancel:  BookingCancelled,
		},
		BookingCancelled: {
			EventCredit: BookingCredited,
			EventRefund: BookingRefunded,
		},
	},
	guards: map[BookingStatus]guard{
		BookingClientReady: func(f Facts) string {
			switch {
			case !f.FullyPaid:
				return "booking is not fully paid"
			case !f.ManifestComplete:
				return "passenger manifest is incomplete"
			}
			return ""
		},
		BookingFlightReady: func(f Facts) string {
			switch {
			case !f.FullyPaid:
				return "booking is not fully paid"
			case !f.ManifestComplete:
				return "passenger manifest is incomplete"
			case !f.ChecklistComplete:
				return "checklist is incomplete"
			}
			return ""
		},
	},
	legacy: map[string]BookingStatus{
		"pending":   BookingPendingPayment,
		"completed": BookingArchived,
	},
})

var Invoices = newMachine(KindInvoice, machineDef[InvoiceStatus]{
	states:   []InvoiceStatus{InvoiceOpen, InvoiceBalanceDue, InvoicePaid},
	terminal: []InvoiceStatus{InvoicePaid},
	edges: map[InvoiceStatus]map[Event]InvoiceStatus{
		InvoiceOpen: {
			EventPartialPayment: InvoiceBalanceDue,
			EventFullPayment:    InvoicePaid,
		},
		InvoiceBalanceDue: {
			EventPartialPayment: InvoiceBalanceDue,
			EventFullPayment:    InvoicePaid,
		},
	},
	legacy: map[string]InvoiceStatus{
		"pending":        InvoiceOpen,
		"unpaid":         InvoiceOpen,
		"partially-paid": InvoiceBalanceDue,
	},
})

var Payments = newMachine(KindPayment, machineDef[PaymentStatus]{
	states:   []PaymentStatus{PaymentPending, PaymentCompleted, PaymentFailed},
	terminal: []PaymentStatus{PaymentCompleted, PaymentFailed},
	edges: map[PaymentStatus]map[Event]PaymentStatus{
		PaymentPending: {
			EventComplete: PaymentCompleted,
			EventFail:     PaymentFailed,
		},
	},
})

var tables = map[Kind]table{
	KindQuoteRequest: Requests,
	KindQuote:        Offers,
	KindBooking:      Bookings,
	KindInvoice:      Invoices,
	KindPayment:      Payments,
}

// Kinds lists the entity kinds that carry a status machine.
func Kinds() []Kind {
	return []Kind{KindQuoteRequest, KindQuote, KindBooking, KindInvoice, KindPayment}
}

func lookup(kind Kind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, apperr.Validation("status table", "unknown entity kind %q", kind)
	}
	return t, nil
}

// NextStatus is the kind-dispatched form of Machine.Next.
func NextStatus(kind Kind, current string, ev Event, facts Facts) (string, error) {
	t, err := lookup(kind)
	if err != nil {
		return "", err
	}
	return t.next(current, ev, facts)
}

// NormalizeLegacyStatus is the kind-dispatched form of Machine.Normalize.
func NormalizeLegacyStatus(kind Kind, legacy string) (string, error) {
	t, err := lookup(kind)
	if err != nil {
		return "", err
	}
	return t.normalize(legacy)
}

func IsValid(kind Kind, s string) bool {
	t, err := lookup(kind)
	return err == nil && t.valid(s)
}

// LegacyValues lists the legacy strings known for kind.
func LegacyValues(kind Kind) []string {
	t, err := lookup(kind)
	if err != nil {
		return nil
	}
	return t.legacyValues()
}

// PaymentEvent picks the payment event for invoice and booking updates.
func PaymentEvent(fullyPaid bool) Event {
	if fullyPaid {
		return EventFullPayment
	}
	return EventPartialPayment
}

func (k Kind) String() string { return string(k) }
