package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/charterbooking/internal/apperr"
)

func TestRequestFlow(t *testing.T) {
	s := RequestSubmitted
	steps := []struct {
		ev   Event
		want RequestStatus
	}{
		{EventOfferReceived, RequestQuoteReceived},
		{EventOfferReceived, RequestQuoteReceived},
		{EventOffersViewed, RequestQuotesViewed},
		{EventOfferReceived, RequestQuotesViewed},
		{EventAccept, RequestAccepted},
	}
	for _, st := range steps {
		next, err := Requests.Next(s, st.ev, Facts{})
		require.NoError(t, err, "event %s from %s", st.ev, s)
		assert.Equal(t, st.want, next)
		s = next
	}
	assert.True(t, Requests.IsTerminal(s))
}

func TestRequestAcceptBeforeOffer(t *testing.T) {
	_, err := Requests.Next(RequestSubmitted, EventAccept, Facts{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestExpireFromEveryNonTerminalState(t *testing.T) {
	for _, s := range Requests.States() {
		next, err := Requests.Next(s, EventExpire, Facts{})
		if Requests.IsTerminal(s) {
			assert.Error(t, err, s)
			continue
		}
		require.NoError(t, err, s)
		assert.Equal(t, RequestExpired, next)
	}
	for _, s := range Offers.States() {
		next, err := Offers.Next(s, EventExpire, Facts{})
		assert.Equal(t, !Offers.IsTerminal(s), Offers.Can(s, EventExpire, Facts{}), s)
		if Offers.IsTerminal(s) {
			assert.Error(t, err, s)
			continue
		}
		require.NoError(t, err, s)
		assert.Equal(t, OfferExpired, next)
	}
}

func TestOfferAcceptIsIdempotent(t *testing.T) {
	s, err := Offers.Next(OfferPendingClientAcceptance, EventAccept, Facts{})
	require.NoError(t, err)
	assert.Equal(t, OfferAcceptedByClient, s)

	again, err := Offers.Next(s, EventAccept, Facts{})
	require.NoError(t, err)
	assert.Equal(t, OfferAcceptedByClient, again)

	_, err = Offers.Next(OfferAwaitingAcknowledgement, EventAccept, Facts{})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = Offers.Next(OfferRejectedByClient, EventAccept, Facts{})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestBookingPaymentEvents(t *testing.T) {
	s, err := Bookings.Next(BookingPendingPayment, PaymentEvent(false), Facts{})
	require.NoError(t, err)
	assert.Equal(t, BookingDepositPaid, s)

	s, err = Bookings.Next(s, PaymentEvent(false), Facts{})
	require.NoError(t, err)
	assert.Equal(t, BookingDepositPaid, s)

	s, err = Bookings.Next(s, PaymentEvent(true), Facts{FullyPaid: true})
	require.NoError(t, err)
	assert.Equal(t, BookingConfirmed, s)

	_, err = Bookings.Next(BookingConfirmed, EventFullPayment, Facts{FullyPaid: true})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestBookingReadinessGuards(t *testing.T) {
	tests := []struct {
		name  string
		from  BookingStatus
		ev    Event
		facts Facts
		want  BookingStatus
		ok    bool
	}{
		{"client ready unpaid", BookingConfirmed, EventClientReady, Facts{ManifestComplete: true}, "", false},
		{"client ready no manifest", BookingConfirmed, EventClientReady, Facts{FullyPaid: true}, "", false},
		{"client ready", BookingConfirmed, EventClientReady, Facts{FullyPaid: true, ManifestComplete: true}, BookingClientReady, true},
		{"flight ready no checklist", BookingClientReady, EventFlightReady, Facts{FullyPaid: true, ManifestComplete: true}, "", false},
		{"flight ready", BookingClientReady, EventFlightReady, Facts{FullyPaid: true, ManifestComplete: true, ChecklistComplete: true}, BookingFlightReady, true},
		{"flight ready skips client ready", BookingConfirmed, EventFlightReady, Facts{FullyPaid: true, ManifestComplete: true, ChecklistComplete: true}, "", false},
		{"archive", BookingFlightReady, EventArchive, Facts{}, BookingArchived, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bookings.Next(tt.from, tt.ev, tt.facts)
			if !tt.ok {
				assert.ErrorIs(t, err, apperr.ErrInvalidState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBookingCancellationBranch(t *testing.T) {
	for _, s := range []BookingStatus{BookingPendingPayment, BookingDepositPaid, BookingConfirmed, BookingClientReady, BookingFlightReady} {
		next, err := Bookings.Next(s, EventCancel, Facts{})
		require.NoError(t, err, s)
		assert.Equal(t, BookingCancelled, next)
	}

	_, err := Bookings.Next(BookingArchived, EventCancel, Facts{})
	assert.Error(t, err)

	credited, err := Bookings.Next(BookingCancelled, EventCredit, Facts{})
	require.NoError(t, err)
	assert.Equal(t, BookingCredited, credited)

	refunded, err := Bookings.Next(BookingCancelled, EventRefund, Facts{})
	require.NoError(t, err)
	assert.Equal(t, BookingRefunded, refunded)
}

func TestInvoiceAndPayment(t *testing.T) {
	s, err := Invoices.Next(InvoiceOpen, PaymentEvent(false), Facts{})
	require.NoError(t, err)
	assert.Equal(t, InvoiceBalanceDue, s)

	s, err = Invoices.Next(s, PaymentEvent(true), Facts{})
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, s)

	_, err = Invoices.Next(s, PaymentEvent(false), Facts{})
	assert.ErrorIs(t, err, ErrRejected)

	p, err := Payments.Next(PaymentPending, EventComplete, Facts{})
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, p)

	_, err = Payments.Next(p, EventComplete, Facts{})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = Payments.Next(PaymentFailed, EventComplete, Facts{})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestNormalizeLegacyStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		legacy string
		want   string
	}{
		{KindQuoteRequest, "pending", "submitted"},
		{KindQuoteRequest, "draft", "submitted"},
		{KindQuoteRequest, "under-operator-review", "quote-received"},
		{KindQuoteRequest, "under-offer", "quote-received"},
		{KindQuoteRequest, "quoted", "quote-received"},
		{KindQuoteRequest, "booked", "accepted"},
		{KindQuoteRequest, "cancelled", "rejected"},
		{KindQuoteRequest, "quotes-viewed", "quotes-viewed"},
		{KindQuote, "pending", "pending-client-acceptance"},
		{KindQuote, "declined", "rejected-by-client"},
		{KindBooking, "pending", "pending-payment"},
		{KindBooking, "confirmed", "confirmed"},
		{KindBooking, "completed", "archived"},
		{KindBooking, "cancelled", "cancelled"},
		{KindInvoice, "unpaid", "open"},
		{KindInvoice, "partially-paid", "balance-due"},
		{KindInvoice, "paid", "paid"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.legacy, func(t *testing.T) {
			got, err := NormalizeLegacyStatus(tt.kind, tt.legacy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeUnknownStatus(t *testing.T) {
	_, err := NormalizeLegacyStatus(KindBooking, "teleported")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStatus)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = NormalizeLegacyStatus(Kind("spaceship"), "pending")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEveryLegacyValueMapsToCurrentState(t *testing.T) {
	for _, kind := range Kinds() {
		for _, v := range LegacyValues(kind) {
			got, err := NormalizeLegacyStatus(kind, v)
			require.NoError(t, err, "%s %q", kind, v)
			assert.True(t, IsValid(kind, got), "%s %q maps to %q", kind, v, got)
		}
	}
}

func TestNextStatusDispatch(t *testing.T) {
	got, err := NextStatus(KindQuote, "awaiting-acknowledgement", EventAcknowledge, Facts{})
	require.NoError(t, err)
	assert.Equal(t, "pending-client-acceptance", got)

	_, err = NextStatus(KindBooking, "pending", EventCancel, Facts{})
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestIsLegacy(t *testing.T) {
	assert.True(t, Requests.IsLegacy("under-offer"))
	assert.False(t, Requests.IsLegacy("submitted"))
	assert.False(t, Bookings.IsLegacy("teleported"))
}

func TestTableWithUnknownStatePanics(t *testing.T) {
	assert.Panics(t, func() {
		newMachine(KindPayment, machineDef[PaymentStatus]{
			states: []PaymentStatus{PaymentPending},
			legacy: map[string]PaymentStatus{"old": PaymentCompleted},
		})
	})
}
