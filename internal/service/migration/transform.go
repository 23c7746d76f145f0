package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/status"
)

// Transform computes the patch that brings doc to the current shape. It
// reads related documents but writes nothing.
func (e *Engine) Transform(ctx context.Context, kind Kind, doc docstore.Document) (docstore.Patch, error) {
	var (
		p   *patch
		err error
	)
	switch kind {
	case KindBookings:
		p, err = e.transformBooking(ctx, doc)
	case KindInvoices:
		p, err = e.transformInvoice(doc)
	case KindQuotes:
		p, err = e.transformQuote(doc)
	case KindQuoteRequests:
		p, err = e.transformRequest(doc)
	default:
		return docstore.Patch{}, fmt.Errorf("unknown migration kind %q", kind)
	}
	if err != nil {
		return docstore.Patch{}, fmt.Errorf("%s %s: %w", kind, docID(doc), err)
	}
	return p.finish(doc, e.clock.Now()), nil
}

type patch struct {
	set docstore.Document
	del []string
}

func newPatch() *patch { return &patch{set: docstore.Document{}} }

func (p *patch) drop(doc docstore.Document, fields ...string) {
	for _, f := range fields {
		if _, ok := doc[f]; ok {
			p.del = append(p.del, f)
		}
	}
}

// finish stamps the migration and guards it with the version read.
func (p *patch) finish(doc docstore.Document, now time.Time) docstore.Patch {
	version, ok := num(doc, "version")
	expect := map[string]any{"version": version}
	if !ok {
		expect["version"] = nil
	}
	p.set["version"] = int64(version) + 1
	p.set["migratedAt"] = now
	p.set["updatedAt"] = now
	return docstore.Patch{Set: p.set, Delete: p.del, Expect: expect}
}

func (e *Engine) transformBooking(ctx context.Context, doc docstore.Document) (*patch, error) {
	p := newPatch()

	req, err := e.relatedRequest(ctx, doc)
	if err != nil {
		return nil, err
	}
	offer, err := e.related(ctx, domain.CollectionQuotes, str(doc, "offerId"))
	if err != nil {
		return nil, err
	}

	if req != nil && !has(doc, "requestId") {
		p.set["requestId"] = docID(req)
	}
	if !has(doc, "clientId") {
		if c := firstString(str(req, "clientId"), str(offer, "clientId")); c != "" {
			p.set["clientId"] = c
		}
	}
	if _, ok := doc["routing"].(map[string]any); !ok && req != nil {
		if r := routingOf(req); r != nil {
			p.set["routing"] = r
		}
	}
	if !has(doc, "passengerCount") {
		if n, ok := num(req, "passengerCount"); ok {
			p.set["passengerCount"] = n
		}
	}

	operator := docstore.Clone(sub(doc, "operator"))
	if operator == nil {
		operator = map[string]any{}
	}
	code := firstString(str(operator, "operatorUserCode"), str(doc, "operatorUserCode"), str(offer, "operatorId"))
	if code == "" {
		return nil, errors.New("operator cannot be determined")
	}
	operator["operatorUserCode"] = code
	if err := e.fillOperator(ctx, operator); err != nil {
		return nil, err
	}
	p.set["operator"] = operator

	if _, ok := doc["aircraft"].(map[string]any); !ok {
		aircraft, err := e.aircraftDetails(ctx, firstString(str(doc, "aircraftId"), str(offer, "aircraftId")))
		if err != nil {
			return nil, err
		}
		p.set["aircraft"] = aircraft
	}

	summary, bal := e.paymentSummary(doc, offer)
	p.set["payment"] = summary

	st, err := bookingStatus(doc, bal)
	if err != nil {
		return nil, err
	}
	p.set["status"] = st

	if _, ok := doc["passengers"].([]any); !ok {
		p.set["passengers"] = []any{}
	}
	refs, err := e.documentRefs(ctx, doc)
	if err != nil {
		return nil, err
	}
	p.set["documents"] = refs
	checklist := docstore.Clone(sub(doc, "checklist"))
	if checklist == nil {
		checklist = map[string]any{
			"operatorConfirmed": false,
			"clientConfirmed":   false,
			"documentsComplete": false,
		}
	}
	checklist["paymentComplete"] = bal.fully
	p.set["checklist"] = checklist

	if _, ok := doc["history"].(map[string]any); !ok {
		history := map[string]any{"snapshotAt": e.clock.Now()}
		if req != nil {
			history["request"] = docstore.Clone(req)
		}
		if offer != nil {
			history["offer"] = docstore.Clone(offer)
		}
		p.set["history"] = history
	}

	p.drop(doc, deprecatedBookingFields...)
	p.drop(doc, "aircraftId")
	return p, nil
}

// balance is the settlement state of a migrated booking.
type balance struct {
	paid    decimal.Decimal
	pending decimal.Decimal
	fully   bool
}

// paymentStatus is the payment-phase status the balance allows.
func (b balance) paymentStatus() status.BookingStatus {
	switch {
	case b.fully:
		return status.BookingConfirmed
	case b.paid.IsPositive():
		return status.BookingDepositPaid
	default:
		return status.BookingPendingPayment
	}
}

// paymentSummary rebuilds the booking payment block. A legacy isPaid flag
// settles the whole amount.
func (e *Engine) paymentSummary(doc, offer docstore.Document) (map[string]any, balance) {
	summary := docstore.Clone(sub(doc, "payment"))
	if summary == nil {
		summary = map[string]any{}
	}

	total := firstDecimal(
		numField(summary, "totalAmount"),
		numField(doc, "totalPrice"),
		numField(offer, "totalPrice"),
	)
	subtotal := firstDecimal(
		numField(summary, "subtotal"),
		numField(doc, "price"),
		numField(offer, "price"),
	)
	if subtotal == nil {
		subtotal = total
	}
	if total == nil {
		total = subtotal
	}
	if total == nil {
		zero := decimal.Zero
		total, subtotal = &zero, &zero
	}

	paid := decimal.Zero
	if v := numField(summary, "amountPaid"); v != nil {
		paid = *v
	}
	if isPaid, _ := doc["isPaid"].(bool); isPaid {
		paid = *total
	}
	if paid.GreaterThan(*total) {
		paid = *total
	}
	pending := total.Sub(paid)

	summary["subtotal"] = subtotal.InexactFloat64()
	summary["commission"] = total.Sub(*subtotal).InexactFloat64()
	summary["totalAmount"] = total.InexactFloat64()
	summary["amountPaid"] = paid.InexactFloat64()
	summary["amountPending"] = pending.InexactFloat64()
	if str(summary, "currency") == "" {
		summary["currency"] = firstString(str(doc, "currency"), str(offer, "currency"), e.currency)
	}
	if _, ok := summary["paymentIds"].([]any); !ok {
		summary["paymentIds"] = []any{}
	}
	return summary, balance{
		paid:    paid,
		pending: pending,
		fully:   total.IsPositive() && !pending.IsPositive(),
	}
}

// bookingStatus maps the stored status onto the current table and
// reconciles it with the balance: a booking still owing money cannot sit
// at confirmed or later, and a settled one leaves the payment phase.
// Cancelled, credited, refunded and archived bookings keep their status.
func bookingStatus(doc docstore.Document, bal balance) (status.BookingStatus, error) {
	s, ok := doc["status"].(string)
	if !ok || s == "" {
		return bal.paymentStatus(), nil
	}
	st, err := status.Bookings.Normalize(s)
	if err != nil {
		return "", err
	}
	switch st {
	case status.BookingPendingPayment, status.BookingDepositPaid:
		return bal.paymentStatus(), nil
	case status.BookingConfirmed, status.BookingClientReady, status.BookingFlightReady:
		if bal.pending.IsPositive() {
			return bal.paymentStatus(), nil
		}
	}
	return st, nil
}

// documentRefs keeps the stored references and links the booking's
// invoice when the references lack one.
func (e *Engine) documentRefs(ctx context.Context, doc docstore.Document) (map[string]any, error) {
	refs := docstore.Clone(sub(doc, "documents"))
	if refs == nil {
		refs = map[string]any{}
	}
	if str(refs, "invoiceId") != "" {
		return refs, nil
	}
	inv, err := e.relatedInvoice(ctx, doc)
	if err != nil || inv == nil {
		return refs, err
	}
	refs["invoiceId"] = docID(inv)
	if code := str(inv, "code"); code != "" {
		refs["invoiceCode"] = code
	}
	return refs, nil
}

// relatedInvoice finds the booking's invoice by booking id, falling back to
// the legacy booking code.
func (e *Engine) relatedInvoice(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	lookups := []docstore.Filter{}
	if id := docID(doc); id != "" {
		lookups = append(lookups, docstore.Eq("bookingId", id))
	}
	if code := str(doc, "code"); code != "" {
		lookups = append(lookups, docstore.Eq("bookingCode", code))
	}
	for _, f := range lookups {
		docs, err := e.store.Query(ctx, domain.CollectionInvoices, docstore.Query{
			Filters: []docstore.Filter{f},
			Limit:   1,
		})
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			return docs[0], nil
		}
	}
	return nil, nil
}

func (e *Engine) transformInvoice(doc docstore.Document) (*patch, error) {
	p := newPatch()

	amount := firstDecimal(numField(doc, "amount"), numField(doc, "totalAmount"))
	if amount == nil {
		return nil, errors.New("invoice has no amount")
	}
	raw, _ := doc["status"].(string)
	paid := decimal.Zero
	if v := numField(doc, "amountPaid"); v != nil {
		paid = *v
	}

	var (
		st  status.InvoiceStatus
		err error
	)
	if raw != "" {
		if st, err = status.Invoices.Normalize(raw); err != nil {
			return nil, err
		}
		if st == status.InvoicePaid {
			paid = *amount
		}
	}
	if paid.GreaterThan(*amount) {
		paid = *amount
	}
	pending := amount.Sub(paid)
	if raw == "" {
		switch {
		case !pending.IsPositive():
			st = status.InvoicePaid
		case paid.IsPositive():
			st = status.InvoiceBalanceDue
		default:
			st = status.InvoiceOpen
		}
	}

	p.set["amount"] = amount.InexactFloat64()
	p.set["amountPaid"] = paid.InexactFloat64()
	p.set["amountPending"] = pending.InexactFloat64()
	p.set["status"] = st
	if !has(doc, "currency") {
		p.set["currency"] = e.currency
	}
	if _, ok := doc["payments"].([]any); !ok {
		p.set["payments"] = []any{}
	}
	p.drop(doc, "totalAmount")
	return p, nil
}

func (e *Engine) transformQuote(doc docstore.Document) (*patch, error) {
	p := newPatch()

	price := firstDecimal(numField(doc, "price"), numField(doc, "amount"))
	if price == nil {
		return nil, errors.New("offer has no price")
	}
	commission := price.Mul(e.commissionRate).Round(0)
	if v := numField(doc, "commission"); v != nil {
		commission = *v
	}
	p.set["price"] = price.InexactFloat64()
	p.set["commission"] = commission.InexactFloat64()
	p.set["totalPrice"] = price.Add(commission).InexactFloat64()
	if !has(doc, "currency") {
		p.set["currency"] = e.currency
	}

	raw, _ := doc["status"].(string)
	if raw == "" {
		raw = string(status.OfferPendingClientAcceptance)
	}
	st, err := status.Offers.Normalize(raw)
	if err != nil {
		return nil, err
	}
	p.set["status"] = st
	p.drop(doc, "amount")
	return p, nil
}

func (e *Engine) transformRequest(doc docstore.Document) (*patch, error) {
	p := newPatch()

	if r := routingOf(doc); r != nil {
		p.set["routing"] = r
	} else if _, ok := doc["routing"].(map[string]any); !ok {
		return nil, errors.New("quote request has no routing")
	}
	p.drop(doc, flatRoutingFields...)

	if !has(doc, "expiresAt") {
		created := e.clock.Now()
		if t, err := time.Parse(time.RFC3339Nano, str(doc, "createdAt")); err == nil {
			created = t
		}
		p.set["expiresAt"] = created.Add(e.requestTTL).UTC()
	}

	raw, _ := doc["status"].(string)
	if raw == "" {
		raw = string(status.RequestSubmitted)
	}
	st, err := status.Requests.Normalize(raw)
	if err != nil {
		return nil, err
	}
	p.set["status"] = st
	return p, nil
}

// routingOf builds a routing block from the flat legacy fields, or returns
// the existing block. It returns nil when neither is present.
func routingOf(doc docstore.Document) map[string]any {
	if !hasAny(doc, flatRoutingFields...) {
		if r, ok := doc["routing"].(map[string]any); ok {
			return docstore.Clone(r)
		}
		return nil
	}
	r := docstore.Clone(sub(doc, "routing"))
	if r == nil {
		r = map[string]any{}
	}
	for _, f := range flatRoutingFields {
		if v, ok := doc[f]; ok {
			if s, isStr := v.(string); isStr && strings.HasSuffix(f, "Airport") {
				v = strings.ToUpper(s)
			}
			r[f] = v
		}
	}
	return r
}

// relatedRequest finds the originating request by id, falling back to the
// legacy request code.
func (e *Engine) relatedRequest(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	if id := str(doc, "requestId"); id != "" {
		req, err := e.related(ctx, domain.CollectionQuoteRequests, id)
		if err != nil || req != nil {
			return req, err
		}
	}
	code := str(doc, "requestCode")
	if code == "" {
		return nil, nil
	}
	docs, err := e.store.Query(ctx, domain.CollectionQuoteRequests, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("code", code)},
		Limit:   1,
	})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// related reads a document that may be missing.
func (e *Engine) related(ctx context.Context, collection, id string) (docstore.Document, error) {
	if id == "" {
		return nil, nil
	}
	doc, err := e.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// fillOperator backfills contact details from the operator profile without
// overwriting values the booking already has.
func (e *Engine) fillOperator(ctx context.Context, operator map[string]any) error {
	docs, err := e.store.Query(ctx, domain.CollectionOperators, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("operatorUserCode", operator["operatorUserCode"])},
		Limit:   1,
	})
	if err != nil || len(docs) == 0 {
		return err
	}
	for _, f := range []string{"companyName", "contactName", "email", "phone"} {
		if str(operator, f) == "" {
			if v := str(docs[0], f); v != "" {
				operator[f] = v
			}
		}
	}
	return nil
}

// aircraftDetails embeds the referenced aircraft, or an empty block when
// none is known.
func (e *Engine) aircraftDetails(ctx context.Context, id string) (map[string]any, error) {
	ac, err := e.related(ctx, domain.CollectionAircraft, id)
	if err != nil || ac == nil {
		return map[string]any{}, err
	}
	out := map[string]any{"id": docID(ac)}
	for _, f := range []string{"registration", "model", "category", "seats"} {
		if v, ok := ac[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func numField(doc map[string]any, field string) *decimal.Decimal {
	v, ok := num(doc, field)
	if !ok {
		return nil
	}
	d := decimal.NewFromFloat(v)
	return &d
}

func firstDecimal(vs ...*decimal.Decimal) *decimal.Decimal {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
