package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/ident"
	"github.com/Domenick1991/charterbooking/internal/status"
)

// Pricing is the commission split of an offer price.
type Pricing struct {
	Price      decimal.Decimal
	Commission decimal.Decimal
	Total      decimal.Decimal
}

// Price computes commission = round(price × rate) and total = price +
// commission, rounding half away from zero to whole currency units.
func Price(price, rate decimal.Decimal) Pricing {
	commission := price.Mul(rate).Round(0)
	return Pricing{Price: price, Commission: commission, Total: price.Add(commission)}
}

// SubmitOffer records an operator's priced response and advances the
// request in the same batch.
func (s *Service) SubmitOffer(ctx context.Context, requestID, operatorID string, in PriceInput) (*domain.Offer, error) {
	const op = "submit offer"
	if err := s.validateInput(op, in); err != nil {
		return nil, err
	}
	operator, err := ident.NormalizeCode(operatorID)
	if err != nil {
		return nil, err
	}

	var out *domain.Offer
	err = s.withLock(ctx, op, domain.CollectionQuoteRequests, requestID, func() error {
		req, _, err := s.loadRequest(ctx, op, requestID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if !req.Open(now) {
			return apperr.InvalidState(op, "quote request %s is %s", req.Code, closedReason(req, now))
		}
		reqNext, err := status.Requests.Next(req.Status, status.EventOfferReceived, status.Facts{})
		if err != nil {
			return err
		}

		if in.AircraftID != "" {
			ac, _, err := load[domain.Aircraft](ctx, s, op, domain.CollectionAircraft, in.AircraftID)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					return apperr.Validation(op, "aircraft %s is not registered", in.AircraftID)
				}
				return err
			}
			if ac.OperatorUserCode != operator {
				return apperr.Validation(op, "aircraft %s belongs to another operator", in.AircraftID)
			}
		}

		offerStatus := status.OfferAwaitingAcknowledgement
		if s.autoAck {
			if offerStatus, err = status.Offers.Next(offerStatus, status.EventAcknowledge, status.Facts{}); err != nil {
				return err
			}
		}

		code, err := s.ids.Generate(ident.KindQuote, ident.Context{Code: operator, LinkedID: req.ID})
		if err != nil {
			return err
		}
		pricing := Price(decimal.NewFromFloat(in.Price), s.commissionRate)
		offer := &domain.Offer{
			ID:          uuid.NewString(),
			Code:        code,
			RequestID:   req.ID,
			RequestCode: req.Code,
			OperatorID:  operator,
			ClientID:    req.ClientID,
			AircraftID:  in.AircraftID,
			Price:       pricing.Price.InexactFloat64(),
			Commission:  pricing.Commission.InexactFloat64(),
			TotalPrice:  pricing.Total.InexactFloat64(),
			Currency:    s.currency,
			Notes:       in.Notes,
			Status:      offerStatus,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}

		createOp, err := s.create(domain.CollectionQuotes, offer.ID, offer)
		if err != nil {
			return err
		}
		ops := []docstore.Operation{
			createOp,
			docstore.Update(domain.CollectionQuoteRequests, req.ID, s.change(req.Version, docstore.Document{
				"status":     reqNext,
				"offerCount": req.OfferCount + 1,
			})),
		}
		if err := s.store.CommitBatch(ctx, ops); err != nil {
			return storeErr(op, err)
		}
		out = offer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("offer submitted",
		zap.String("offer_id", out.ID),
		zap.String("request_id", out.RequestID),
		zap.Float64("total_price", out.TotalPrice),
	)
	s.notify(ctx, out.ClientID, domain.EventOfferSubmitted, map[string]any{
		"offerId":     out.ID,
		"offerCode":   out.Code,
		"requestId":   out.RequestID,
		"requestCode": out.RequestCode,
		"totalPrice":  out.TotalPrice,
		"currency":    out.Currency,
	})
	return out, nil
}

func closedReason(req *domain.QuoteRequest, now time.Time) string {
	if status.Requests.IsTerminal(req.Status) {
		return string(req.Status)
	}
	if !now.Before(req.ExpiresAt) {
		return "past its expiry"
	}
	return "closed"
}

// AcknowledgeOffer confirms an operator's offer for client review.
func (s *Service) AcknowledgeOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	return s.transitionOffer(ctx, "acknowledge offer", offerID, status.EventAcknowledge)
}

// RejectOffer records the client's rejection of one offer.
func (s *Service) RejectOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	return s.transitionOffer(ctx, "reject offer", offerID, status.EventReject)
}

func (s *Service) transitionOffer(ctx context.Context, op, offerID string, ev status.Event) (*domain.Offer, error) {
	var out *domain.Offer
	err := s.withLock(ctx, op, domain.CollectionQuotes, offerID, func() error {
		offer, _, err := s.loadOffer(ctx, op, offerID)
		if err != nil {
			return err
		}
		next, err := status.Offers.Next(offer.Status, ev, status.Facts{})
		if err != nil {
			return err
		}
		if err := s.store.Update(ctx, domain.CollectionQuotes, offer.ID, s.change(offer.Version, docstore.Document{"status": next})); err != nil {
			return storeErr(op, err)
		}
		offer.Status = next
		offer.Version++
		offer.UpdatedAt = s.clock.Now()
		out = offer
		return nil
	})
	return out, err
}

// AcceptOffer turns an offer into a booking and its invoice. Accepting an
// already accepted offer returns the booking created the first time.
func (s *Service) AcceptOffer(ctx context.Context, offerID string) (*domain.Booking, error) {
	const op = "accept offer"
	var (
		out     *domain.Booking
		created bool
	)
	err := s.withLock(ctx, op, domain.CollectionQuotes, offerID, func() error {
		var err error
		out, created, err = s.acceptOffer(ctx, op, offerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.log.Info("offer accepted",
			zap.String("offer_id", offerID),
			zap.String("booking_id", out.ID),
			zap.String("invoice_id", out.Documents.InvoiceID),
		)
		s.notify(ctx, out.Operator.OperatorUserCode, domain.EventOfferAccepted, map[string]any{
			"offerId":     out.OfferID,
			"bookingId":   out.ID,
			"bookingCode": out.Code,
			"invoiceId":   out.Documents.InvoiceID,
			"totalAmount": out.Payment.TotalAmount,
			"currency":    out.Payment.Currency,
		})
	}
	return out, nil
}

// acceptOffer hands back the winning booking when a concurrent accept
// commits between this call's reads and its own commit.
func (s *Service) acceptOffer(ctx context.Context, op, offerID string) (*domain.Booking, bool, error) {
	b, created, err := s.createBooking(ctx, op, offerID)
	switch apperr.KindOf(err) {
	case apperr.KindConflict, apperr.KindInvalidState:
	default:
		return b, created, err
	}
	again, _, rerr := s.loadOffer(ctx, op, offerID)
	if rerr != nil || again.Status != status.OfferAcceptedByClient {
		return nil, false, err
	}
	b, berr := s.bookingOf(ctx, op, again)
	return b, false, berr
}

func (s *Service) createBooking(ctx context.Context, op, offerID string) (*domain.Booking, bool, error) {
	offer, offerDoc, err := s.loadOffer(ctx, op, offerID)
	if err != nil {
		return nil, false, err
	}
	if offer.Status == status.OfferAcceptedByClient {
		b, err := s.bookingOf(ctx, op, offer)
		return b, false, err
	}
	offerNext, err := status.Offers.Next(offer.Status, status.EventAccept, status.Facts{})
	if err != nil {
		return nil, false, err
	}

	req, reqDoc, err := s.loadRequest(ctx, op, offer.RequestID)
	if err != nil {
		return nil, false, err
	}
	now := s.clock.Now()
	if !req.Open(now) {
		return nil, false, apperr.InvalidState(op, "quote request %s is no longer open", req.Code)
	}
	reqNext, err := status.Requests.Next(req.Status, status.EventAccept, status.Facts{})
	if err != nil {
		return nil, false, err
	}

	booking, invoice, err := s.buildBooking(ctx, op, req, offer, reqDoc, offerDoc)
	if err != nil {
		return nil, false, err
	}

	bookingOp, err := s.create(domain.CollectionBookings, booking.ID, booking)
	if err != nil {
		return nil, false, err
	}
	invoiceOp, err := s.create(domain.CollectionInvoices, invoice.ID, invoice)
	if err != nil {
		return nil, false, err
	}
	ops := []docstore.Operation{
		bookingOp,
		invoiceOp,
		docstore.Update(domain.CollectionQuotes, offer.ID, s.change(offer.Version, docstore.Document{
			"status":     offerNext,
			"bookingId":  booking.ID,
			"invoiceId":  invoice.ID,
			"acceptedAt": now,
		})),
		docstore.Update(domain.CollectionQuoteRequests, req.ID, s.change(req.Version, docstore.Document{
			"status": reqNext,
		})),
	}

	if err := s.store.CommitBatch(ctx, ops); err != nil {
		return nil, false, storeErr(op, err)
	}
	return booking, true, nil
}

// bookingOf loads the booking of an accepted offer.
func (s *Service) bookingOf(ctx context.Context, op string, offer *domain.Offer) (*domain.Booking, error) {
	id := offer.BookingID
	if id == "" {
		id = derivedID("booking", offer.ID)
	}
	b, err := s.loadBooking(ctx, op, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, apperr.InvalidState(op, "offer %s is accepted but has no booking", offer.ID)
	}
	return b, err
}

// derivedID maps an offer onto the id of an entity created from it, so a
// second accept collides with the first instead of duplicating it.
func derivedID(kind, offerID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("charter:"+kind+":"+offerID)).String()
}

func (s *Service) buildBooking(ctx context.Context, op string, req *domain.QuoteRequest, offer *domain.Offer, reqDoc, offerDoc docstore.Document) (*domain.Booking, *domain.Invoice, error) {
	now := s.clock.Now()

	operator, err := s.operatorDetails(ctx, offer.OperatorID)
	if err != nil {
		return nil, nil, err
	}
	aircraft := domain.AircraftDetails{}
	if offer.AircraftID != "" {
		ac, _, err := load[domain.Aircraft](ctx, s, op, domain.CollectionAircraft, offer.AircraftID)
		switch {
		case err == nil:
			aircraft = domain.AircraftDetails{
				ID:           ac.ID,
				Registration: ac.Registration,
				Model:        ac.Model,
				Category:     ac.Category,
				Seats:        ac.Seats,
			}
		case apperr.KindOf(err) == apperr.KindNotFound:
			s.log.Warn("offer references unknown aircraft", zap.String("offer_id", offer.ID), zap.String("aircraft_id", offer.AircraftID))
		default:
			return nil, nil, err
		}
	}

	bookingCode, err := s.ids.Generate(ident.KindBooking, ident.Context{Code: req.ClientID})
	if err != nil {
		return nil, nil, err
	}
	flightCode, err := s.ids.Generate(ident.KindFlight, ident.Context{Code: offer.OperatorID, Date: req.Routing.DepartureDate})
	if err != nil {
		return nil, nil, err
	}
	contractID, err := s.ids.Generate(ident.KindDocument, ident.Context{Code: offer.OperatorID})
	if err != nil {
		return nil, nil, err
	}
	invoiceCode, err := s.ids.Generate(ident.KindInvoice, ident.Context{Code: offer.Code})
	if err != nil {
		return nil, nil, err
	}

	currency := offer.Currency
	if currency == "" {
		currency = s.currency
	}
	bookingID := derivedID("booking", offer.ID)
	invoiceID := derivedID("invoice", offer.ID)

	booking := &domain.Booking{
		ID:             bookingID,
		Code:           bookingCode,
		RequestID:      req.ID,
		OfferID:        offer.ID,
		ClientID:       req.ClientID,
		FlightCode:     flightCode,
		Status:         status.BookingPendingPayment,
		Routing:        req.Routing,
		PassengerCount: req.PassengerCount,
		Operator:       operator,
		Aircraft:       aircraft,
		Passengers:     []domain.Passenger{},
		Payment: domain.PaymentSummary{
			Subtotal:      offer.Price,
			Commission:    offer.Commission,
			TotalAmount:   offer.TotalPrice,
			AmountPaid:    0,
			AmountPending: offer.TotalPrice,
			Currency:      currency,
			PaymentIDs:    []string{},
		},
		Documents: domain.DocumentRefs{
			InvoiceID:   invoiceID,
			InvoiceCode: invoiceCode,
			ContractID:  contractID,
		},
		History: domain.BookingHistory{
			Request:    docstore.Clone(reqDoc),
			Offer:      docstore.Clone(offerDoc),
			SnapshotAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	invoice := &domain.Invoice{
		ID:               invoiceID,
		Code:             invoiceCode,
		BookingID:        bookingID,
		OfferID:          offer.ID,
		ClientID:         req.ClientID,
		OperatorUserCode: offer.OperatorID,
		Amount:           offer.TotalPrice,
		AmountPaid:       0,
		AmountPending:    offer.TotalPrice,
		Currency:         currency,
		Status:           status.InvoiceOpen,
		Payments:         []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	return booking, invoice, nil
}

// operatorDetails reads the operator profile when one exists.
func (s *Service) operatorDetails(ctx context.Context, code string) (domain.OperatorDetails, error) {
	details := domain.OperatorDetails{OperatorUserCode: code}
	docs, err := s.store.Query(ctx, domain.CollectionOperators, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("operatorUserCode", code)},
		Limit:   1,
	})
	if err != nil {
		return details, storeErr("operator profile", err)
	}
	if len(docs) == 0 {
		return details, nil
	}
	var profile domain.Operator
	if err := docstore.Decode(docs[0], &profile); err != nil {
		return details, err
	}
	details.CompanyName = profile.CompanyName
	details.ContactName = profile.ContactName
	details.Email = profile.Email
	details.Phone = profile.Phone
	return details, nil
}
