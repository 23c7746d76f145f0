package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/ident"
	"github.com/Domenick1991/charterbooking/internal/status"
)

// RecordPayment registers a pending payment against an invoice. Balances
// move only when the payment settles.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, in PaymentInput) (*domain.Payment, error) {
	const op = "record payment"
	if err := s.validateInput(op, in); err != nil {
		return nil, err
	}
	inv, err := s.loadInvoice(ctx, op, invoiceID)
	if err != nil {
		return nil, err
	}
	if status.Invoices.IsTerminal(inv.Status) {
		return nil, apperr.InvalidState(op, "invoice %s is already %s", inv.Code, inv.Status)
	}
	amount := decimal.NewFromFloat(in.Amount)
	if amount.GreaterThan(decimal.NewFromFloat(inv.AmountPending)) {
		return nil, apperr.Validation(op, "amount %s exceeds outstanding %v", amount, inv.AmountPending)
	}

	code, err := s.ids.Generate(ident.KindPayment, ident.Context{Code: inv.Code})
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p := &domain.Payment{
		ID:          uuid.NewString(),
		Code:        code,
		BookingID:   inv.BookingID,
		InvoiceID:   inv.ID,
		Amount:      amount.InexactFloat64(),
		Currency:    inv.Currency,
		Method:      in.Method,
		Reference:   in.Reference,
		ProcessedBy: in.ProcessedBy,
		Status:      status.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	createOp, err := s.create(domain.CollectionPayments, p.ID, p)
	if err != nil {
		return nil, err
	}
	if err := s.store.CommitBatch(ctx, []docstore.Operation{createOp}); err != nil {
		return nil, storeErr(op, err)
	}

	s.log.Info("payment recorded",
		zap.String("payment_id", p.ID),
		zap.String("invoice_id", inv.ID),
		zap.Float64("amount", p.Amount),
	)
	return p, nil
}

// SettlePayment finalizes a pending payment. A completed payment moves the
// invoice and booking balances in the same batch; a failed one touches only
// the payment.
func (s *Service) SettlePayment(ctx context.Context, paymentID string, in SettleInput) (*domain.Payment, error) {
	const op = "settle payment"
	if err := s.validateInput(op, in); err != nil {
		return nil, err
	}

	var (
		out     *domain.Payment
		booking *domain.Booking
	)
	err := s.withLock(ctx, op, domain.CollectionPayments, paymentID, func() error {
		p, err := s.loadPayment(ctx, op, paymentID)
		if err != nil {
			return err
		}
		ev := status.EventComplete
		if in.Outcome == OutcomeFailed {
			ev = status.EventFail
		}
		next, err := status.Payments.Next(p.Status, ev, status.Facts{})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		set := docstore.Document{"status": next, "settledAt": now}
		if in.ProcessedBy != "" {
			set["processedBy"] = in.ProcessedBy
		}
		if in.Outcome == OutcomeFailed {
			set["failureReason"] = in.Reason
			if err := s.store.Update(ctx, domain.CollectionPayments, p.ID, s.change(p.Version, set)); err != nil {
				return storeErr(op, err)
			}
			p.FailureReason = in.Reason
		} else {
			paymentOp := docstore.Update(domain.CollectionPayments, p.ID, s.change(p.Version, set))
			ops, b, err := s.applyPayment(ctx, op, p)
			if err != nil {
				return err
			}
			if err := s.store.CommitBatch(ctx, append([]docstore.Operation{paymentOp}, ops...)); err != nil {
				return storeErr(op, err)
			}
			booking = b
		}

		p.Status = next
		p.SettledAt = &now
		p.UpdatedAt = now
		p.Version++
		if in.ProcessedBy != "" {
			p.ProcessedBy = in.ProcessedBy
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment settled",
		zap.String("payment_id", out.ID),
		zap.String("status", string(out.Status)),
	)
	if booking != nil {
		s.notify(ctx, booking.ClientID, domain.EventPaymentCompleted, map[string]any{
			"paymentId":     out.ID,
			"paymentCode":   out.Code,
			"bookingId":     booking.ID,
			"invoiceId":     out.InvoiceID,
			"amount":        out.Amount,
			"amountPending": booking.Payment.AmountPending,
			"currency":      out.Currency,
			"fullyPaid":     booking.Payment.FullyPaid(),
		})
	}
	return out, nil
}

// applyPayment builds the invoice and booking updates of a completed
// payment and returns the booking as it will read after the batch.
func (s *Service) applyPayment(ctx context.Context, op string, p *domain.Payment) ([]docstore.Operation, *domain.Booking, error) {
	inv, err := s.loadInvoice(ctx, op, p.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	amount := decimal.NewFromFloat(p.Amount)
	invPending := decimal.NewFromFloat(inv.AmountPending)
	if amount.GreaterThan(invPending) {
		return nil, nil, apperr.InvalidState(op, "payment %s exceeds the outstanding balance of invoice %s", p.Code, inv.Code)
	}
	invPaid := decimal.NewFromFloat(inv.AmountPaid).Add(amount)
	invPending = decimal.NewFromFloat(inv.Amount).Sub(invPaid)
	fully := !invPending.IsPositive()
	ev := status.PaymentEvent(fully)

	invNext, err := status.Invoices.Next(inv.Status, ev, status.Facts{})
	if err != nil {
		return nil, nil, err
	}

	bookingID := p.BookingID
	if bookingID == "" {
		bookingID = inv.BookingID
	}
	b, err := s.loadBooking(ctx, op, bookingID)
	if err != nil {
		return nil, nil, err
	}
	bookingNext, err := status.Bookings.Next(b.Status, ev, b.Facts())
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	bPaid := decimal.NewFromFloat(b.Payment.AmountPaid).Add(amount)
	bPending := decimal.NewFromFloat(b.Payment.TotalAmount).Sub(bPaid)
	if bPending.IsNegative() {
		bPending = decimal.Zero
	}

	b.Status = bookingNext
	b.Payment.AmountPaid = bPaid.InexactFloat64()
	b.Payment.AmountPending = bPending.InexactFloat64()
	b.Payment.PaymentIDs = append(append([]string{}, b.Payment.PaymentIDs...), p.ID)
	b.Payment.LastPaymentAt = &now
	b.Checklist.PaymentComplete = fully

	// Nested objects are replaced whole.
	summary, err := docstore.Encode(b.Payment)
	if err != nil {
		return nil, nil, err
	}
	checklist, err := docstore.Encode(b.Checklist)
	if err != nil {
		return nil, nil, err
	}

	ops := []docstore.Operation{
		docstore.Update(domain.CollectionInvoices, inv.ID, s.change(inv.Version, docstore.Document{
			"status":        invNext,
			"amountPaid":    invPaid.InexactFloat64(),
			"amountPending": invPending.InexactFloat64(),
			"payments":      append(append([]string{}, inv.Payments...), p.ID),
		})),
		docstore.Update(domain.CollectionBookings, b.ID, s.change(b.Version, docstore.Document{
			"status":    bookingNext,
			"payment":   summary,
			"checklist": checklist,
		})),
	}

	b.Version++
	b.UpdatedAt = now
	return ops, b, nil
}
