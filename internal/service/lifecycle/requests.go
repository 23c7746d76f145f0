package lifecycle

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/ident"
	"github.com/Domenick1991/charterbooking/internal/status"
)

// SubmitQuoteRequest opens a request that expires after the request TTL.
func (s *Service) SubmitQuoteRequest(ctx context.Context, clientID string, in RoutingInput) (*domain.QuoteRequest, error) {
	const op = "submit quote request"
	if err := s.validateInput(op, in); err != nil {
		return nil, err
	}
	dep := strings.ToUpper(in.DepartureAirport)
	arr := strings.ToUpper(in.ArrivalAirport)
	if dep == arr {
		return nil, apperr.Validation(op, "departure and arrival airports are both %s", dep)
	}
	now := s.clock.Now()
	if !in.DepartureDate.After(now) {
		return nil, apperr.Validation(op, "departure %s is in the past", in.DepartureDate.Format("2006-01-02T15:04Z07:00"))
	}

	code, err := s.ids.Generate(ident.KindQuoteRequest, ident.Context{Code: clientID})
	if err != nil {
		return nil, err
	}

	req := &domain.QuoteRequest{
		ID:       uuid.NewString(),
		Code:     code,
		ClientID: strings.ToUpper(strings.TrimSpace(clientID)),
		Routing: domain.Routing{
			DepartureAirport: dep,
			ArrivalAirport:   arr,
			DepartureDate:    in.DepartureDate.UTC(),
			FlexibleDates:    in.FlexibleDates,
		},
		PassengerCount: in.PassengerCount,
		Notes:          in.Notes,
		Status:         status.RequestSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.requestTTL),
		Version:        1,
	}
	createOp, err := s.create(domain.CollectionQuoteRequests, req.ID, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CommitBatch(ctx, []docstore.Operation{createOp}); err != nil {
		return nil, storeErr(op, err)
	}

	s.log.Info("quote request submitted", zap.String("request_id", req.ID), zap.String("code", req.Code))
	return req, nil
}

// MarkOffersViewed records that the client has seen the received offers.
func (s *Service) MarkOffersViewed(ctx context.Context, requestID string) (*domain.QuoteRequest, error) {
	const op = "mark offers viewed"
	var out *domain.QuoteRequest
	err := s.withLock(ctx, op, domain.CollectionQuoteRequests, requestID, func() error {
		req, _, err := s.loadRequest(ctx, op, requestID)
		if err != nil {
			return err
		}
		next, err := status.Requests.Next(req.Status, status.EventOffersViewed, status.Facts{})
		if err != nil {
			return err
		}
		if next == req.Status {
			out = req
			return nil
		}
		patch := s.change(req.Version, docstore.Document{"status": next})
		if err := s.store.Update(ctx, domain.CollectionQuoteRequests, req.ID, patch); err != nil {
			return storeErr(op, err)
		}
		req.Status = next
		req.Version++
		req.UpdatedAt = s.clock.Now()
		out = req
		return nil
	})
	return out, err
}

// ExpireStale moves every open request past its expiry, and the offers
// still pending on it, to expired. Entities that changed concurrently are
// skipped and picked up by the next sweep.
func (s *Service) ExpireStale(ctx context.Context) (ExpiryReport, error) {
	const op = "expire stale"
	var report ExpiryReport
	now := s.clock.Now()

	open := []any{}
	for _, st := range status.Requests.States() {
		if !status.Requests.IsTerminal(st) {
			open = append(open, string(st))
		}
	}

	after := ""
	for {
		docs, err := s.store.Query(ctx, domain.CollectionQuoteRequests, docstore.Query{
			Filters: []docstore.Filter{docstore.In("status", open...)},
			Limit:   expiryPageSize,
			AfterID: after,
		})
		if err != nil {
			return report, storeErr(op, err)
		}
		for _, doc := range docs {
			var req domain.QuoteRequest
			if err := docstore.Decode(doc, &req); err != nil {
				return report, err
			}
			after = req.ID
			if req.ExpiresAt.IsZero() || req.ExpiresAt.After(now) {
				continue
			}
			offers, err := s.expireRequest(ctx, &req)
			switch {
			case err == nil:
				report.Requests++
				report.Offers += offers
			case apperr.KindOf(err) == apperr.KindConflict || apperr.KindOf(err) == apperr.KindInvalidState:
				report.Skipped++
				s.log.Debug("skip expiry", zap.String("request_id", req.ID), zap.Error(err))
			default:
				return report, err
			}
		}
		if len(docs) < expiryPageSize {
			break
		}
	}

	if report.Requests > 0 {
		s.log.Info("expired stale requests",
			zap.Int("requests", report.Requests),
			zap.Int("offers", report.Offers),
			zap.Int("skipped", report.Skipped),
		)
	}
	return report, nil
}

func (s *Service) expireRequest(ctx context.Context, req *domain.QuoteRequest) (int, error) {
	const op = "expire request"
	next, err := status.Requests.Next(req.Status, status.EventExpire, status.Facts{})
	if err != nil {
		return 0, err
	}
	ops := []docstore.Operation{
		docstore.Update(domain.CollectionQuoteRequests, req.ID, s.change(req.Version, docstore.Document{"status": next})),
	}

	offerDocs, err := s.store.Query(ctx, domain.CollectionQuotes, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("requestId", req.ID)},
	})
	if err != nil {
		return 0, storeErr(op, err)
	}
	expired := 0
	for _, doc := range offerDocs {
		var o domain.Offer
		if err := docstore.Decode(doc, &o); err != nil {
			return 0, err
		}
		cur, err := status.Offers.Normalize(string(o.Status))
		if err != nil || !status.Offers.Can(cur, status.EventExpire, status.Facts{}) {
			continue
		}
		ops = append(ops, docstore.Update(domain.CollectionQuotes, o.ID, s.change(o.Version, docstore.Document{"status": status.OfferExpired})))
		expired++
	}

	if err := s.store.CommitBatch(ctx, ops); err != nil {
		return 0, storeErr(op, err)
	}
	return expired, nil
}

// ListOffers returns the offers submitted against a request, oldest first.
func (s *Service) ListOffers(ctx context.Context, requestID string) ([]domain.Offer, error) {
	const op = "list offers"
	if _, _, err := s.loadRequest(ctx, op, requestID); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, domain.CollectionQuotes, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("requestId", requestID)},
		OrderBy: "createdAt",
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	out := make([]domain.Offer, 0, len(docs))
	for _, doc := range docs {
		var o domain.Offer
		if err := docstore.Decode(doc, &o); err != nil {
			return nil, err
		}
		if st, err := status.Offers.Normalize(string(o.Status)); err == nil {
			o.Status = st
		}
		out = append(out, o)
	}
	return out, nil
}
