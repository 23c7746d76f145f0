package lifecycle

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/ident"
	"github.com/Domenick1991/charterbooking/internal/status"
)

// RegisterAircraft adds an aircraft to an operator's fleet under a fresh
// AC- identifier, which doubles as the document id.
func (s *Service) RegisterAircraft(ctx context.Context, operatorCode string, in AircraftInput) (*domain.Aircraft, error) {
	const op = "register aircraft"
	if err := s.validateInput(op, in); err != nil {
		return nil, err
	}
	operator, err := ident.NormalizeCode(operatorCode)
	if err != nil {
		return nil, err
	}
	registration := strings.ToUpper(strings.TrimSpace(in.Registration))

	dup, err := s.store.Query(ctx, domain.CollectionAircraft, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("registration", registration)},
		Limit:   1,
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	if len(dup) > 0 {
		return nil, apperr.Conflict(op, "aircraft %s is already registered", registration)
	}

	id, err := s.ids.GenerateUnique(ctx, ident.KindAircraft, ident.Context{Code: operator}, s.exists(domain.CollectionAircraft))
	if err != nil {
		return nil, err
	}
	ac := &domain.Aircraft{
		ID:               id,
		OperatorUserCode: operator,
		Registration:     registration,
		Model:            in.Model,
		Category:         in.Category,
		Seats:            in.Seats,
		CreatedAt:        s.clock.Now(),
		Version:          1,
	}
	createOp, err := s.create(domain.CollectionAircraft, ac.ID, ac)
	if err != nil {
		return nil, err
	}
	if err := s.store.CommitBatch(ctx, []docstore.Operation{createOp}); err != nil {
		return nil, storeErr(op, err)
	}
	s.log.Info("aircraft registered", zap.String("aircraft_id", ac.ID), zap.String("operator", operator))
	return ac, nil
}

func (s *Service) exists(collection string) func(context.Context, string) (bool, error) {
	return func(ctx context.Context, id string) (bool, error) {
		_, err := s.store.Get(ctx, collection, id)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, docstore.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

// SetPassengers replaces the manifest. Entries that carry an existing id
// keep it along with any issued ticket; new entries get a PAX- id.
func (s *Service) SetPassengers(ctx context.Context, bookingID string, in []PassengerInput) (*domain.Booking, error) {
	const op = "set passengers"
	if len(in) == 0 {
		return nil, apperr.Validation(op, "at least one passenger is required")
	}
	for i := range in {
		if err := s.validateInput(op, in[i]); err != nil {
			return nil, err
		}
	}

	var out *domain.Booking
	err := s.withLock(ctx, op, domain.CollectionBookings, bookingID, func() error {
		b, err := s.loadBooking(ctx, op, bookingID)
		if err != nil {
			return err
		}
		if !manifestEditable(b.Status) {
			return apperr.InvalidState(op, "manifest of booking %s cannot change while %s", b.Code, b.Status)
		}

		existing := make(map[string]domain.Passenger, len(b.Passengers))
		for _, p := range b.Passengers {
			existing[p.ID] = p
		}
		used := make(map[string]bool, len(in))
		manifest := make([]domain.Passenger, 0, len(in))
		for _, pi := range in {
			p := domain.Passenger{
				FirstName:      strings.TrimSpace(pi.FirstName),
				LastName:       strings.TrimSpace(pi.LastName),
				Nationality:    strings.ToUpper(pi.Nationality),
				PassportNumber: pi.PassportNumber,
			}
			if pi.ID != "" {
				prev, ok := existing[pi.ID]
				if !ok {
					return apperr.Validation(op, "passenger %s is not on booking %s", pi.ID, b.Code)
				}
				p.ID = prev.ID
				p.TicketID = prev.TicketID
			} else {
				for p.ID == "" || used[p.ID] || existing[p.ID].ID != "" {
					if p.ID, err = s.ids.Generate(ident.KindPassenger, ident.Context{Code: b.Code}); err != nil {
						return err
					}
				}
			}
			if used[p.ID] {
				return apperr.Validation(op, "passenger %s is listed twice", p.ID)
			}
			used[p.ID] = true
			manifest = append(manifest, p)
		}

		if err := s.store.Update(ctx, domain.CollectionBookings, b.ID, s.change(b.Version, docstore.Document{
			"passengers": manifest,
		})); err != nil {
			return storeErr(op, err)
		}
		b.Passengers = manifest
		b.Version++
		b.UpdatedAt = s.clock.Now()
		out = b
		return nil
	})
	return out, err
}

// manifestEditable reports whether passengers may still change. Tickets
// are issued on flight-ready, so the manifest freezes there.
func manifestEditable(st status.BookingStatus) bool {
	switch st {
	case status.BookingFlightReady, status.BookingCancelled:
		return false
	}
	return !status.Bookings.IsTerminal(st)
}

// UpdateChecklist sets the manually confirmed checklist flags.
func (s *Service) UpdateChecklist(ctx context.Context, bookingID string, in ChecklistInput) (*domain.Booking, error) {
	const op = "update checklist"
	var out *domain.Booking
	err := s.withLock(ctx, op, domain.CollectionBookings, bookingID, func() error {
		b, err := s.loadBooking(ctx, op, bookingID)
		if err != nil {
			return err
		}
		if status.Bookings.IsTerminal(b.Status) || b.Status == status.BookingCancelled {
			return apperr.InvalidState(op, "booking %s is %s", b.Code, b.Status)
		}
		checklist := in.apply(b.Checklist)
		if checklist == b.Checklist {
			out = b
			return nil
		}
		doc, err := docstore.Encode(checklist)
		if err != nil {
			return err
		}
		if err := s.store.Update(ctx, domain.CollectionBookings, b.ID, s.change(b.Version, docstore.Document{
			"checklist": doc,
		})); err != nil {
			return storeErr(op, err)
		}
		b.Checklist = checklist
		b.Version++
		b.UpdatedAt = s.clock.Now()
		out = b
		return nil
	})
	return out, err
}

var bookingEvents = map[status.Event]bool{
	status.EventClientReady: true,
	status.EventFlightReady: true,
	status.EventArchive:     true,
	status.EventCancel:      true,
	status.EventCredit:      true,
	status.EventRefund:      true,
}

// AdvanceBooking applies an operational event to a booking. Payment events
// are reserved to SettlePayment. Reaching flight-ready issues one e-ticket
// per passenger.
func (s *Service) AdvanceBooking(ctx context.Context, bookingID string, ev status.Event) (*domain.Booking, error) {
	const op = "advance booking"
	if !bookingEvents[ev] {
		return nil, apperr.Validation(op, "event %q cannot be applied to a booking directly", ev)
	}

	var out *domain.Booking
	err := s.withLock(ctx, op, domain.CollectionBookings, bookingID, func() error {
		b, err := s.loadBooking(ctx, op, bookingID)
		if err != nil {
			return err
		}
		next, err := status.Bookings.Next(b.Status, ev, b.Facts())
		if err != nil {
			return err
		}

		set := docstore.Document{"status": next}
		if next == status.BookingFlightReady {
			tickets, err := s.issueTickets(b)
			if err != nil {
				return err
			}
			refs, err := docstore.Encode(b.Documents)
			if err != nil {
				return err
			}
			set["passengers"] = b.Passengers
			set["documents"] = refs
			s.log.Info("e-tickets issued", zap.String("booking_id", b.ID), zap.Int("tickets", tickets))
		}
		if err := s.store.Update(ctx, domain.CollectionBookings, b.ID, s.change(b.Version, set)); err != nil {
			return storeErr(op, err)
		}
		b.Status = next
		b.Version++
		b.UpdatedAt = s.clock.Now()
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("booking advanced",
		zap.String("booking_id", out.ID),
		zap.String("event", string(ev)),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

// issueTickets assigns an ETKT- id to every passenger without one and
// records them in the document refs. It returns the number issued.
func (s *Service) issueTickets(b *domain.Booking) (int, error) {
	code := b.FlightCode
	if code == "" {
		code = b.Code
	}
	issued := 0
	seen := make(map[string]bool, len(b.Passengers))
	for _, p := range b.Passengers {
		if p.TicketID != "" {
			seen[p.TicketID] = true
		}
	}
	for i := range b.Passengers {
		if b.Passengers[i].TicketID != "" {
			continue
		}
		var id string
		for id == "" || seen[id] {
			var err error
			if id, err = s.ids.Generate(ident.KindETicket, ident.Context{Code: code}); err != nil {
				return issued, err
			}
		}
		seen[id] = true
		b.Passengers[i].TicketID = id
		issued++
	}

	tickets := make([]string, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		tickets = append(tickets, p.TicketID)
	}
	b.Documents.TicketIDs = tickets
	return issued, nil
}
