// Package lifecycle coordinates the commerce flow from quote request to
// settled payment. Every transition reads the entity, asks the status
// tables for the next state and writes back with a version precondition,
// so a concurrent writer loses with a Conflict instead of overwriting.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/clock"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/ident"
	"github.com/Domenick1991/charterbooking/internal/status"
)

type UseCase interface {
	SubmitQuoteRequest(ctx context.Context, clientID string, in RoutingInput) (*domain.QuoteRequest, error)
	MarkOffersViewed(ctx context.Context, requestID string) (*domain.QuoteRequest, error)
	SubmitOffer(ctx context.Context, requestID, operatorID string, in PriceInput) (*domain.Offer, error)
	AcknowledgeOffer(ctx context.Context, offerID string) (*domain.Offer, error)
	RejectOffer(ctx context.Context, offerID string) (*domain.Offer, error)
	AcceptOffer(ctx context.Context, offerID string) (*domain.Booking, error)
	RecordPayment(ctx context.Context, invoiceID string, in PaymentInput) (*domain.Payment, error)
	SettlePayment(ctx context.Context, paymentID string, in SettleInput) (*domain.Payment, error)
	RegisterAircraft(ctx context.Context, operatorCode string, in AircraftInput) (*domain.Aircraft, error)
	SetPassengers(ctx context.Context, bookingID string, in []PassengerInput) (*domain.Booking, error)
	UpdateChecklist(ctx context.Context, bookingID string, in ChecklistInput) (*domain.Booking, error)
	AdvanceBooking(ctx context.Context, bookingID string, ev status.Event) (*domain.Booking, error)
	ExpireStale(ctx context.Context) (ExpiryReport, error)
	GetQuoteRequest(ctx context.Context, id string) (*domain.QuoteRequest, error)
	ListOffers(ctx context.Context, requestID string) ([]domain.Offer, error)
	GetOffer(ctx context.Context, id string) (*domain.Offer, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
}

// Notifier delivers outbound notifications. Failures are logged only.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Locker takes short per-entity locks around a transition.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const (
	defaultRequestTTL = 24 * time.Hour
	defaultLockTTL    = 10 * time.Second
	defaultCurrency   = "ZAR"
	notifyTimeout     = 5 * time.Second
	expiryPageSize    = 100
)

var defaultCommissionRate = decimal.RequireFromString("0.03")

type Service struct {
	store    docstore.Store
	ids      *ident.Registry
	clock    clock.Clock
	validate *validator.Validate
	log      *zap.Logger
	notifier Notifier
	locker   Locker

	requestTTL     time.Duration
	lockTTL        time.Duration
	commissionRate decimal.Decimal
	currency       string
	autoAck        bool

	pending sync.WaitGroup
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithRequestTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTTL = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithCommissionRate(rate decimal.Decimal) Option {
	return func(s *Service) { s.commissionRate = rate }
}

func WithCurrency(code string) Option {
	return func(s *Service) {
		if code != "" {
			s.currency = code
		}
	}
}

// WithAutoAcknowledge moves new offers straight to
// pending-client-acceptance.
func WithAutoAcknowledge(on bool) Option {
	return func(s *Service) { s.autoAck = on }
}

func NewService(store docstore.Store, ids *ident.Registry, c clock.Clock, opts ...Option) *Service {
	if c == nil {
		c = clock.Real{}
	}
	if ids == nil {
		ids = ident.New(c)
	}
	s := &Service{
		store:          store,
		ids:            ids,
		clock:          c,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		log:            zap.NewNop(),
		requestTTL:     defaultRequestTTL,
		lockTTL:        defaultLockTTL,
		commissionRate: defaultCommissionRate,
		currency:       defaultCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Drain waits for in-flight notifications.
func (s *Service) Drain() { s.pending.Wait() }

func (s *Service) notify(ctx context.Context, recipient, eventType string, payload map[string]any) {
	if s.notifier == nil || recipient == "" {
		return
	}
	n := domain.Notification{
		RecipientID: recipient,
		Type:        eventType,
		Payload:     payload,
		OccurredAt:  s.clock.Now(),
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn("notification failed",
				zap.String("type", eventType),
				zap.String("recipient", recipient),
				zap.Error(err),
			)
		}
	}()
}

// withLock runs fn under the entity lock when a Locker is configured.
func (s *Service) withLock(ctx context.Context, op, collection, id string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	key := collection + ":" + id
	ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", op, err)
	}
	if !ok {
		return apperr.Conflict(op, "%s %s is being modified", collection, id)
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn("release lock failed", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn()
}

func (s *Service) validateInput(op string, v any) error {
	if err := s.validate.Struct(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	return nil
}

// storeErr classifies a store failure.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, op, err)
	case errors.Is(err, docstore.ErrConflict), errors.Is(err, docstore.ErrAlreadyExists):
		return apperr.Wrap(apperr.KindConflict, op, err)
	case apperr.KindOf(err) != apperr.KindInternal:
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func load[T any](ctx context.Context, s *Service, op, collection, id string) (*T, docstore.Document, error) {
	if id == "" {
		return nil, nil, apperr.Validation(op, "%s id is required", collection)
	}
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return nil, nil, storeErr(op, err)
	}
	var v T
	if err := docstore.Decode(doc, &v); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return &v, doc, nil
}

func (s *Service) loadRequest(ctx context.Context, op, id string) (*domain.QuoteRequest, docstore.Document, error) {
	r, doc, err := load[domain.QuoteRequest](ctx, s, op, domain.CollectionQuoteRequests, id)
	if err != nil {
		return nil, nil, err
	}
	if r.Status, err = status.Requests.Normalize(string(r.Status)); err != nil {
		return nil, nil, err
	}
	return r, doc, nil
}

func (s *Service) loadOffer(ctx context.Context, op, id string) (*domain.Offer, docstore.Document, error) {
	o, doc, err := load[domain.Offer](ctx, s, op, domain.CollectionQuotes, id)
	if err != nil {
		return nil, nil, err
	}
	if o.Status, err = status.Offers.Normalize(string(o.Status)); err != nil {
		return nil, nil, err
	}
	return o, doc, nil
}

func (s *Service) loadBooking(ctx context.Context, op, id string) (*domain.Booking, error) {
	b, _, err := load[domain.Booking](ctx, s, op, domain.CollectionBookings, id)
	if err != nil {
		return nil, err
	}
	if b.Status, err = status.Bookings.Normalize(string(b.Status)); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) loadInvoice(ctx context.Context, op, id string) (*domain.Invoice, error) {
	inv, _, err := load[domain.Invoice](ctx, s, op, domain.CollectionInvoices, id)
	if err != nil {
		return nil, err
	}
	if inv.Status, err = status.Invoices.Normalize(string(inv.Status)); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) loadPayment(ctx context.Context, op, id string) (*domain.Payment, error) {
	p, _, err := load[domain.Payment](ctx, s, op, domain.CollectionPayments, id)
	if err != nil {
		return nil, err
	}
	if p.Status, err = status.Payments.Normalize(string(p.Status)); err != nil {
		return nil, err
	}
	return p, nil
}

// versionExpect is the optimistic precondition for a document read at
// version v. Documents that never carried a version must still lack one.
func versionExpect(v int64) map[string]any {
	if v == 0 {
		return map[string]any{"version": nil}
	}
	return map[string]any{"version": v}
}

// change builds a patch that bumps the version read and stamps updatedAt.
func (s *Service) change(version int64, set docstore.Document) docstore.Patch {
	set["version"] = version + 1
	set["updatedAt"] = s.clock.Now()
	return docstore.Patch{Set: set, Expect: versionExpect(version)}
}

func (s *Service) create(collection, id string, v any) (docstore.Operation, error) {
	doc, err := docstore.Encode(v)
	if err != nil {
		return docstore.Operation{}, err
	}
	return docstore.Create(collection, id, doc), nil
}

func (s *Service) GetQuoteRequest(ctx context.Context, id string) (*domain.QuoteRequest, error) {
	r, _, err := s.loadRequest(ctx, "get quote request", id)
	return r, err
}

func (s *Service) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	o, _, err := s.loadOffer(ctx, "get offer", id)
	return o, err
}

func (s *Service) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.loadBooking(ctx, "get booking", id)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.loadInvoice(ctx, "get invoice", id)
}

func (s *Service) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.loadPayment(ctx, "get payment", id)
}

var _ UseCase = (*Service)(nil)
