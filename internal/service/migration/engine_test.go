package migration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/clock"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/repository"
	"github.com/Domenick1991/charterbooking/internal/status"
)

type MockMutex struct {
	mock.Mock
}

func (m *MockMutex) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context) error), args.Error(1)
}

type MockReportCache struct {
	mock.Mock
}

func (m *MockReportCache) GetReport(ctx context.Context, kind string) (*domain.MigrationProgress, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MigrationProgress), args.Error(1)
}

func (m *MockReportCache) SetReport(ctx context.Context, p domain.MigrationProgress) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockReportCache) InvalidateReport(ctx context.Context, kind string) error {
	args := m.Called(ctx, kind)
	return args.Error(0)
}

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *repository.MemoryDocumentStore, collection, id string, doc docstore.Document) {
	t.Helper()
	require.NoError(t, store.Put(collection, id, doc))
}

func legacyBookingDoc() docstore.Document {
	return docstore.Document{
		"code":             "BK-PA-SMIT-ABCD-20240101-WXYZ",
		"clientId":         "PA-SMIT-ABCD",
		"requestCode":      "QR-PA-SMIT-ABCD-20240101-ABCD",
		"operatorUserCode": "OP-AIR",
		"price":            25000.0,
		"totalPrice":       25750.0,
		"isPaid":           true,
		"status":           "confirmed",
	}
}

func TestMigrateLegacyBooking(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seed(t, store, domain.CollectionQuoteRequests, "r1", docstore.Document{
		"code":           "QR-PA-SMIT-ABCD-20240101-ABCD",
		"clientId":       "PA-SMIT-ABCD",
		"passengerCount": 4.0,
		"routing": map[string]any{
			"departureAirport": "FAJS",
			"arrivalAirport":   "FACT",
		},
		"status": "booked",
	})
	seed(t, store, domain.CollectionOperators, "o1", docstore.Document{
		"operatorUserCode": "OP-AIR",
		"companyName":      "Air Charter SA",
		"phone":            "+27110000000",
	})
	seed(t, store, domain.CollectionBookings, "b1", legacyBookingDoc())

	e := NewEngine(store, clock.NewFake(t0))
	migrated, err := e.MigrateOne(context.Background(), KindBookings, "b1")
	require.NoError(t, err)
	assert.True(t, migrated)

	doc, err := store.Get(context.Background(), domain.CollectionBookings, "b1")
	require.NoError(t, err)

	assert.False(t, IsLegacy(KindBookings, doc))
	operator := doc["operator"].(map[string]any)
	assert.Equal(t, "OP-AIR", operator["operatorUserCode"])
	assert.Equal(t, "Air Charter SA", operator["companyName"])

	payment := doc["payment"].(map[string]any)
	assert.Equal(t, payment["totalAmount"], payment["amountPaid"])
	assert.Equal(t, 25750.0, payment["amountPaid"])
	assert.Equal(t, 0.0, payment["amountPending"])
	assert.Equal(t, 750.0, payment["commission"])
	assert.Equal(t, "confirmed", doc["status"])

	for _, f := range []string{"requestCode", "operatorUserCode", "price", "totalPrice", "isPaid"} {
		assert.NotContains(t, doc, f)
	}
	assert.Equal(t, "r1", doc["requestId"])
	assert.Equal(t, map[string]any{}, doc["aircraft"])
	assert.Equal(t, "FAJS", doc["routing"].(map[string]any)["departureAirport"])
	assert.Equal(t, 4.0, doc["passengerCount"])
	assert.Equal(t, true, doc["checklist"].(map[string]any)["paymentComplete"])
	history := doc["history"].(map[string]any)
	assert.Equal(t, "QR-PA-SMIT-ABCD-20240101-ABCD", history["request"].(map[string]any)["code"])
	assert.Equal(t, 1.0, doc["version"])
	assert.NotEmpty(t, doc["migratedAt"])

	// A second pass finds nothing to do.
	writes := store.Writes()
	migrated, err = e.MigrateOne(context.Background(), KindBookings, "b1")
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.Equal(t, writes, store.Writes())
}

func bookingWithStatus(st string, extra docstore.Document) docstore.Document {
	doc := docstore.Document{
		"code":             "BK-PA-SMIT-ABCD-20240101-WXYZ",
		"clientId":         "PA-SMIT-ABCD",
		"operatorUserCode": "OP-AIR",
		"price":            25000.0,
		"totalPrice":       25750.0,
		"status":           st,
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

func TestMigrateBookingStatusFollowsBalance(t *testing.T) {
	tests := []struct {
		name      string
		doc       docstore.Document
		want      string
		paid      float64
		settled   bool
		canSettle bool
	}{
		{"confirmed but unpaid", bookingWithStatus("confirmed", docstore.Document{"isPaid": false}), "pending-payment", 0, false, true},
		{"client-ready with deposit", bookingWithStatus("client-ready", docstore.Document{
			"payment": map[string]any{"totalAmount": 25750.0, "amountPaid": 5000.0},
		}), "deposit-paid", 5000, false, true},
		{"pending but paid", bookingWithStatus("pending", docstore.Document{"isPaid": true}), "confirmed", 25750, true, false},
		{"deposit-paid without money", bookingWithStatus("deposit-paid", nil), "pending-payment", 0, false, true},
		{"no status with deposit", bookingWithStatus("", docstore.Document{
			"payment": map[string]any{"amountPaid": 100.0},
		}), "deposit-paid", 100, false, true},
		{"cancelled keeps status", bookingWithStatus("cancelled", docstore.Document{"isPaid": false}), "cancelled", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryDocumentStore()
			seed(t, store, domain.CollectionBookings, "b1", tt.doc)
			e := NewEngine(store, clock.NewFake(t0))

			report, err := e.MigrateAll(context.Background(), KindBookings)
			require.NoError(t, err)
			require.Equal(t, 1, report.Migrated)

			doc, err := store.Get(context.Background(), domain.CollectionBookings, "b1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc["status"])

			payment := doc["payment"].(map[string]any)
			assert.Equal(t, tt.paid, payment["amountPaid"])
			assert.Equal(t, 25750.0-tt.paid, payment["amountPending"])
			assert.Equal(t, tt.settled, doc["checklist"].(map[string]any)["paymentComplete"])

			// The remaining balance can still be paid off.
			_, err = status.Bookings.Next(status.BookingStatus(tt.want), status.EventFullPayment, status.Facts{})
			assert.Equal(t, tt.canSettle, err == nil)
		})
	}
}

func TestMigrateBookingLinksInvoice(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seed(t, store, domain.CollectionBookings, "b1", bookingWithStatus("pending", nil))
	seed(t, store, domain.CollectionBookings, "b2", bookingWithStatus("pending", docstore.Document{
		"code": "BK-PA-SMIT-ABCD-20240101-QQQQ",
	}))
	seed(t, store, domain.CollectionInvoices, "inv-1", docstore.Document{
		"bookingId": "b1",
		"code":      "INV-QT-OP-AIR-20240101-ABCD-K7Q2",
		"amount":    25750.0,
	})
	seed(t, store, domain.CollectionInvoices, "inv-2", docstore.Document{
		"bookingCode": "BK-PA-SMIT-ABCD-20240101-QQQQ",
		"amount":      25750.0,
	})
	e := NewEngine(store, clock.NewFake(t0))

	_, err := e.MigrateAll(context.Background(), KindBookings)
	require.NoError(t, err)

	doc, err := store.Get(context.Background(), domain.CollectionBookings, "b1")
	require.NoError(t, err)
	refs := doc["documents"].(map[string]any)
	assert.Equal(t, "inv-1", refs["invoiceId"])
	assert.Equal(t, "INV-QT-OP-AIR-20240101-ABCD-K7Q2", refs["invoiceCode"])

	// Neither request nor offer exists, so history holds only the snapshot time.
	history := doc["history"].(map[string]any)
	assert.NotContains(t, history, "request")
	assert.NotContains(t, history, "offer")
	assert.NotEmpty(t, history["snapshotAt"])

	doc, err = store.Get(context.Background(), domain.CollectionBookings, "b2")
	require.NoError(t, err)
	refs = doc["documents"].(map[string]any)
	assert.Equal(t, "inv-2", refs["invoiceId"])
	assert.NotContains(t, refs, "invoiceCode")
}

func TestMigrateOneErrors(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seed(t, store, domain.CollectionBookings, "bad", docstore.Document{"status": "lost-in-transit", "price": 10.0})
	e := NewEngine(store, clock.NewFake(t0))

	_, err := e.MigrateOne(context.Background(), KindBookings, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.MigrateOne(context.Background(), KindBookings, "bad")
	assert.True(t, errors.Is(err, apperr.ErrMigrationFailure), "error: %v", err)
}

func TestIsLegacy(t *testing.T) {
	current := docstore.Document{
		"operator": map[string]any{"operatorUserCode": "OP-AIR"},
		"aircraft": map[string]any{},
		"payment":  map[string]any{"totalAmount": 10.0},
		"status":   "pending-payment",
	}
	tests := []struct {
		name string
		kind Kind
		doc  docstore.Document
		want bool
	}{
		{"current booking", KindBookings, current, false},
		{"booking with requestCode", KindBookings, with(current, "requestCode", "QR-X-20240101-ABCD"), true},
		{"booking without aircraft", KindBookings, without(current, "aircraft"), true},
		{"booking without operator code", KindBookings, with(current, "operator", map[string]any{}), true},
		{"booking with legacy status", KindBookings, with(current, "status", "pending"), true},
		{"booking with unknown status", KindBookings, with(current, "status", "lost"), true},
		{"invoice amount only", KindInvoices, docstore.Document{"amount": 10.0, "status": "open"}, true},
		{"current invoice", KindInvoices, docstore.Document{
			"amount": 10.0, "amountPending": 10.0, "payments": []any{}, "currency": "ZAR", "status": "open",
		}, false},
		{"quote without commission", KindQuotes, docstore.Document{"price": 10.0, "status": "pending-client-acceptance"}, true},
		{"quote with legacy status", KindQuotes, docstore.Document{
			"price": 10.0, "commission": 0.0, "totalPrice": 10.0, "status": "declined",
		}, true},
		{"current quote", KindQuotes, docstore.Document{
			"price": 10.0, "commission": 0.0, "totalPrice": 10.0, "status": "expired",
		}, false},
		{"flat request", KindQuoteRequests, docstore.Document{
			"departureAirport": "FAJS", "expiresAt": "2025-01-01T00:00:00Z", "status": "submitted",
		}, true},
		{"current request", KindQuoteRequests, docstore.Document{
			"routing": map[string]any{}, "expiresAt": "2025-01-01T00:00:00Z", "status": "quotes-viewed",
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLegacy(tt.kind, tt.doc))
		})
	}
}

func with(doc docstore.Document, field string, v any) docstore.Document {
	out := docstore.Clone(doc)
	out[field] = v
	return out
}

func without(doc docstore.Document, field string) docstore.Document {
	out := docstore.Clone(doc)
	delete(out, field)
	return out
}

func TestTransformInvoice(t *testing.T) {
	e := NewEngine(repository.NewMemoryDocumentStore(), clock.NewFake(t0))

	p, err := e.Transform(context.Background(), KindInvoices, docstore.Document{
		"id": "i1", "amount": 1000.0, "amountPaid": 400.0, "status": "partially-paid",
	})
	require.NoError(t, err)
	assert.EqualValues(t, "balance-due", p.Set["status"])
	assert.Equal(t, 600.0, p.Set["amountPending"])
	assert.Equal(t, "ZAR", p.Set["currency"])
	assert.Equal(t, []any{}, p.Set["payments"])
	assert.Equal(t, map[string]any{"version": nil}, p.Expect)

	p, err = e.Transform(context.Background(), KindInvoices, docstore.Document{
		"id": "i2", "totalAmount": 1000.0, "currency": "USD", "version": 3.0,
	})
	require.NoError(t, err)
	assert.EqualValues(t, "open", p.Set["status"])
	assert.Equal(t, 1000.0, p.Set["amount"])
	assert.Equal(t, []string{"totalAmount"}, p.Delete)
	assert.NotContains(t, p.Set, "currency")
	assert.Equal(t, int64(4), p.Set["version"])
	assert.Equal(t, map[string]any{"version": 3.0}, p.Expect)
}

func TestTransformQuoteAndRequest(t *testing.T) {
	e := NewEngine(repository.NewMemoryDocumentStore(), clock.NewFake(t0))

	p, err := e.Transform(context.Background(), KindQuotes, docstore.Document{
		"id": "q1", "price": 25000.0, "status": "declined",
	})
	require.NoError(t, err)
	assert.Equal(t, 750.0, p.Set["commission"])
	assert.Equal(t, 25750.0, p.Set["totalPrice"])
	assert.EqualValues(t, "rejected-by-client", p.Set["status"])

	p, err = e.Transform(context.Background(), KindQuoteRequests, docstore.Document{
		"id":               "r1",
		"departureAirport": "fajs",
		"arrivalAirport":   "FACT",
		"departureDate":    "2025-04-01T10:00:00Z",
		"createdAt":        "2025-03-01T08:00:00Z",
		"status":           "under-offer",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"departureAirport": "FAJS",
		"arrivalAirport":   "FACT",
		"departureDate":    "2025-04-01T10:00:00Z",
	}, p.Set["routing"])
	assert.ElementsMatch(t, []string{"departureAirport", "arrivalAirport", "departureDate"}, p.Delete)
	assert.Equal(t, time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC), p.Set["expiresAt"])
	assert.EqualValues(t, "quote-received", p.Set["status"])

	_, err = e.Transform(context.Background(), KindQuotes, docstore.Document{"id": "q2", "status": "expired"})
	assert.Error(t, err)
}

func seedInvoices(t *testing.T, store *repository.MemoryDocumentStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		seed(t, store, domain.CollectionInvoices, fmt.Sprintf("inv-%03d", i), docstore.Document{
			"amount": 100.0,
			"status": "unpaid",
		})
	}
}

func TestMigrateAll(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seedInvoices(t, store, 6)
	seed(t, store, domain.CollectionInvoices, "inv-current", docstore.Document{
		"amount": 50.0, "amountPaid": 0.0, "amountPending": 50.0, "payments": []any{}, "currency": "ZAR", "status": "open",
	})
	seed(t, store, domain.CollectionInvoices, "inv-broken", docstore.Document{"status": "unpaid"})
	c := clock.NewFake(t0)
	e := NewEngine(store, c, WithBatchSize(3), WithCooldown(time.Second), WithConcurrency(2))

	report, err := e.MigrateAll(context.Background(), KindInvoices)
	require.NoError(t, err)

	assert.Equal(t, 8, report.Scanned)
	assert.Equal(t, 6, report.Migrated)
	assert.Equal(t, 1, report.Current)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "inv-broken", report.Failures[0].ID)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, c.Sleeps())

	progress, err := e.Report(context.Background(), KindInvoices)
	require.NoError(t, err)
	assert.Equal(t, 8, progress.Total)
	assert.Equal(t, 1, progress.Legacy)
	assert.Equal(t, 7, progress.Comprehensive)
	assert.Equal(t, 87.5, progress.ProgressPercent)

	// A second run writes nothing.
	writes := store.Writes()
	report, err = e.MigrateAll(context.Background(), KindInvoices)
	require.NoError(t, err)
	assert.Zero(t, report.Migrated)
	assert.Equal(t, 7, report.Current)
	assert.Equal(t, writes, store.Writes())
}

func TestMigrateAllFallsBackPerDocument(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seedInvoices(t, store, 3)
	e := NewEngine(store, clock.NewFake(t0), WithBatchSize(10))

	// A concurrent writer bumps one document between fetch and commit.
	conflicting := &conflictOnce{MemoryDocumentStore: store, id: "inv-001"}
	e.store = conflicting

	report, err := e.MigrateAll(context.Background(), KindInvoices)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Migrated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "inv-001", report.Failures[0].ID)

	doc, err := store.Get(context.Background(), domain.CollectionInvoices, "inv-000")
	require.NoError(t, err)
	assert.Equal(t, "open", doc["status"])
}

// conflictOnce touches one document right before the first batch commit.
type conflictOnce struct {
	*repository.MemoryDocumentStore
	id   string
	done bool
}

func (c *conflictOnce) CommitBatch(ctx context.Context, ops []docstore.Operation) error {
	if !c.done {
		c.done = true
		if err := c.MemoryDocumentStore.Update(ctx, domain.CollectionInvoices, c.id, docstore.Patch{
			Set: docstore.Document{"version": 7.0},
		}); err != nil {
			return err
		}
	}
	return c.MemoryDocumentStore.CommitBatch(ctx, ops)
}

func TestMigrateAllHoldsMutex(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seedInvoices(t, store, 1)

	released := false
	mu := &MockMutex{}
	mu.On("Lock", mock.Anything, "invoices").Return(func(context.Context) error {
		released = true
		return nil
	}, nil).Once()
	e := NewEngine(store, clock.NewFake(t0), WithMutex(mu))

	_, err := e.MigrateAll(context.Background(), KindInvoices)
	require.NoError(t, err)
	assert.True(t, released)

	busy := &MockMutex{}
	busy.On("Lock", mock.Anything, "invoices").Return(nil, apperr.Conflict("migration lock", "busy"))
	e = NewEngine(store, clock.NewFake(t0), WithMutex(busy))
	_, err = e.MigrateAll(context.Background(), KindInvoices)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	mu.AssertExpectations(t)
}

func TestReportUsesCache(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seedInvoices(t, store, 2)
	cached := &domain.MigrationProgress{Kind: "invoices", Total: 99}

	rc := &MockReportCache{}
	rc.On("GetReport", mock.Anything, "invoices").Return(cached, nil).Once()
	e := NewEngine(store, clock.NewFake(t0), WithReportCache(rc))

	p, err := e.Report(context.Background(), KindInvoices)
	require.NoError(t, err)
	assert.Equal(t, 99, p.Total)

	rc.On("GetReport", mock.Anything, "invoices").Return(nil, nil).Once()
	rc.On("SetReport", mock.Anything, mock.MatchedBy(func(p domain.MigrationProgress) bool {
		return p.Total == 2 && p.Legacy == 2 && p.ProgressPercent == 0
	})).Return(nil).Once()
	p, err = e.Report(context.Background(), KindInvoices)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Legacy)

	rc.On("InvalidateReport", mock.Anything, "invoices").Return(nil).Once()
	_, err = e.MigrateAll(context.Background(), KindInvoices)
	require.NoError(t, err)
	rc.AssertExpectations(t)
}

func TestMigrateAllInvalidatesReportPerBatch(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	seedInvoices(t, store, 5)

	rc := &MockReportCache{}
	rc.On("InvalidateReport", mock.Anything, "invoices").Return(nil)
	e := NewEngine(store, clock.NewFake(t0), WithReportCache(rc), WithBatchSize(2))

	report, err := e.MigrateAll(context.Background(), KindInvoices)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	rc.AssertNumberOfCalls(t, "InvalidateReport", 3)

	// Nothing committed, nothing invalidated.
	_, err = e.MigrateAll(context.Background(), KindInvoices)
	require.NoError(t, err)
	rc.AssertNumberOfCalls(t, "InvalidateReport", 3)
}

func TestReportEmptyCollection(t *testing.T) {
	e := NewEngine(repository.NewMemoryDocumentStore(), clock.NewFake(t0))
	p, err := e.Report(context.Background(), KindQuotes)
	require.NoError(t, err)
	assert.Zero(t, p.Total)
	assert.Equal(t, 100.0, p.ProgressPercent)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("bookings")
	require.NoError(t, err)
	assert.Equal(t, KindBookings, k)

	_, err = ParseKind("flights")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
