package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
	"github.com/Domenick1991/charterbooking/internal/service/migration"
	"github.com/Domenick1991/charterbooking/internal/status"
)

// MockUseCase is a mock implementation of lifecycle.UseCase
type MockUseCase struct {
	mock.Mock
}

func ret[T any](args mock.Arguments) (*T, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*T), args.Error(1)
}

func (m *MockUseCase) SubmitQuoteRequest(ctx context.Context, clientID string, in lifecycle.RoutingInput) (*domain.QuoteRequest, error) {
	return ret[domain.QuoteRequest](m.Called(ctx, clientID, in))
}

func (m *MockUseCase) MarkOffersViewed(ctx context.Context, requestID string) (*domain.QuoteRequest, error) {
	return ret[domain.QuoteRequest](m.Called(ctx, requestID))
}

func (m *MockUseCase) SubmitOffer(ctx context.Context, requestID, operatorID string, in lifecycle.PriceInput) (*domain.Offer, error) {
	return ret[domain.Offer](m.Called(ctx, requestID, operatorID, in))
}

func (m *MockUseCase) AcknowledgeOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	return ret[domain.Offer](m.Called(ctx, offerID))
}

func (m *MockUseCase) RejectOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	return ret[domain.Offer](m.Called(ctx, offerID))
}

func (m *MockUseCase) AcceptOffer(ctx context.Context, offerID string) (*domain.Booking, error) {
	return ret[domain.Booking](m.Called(ctx, offerID))
}

func (m *MockUseCase) RecordPayment(ctx context.Context, invoiceID string, in lifecycle.PaymentInput) (*domain.Payment, error) {
	return ret[domain.Payment](m.Called(ctx, invoiceID, in))
}

func (m *MockUseCase) SettlePayment(ctx context.Context, paymentID string, in lifecycle.SettleInput) (*domain.Payment, error) {
	return ret[domain.Payment](m.Called(ctx, paymentID, in))
}

func (m *MockUseCase) RegisterAircraft(ctx context.Context, operatorCode string, in lifecycle.AircraftInput) (*domain.Aircraft, error) {
	return ret[domain.Aircraft](m.Called(ctx, operatorCode, in))
}

func (m *MockUseCase) SetPassengers(ctx context.Context, bookingID string, in []lifecycle.PassengerInput) (*domain.Booking, error) {
	return ret[domain.Booking](m.Called(ctx, bookingID, in))
}

func (m *MockUseCase) UpdateChecklist(ctx context.Context, bookingID string, in lifecycle.ChecklistInput) (*domain.Booking, error) {
	return ret[domain.Booking](m.Called(ctx, bookingID, in))
}

func (m *MockUseCase) AdvanceBooking(ctx context.Context, bookingID string, ev status.Event) (*domain.Booking, error) {
	return ret[domain.Booking](m.Called(ctx, bookingID, ev))
}

func (m *MockUseCase) ExpireStale(ctx context.Context) (lifecycle.ExpiryReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(lifecycle.ExpiryReport), args.Error(1)
}

func (m *MockUseCase) GetQuoteRequest(ctx context.Context, id string) (*domain.QuoteRequest, error) {
	return ret[domain.QuoteRequest](m.Called(ctx, id))
}

func (m *MockUseCase) ListOffers(ctx context.Context, requestID string) ([]domain.Offer, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Offer), args.Error(1)
}

func (m *MockUseCase) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	return ret[domain.Offer](m.Called(ctx, id))
}

func (m *MockUseCase) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return ret[domain.Booking](m.Called(ctx, id))
}

func (m *MockUseCase) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return ret[domain.Invoice](m.Called(ctx, id))
}

func (m *MockUseCase) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return ret[domain.Payment](m.Called(ctx, id))
}

type MockMigrationUseCase struct {
	mock.Mock
}

func (m *MockMigrationUseCase) MigrateAll(ctx context.Context, kind migration.Kind) (migration.RunReport, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(migration.RunReport), args.Error(1)
}

func (m *MockMigrationUseCase) Report(ctx context.Context, kind migration.Kind) (domain.MigrationProgress, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(domain.MigrationProgress), args.Error(1)
}

func testContext(method, path string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestQuoteRequestHandler_create(t *testing.T) {
	mockService := &MockUseCase{}
	handler := NewQuoteRequestHandler(mockService)

	body := map[string]any{
		"clientId":         "client-1",
		"departureAirport": "FAOR",
		"arrivalAirport":   "FACT",
		"departureDate":    "2025-04-01T08:00:00Z",
		"passengerCount":   6,
	}
	c, w := testContext("POST", "/api/v1/quote-requests", body)

	qr := &domain.QuoteRequest{ID: "req-1", Code: "QR-250310-AB", ClientID: "client-1", Status: status.RequestSubmitted}
	mockService.On("SubmitQuoteRequest", mock.Anything, "client-1", mock.MatchedBy(func(in lifecycle.RoutingInput) bool {
		return in.DepartureAirport == "FAOR" && in.PassengerCount == 6 &&
			in.DepartureDate.Equal(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC))
	})).Return(qr, nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response domain.QuoteRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "QR-250310-AB", response.Code)
	assert.Equal(t, status.RequestSubmitted, response.Status)
	mockService.AssertExpectations(t)
}

func TestQuoteRequestHandler_createBadBody(t *testing.T) {
	mockService := &MockUseCase{}
	handler := NewQuoteRequestHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/quote-requests", bytes.NewBufferString("{not json"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "SubmitQuoteRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestQuoteRequestHandler_submitOffer(t *testing.T) {
	mockService := &MockUseCase{}
	handler := NewQuoteRequestHandler(mockService)

	c, w := testContext("POST", "/api/v1/quote-requests/req-1/offers", map[string]any{
		"operatorId": "op-1",
		"price":      25000,
	})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	offer := &domain.Offer{ID: "off-1", Code: "QT-250310-AB", Price: 25000, Commission: 750, TotalPrice: 25750}
	mockService.On("SubmitOffer", mock.Anything, "req-1", "op-1", lifecycle.PriceInput{Price: 25000}).Return(offer, nil)

	handler.submitOffer(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response domain.Offer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 25750.0, response.TotalPrice)
	mockService.AssertExpectations(t)
}

func TestWriteError_statusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"not found", apperr.NotFound("get", "missing"), http.StatusNotFound, "not_found"},
		{"invalid state", apperr.InvalidState("accept", "closed"), http.StatusConflict, "invalid_state"},
		{"conflict", apperr.Conflict("update", "stale"), http.StatusConflict, "conflict"},
		{"validation", apperr.Validation("submit", "bad"), http.StatusBadRequest, "validation_error"},
		{"malformed id", apperr.MalformedIdentifier("parse", "bad"), http.StatusBadRequest, "malformed_identifier"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := testContext("GET", "/", nil)
			writeError(c, tt.err)

			assert.Equal(t, tt.code, w.Code)
			var response errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.kind, response.Kind)
		})
	}
}

func TestOfferHandler_acceptConflict(t *testing.T) {
	mockService := &MockUseCase{}
	handler := NewOfferHandler(mockService)

	c, w := testContext("POST", "/api/v1/offers/off-1/accept", nil)
	c.Params = gin.Params{{Key: "id", Value: "off-1"}}

	mockService.On("AcceptOffer", mock.Anything, "off-1").Return(nil, apperr.InvalidState("accept offer", "request is closed"))

	handler.accept(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_advance(t *testing.T) {
	mockService := &MockUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := testContext("POST", "/api/v1/bookings/bk-1/events", map[string]string{"event": "client-ready"})
	c.Params = gin.Params{{Key: "id", Value: "bk-1"}}

	booking := &domain.Booking{ID: "bk-1", Status: status.BookingClientReady}
	mockService.On("AdvanceBooking", mock.Anything, "bk-1", status.Event("client-ready")).Return(booking, nil)

	handler.advance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response domain.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, status.BookingClientReady, response.Status)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_advanceMissingEvent(t *testing.T) {
	mockService := &MockUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := testContext("POST", "/api/v1/bookings/bk-1/events", map[string]string{})
	c.Params = gin.Params{{Key: "id", Value: "bk-1"}}

	handler.advance(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "AdvanceBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingHandler_setPassengers(t *testing.T) {
	mockService := &MockUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := testContext("PUT", "/api/v1/bookings/bk-1/passengers", map[string]any{
		"passengers": []map[string]string{{"firstName": "Thandi", "lastName": "Nkosi"}},
	})
	c.Params = gin.Params{{Key: "id", Value: "bk-1"}}

	in := []lifecycle.PassengerInput{{FirstName: "Thandi", LastName: "Nkosi"}}
	mockService.On("SetPassengers", mock.Anything, "bk-1", in).Return(&domain.Booking{ID: "bk-1"}, nil)

	handler.setPassengers(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestPaymentHandlers(t *testing.T) {
	mockService := &MockUseCase{}
	invoices := NewInvoiceHandler(mockService)
	payments := NewPaymentHandler(mockService)

	c, w := testContext("POST", "/api/v1/invoices/inv-1/payments", map[string]any{"amount": 5000, "method": "eft"})
	c.Params = gin.Params{{Key: "id", Value: "inv-1"}}
	mockService.On("RecordPayment", mock.Anything, "inv-1", lifecycle.PaymentInput{Amount: 5000, Method: "eft"}).
		Return(&domain.Payment{ID: "pay-1", Status: status.PaymentPending}, nil)

	invoices.recordPayment(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = testContext("POST", "/api/v1/payments/pay-1/settle", map[string]any{"outcome": "completed"})
	c.Params = gin.Params{{Key: "id", Value: "pay-1"}}
	mockService.On("SettlePayment", mock.Anything, "pay-1", lifecycle.SettleInput{Outcome: lifecycle.OutcomeCompleted}).
		Return(&domain.Payment{ID: "pay-1", Status: status.PaymentCompleted}, nil)

	payments.settle(c)
	assert.Equal(t, http.StatusOK, w.Code)
	var response domain.Payment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, status.PaymentCompleted, response.Status)

	mockService.AssertExpectations(t)
}

func TestMigrationHandler(t *testing.T) {
	engine := &MockMigrationUseCase{}
	handler := NewMigrationHandler(engine)

	c, w := testContext("GET", "/api/v1/admin/migrations/bookings", nil)
	c.Params = gin.Params{{Key: "kind", Value: "bookings"}}
	engine.On("Report", mock.Anything, migration.KindBookings).
		Return(domain.MigrationProgress{Kind: "bookings", Total: 8, Legacy: 2, Comprehensive: 6, ProgressPercent: 75}, nil)

	handler.report(c)
	assert.Equal(t, http.StatusOK, w.Code)
	var progress domain.MigrationProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, 75.0, progress.ProgressPercent)

	c, w = testContext("POST", "/api/v1/admin/migrations/flights/run", nil)
	c.Params = gin.Params{{Key: "kind", Value: "flights"}}

	handler.run(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	engine.AssertNotCalled(t, "MigrateAll", mock.Anything, mock.Anything)
	engine.AssertExpectations(t)
}

func TestNewRouter_routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockService := &MockUseCase{}
	router := NewRouter(mockService, nil, nil)

	mockService.On("GetInvoice", mock.Anything, "missing").Return(nil, apperr.NotFound("get invoice", "missing"))
	mockService.On("ListOffers", mock.Anything, "req-1").Return([]domain.Offer{{ID: "off-1"}, {ID: "off-2"}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/invoices/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/quote-requests/req-1/offers", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var offers []domain.Offer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &offers))
	assert.Len(t, offers, 2)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/admin/migrations/bookings", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockService.AssertExpectations(t)
}
