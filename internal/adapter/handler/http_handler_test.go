package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/core/service"
)

const testSecret = "test-secret"

type stubCheckout struct {
	got    service.CheckoutRequest
	calls  int
	result service.CheckoutResult
	err    error
}

func (s *stubCheckout) CreateSession(ctx context.Context, req service.CheckoutRequest) (service.CheckoutResult, error) {
	s.calls++
	s.got = req
	return s.result, s.err
}

type stubPayments struct {
	gotID      string
	gotPayload domain.CallbackPayload
	result     service.VerifyResult
	err        error
}

func (s *stubPayments) VerifyAndFinalize(ctx context.Context, orderID string, payload domain.CallbackPayload) (service.VerifyResult, error) {
	s.gotID = orderID
	s.gotPayload = payload
	return s.result, s.err
}

type stubOrders struct {
	caller domain.Caller
	orders []domain.Order
	err    error
}

func (s *stubOrders) ListForUser(ctx context.Context, caller domain.Caller) ([]domain.Order, error) {
	s.caller = caller
	return s.orders, s.err
}

func (s *stubOrders) Get(ctx context.Context, caller domain.Caller, orderID string) (*domain.Order, error) {
	s.caller = caller
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			return &s.orders[i], nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *stubOrders) UpdateStatus(ctx context.Context, caller domain.Caller, orderID, rawStatus string) (*domain.Order, error) {
	s.caller = caller
	if !caller.IsOperator() {
		return nil, domain.ErrForbidden
	}
	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	order, err := s.Get(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	order.OrderStatus = status
	return order, nil
}

type handlerFixture struct {
	checkout *stubCheckout
	payments *stubPayments
	orders   *stubOrders
	auth     *Authenticator
	healthy  bool
	router   http.Handler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		checkout: &stubCheckout{},
		payments: &stubPayments{},
		orders:   &stubOrders{},
		auth:     NewAuthenticator(testSecret),
		healthy:  true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := NewHealthService(map[string]HealthCheck{
		"mysql": func(ctx context.Context) error {
			if !f.healthy {
				return errors.New("connection refused")
			}
			return nil
		},
	}, logger)

	h := NewHTTPHandler(f.checkout, f.payments, f.orders, health, "https://shop.example/", logger)
	f.router = h.Routes(f.auth)
	return f
}

func (f *handlerFixture) token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := f.auth.Issue(subject, role, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	return tok
}

func (f *handlerFixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sampleOrder(id, userID string) domain.Order {
	return domain.Order{
		ID:            id,
		UserID:        userID,
		Subtotal:      decimal.RequireFromString("20"),
		ShippingCost:  decimal.RequireFromString("2.2"),
		TaxAmount:     decimal.RequireFromString("2.22"),
		TotalAmount:   decimal.RequireFromString("22.2"),
		Currency:      "BHD",
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusPending,
		Items: []domain.LineItem{{
			ProductID: "P1", ProductName: "Dates", Quantity: 2,
			UnitPrice: decimal.RequireFromString("10"), Currency: "BHD",
		}},
	}
}

const createBody = `{
	"userId": "user-1",
	"total": "22.200",
	"currency": "BHD",
	"customerDetails": {"name": "Ali", "email": "ali@example.com", "address": {"line1": "Road 1", "city": "Manama"}},
	"cartItems": [{"productId": "P1", "quantity": 2}],
	"shippingOption": "delivery",
	"paymentMethod": "card"
}`

func TestCreateSession_Card(t *testing.T) {
	f := newHandlerFixture()
	order := sampleOrder("SE1", "user-1")
	f.checkout.result = service.CheckoutResult{
		Order:   &order,
		Session: domain.PaymentSession{Gateway: "card", SessionID: "SESSION0001", SuccessIndicator: "abc123"},
	}

	rec := f.do(http.MethodPost, "/api/payment/create-session", createBody, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "SE1", resp.OrderID)
	assert.Equal(t, "SESSION0001", resp.SessionID)
	assert.Equal(t, "PENDING", resp.PaymentStatus)
	assert.Equal(t, "22.200", resp.TotalAmount)
	assert.NotContains(t, rec.Body.String(), "abc123", "success indicator stays server-side")

	got := f.checkout.got
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, domain.PaymentMethodCard, got.PaymentMethod)
	assert.Equal(t, domain.ShippingDelivery, got.ShippingOption)
	assert.Equal(t, "Manama", got.ShippingAddress.City)
	require.NotNil(t, got.ClientTotal)
	assert.True(t, got.ClientTotal.Equal(decimal.RequireFromString("22.2")))
}

func TestCreateSession_TokenSubjectWins(t *testing.T) {
	f := newHandlerFixture()
	order := sampleOrder("SE1", "user-1")
	f.checkout.result = service.CheckoutResult{Order: &order}

	body := strings.Replace(createBody, `"userId": "user-1",`, "", 1)
	rec := f.do(http.MethodPost, "/api/payment/create-session", body, f.token(t, "user-1", "customer"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", f.checkout.got.UserID)

	rec = f.do(http.MethodPost, "/api/payment/create-session", createBody, f.token(t, "user-2", "customer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSession_InvalidToken(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(http.MethodPost, "/api/payment/create-session", createBody, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.checkout.calls)
}

func TestCreateSession_ResumeRequiresToken(t *testing.T) {
	f := newHandlerFixture()
	order := sampleOrder("SE1", "user-1")
	f.checkout.result = service.CheckoutResult{Order: &order}

	body := strings.Replace(createBody, `"userId": "user-1",`, `"userId": "user-1", "orderId": "SE1",`, 1)
	rec := f.do(http.MethodPost, "/api/payment/create-session", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.checkout.calls)

	rec = f.do(http.MethodPost, "/api/payment/create-session", body, f.token(t, "user-1", "customer"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SE1", f.checkout.got.OrderID)
	assert.Equal(t, "user-1", f.checkout.got.UserID)
}

func TestCreateSession_BadPaymentMethod(t *testing.T) {
	f := newHandlerFixture()

	body := strings.Replace(createBody, `"paymentMethod": "card"`, `"paymentMethod": "bitcoin"`, 1)
	rec := f.do(http.MethodPost, "/api/payment/create-session", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.checkout.calls)
}

func TestCreateSession_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		order   *domain.Order
		want    int
		orderID string
	}{
		{"empty cart", fmt.Errorf("price: %w", domain.ErrEmptyCart), nil, http.StatusBadRequest, ""},
		{"unknown product", domain.ErrProductNotFound, nil, http.StatusBadRequest, ""},
		{"gateway down", domain.NewGatewayUnavailable("card", errors.New("timeout")), &domain.Order{ID: "SE9"}, http.StatusServiceUnavailable, "SE9"},
		{"gateway rejected", domain.NewGatewayRejected("card", "invalid amount"), &domain.Order{ID: "SE9"}, http.StatusPaymentRequired, "SE9"},
		{"retry of settled order", domain.ErrOrderNotPending, nil, http.StatusConflict, ""},
		{"database down", errors.New("dial tcp: refused"), nil, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.checkout.err = tt.err
			f.checkout.result = service.CheckoutResult{Order: tt.order}

			rec := f.do(http.MethodPost, "/api/payment/create-session", createBody, "")
			assert.Equal(t, tt.want, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.orderID, resp.OrderID)
		})
	}
}

func TestVerifyPayment(t *testing.T) {
	tests := []struct {
		name        string
		result      service.VerifyResult
		err         error
		wantCode    int
		wantSuccess bool
	}{
		{
			name:        "approved",
			result:      service.VerifyResult{OrderID: "SE1", PaymentStatus: domain.PaymentStatusApproved, Reference: "RCPT-1"},
			wantCode:    http.StatusOK,
			wantSuccess: true,
		},
		{
			name:     "declined",
			result:   service.VerifyResult{OrderID: "SE1", PaymentStatus: domain.PaymentStatusFailed, Reason: "DECLINED"},
			wantCode: http.StatusOK,
		},
		{
			name:     "still processing",
			result:   service.VerifyResult{OrderID: "SE1", PaymentStatus: domain.PaymentStatusPending, Processing: true},
			wantCode: http.StatusAccepted,
		},
		{name: "unknown order", err: domain.ErrOrderNotFound, wantCode: http.StatusNotFound},
		{name: "forged signature", err: domain.ErrSignatureMismatch, wantCode: http.StatusUnauthorized},
		{name: "missing order id", err: domain.ErrValidation, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.payments.result = tt.result
			f.payments.err = tt.err

			rec := f.do(http.MethodPost, "/api/payment/verify-payment", `{"orderId":"SE1","resultIndicator":"abc123"}`, "")
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSuccess, resp["success"])
			if tt.err == nil {
				assert.Equal(t, string(tt.result.PaymentStatus), resp["paymentStatus"])
			}
		})
	}
}

func TestVerifyPayment_PassesCallbackFields(t *testing.T) {
	f := newHandlerFixture()
	f.payments.result = service.VerifyResult{OrderID: "SE1", PaymentStatus: domain.PaymentStatusPending, Processing: true}

	req := httptest.NewRequest(http.MethodPost, "/api/payment/verify-payment",
		strings.NewReader(`{"orderId":"SE1","transactionId":"TX-1","gateway":"wallet","status":"CAPTURED","amount":"22.200"}`))
	req.Header.Set("X-Signature", "cafe")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "SE1", f.payments.gotID)
	assert.Equal(t, domain.CallbackPayload{
		TransactionID: "TX-1",
		Status:        "CAPTURED",
		Amount:        "22.200",
		Signature:     "cafe",
		Gateway:       "wallet",
	}, f.payments.gotPayload)
}

func TestWalletCallback_Redirects(t *testing.T) {
	f := newHandlerFixture()
	f.payments.result = service.VerifyResult{OrderID: "SE1", PaymentStatus: domain.PaymentStatusApproved, Reference: "TX-1"}

	rec := f.do(http.MethodGet, "/api/payment/benefit-callback?trackid=SE1&paymentid=TX-1&result=CAPTURED&amt=22.200&signature=abc", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.example", loc.Host)
	assert.Equal(t, "/payment/callback", loc.Path)
	assert.Equal(t, "SE1", loc.Query().Get("orderId"))
	assert.Equal(t, "APPROVED", loc.Query().Get("status"))
	assert.Equal(t, "TX-1", loc.Query().Get("transactionId"))

	assert.Equal(t, "SE1", f.payments.gotID)
	assert.Equal(t, "wallet", f.payments.gotPayload.Gateway)
	assert.Equal(t, "abc", f.payments.gotPayload.Signature)
}

func TestWalletCallback_ErrorStillRedirects(t *testing.T) {
	f := newHandlerFixture()
	f.payments.err = domain.ErrSignatureMismatch

	rec := f.do(http.MethodGet, "/api/payment/benefit-callback?orderId=SE1&transactionId=TX-1&status=CAPTURED", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "ERROR", loc.Query().Get("status"))
}

func TestOrders_RequireToken(t *testing.T) {
	f := newHandlerFixture()

	for _, path := range []string{"/api/orders", "/api/order/SE1"} {
		rec := f.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestOrders_List(t *testing.T) {
	f := newHandlerFixture()
	f.orders.orders = []domain.Order{sampleOrder("SE2", "user-1"), sampleOrder("SE1", "user-1")}

	rec := f.do(http.MethodGet, "/api/orders", "", f.token(t, "user-1", "customer"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Caller{UserID: "user-1", Role: "customer"}, f.orders.caller)

	var resp struct {
		Success bool            `json:"success"`
		Orders  []OrderResponse `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 2)
	assert.Equal(t, "SE2", resp.Orders[0].OrderID)
	assert.Equal(t, "22.200", resp.Orders[0].TotalAmount)
	assert.Equal(t, "20.000", resp.Orders[0].Items[0].LineTotal)
}

func TestOrders_GetForbidden(t *testing.T) {
	f := newHandlerFixture()
	f.orders.err = domain.ErrForbidden

	rec := f.do(http.MethodGet, "/api/order/SE1", "", f.token(t, "user-2", "customer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOrders_UpdateStatus(t *testing.T) {
	f := newHandlerFixture()
	f.orders.orders = []domain.Order{sampleOrder("SE1", "user-1")}

	rec := f.do(http.MethodPut, "/api/orders/SE1/status", `{"status":"shipped"}`, f.token(t, "ops-1", "operator"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"orderStatus":"SHIPPED"`)

	rec = f.do(http.MethodPut, "/api/orders/SE1/status", `{"status":"LOST"}`, f.token(t, "ops-1", "operator"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/api/orders/SE1/status", `{"status":"SHIPPED"}`, f.token(t, "user-1", "customer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mysql":"ok"`)

	f.healthy = false
	rec = f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestAuthenticator_RejectsOtherAlgorithms(t *testing.T) {
	f := newHandlerFixture()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "ops-1"}})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/orders", "", raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_RejectsExpired(t *testing.T) {
	f := newHandlerFixture()

	raw, err := f.auth.Issue("user-1", "customer", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/orders", "", raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
