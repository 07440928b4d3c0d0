package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/core/service"
)

const maxBodyBytes = 1 << 20

type CheckoutUseCase interface {
	CreateSession(ctx context.Context, req service.CheckoutRequest) (service.CheckoutResult, error)
}

type PaymentUseCase interface {
	VerifyAndFinalize(ctx context.Context, orderID string, payload domain.CallbackPayload) (service.VerifyResult, error)
}

type OrderUseCase interface {
	ListForUser(ctx context.Context, caller domain.Caller) ([]domain.Order, error)
	Get(ctx context.Context, caller domain.Caller, orderID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, caller domain.Caller, orderID, rawStatus string) (*domain.Order, error)
}

type HTTPHandler struct {
	checkout    CheckoutUseCase
	payments    PaymentUseCase
	orders      OrderUseCase
	health      *HealthService
	frontendURL string
	logger      *slog.Logger
}

func NewHTTPHandler(
	checkout CheckoutUseCase,
	payments PaymentUseCase,
	orders OrderUseCase,
	health *HealthService,
	frontendURL string,
	logger *slog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		checkout:    checkout,
		payments:    payments,
		orders:      orders,
		health:      health,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

func (h *HTTPHandler) Routes(auth *Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// gateway redirect, authenticated by its signature
		r.Get("/payment/benefit-callback", h.WalletCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.Optional)
			r.Post("/payment/create-session", h.CreateSession)
			r.Post("/payment/verify-payment", h.VerifyPayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Required)
			r.Get("/orders", h.ListOrders)
			r.Get("/order/{orderId}", h.GetOrder)
			r.Put("/orders/{orderId}/status", h.UpdateOrderStatus)
		})
	})

	return r
}

type CustomerDetailsRequest struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Address domain.Address `json:"address"`
}

type CreateSessionRequest struct {
	OrderID         string                 `json:"orderId"`
	UserID          string                 `json:"userId"`
	Total           *decimal.Decimal       `json:"total"`
	Currency        string                 `json:"currency"`
	CustomerDetails CustomerDetailsRequest `json:"customerDetails"`
	CartItems       []domain.CartItem      `json:"cartItems"`
	ShippingOption  string                 `json:"shippingOption"`
	PaymentMethod   string                 `json:"paymentMethod"`
}

type CreateSessionResponse struct {
	Success       bool   `json:"success"`
	OrderID       string `json:"orderId"`
	SessionID     string `json:"sessionId,omitempty"`
	Gateway       string `json:"gateway,omitempty"`
	PaymentURL    string `json:"paymentUrl,omitempty"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
	PaymentStatus string `json:"paymentStatus"`
	TotalAmount   string `json:"totalAmount"`
	Currency      string `json:"currency"`
}

type VerifyPaymentRequest struct {
	OrderID         string `json:"orderId"`
	ResultIndicator string `json:"resultIndicator"`
	TransactionID   string `json:"transactionId"`
	Gateway         string `json:"gateway"`
	Status          string `json:"status"`
	Amount          string `json:"amount"`
	Signature       string `json:"signature"`
}

type VerifyPaymentResponse struct {
	Success       bool   `json:"success"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
	TransactionID string `json:"transactionId,omitempty"`
	Processing    bool   `json:"processing,omitempty"`
	Message       string `json:"message,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	userID := strings.TrimSpace(req.UserID)
	caller, authenticated := callerFrom(r.Context())
	if authenticated {
		if userID != "" && userID != caller.UserID {
			writeJSON(w, http.StatusForbidden, errorResponse{Message: "userId does not match token"})
			return
		}
		userID = caller.UserID
	}

	// resuming an existing order must prove ownership with a token
	if strings.TrimSpace(req.OrderID) != "" && !authenticated {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "sign in to resume an order", OrderID: strings.TrimSpace(req.OrderID)})
		return
	}

	checkout := service.CheckoutRequest{
		UserID:  userID,
		OrderID: strings.TrimSpace(req.OrderID),
		Items:   req.CartItems,
		Customer: domain.CustomerDetails{
			Name:  strings.TrimSpace(req.CustomerDetails.Name),
			Email: strings.TrimSpace(req.CustomerDetails.Email),
			Phone: strings.TrimSpace(req.CustomerDetails.Phone),
		},
		ShippingAddress: req.CustomerDetails.Address,
		ClientTotal:     req.Total,
	}

	if req.PaymentMethod != "" || checkout.OrderID == "" {
		method, err := domain.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			h.writeError(w, r, err, "")
			return
		}
		checkout.PaymentMethod = method
	}

	option, err := domain.ParseShippingOption(req.ShippingOption)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	checkout.ShippingOption = option

	result, err := h.checkout.CreateSession(r.Context(), checkout)
	if err != nil {
		orderID := ""
		if result.Order != nil {
			orderID = result.Order.ID
		}
		h.writeError(w, r, err, orderID)
		return
	}

	order := result.Order
	if req.Currency != "" && !strings.EqualFold(req.Currency, order.Currency) {
		h.logger.Warn("client currency differs from order currency",
			"order_id", order.ID,
			"client_currency", req.Currency,
			"currency", order.Currency)
	}

	writeJSON(w, http.StatusOK, CreateSessionResponse{
		Success:       true,
		OrderID:       order.ID,
		SessionID:     result.Session.SessionID,
		Gateway:       result.Session.Gateway,
		PaymentURL:    result.Session.PaymentURL,
		CheckoutURL:   result.Session.CheckoutURL,
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   domain.FormatMoney(order.TotalAmount, order.Currency),
		Currency:      order.Currency,
	})
}

func (h *HTTPHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	signature := req.Signature
	if signature == "" {
		signature = r.Header.Get("X-Signature")
	}

	result, err := h.payments.VerifyAndFinalize(r.Context(), req.OrderID, domain.CallbackPayload{
		ResultIndicator: req.ResultIndicator,
		TransactionID:   req.TransactionID,
		Status:          req.Status,
		Amount:          req.Amount,
		Signature:       signature,
		Gateway:         req.Gateway,
	})
	if err != nil {
		h.writeError(w, r, err, req.OrderID)
		return
	}

	status := http.StatusOK
	if result.Processing {
		status = http.StatusAccepted
	}

	writeJSON(w, status, VerifyPaymentResponse{
		Success:       result.PaymentStatus == domain.PaymentStatusApproved,
		OrderID:       result.OrderID,
		PaymentStatus: string(result.PaymentStatus),
		TransactionID: result.Reference,
		Processing:    result.Processing,
		Message:       result.Reason,
	})
}

// WalletCallback handles the wallet gateway's browser redirect and forwards
// the shopper to the storefront with the settled status.
func (h *HTTPHandler) WalletCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderID := firstOf(q, "orderId", "trackid", "trackId")
	payload := domain.CallbackPayload{
		TransactionID: firstOf(q, "transactionId", "paymentid", "paymentId", "tranid"),
		Status:        firstOf(q, "status", "result"),
		Amount:        firstOf(q, "amount", "amt"),
		Signature:     firstOf(q, "signature", "hash"),
		Gateway:       string(domain.PaymentMethodWallet),
	}
	if payload.Signature == "" {
		payload.Signature = r.Header.Get("X-Signature")
	}

	status := "ERROR"
	transactionID := payload.TransactionID

	result, err := h.payments.VerifyAndFinalize(r.Context(), orderID, payload)
	if err != nil {
		h.logger.Warn("wallet callback not settled",
			"order_id", orderID,
			"error", err)
	} else {
		status = string(result.PaymentStatus)
		if result.Reference != "" {
			transactionID = result.Reference
		}
	}

	target := url.Values{}
	target.Set("orderId", orderID)
	target.Set("status", status)
	target.Set("transactionId", transactionID)
	http.Redirect(w, r, h.frontendURL+"/payment/callback?"+target.Encode(), http.StatusFound)
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	orders, err := h.orders.ListForUser(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": out})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	orderID := chi.URLParam(r, "orderId")

	order, err := h.orders.Get(r.Context(), caller, orderID)
	if err != nil {
		h.writeError(w, r, err, orderID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderResponse(order)})
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	orderID := chi.URLParam(r, "orderId")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), caller, orderID, req.Status)
	if err != nil {
		h.writeError(w, r, err, orderID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderResponse(order)})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks, healthy := h.health.Check(ctx)
	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error, orderID string) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", r.URL.Path,
			"order_id", orderID,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
	writeJSON(w, status, errorResponse{Message: message, OrderID: orderID})
}

func statusFor(err error) (int, string) {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrSignatureMismatch):
		return http.StatusUnauthorized, "invalid callback signature"
	case errors.Is(err, domain.ErrOrderNotPending):
		return http.StatusConflict, "order is no longer pending"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "payment gateway unavailable, please retry"
	case errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusPaymentRequired, "payment was rejected by the gateway"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
