package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/port"
)

type CheckoutRequest struct {
	UserID string
	// OrderID retries session creation for an existing PENDING order of the same user.
	OrderID         string
	Items           []domain.CartItem
	ShippingOption  domain.ShippingOption
	PaymentMethod   domain.PaymentMethod
	Customer        domain.CustomerDetails
	ShippingAddress domain.Address
	// ClientTotal is what the storefront displayed; the server-priced total always wins.
	ClientTotal *decimal.Decimal
}

type CheckoutResult struct {
	Order   *domain.Order
	Session domain.PaymentSession
}

type CheckoutService struct {
	orders   port.OrderRepository
	pricer   *Pricer
	gateways *GatewaySet
	final    *finalizer
	logger   *slog.Logger
	now      func() time.Time
}

func NewCheckoutService(
	orders port.OrderRepository,
	pricer *Pricer,
	gateways *GatewaySet,
	cache port.CacheRepository,
	notifier port.Notifier,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		orders:   orders,
		pricer:   pricer,
		gateways: gateways,
		final: &finalizer{
			orders:   orders,
			cache:    cache,
			notifier: notifier,
			logger:   logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

// CreateSession prices the cart, records a PENDING order and opens a payment
// attempt with the gateway for the chosen method. Cash on delivery is
// approved before returning.
func (s *CheckoutService) CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	order, err := s.prepareOrder(ctx, req)
	if err != nil {
		return CheckoutResult{}, err
	}

	gw, err := s.gateways.For(order.PaymentMethod)
	if err != nil {
		return CheckoutResult{}, err
	}

	session, err := gw.CreateSession(ctx, order, order.Customer)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayRejected) {
			if _, _, ferr := s.final.finalize(ctx, order.ID, domain.PaymentStatusFailed, ""); ferr != nil {
				s.logger.Error("failed to record rejected session", "order_id", order.ID, "error", ferr)
			}
		}
		s.logger.Warn("payment session not created",
			"order_id", order.ID,
			"payment_method", order.PaymentMethod,
			"error", err)
		return CheckoutResult{Order: order}, fmt.Errorf("create %s session for %s: %w", order.PaymentMethod, order.ID, err)
	}

	if err := s.orders.SaveSession(ctx, order.ID, session); err != nil {
		return CheckoutResult{}, fmt.Errorf("save session for %s: %w", order.ID, err)
	}
	order.Session = session

	if session.SettleImmediately {
		final, _, err := s.final.finalize(ctx, order.ID, domain.PaymentStatusApproved, "")
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("settle %s: %w", order.ID, err)
		}
		final.Session = session
		order = final
	}

	s.logger.Info("payment session created",
		"order_id", order.ID,
		"payment_method", order.PaymentMethod,
		"session_id", session.SessionID,
		"payment_status", order.PaymentStatus)

	return CheckoutResult{Order: order, Session: session}, nil
}

func (s *CheckoutService) prepareOrder(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}

	if req.OrderID != "" {
		return s.resumeOrder(ctx, req)
	}

	if _, err := s.gateways.For(req.PaymentMethod); err != nil {
		return nil, err
	}
	if req.ShippingOption != domain.ShippingDelivery && req.ShippingOption != domain.ShippingPickup {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidShippingOption, req.ShippingOption)
	}
	if err := validateCustomer(req.Customer); err != nil {
		return nil, err
	}
	if req.ShippingOption == domain.ShippingDelivery {
		if err := validateAddress(req.ShippingAddress); err != nil {
			return nil, err
		}
	}

	priced, err := s.pricer.Price(ctx, req.Items, req.ShippingOption)
	if err != nil {
		return nil, err
	}

	if req.ClientTotal != nil && !req.ClientTotal.Equal(priced.Total) {
		s.logger.Warn("client total differs from priced total",
			"user_id", req.UserID,
			"client_total", req.ClientTotal.String(),
			"priced_total", priced.Total.String())
	}

	now := s.now()
	order := domain.NewOrder(domain.GenerateOrderID(now), req.UserID, priced, req.PaymentMethod, req.ShippingAddress, req.Customer, now)

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		"order_id", order.ID,
		"user_id", order.UserID,
		"total", domain.FormatMoney(order.TotalAmount, order.Currency),
		"currency", order.Currency,
		"payment_method", order.PaymentMethod)

	return order, nil
}

func (s *CheckoutService) resumeOrder(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != req.UserID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", domain.ErrForbidden, order.ID)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderNotPending, order.ID, order.PaymentStatus)
	}
	if req.PaymentMethod != "" && req.PaymentMethod != order.PaymentMethod {
		return nil, fmt.Errorf("%w: order %s was placed with %s", domain.ErrInvalidPaymentMethod, order.ID, order.PaymentMethod)
	}
	return order, nil
}

func validateCustomer(c domain.CustomerDetails) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: customer name is required", domain.ErrValidation)
	}
	if !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: customer email is invalid", domain.ErrValidation)
	}
	return nil
}

func validateAddress(a domain.Address) error {
	if strings.TrimSpace(a.Line1) == "" || strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("%w: shipping address needs a street line and city", domain.ErrValidation)
	}
	return nil
}
