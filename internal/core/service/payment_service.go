package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/port"
)

// VerifyResult is what the transport layer reports back to the storefront.
type VerifyResult struct {
	OrderID       string
	PaymentStatus domain.PaymentStatus
	Reference     string
	// Processing is set while the outcome is still unknown; the client should poll again.
	Processing bool
	Reason     string
}

type PaymentService struct {
	orders   port.OrderRepository
	gateways *GatewaySet
	final    *finalizer
	logger   *slog.Logger
}

func NewPaymentService(
	orders port.OrderRepository,
	gateways *GatewaySet,
	cache port.CacheRepository,
	notifier port.Notifier,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		orders:   orders,
		gateways: gateways,
		final: &finalizer{
			orders:   orders,
			cache:    cache,
			notifier: notifier,
			logger:   logger,
		},
		logger: logger,
	}
}

// VerifyAndFinalize resolves a PENDING order against its gateway and applies
// the terminal status once. Repeated or concurrent calls for the same order
// return the stored status and never re-send the confirmation.
func (s *PaymentService) VerifyAndFinalize(ctx context.Context, orderID string, payload domain.CallbackPayload) (VerifyResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return VerifyResult{}, fmt.Errorf("%w: orderId is required", domain.ErrValidation)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return VerifyResult{}, err
	}

	if order.PaymentStatus.IsTerminal() {
		return storedResult(order), nil
	}

	if payload.Gateway != "" {
		if method, err := domain.ParsePaymentMethod(payload.Gateway); err == nil && method != order.PaymentMethod {
			s.logger.Warn("verification gateway hint ignored",
				"order_id", orderID,
				"hint", payload.Gateway,
				"payment_method", order.PaymentMethod)
		}
	}

	gw, err := s.gateways.For(order.PaymentMethod)
	if err != nil {
		return VerifyResult{}, err
	}

	verification, err := gw.Verify(ctx, order, payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrGatewayUnavailable):
			s.logger.Warn("payment verification inconclusive",
				"order_id", orderID,
				"payment_method", order.PaymentMethod,
				"error", err)
			return pendingResult(order, "gateway unavailable"), nil
		case errors.Is(err, domain.ErrGatewayRejected):
			var gwErr *domain.GatewayError
			reason := "rejected"
			if errors.As(err, &gwErr) {
				reason = gwErr.Reason
			}
			verification = domain.Verification{Outcome: domain.OutcomeDeclined, Reason: reason}
		default:
			return VerifyResult{}, fmt.Errorf("verify order %s: %w", orderID, err)
		}
	}

	status, decisive := verification.TerminalStatus()
	if !decisive {
		s.logger.Info("payment still pending", "order_id", orderID, "reason", verification.Reason)
		return pendingResult(order, verification.Reason), nil
	}

	final, _, err := s.final.finalize(ctx, orderID, status, verification.Reference)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("finalize order %s: %w", orderID, err)
	}

	result := storedResult(final)
	if final.PaymentStatus == domain.PaymentStatusFailed {
		result.Reason = verification.Reason
	}
	return result, nil
}

func storedResult(order *domain.Order) VerifyResult {
	return VerifyResult{
		OrderID:       order.ID,
		PaymentStatus: order.PaymentStatus,
		Reference:     order.GatewayReference,
	}
}

func pendingResult(order *domain.Order, reason string) VerifyResult {
	return VerifyResult{
		OrderID:       order.ID,
		PaymentStatus: domain.PaymentStatusPending,
		Processing:    true,
		Reason:        reason,
	}
}
