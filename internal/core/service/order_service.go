package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/port"
)

// OrderService serves order history and the operator workflow status.
// It never touches paymentStatus.
type OrderService struct {
	orders port.OrderRepository
	logger *slog.Logger
}

func NewOrderService(orders port.OrderRepository, logger *slog.Logger) *OrderService {
	return &OrderService{orders: orders, logger: logger}
}

func (s *OrderService) ListForUser(ctx context.Context, caller domain.Caller) ([]domain.Order, error) {
	if caller.UserID == "" {
		return nil, fmt.Errorf("%w: caller has no user id", domain.ErrForbidden)
	}
	orders, err := s.orders.ListOrdersByUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", caller.UserID, err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, caller domain.Caller, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.CanView(order) {
		return nil, fmt.Errorf("%w: order %s", domain.ErrForbidden, orderID)
	}
	return order, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, caller domain.Caller, orderID, rawStatus string) (*domain.Order, error) {
	if !caller.IsOperator() {
		return nil, fmt.Errorf("%w: operator role required", domain.ErrForbidden)
	}

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status updated",
		"order_id", orderID,
		"order_status", status,
		"operator", caller.UserID)
	return order, nil
}
