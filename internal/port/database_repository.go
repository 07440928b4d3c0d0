package port

import (
	"context"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists a PENDING order and all of its line items atomically
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder loads an order with its line items, or domain.ErrOrderNotFound
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrdersByUser returns the user's orders newest first
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)

	// SaveSession stores gateway session data while the order is still PENDING
	SaveSession(ctx context.Context, orderID string, session domain.PaymentSession) error

	// MarkTerminal moves a PENDING order to status under a row lock.
	// changed is false when the order was already terminal; the stored order is returned as is.
	MarkTerminal(ctx context.Context, orderID string, status domain.PaymentStatus, gatewayRef string) (order *domain.Order, changed bool, err error)

	// UpdateOrderStatus changes the operator workflow status only
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error)
}

type CatalogRepository interface {
	// GetProduct retrieves a product by ID, or domain.ErrProductNotFound
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}
