package port

import (
	"context"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

type Notifier interface {
	// OrderConfirmed announces an approved order to the customer
	OrderConfirmed(ctx context.Context, order *domain.Order) error
}
