package port

import (
	"context"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

type PaymentGateway interface {
	Method() domain.PaymentMethod

	// CreateSession opens a payment attempt for a PENDING order
	CreateSession(ctx context.Context, order *domain.Order, customer domain.CustomerDetails) (domain.PaymentSession, error)

	// Verify asks the provider for the authoritative outcome of the attempt
	Verify(ctx context.Context, order *domain.Order, callback domain.CallbackPayload) (domain.Verification, error)
}
