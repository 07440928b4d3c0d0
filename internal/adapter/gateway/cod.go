package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const codGatewayName = "cod"

// CashOnDelivery needs no provider: the session is synthetic and settles at once.
type CashOnDelivery struct{}

func NewCashOnDelivery() *CashOnDelivery {
	return &CashOnDelivery{}
}

func (CashOnDelivery) Method() domain.PaymentMethod {
	return domain.PaymentMethodCashOnDelivery
}

func (CashOnDelivery) CreateSession(ctx context.Context, order *domain.Order, customer domain.CustomerDetails) (domain.PaymentSession, error) {
	return domain.PaymentSession{
		Gateway:           codGatewayName,
		SessionID:         "cod-" + uuid.NewString(),
		SettleImmediately: true,
	}, nil
}

func (CashOnDelivery) Verify(ctx context.Context, order *domain.Order, callback domain.CallbackPayload) (domain.Verification, error) {
	return domain.Verification{Outcome: domain.OutcomeApproved}, nil
}
