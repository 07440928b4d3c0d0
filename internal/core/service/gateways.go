package service

import (
	"fmt"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/port"
)

// GatewaySet dispatches on the order's payment method.
type GatewaySet struct {
	byMethod map[domain.PaymentMethod]port.PaymentGateway
}

func NewGatewaySet(gateways ...port.PaymentGateway) *GatewaySet {
	set := &GatewaySet{byMethod: make(map[domain.PaymentMethod]port.PaymentGateway, len(gateways))}
	for _, gw := range gateways {
		set.byMethod[gw.Method()] = gw
	}
	return set
}

func (s *GatewaySet) For(method domain.PaymentMethod) (port.PaymentGateway, error) {
	gw, ok := s.byMethod[method]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway configured for %s", domain.ErrInvalidPaymentMethod, method)
	}
	return gw, nil
}
