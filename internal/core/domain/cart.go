package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type ShippingOption string

const (
	ShippingDelivery ShippingOption = "delivery"
	ShippingPickup   ShippingOption = "pickup"
)

func ParseShippingOption(raw string) (ShippingOption, error) {
	switch ShippingOption(strings.ToLower(strings.TrimSpace(raw))) {
	case ShippingDelivery, "":
		return ShippingDelivery, nil
	case ShippingPickup:
		return ShippingPickup, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidShippingOption, raw)
}

// MaxLineQuantity bounds a merged cart line; quantities are stored in INT columns.
const MaxLineQuantity = math.MaxInt32

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type PricedOrder struct {
	Items          []LineItem
	Currency       string
	ShippingOption ShippingOption
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
}
