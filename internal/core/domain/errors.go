package domain

import "errors"

// Validation failures; surfaced to the caller as bad input.
var (
	ErrValidation            = errors.New("validation failed")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrMixedCurrency         = errors.New("cart items use different currencies")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidShippingOption = errors.New("invalid shipping option")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidOrderStatus    = errors.New("invalid order status")
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrOrderNotPending   = errors.New("order is not pending")
	ErrSignatureMismatch = errors.New("callback signature mismatch")
)

// IsValidation reports whether err is one of the bad-input errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrEmptyCart, ErrInvalidQuantity, ErrMixedCurrency,
		ErrProductNotFound, ErrInsufficientStock, ErrInvalidShippingOption,
		ErrInvalidPaymentMethod, ErrInvalidOrderStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
