package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxOrderIDLength is the longest order reference the payment gateways accept.
const MaxOrderIDLength = 25

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusApproved PaymentStatus = "APPROVED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

// IsTerminal reports whether the status is a sink of the payment state machine.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusApproved || s == PaymentStatusFailed
}

type OrderStatus string

const (
	OrderStatusUnset      OrderStatus = ""
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var operatorStatuses = map[OrderStatus]struct{}{
	OrderStatusConfirmed:  {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// ParseOrderStatus accepts any case and rejects values outside the fixed workflow enum.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := operatorStatuses[status]; !ok {
		return OrderStatusUnset, fmt.Errorf("%w: %q", ErrInvalidOrderStatus, raw)
	}
	return status, nil
}

type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodWallet         PaymentMethod = "wallet"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod maps the storefront's wire names onto a PaymentMethod.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "card", "credit_card", "mastercard":
		return PaymentMethodCard, nil
	case "wallet", "benefit", "benefitpay":
		return PaymentMethodWallet, nil
	case "cash_on_delivery", "cod", "cash":
		return PaymentMethodCashOnDelivery, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
}

type Address struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Block      string `json:"block,omitempty"`
	Road       string `json:"road,omitempty"`
	Building   string `json:"building,omitempty"`
	City       string `json:"city"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode,omitempty"`
}

type CustomerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type LineItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Currency    string          `json:"currency"`
}

// LineTotal is unitPrice × quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID               string          `json:"orderId"`
	UserID           string          `json:"userId"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shippingCost"`
	TaxAmount        decimal.Decimal `json:"taxAmount"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Currency         string          `json:"currency"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus"`
	OrderStatus      OrderStatus     `json:"orderStatus,omitempty"`
	ShippingOption   ShippingOption  `json:"shippingOption"`
	ShippingAddress  Address         `json:"shippingAddress"`
	Customer         CustomerDetails `json:"customer"`
	Session          PaymentSession  `json:"-"`
	GatewayReference string          `json:"gatewayReference,omitempty"`
	Items            []LineItem      `json:"items"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NewOrder snapshots a priced cart into a PENDING order.
func NewOrder(id, userID string, priced PricedOrder, method PaymentMethod, address Address, customer CustomerDetails, now time.Time) *Order {
	items := make([]LineItem, len(priced.Items))
	copy(items, priced.Items)

	return &Order{
		ID:              id,
		UserID:          userID,
		Subtotal:        priced.Subtotal,
		ShippingCost:    priced.ShippingCost,
		TaxAmount:       priced.Tax,
		TotalAmount:     priced.Total,
		Currency:        priced.Currency,
		PaymentMethod:   method,
		PaymentStatus:   PaymentStatusPending,
		ShippingOption:  priced.ShippingOption,
		ShippingAddress: address,
		Customer:        customer,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ApplyTerminal moves a PENDING order into status. It returns false and leaves
// the order untouched when the order is already terminal.
func (o *Order) ApplyTerminal(status PaymentStatus, reference string, now time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	if o.PaymentStatus.IsTerminal() {
		return false, nil
	}

	o.PaymentStatus = status
	if reference != "" {
		o.GatewayReference = reference
	}
	if status == PaymentStatusApproved && o.OrderStatus == OrderStatusUnset {
		o.OrderStatus = OrderStatusConfirmed
	}
	o.UpdatedAt = now
	return true, nil
}

// ItemsTotal sums the line items without shipping or tax.
func (o *Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// GenerateOrderID returns "SE" + yymmddHHMMSS + "-" + 8 random hex chars.
func GenerateOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("SE%s-%s", now.UTC().Format("060102150405"), suffix)
}
