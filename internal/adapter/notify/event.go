package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const OrderConfirmedRoutingKey = "order.confirmed"

// OrderConfirmedEvent is the message consumers use to email the customer.
type OrderConfirmedEvent struct {
	ID            uuid.UUID   `json:"id"`
	OrderID       string      `json:"orderId"`
	UserID        string      `json:"userId"`
	CustomerName  string      `json:"customerName"`
	CustomerEmail string      `json:"customerEmail"`
	PaymentMethod string      `json:"paymentMethod"`
	Reference     string      `json:"gatewayReference,omitempty"`
	Currency      string      `json:"currency"`
	Subtotal      string      `json:"subtotal"`
	ShippingCost  string      `json:"shippingCost"`
	TaxAmount     string      `json:"taxAmount"`
	TotalAmount   string      `json:"totalAmount"`
	Items         []EventItem `json:"items"`
	OccurredAt    time.Time   `json:"occurredAt"`
}

type EventItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
}

func NewOrderConfirmedEvent(order *domain.Order, now time.Time) OrderConfirmedEvent {
	items := make([]EventItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = EventItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   domain.FormatMoney(item.UnitPrice, order.Currency),
		}
	}

	return OrderConfirmedEvent{
		ID:            uuid.New(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		PaymentMethod: string(order.PaymentMethod),
		Reference:     order.GatewayReference,
		Currency:      order.Currency,
		Subtotal:      domain.FormatMoney(order.Subtotal, order.Currency),
		ShippingCost:  domain.FormatMoney(order.ShippingCost, order.Currency),
		TaxAmount:     domain.FormatMoney(order.TaxAmount, order.Currency),
		TotalAmount:   domain.FormatMoney(order.TotalAmount, order.Currency),
		Items:         items,
		OccurredAt:    now,
	}
}
