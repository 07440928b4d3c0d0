package handler

import (
	"time"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

// OrderResponse renders money with the currency's minor-unit digits.
type OrderResponse struct {
	OrderID          string                 `json:"orderId"`
	UserID           string                 `json:"userId"`
	Subtotal         string                 `json:"subtotal"`
	ShippingCost     string                 `json:"shippingCost"`
	TaxAmount        string                 `json:"taxAmount"`
	TotalAmount      string                 `json:"totalAmount"`
	Currency         string                 `json:"currency"`
	PaymentMethod    string                 `json:"paymentMethod"`
	PaymentStatus    string                 `json:"paymentStatus"`
	OrderStatus      string                 `json:"orderStatus,omitempty"`
	ShippingOption   string                 `json:"shippingOption"`
	ShippingAddress  domain.Address         `json:"shippingAddress"`
	Customer         domain.CustomerDetails `json:"customer"`
	GatewayReference string                 `json:"gatewayReference,omitempty"`
	Items            []OrderItemResponse    `json:"items"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

type OrderItemResponse struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   domain.FormatMoney(item.UnitPrice, o.Currency),
			LineTotal:   domain.FormatMoney(item.LineTotal(), o.Currency),
		}
	}

	return OrderResponse{
		OrderID:          o.ID,
		UserID:           o.UserID,
		Subtotal:         domain.FormatMoney(o.Subtotal, o.Currency),
		ShippingCost:     domain.FormatMoney(o.ShippingCost, o.Currency),
		TaxAmount:        domain.FormatMoney(o.TaxAmount, o.Currency),
		TotalAmount:      domain.FormatMoney(o.TotalAmount, o.Currency),
		Currency:         o.Currency,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		OrderStatus:      string(o.OrderStatus),
		ShippingOption:   string(o.ShippingOption),
		ShippingAddress:  o.ShippingAddress,
		Customer:         o.Customer,
		GatewayReference: o.GatewayReference,
		Items:            items,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}
