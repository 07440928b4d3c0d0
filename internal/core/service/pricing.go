package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/port"
)

// PricingPolicy holds the storefront's shipping and VAT rules.
// With ChargeTax unset, VAT is informational and prices are tax inclusive.
type PricingPolicy struct {
	DeliveryFee decimal.Decimal
	VATRate     decimal.Decimal
	ChargeTax   bool
}

type Pricer struct {
	catalog port.CatalogRepository
	policy  PricingPolicy
}

func NewPricer(catalog port.CatalogRepository, policy PricingPolicy) *Pricer {
	return &Pricer{catalog: catalog, policy: policy}
}

// Price turns cart lines into snapshotted line items and order totals.
// The catalog is only read; stock is checked but not reserved.
func (p *Pricer) Price(ctx context.Context, items []domain.CartItem, option domain.ShippingOption) (domain.PricedOrder, error) {
	if len(items) == 0 {
		return domain.PricedOrder{}, domain.ErrEmptyCart
	}

	merged, err := mergeCartItems(items)
	if err != nil {
		return domain.PricedOrder{}, err
	}

	lines := make([]domain.LineItem, 0, len(merged))
	currency := ""
	subtotal := decimal.Zero

	for _, item := range merged {
		product, err := p.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return domain.PricedOrder{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
			}
			return domain.PricedOrder{}, fmt.Errorf("lookup product %s: %w", item.ProductID, err)
		}

		productCurrency := strings.ToUpper(product.Currency)
		if currency == "" {
			currency = productCurrency
		} else if productCurrency != currency {
			return domain.PricedOrder{}, fmt.Errorf("%w: %s is priced in %s, cart is %s",
				domain.ErrMixedCurrency, product.ID, productCurrency, currency)
		}

		if product.Stock < item.Quantity {
			return domain.PricedOrder{}, fmt.Errorf("%w: %s has %d, requested %d",
				domain.ErrInsufficientStock, product.ID, product.Stock, item.Quantity)
		}

		line := domain.LineItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			Currency:    productCurrency,
		}
		lines = append(lines, line)
		subtotal = subtotal.Add(line.LineTotal())
	}

	shipping := decimal.Zero
	if option == domain.ShippingDelivery {
		shipping = p.policy.DeliveryFee
	}

	subtotal = domain.RoundMoney(subtotal, currency)
	shipping = domain.RoundMoney(shipping, currency)
	tax := domain.RoundMoney(subtotal.Add(shipping).Mul(p.policy.VATRate), currency)

	total := subtotal.Add(shipping)
	if p.policy.ChargeTax {
		total = total.Add(tax)
	}

	return domain.PricedOrder{
		Items:          lines,
		Currency:       currency,
		ShippingOption: option,
		Subtotal:       subtotal,
		ShippingCost:   shipping,
		Tax:            tax,
		Total:          total,
	}, nil
}

// mergeCartItems folds repeated product IDs into one line, keeping first-seen order.
func mergeCartItems(items []domain.CartItem) ([]domain.CartItem, error) {
	index := make(map[string]int, len(items))
	merged := make([]domain.CartItem, 0, len(items))

	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > domain.MaxLineQuantity {
			return nil, fmt.Errorf("%w: %s has quantity %d", domain.ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: product id is required", domain.ErrValidation)
		}
		if i, ok := index[id]; ok {
			if merged[i].Quantity > domain.MaxLineQuantity-item.Quantity {
				return nil, fmt.Errorf("%w: %s exceeds %d in total", domain.ErrInvalidQuantity, id, domain.MaxLineQuantity)
			}
			merged[i].Quantity += item.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, domain.CartItem{ProductID: id, Quantity: item.Quantity})
	}

	return merged, nil
}
