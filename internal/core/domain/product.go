package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog's read-only view consumed by checkout.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Currency  string
	Stock     int
	UpdatedAt time.Time
}
