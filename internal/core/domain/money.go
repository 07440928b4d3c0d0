package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencyScale = map[string]int32{
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"JOD": 3,
	"JPY": 0,
}

// CurrencyScale returns the number of minor-unit digits for an ISO 4217 code.
func CurrencyScale(currency string) int32 {
	if scale, ok := currencyScale[strings.ToUpper(currency)]; ok {
		return scale
	}
	return 2
}

// RoundMoney rounds half away from zero to the currency's minor unit.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(CurrencyScale(currency))
}

// FormatMoney renders the amount with exactly the currency's minor-unit digits.
func FormatMoney(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(CurrencyScale(currency))
}
