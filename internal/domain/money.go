package domain

import "fmt"

// Paise is a currency amount in integer paise (1/100 INR). Totals derived
// from cart contents stay exact; there is no float money anywhere.
type Paise int64

// TaxRateBP is the flat GST rate in basis points (18%).
const TaxRateBP = 1800

// Tax returns the rounded 18% tax on the amount.
func (p Paise) Tax() Paise {
	return (p*TaxRateBP + 5000) / 10000
}

// Rupees formats the amount as whole rupees and paise, e.g. "1300.00".
func (p Paise) Rupees() string {
	return fmt.Sprintf("%d.%02d", p/100, p%100)
}
