package flows

import "github.com/shopspring/decimal"

// CheckoutLine is one cart entry as priced at checkout time.
type CheckoutLine struct {
	Item      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals holds the monetary summary of a cart. Each field is rounded to two
// places on its own from the exact sums.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// LineAmount returns price x quantity without rounding.
func LineAmount(line CheckoutLine) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// ComputeTotals sums the cart and applies rate as tax.
func ComputeTotals(lines []CheckoutLine, rate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineAmount(line))
	}
	tax := subtotal.Mul(rate)
	total := subtotal.Add(tax)

	return Totals{
		Subtotal: subtotal.Round(2),
		Tax:      tax.Round(2),
		Total:    total.Round(2),
	}
}
