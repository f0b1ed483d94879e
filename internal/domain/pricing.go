package domain

import "math"

// TaxRate is the flat tax applied to order subtotals.
const TaxRate = 0.18

// DiscountedPrice returns the effective unit price after the product's
// percentage discount, rounded to the nearest minor unit. Discounts outside
// [0, 100) are ignored.
func (p Product) DiscountedPrice() int64 {
	if p.DiscountPercent <= 0 || p.DiscountPercent >= 100 {
		return p.Price
	}
	discounted := float64(p.Price) * (1 - p.DiscountPercent/100)
	return int64(math.Round(discounted))
}

// TaxOn computes the flat-rate tax for a subtotal, rounded to the nearest
// minor unit.
func TaxOn(subtotal int64) int64 {
	return int64(math.Round(float64(subtotal) * TaxRate))
}

// ComputeOrderTotals rolls up line subtotals into order totals. The invariant
// total = subtotal + shipping + tax - discount holds by construction.
func ComputeOrderTotals(items []OrderLineItem, shipping, discount int64) OrderTotals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Subtotal
	}
	tax := TaxOn(subtotal)
	return OrderTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal + shipping + tax - discount,
	}
}
