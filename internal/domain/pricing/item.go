// Package pricing implements line-item pricing and bill-level aggregation.
//
// Every function in this package is pure: identical inputs always produce
// identical outputs, and nothing here performs I/O. Intermediate amounts are
// rounded to two decimal places at each step so the figures match what is
// persisted on the bill ledger.
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// LineItem is a fully defaulted line on a bill. Use NewLineItem to build one
// from partially filled input.
type LineItem struct {
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	// Surcharge is added after the item discount and before tax. It is taxed.
	Surcharge decimal.Decimal
	TaxRate   decimal.Decimal
	Category  string
}

// ItemPrice holds the computed amounts for a single line item.
type ItemPrice struct {
	Base          decimal.Decimal
	ItemDiscount  decimal.Decimal
	AfterDiscount decimal.Decimal
	Surcharge     decimal.Decimal
	WithCharges   decimal.Decimal
	TaxAmount     decimal.Decimal
	// Subtotal is the post-discount, pre-tax amount including surcharges.
	Subtotal decimal.Decimal
	Total    decimal.Decimal
}

// PriceItem computes base, discount, tax and total for a line item.
func PriceItem(item LineItem) ItemPrice {
	base := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	itemDiscount := Round2(base.Mul(item.DiscountPercent).Div(hundred))
	afterDiscount := base.Sub(itemDiscount)
	withCharges := afterDiscount.Add(item.Surcharge)
	tax := Round2(withCharges.Mul(item.TaxRate).Div(hundred))

	return ItemPrice{
		Base:          base,
		ItemDiscount:  itemDiscount,
		AfterDiscount: afterDiscount,
		Surcharge:     item.Surcharge,
		WithCharges:   withCharges,
		TaxAmount:     tax,
		Subtotal:      withCharges,
		Total:         Round2(withCharges.Add(tax)),
	}
}

// UnitPrice returns the post-discount, post-charge price of a single unit
// of the item. Items without units have no unit price.
func UnitPrice(item LineItem) (decimal.Decimal, bool) {
	if item.Quantity <= 0 {
		return zero, false
	}
	qty := decimal.NewFromInt(int64(item.Quantity))
	return PriceItem(item).WithCharges.Div(qty), true
}

// CartTotal returns the sum of WithCharges across items accepted by keep.
// A nil keep accepts every item.
func CartTotal(items []LineItem, keep func(LineItem) bool) decimal.Decimal {
	sum := zero
	for _, item := range items {
		if keep != nil && !keep(item) {
			continue
		}
		sum = sum.Add(PriceItem(item).WithCharges)
	}
	return sum
}

// Round2 rounds to currency precision, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
