package pricing

import "github.com/shopspring/decimal"

// Totals holds the bill-level figures produced by Aggregate.
type Totals struct {
	ItemsSubtotal     decimal.Decimal
	ItemDiscountTotal decimal.Decimal
	PreOverallTaxable decimal.Decimal
	OverallDiscount   decimal.Decimal
	TaxableTotal      decimal.Decimal
	TaxTotal          decimal.Decimal
	GrandTotal        decimal.Decimal
}

// DiscountTotal is the sum of item-level and overall discounts.
func (t Totals) DiscountTotal() decimal.Decimal {
	return t.ItemDiscountTotal.Add(t.OverallDiscount)
}

// Aggregate combines priced items and the resolved overall discount into
// bill totals.
//
// The overall discount reduces the taxable base, and tax is then
// re-computed per item on that item's proportional share of the reduced base
// using the item's own rate. An empty cart yields all-zero totals.
func Aggregate(items []LineItem, overallDiscount decimal.Decimal) Totals {
	priced := make([]ItemPrice, len(items))
	base, itemDiscount, withCharges := zero, zero, zero
	for i, item := range items {
		p := PriceItem(item)
		priced[i] = p
		base = base.Add(p.Base)
		itemDiscount = itemDiscount.Add(p.ItemDiscount)
		withCharges = withCharges.Add(p.WithCharges)
	}

	preOverall := Round2(withCharges)
	overall := Round2(floorAtZero(overallDiscount))
	taxable := floorAtZero(Round2(preOverall.Sub(overall)))

	tax := zero
	if !preOverall.IsZero() {
		for i, item := range items {
			share := priced[i].WithCharges.Div(preOverall)
			reduced := taxable.Mul(share)
			tax = tax.Add(Round2(reduced.Mul(item.TaxRate).Div(hundred)))
		}
	}
	tax = Round2(tax)

	return Totals{
		ItemsSubtotal:     Round2(base),
		ItemDiscountTotal: Round2(itemDiscount),
		PreOverallTaxable: preOverall,
		OverallDiscount:   overall,
		TaxableTotal:      taxable,
		TaxTotal:          tax,
		GrandTotal:        Round2(taxable.Add(tax)),
	}
}
