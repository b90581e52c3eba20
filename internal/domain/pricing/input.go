package pricing

import "github.com/shopspring/decimal"

// DefaultTaxRate is the GST percentage applied when an item does not carry one.
var DefaultTaxRate = decimal.NewFromInt(12)

// Input is a partially filled line item as it arrives from a form or an API
// request. Unset fields are filled by NewLineItem.
type Input struct {
	Quantity         *int
	UnitPrice        decimal.NullDecimal
	DiscountPercent  decimal.NullDecimal
	StitchingCharge  decimal.NullDecimal
	AlterationCharge decimal.NullDecimal
	TaxRate          decimal.NullDecimal
	Category         string
}

// NewLineItem fills every missing field of in with its default: quantity 1,
// tax rate DefaultTaxRate and zero for all other amounts. Stitching and
// alteration charges are folded into a single surcharge.
func NewLineItem(in Input) LineItem {
	qty := 1
	if in.Quantity != nil && *in.Quantity != 0 {
		qty = *in.Quantity
	}

	taxRate := DefaultTaxRate
	if in.TaxRate.Valid {
		taxRate = in.TaxRate.Decimal
	}

	return LineItem{
		Quantity:        qty,
		UnitPrice:       orZero(in.UnitPrice),
		DiscountPercent: orZero(in.DiscountPercent),
		Surcharge:       orZero(in.StitchingCharge).Add(orZero(in.AlterationCharge)),
		TaxRate:         taxRate,
		Category:        in.Category,
	}
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return zero
	}
	return d.Decimal
}
