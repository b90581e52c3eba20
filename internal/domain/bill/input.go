package bill

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/domain/pricing"
	"github.com/xenking/atelier-billing/internal/domain/product"
)

// Limits follow the bill_items column types.
const maxQuantity = 100_000

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.RequireFromString("9999999999.99")
)

// ItemInput is a line item as submitted by the billing form. Catalog items
// carry a VariantID and inherit name, code, category, MRP and tax rate from
// the catalog unless overridden; manual items carry those fields directly.
type ItemInput struct {
	VariantID        string
	Name             string
	Code             string
	Category         string
	Quantity         *int
	MRP              decimal.NullDecimal
	DiscountPercent  decimal.NullDecimal
	StitchingCharge  decimal.NullDecimal
	AlterationCharge decimal.NullDecimal
	TaxRate          decimal.NullDecimal
}

// validate rejects negative or oversized amounts and out-of-range
// percentages. Missing values are fine; they are defaulted later.
func (in ItemInput) validate(idx int) error {
	if q := in.Quantity; q != nil && (*q < 0 || *q > maxQuantity) {
		return &InvalidItemError{Index: idx, Field: "quantity", Reason: fmt.Sprintf("must be between 0 and %d", maxQuantity)}
	}
	for _, f := range []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"mrp", in.MRP},
		{"stitching_charge", in.StitchingCharge},
		{"alteration_charge", in.AlterationCharge},
	} {
		if !f.v.Valid {
			continue
		}
		if f.v.Decimal.IsNegative() {
			return &InvalidItemError{Index: idx, Field: f.name, Reason: "must not be negative"}
		}
		if f.v.Decimal.GreaterThan(maxAmount) {
			return &InvalidItemError{Index: idx, Field: f.name, Reason: "exceeds maximum amount"}
		}
	}
	for _, f := range []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"discount_percent", in.DiscountPercent},
		{"tax_rate", in.TaxRate},
	} {
		if f.v.Valid && (f.v.Decimal.IsNegative() || f.v.Decimal.GreaterThan(hundred)) {
			return &InvalidItemError{Index: idx, Field: f.name, Reason: "must be between 0 and 100"}
		}
	}
	return nil
}

// resolveItems validates inputs, fills catalog data and prices every line.
func (s *Service) resolveItems(ctx context.Context, inputs []ItemInput) ([]Item, error) {
	for i, in := range inputs {
		if err := in.validate(i); err != nil {
			return nil, err
		}
	}

	ids := lo.Uniq(lo.FilterMap(inputs, func(in ItemInput, _ int) (string, bool) {
		return in.VariantID, in.VariantID != ""
	}))
	variants := make(map[string]product.Variant, len(ids))
	if len(ids) > 0 {
		fetched, err := s.products.GetVariants(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get variants")
		}
		for _, v := range fetched {
			variants[v.ID] = v
		}
	}

	items := make([]Item, len(inputs))
	gross := decimal.Zero
	for i, in := range inputs {
		if in.VariantID != "" {
			v, ok := variants[in.VariantID]
			if !ok {
				return nil, &VariantNotFoundError{VariantID: in.VariantID}
			}
			in = withCatalog(in, v)
		}
		if !in.TaxRate.Valid {
			in.TaxRate = decimal.NewNullDecimal(s.defaultTaxRate)
		}
		items[i] = priceItem(in)

		// Gross covers the widest stored amount, before any discount.
		gross = gross.Add(items[i].Subtotal).Add(items[i].DiscountTotal).Add(items[i].TaxAmount)
		if gross.GreaterThan(maxAmount) {
			return nil, &InvalidItemError{Index: i, Field: "total", Reason: "exceeds maximum amount"}
		}
	}
	return items, nil
}

func withCatalog(in ItemInput, v product.Variant) ItemInput {
	p := v.Product
	in.Name = lo.CoalesceOrEmpty(in.Name, p.Name)
	in.Code = lo.CoalesceOrEmpty(in.Code, p.Code)
	in.Category = lo.CoalesceOrEmpty(in.Category, p.Category)
	if !in.MRP.Valid {
		in.MRP = decimal.NewNullDecimal(p.MRP)
	}
	if !in.TaxRate.Valid && p.TaxRate.Valid {
		in.TaxRate = p.TaxRate
	}
	return in
}

// priceItem prices a validated input. Amounts are rounded to currency
// precision first so the stored item re-prices to the same result.
func priceItem(in ItemInput) Item {
	stitching := pricing.Round2(in.StitchingCharge.Decimal)
	alteration := pricing.Round2(in.AlterationCharge.Decimal)
	mrp := in.MRP
	if mrp.Valid {
		mrp.Decimal = pricing.Round2(mrp.Decimal)
	}

	li := pricing.NewLineItem(pricing.Input{
		Quantity:         in.Quantity,
		UnitPrice:        mrp,
		DiscountPercent:  in.DiscountPercent,
		StitchingCharge:  decimal.NewNullDecimal(stitching),
		AlterationCharge: decimal.NewNullDecimal(alteration),
		TaxRate:          in.TaxRate,
		Category:         in.Category,
	})
	li.DiscountPercent = pricing.Round2(li.DiscountPercent)
	li.TaxRate = pricing.Round2(li.TaxRate)
	p := pricing.PriceItem(li)

	return Item{
		VariantID:        in.VariantID,
		Name:             in.Name,
		Code:             in.Code,
		Category:         in.Category,
		Quantity:         li.Quantity,
		MRP:              li.UnitPrice,
		DiscountPercent:  li.DiscountPercent,
		StitchingCharge:  stitching,
		AlterationCharge: alteration,
		TaxRate:          li.TaxRate,
		DiscountTotal:    p.ItemDiscount,
		Subtotal:         pricing.Round2(p.Subtotal),
		TaxAmount:        p.TaxAmount,
		Total:            p.Total,
	}
}

func lineItems(items []Item) []pricing.LineItem {
	return lo.Map(items, func(it Item, _ int) pricing.LineItem { return it.LineItem() })
}
