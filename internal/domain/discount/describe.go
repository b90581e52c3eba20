package discount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Describe renders a short human-readable summary of a definition, as shown
// next to the code in the billing form. An explicit Description wins.
func Describe(def Definition) string {
	if def.Description != "" {
		return def.Description
	}

	switch def.Kind {
	case KindFlat:
		s := "Flat " + rupees(def.Value) + " off"
		if positive(def.MinTotal) {
			s += " on min " + rupees(def.MinTotal.Decimal)
		}
		return s
	case KindPercentage:
		s := def.Value.String() + "% off"
		if positive(def.MaxDiscount) {
			s += " (max " + rupees(def.MaxDiscount.Decimal) + ")"
		}
		return s
	case KindBuyXGetY:
		s := fmt.Sprintf("Buy %d Get %d", def.Rules.Buy(), def.Rules.Get())
		if def.Rules.Category != "" {
			s += " on " + def.Rules.Category
		}
		return s
	case KindFixedPrice:
		s := "Fixed total " + rupees(orZero(def.Rules.FixedTotal))
		if def.Rules.Category != "" {
			s += " for " + def.Rules.Category
		}
		return s
	case KindConditional:
		s := rupees(def.conditionalValue()) + " off"
		if minTotal := def.conditionalMin(); minTotal.IsPositive() {
			s += " on min " + rupees(minTotal)
		}
		return s
	default:
		return string(def.Kind)
	}
}

func rupees(d decimal.Decimal) string {
	return "₹" + d.String()
}

func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}
