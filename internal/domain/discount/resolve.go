package discount

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/domain/pricing"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Resolve returns the overall discount for the cart given the selected codes.
//
// Only selected, active definitions count. When any of them is exclusive the
// largest exclusive value wins and every non-exclusive selection is ignored.
// Otherwise the values are summed. The result is clamped to the cart total.
func Resolve(items []pricing.LineItem, selected []string, defs []Definition) decimal.Decimal {
	if len(selected) == 0 || len(defs) == 0 {
		return zero
	}

	var kept, exclusive []Definition
	for _, def := range defs {
		if !def.Active || !slices.Contains(selected, def.Code) {
			continue
		}
		kept = append(kept, def)
		if def.Exclusive {
			exclusive = append(exclusive, def)
		}
	}
	if len(kept) == 0 {
		return zero
	}

	total := zero
	if len(exclusive) > 0 {
		for i, def := range exclusive {
			v := ValueOf(def, items)
			if i == 0 || v.GreaterThan(total) {
				total = v
			}
		}
	} else {
		for _, def := range kept {
			total = total.Add(ValueOf(def, items))
		}
	}

	cart := pricing.CartTotal(items, nil)
	return pricing.Round2(decimal.Min(floorAtZero(total), cart))
}

// ValueOf returns the discount a single definition grants on the cart,
// capped by the definition's MaxDiscount. Unknown kinds are worth zero.
func ValueOf(def Definition, items []pricing.LineItem) decimal.Decimal {
	var v decimal.Decimal
	switch def.Kind {
	case KindFlat:
		v = def.Value
	case KindPercentage:
		v = pricing.Round2(pricing.CartTotal(items, nil).Mul(def.Value).Div(hundred))
	case KindBuyXGetY:
		v = valueBuyXGetY(def.Rules, items)
	case KindFixedPrice:
		sum := pricing.CartTotal(items, inCategory(def.Rules.Category))
		v = pricing.Round2(floorAtZero(sum.Sub(orZero(def.Rules.FixedTotal))))
	case KindConditional:
		if pricing.CartTotal(items, nil).LessThan(def.conditionalMin()) {
			return zero
		}
		v = def.conditionalValue()
	default:
		return zero
	}
	return floorAtZero(capAt(v, def.MaxDiscount))
}

// unitRun is a group of units sharing one price.
type unitRun struct {
	price decimal.Decimal
	count int64
}

// valueBuyXGetY makes the cheapest units free: Get free units for every
// complete block of Buy+Get units in the eligible set. Units are counted per
// item so large quantities never expand into per-unit lists.
func valueBuyXGetY(r Rules, items []pricing.LineItem) decimal.Decimal {
	var (
		runs  []unitRun
		total int64
	)
	for _, item := range items {
		if r.Category != "" && item.Category != r.Category {
			continue
		}
		price, ok := pricing.UnitPrice(item)
		if !ok {
			continue
		}
		runs = append(runs, unitRun{price: price, count: int64(item.Quantity)})
		total += int64(item.Quantity)
	}

	block := int64(r.Buy()) + int64(r.Get())
	if total < block {
		return zero
	}
	slices.SortStableFunc(runs, func(a, b unitRun) int { return a.price.Cmp(b.price) })

	free := (total / block) * int64(r.Get())
	sum := zero
	for _, run := range runs {
		if free == 0 {
			break
		}
		n := min(run.count, free)
		sum = sum.Add(run.price.Mul(decimal.NewFromInt(n)))
		free -= n
	}
	return pricing.Round2(sum)
}

func (d Definition) conditionalMin() decimal.Decimal {
	if d.Rules.MinTotal.Valid && !d.Rules.MinTotal.Decimal.IsZero() {
		return d.Rules.MinTotal.Decimal
	}
	return orZero(d.MinTotal)
}

func (d Definition) conditionalValue() decimal.Decimal {
	if d.Rules.Value.Valid && !d.Rules.Value.Decimal.IsZero() {
		return d.Rules.Value.Decimal
	}
	return d.Value
}

func inCategory(category string) func(pricing.LineItem) bool {
	if category == "" {
		return nil
	}
	return func(item pricing.LineItem) bool { return item.Category == category }
}

// capAt applies an optional upper bound. A null bound leaves v unchanged.
func capAt(v decimal.Decimal, bound decimal.NullDecimal) decimal.Decimal {
	if !bound.Valid {
		return v
	}
	return decimal.Min(v, bound.Decimal)
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return zero
	}
	return d.Decimal
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
