package discount

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks an admin-supplied definition. Every failure wraps
// ErrInvalidDefinition.
func Validate(def *Definition) error {
	if err := validate.Struct(def); err != nil {
		return errors.Wrap(ErrInvalidDefinition, err.Error())
	}
	if strings.ContainsAny(def.Code, " \t\n") {
		return errors.Wrap(ErrInvalidDefinition, "code must not contain whitespace")
	}
	if !slices.Contains(Kinds, def.Kind) {
		return errors.Wrapf(ErrInvalidDefinition, "unknown kind %q", def.Kind)
	}
	if def.Value.IsNegative() {
		return errors.Wrap(ErrInvalidDefinition, "value must not be negative")
	}
	if def.Kind == KindPercentage && def.Value.GreaterThan(hundred) {
		return errors.Wrap(ErrInvalidDefinition, "percentage must not exceed 100")
	}
	for name, d := range map[string]decimal.NullDecimal{
		"max discount":      def.MaxDiscount,
		"min total":         def.MinTotal,
		"rules fixed total": def.Rules.FixedTotal,
		"rules min total":   def.Rules.MinTotal,
		"rules value":       def.Rules.Value,
	} {
		if d.Valid && d.Decimal.IsNegative() {
			return errors.Wrapf(ErrInvalidDefinition, "%s must not be negative", name)
		}
	}
	if (def.Rules.BuyQty != nil && *def.Rules.BuyQty < 0) || (def.Rules.GetQty != nil && *def.Rules.GetQty < 0) {
		return errors.Wrap(ErrInvalidDefinition, "rule quantities must not be negative")
	}
	if def.ValidFrom != nil && def.ValidUntil != nil && def.ValidUntil.Before(*def.ValidFrom) {
		return errors.Wrap(ErrInvalidDefinition, "valid until must not precede valid from")
	}
	return nil
}
