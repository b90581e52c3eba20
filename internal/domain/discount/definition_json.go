package discount

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/jsonutil"
)

// Decode reads a definition object. Unknown keys are skipped. Active
// defaults to true when the key is absent.
func (def *Definition) Decode(d *jx.Decoder) error {
	def.Active = true
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			def.Code, err = jsonutil.ReadString(d)
		case "kind":
			var k string
			k, err = jsonutil.ReadString(d)
			def.Kind = Kind(k)
		case "value":
			var v decimal.NullDecimal
			v, err = jsonutil.ReadDecimal(d)
			def.Value = v.Decimal
		case "max_discount":
			def.MaxDiscount, err = jsonutil.ReadDecimal(d)
		case "min_total":
			def.MinTotal, err = jsonutil.ReadDecimal(d)
		case "rules":
			err = def.Rules.Decode(d)
		case "exclusive":
			def.Exclusive, err = d.Bool()
		case "auto_apply":
			def.AutoApply, err = d.Bool()
		case "active":
			def.Active, err = d.Bool()
		case "once_per_customer":
			def.OncePerCustomer, err = d.Bool()
		case "category":
			def.Category, err = jsonutil.ReadString(d)
		case "valid_from":
			def.ValidFrom, err = jsonutil.ReadTime(d)
		case "valid_until":
			def.ValidUntil, err = jsonutil.ReadEndTime(d)
		case "description":
			def.Description, err = jsonutil.ReadString(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		return nil
	})
}

// Encode writes every stored field of def. Description is written as stored,
// not rendered.
func (def Definition) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(def.Code)
	e.FieldStart("kind")
	e.Str(string(def.Kind))
	e.FieldStart("value")
	e.Num(jx.Num(def.Value.String()))
	e.FieldStart("max_discount")
	jsonutil.WriteNullDecimal(e, def.MaxDiscount)
	e.FieldStart("min_total")
	jsonutil.WriteNullDecimal(e, def.MinTotal)
	e.FieldStart("rules")
	def.Rules.Encode(e)
	e.FieldStart("exclusive")
	e.Bool(def.Exclusive)
	e.FieldStart("auto_apply")
	e.Bool(def.AutoApply)
	e.FieldStart("active")
	e.Bool(def.Active)
	e.FieldStart("once_per_customer")
	e.Bool(def.OncePerCustomer)
	e.FieldStart("category")
	e.Str(def.Category)
	e.FieldStart("valid_from")
	jsonutil.WriteTime(e, def.ValidFrom)
	e.FieldStart("valid_until")
	jsonutil.WriteTime(e, def.ValidUntil)
	e.FieldStart("description")
	e.Str(def.Description)
	e.ObjEnd()
}
