package discount

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/atelier-billing/internal/jsonutil"
)

// Encode writes the rules as a JSON object, omitting unset fields.
func (r Rules) Encode(e *jx.Encoder) {
	e.ObjStart()
	if r.BuyQty != nil {
		e.FieldStart("buy_qty")
		e.Int(*r.BuyQty)
	}
	if r.GetQty != nil {
		e.FieldStart("get_qty")
		e.Int(*r.GetQty)
	}
	if r.Category != "" {
		e.FieldStart("category")
		e.Str(r.Category)
	}
	if r.FixedTotal.Valid {
		e.FieldStart("fixed_total")
		jsonutil.WriteNullDecimal(e, r.FixedTotal)
	}
	if r.MinTotal.Valid {
		e.FieldStart("min_total")
		jsonutil.WriteNullDecimal(e, r.MinTotal)
	}
	if r.Value.Valid {
		e.FieldStart("value")
		jsonutil.WriteNullDecimal(e, r.Value)
	}
	e.ObjEnd()
}

// Decode reads a rules object. Unknown keys are skipped and null yields
// empty rules.
func (r *Rules) Decode(d *jx.Decoder) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "buy_qty":
			r.BuyQty, err = jsonutil.ReadIntPtr(d)
		case "get_qty":
			r.GetQty, err = jsonutil.ReadIntPtr(d)
		case "category":
			if d.Next() == jx.Null {
				return d.Null()
			}
			r.Category, err = d.Str()
		case "fixed_total":
			r.FixedTotal, err = jsonutil.ReadDecimal(d)
		case "min_total":
			r.MinTotal, err = jsonutil.ReadDecimal(d)
		case "value":
			r.Value, err = jsonutil.ReadDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "rules.%s", key)
		}
		return nil
	})
}

// MarshalJSON implements json.Marshaler.
func (r Rules) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	r.Encode(&e)
	return e.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rules) UnmarshalJSON(data []byte) error {
	*r = Rules{}
	if len(data) == 0 {
		return nil
	}
	return r.Decode(jx.DecodeBytes(data))
}
