// Package jsonutil holds jx helpers shared by the HTTP codec, the storage
// layer and the import tool.
package jsonutil

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ReadDecimal reads a decimal that may be encoded as a JSON number, a
// numeric string or null. Null and the empty string yield an invalid
// NullDecimal.
func ReadDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.NullDecimal{}, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		if s == "" {
			return decimal.NullDecimal{}, nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}, errors.Wrapf(err, "parse decimal %q", s)
		}
		return decimal.NewNullDecimal(v), nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.NullDecimal{}, errors.Wrapf(err, "parse decimal %q", n.String())
		}
		return decimal.NewNullDecimal(v), nil
	default:
		return decimal.NullDecimal{}, errors.Errorf("unexpected %s, expected decimal", d.Next())
	}
}

// ReadIntPtr reads an optional integer; null yields nil.
func ReadIntPtr(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteDecimal writes d as a JSON number with two fraction digits.
func WriteDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

// WriteNullDecimal writes d, or null when it is not set.
func WriteNullDecimal(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	e.Num(jx.Num(d.Decimal.String()))
}

// ReadString reads a string that may be null; null yields "".
func ReadString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// ReadTime reads an RFC 3339 timestamp or a YYYY-MM-DD date. Null and the
// empty string yield nil.
func ReadTime(d *jx.Decoder) (*time.Time, error) {
	return readTime(d, false)
}

// ReadEndTime is ReadTime for inclusive upper bounds: a bare date yields the
// last instant of that day in UTC, at microsecond precision.
func ReadEndTime(d *jx.Decoder) (*time.Time, error) {
	return readTime(d, true)
}

func readTime(d *jx.Decoder, endOfDay bool) (*time.Time, error) {
	s, err := ReadString(d)
	if err != nil || s == "" {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse time %q", s)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Microsecond)
	}
	return &t, nil
}

// WriteTime writes t in RFC 3339 UTC with any fractional seconds, or null
// when t is nil.
func WriteTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339Nano))
}
