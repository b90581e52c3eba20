package handler

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/domain/bill"
	"github.com/xenking/atelier-billing/internal/domain/customer"
	"github.com/xenking/atelier-billing/internal/domain/discount"
	"github.com/xenking/atelier-billing/internal/domain/pricing"
	"github.com/xenking/atelier-billing/internal/domain/product"
	"github.com/xenking/atelier-billing/internal/jsonutil"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("malformed request body")

// readBody decodes r's body with decode. An empty body is left unread so
// callers see their zero values.
func readBody(r *http.Request, decode func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// decodeBody reads r's body as an object and hands each field to fn, which
// must skip unknown keys.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	return readBody(r, func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			return fn(d, string(key))
		})
	})
}

func readStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func readItems(d *jx.Decoder) ([]bill.ItemInput, error) {
	var items []bill.ItemInput
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		in, err := readItem(d)
		if err != nil {
			return err
		}
		items = append(items, in)
		return nil
	})
	return items, err
}

func readItem(d *jx.Decoder) (bill.ItemInput, error) {
	var in bill.ItemInput
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "variant_id":
			in.VariantID, err = jsonutil.ReadString(d)
		case "name":
			in.Name, err = jsonutil.ReadString(d)
		case "code":
			in.Code, err = jsonutil.ReadString(d)
		case "category":
			in.Category, err = jsonutil.ReadString(d)
		case "quantity":
			in.Quantity, err = jsonutil.ReadIntPtr(d)
		case "mrp":
			in.MRP, err = jsonutil.ReadDecimal(d)
		case "discount_percent":
			in.DiscountPercent, err = jsonutil.ReadDecimal(d)
		case "stitching_charge":
			in.StitchingCharge, err = jsonutil.ReadDecimal(d)
		case "alteration_charge":
			in.AlterationCharge, err = jsonutil.ReadDecimal(d)
		case "tax_rate":
			in.TaxRate, err = jsonutil.ReadDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "item %s", key)
		}
		return nil
	})
	return in, err
}

func decodeQuote(r *http.Request) (bill.QuoteRequest, error) {
	var req bill.QuoteRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "items":
			req.Items, err = readItems(d)
		case "discount_codes":
			req.DiscountCodes, err = readStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeSave(r *http.Request) (bill.SaveRequest, error) {
	var req bill.SaveRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "customer_id":
			req.CustomerID, err = jsonutil.ReadString(d)
		case "notes":
			req.Notes, err = jsonutil.ReadString(d)
		case "items":
			req.Items, err = readItems(d)
		case "discount_codes":
			req.DiscountCodes, err = readStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

type createBillRequest struct {
	CustomerID string
	Notes      string
}

func decodeCreateBill(r *http.Request) (createBillRequest, error) {
	var req createBillRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "customer_id":
			req.CustomerID, err = jsonutil.ReadString(d)
		case "notes":
			req.Notes, err = jsonutil.ReadString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeCustomer(r *http.Request) (customer.CreateRequest, error) {
	var req customer.CreateRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "first_name":
			req.FirstName, err = jsonutil.ReadString(d)
		case "last_name":
			req.LastName, err = jsonutil.ReadString(d)
		case "phone":
			req.Phone, err = jsonutil.ReadString(d)
		case "email":
			req.Email, err = jsonutil.ReadString(d)
		case "address":
			req.Address, err = jsonutil.ReadString(d)
		case "notes":
			req.Notes, err = jsonutil.ReadString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// decodeDefinition reads a discount definition. Active defaults to true.
func decodeDefinition(r *http.Request) (discount.Definition, error) {
	def := discount.Definition{Active: true}
	err := readBody(r, def.Decode)
	return def, err
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func field(e *jx.Encoder, name string, fn func()) {
	e.FieldStart(name)
	fn()
}

func strField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func decField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	jsonutil.WriteDecimal(e, v)
}

func timeField(e *jx.Encoder, name string, t *time.Time) {
	e.FieldStart(name)
	jsonutil.WriteTime(e, t)
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

func encodeTotals(e *jx.Encoder, t pricing.Totals) {
	e.ObjStart()
	decField(e, "items_subtotal", t.ItemsSubtotal)
	decField(e, "item_discount_total", t.ItemDiscountTotal)
	decField(e, "pre_overall_taxable", t.PreOverallTaxable)
	decField(e, "overall_discount", t.OverallDiscount)
	decField(e, "discount_total", t.DiscountTotal())
	decField(e, "taxable_total", t.TaxableTotal)
	decField(e, "tax_total", t.TaxTotal)
	decField(e, "grand_total", t.GrandTotal)
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, it bill.Item) {
	e.ObjStart()
	if it.VariantID != "" {
		strField(e, "variant_id", it.VariantID)
	}
	strField(e, "name", it.Name)
	strField(e, "code", it.Code)
	strField(e, "category", it.Category)
	field(e, "quantity", func() { e.Int(it.Quantity) })
	decField(e, "mrp", it.MRP)
	decField(e, "discount_percent", it.DiscountPercent)
	decField(e, "stitching_charge", it.StitchingCharge)
	decField(e, "alteration_charge", it.AlterationCharge)
	decField(e, "tax_rate", it.TaxRate)
	decField(e, "discount_total", it.DiscountTotal)
	decField(e, "subtotal", it.Subtotal)
	decField(e, "tax_amount", it.TaxAmount)
	decField(e, "total", it.Total)
	e.ObjEnd()
}

func encodeItems(e *jx.Encoder, items []bill.Item) {
	e.ArrStart()
	for _, it := range items {
		encodeItem(e, it)
	}
	e.ArrEnd()
}

func encodeQuote(e *jx.Encoder, q *bill.Quote) {
	e.ObjStart()
	field(e, "items", func() { encodeItems(e, q.Items) })
	field(e, "discount_codes", func() { encodeStrings(e, q.DiscountCodes) })
	field(e, "totals", func() { encodeTotals(e, q.Totals) })
	e.ObjEnd()
}

// encodeBill writes b. Items are omitted for list views.
func encodeBill(e *jx.Encoder, b *bill.Bill, withItems bool) {
	e.ObjStart()
	strField(e, "id", b.ID)
	field(e, "customer_id", func() {
		if b.CustomerID == "" {
			e.Null()
			return
		}
		e.Str(b.CustomerID)
	})
	strField(e, "notes", b.Notes)
	strField(e, "status", string(b.Status))
	field(e, "discount_codes", func() { encodeStrings(e, b.DiscountCodes) })
	if withItems {
		field(e, "items", func() { encodeItems(e, b.Items) })
	}
	field(e, "totals", func() { encodeTotals(e, b.Totals) })
	timeField(e, "created_at", &b.CreatedAt)
	timeField(e, "updated_at", &b.UpdatedAt)
	timeField(e, "finalized_at", b.FinalizedAt)
	e.ObjEnd()
}

func encodeVariant(e *jx.Encoder, v product.Variant) {
	e.ObjStart()
	strField(e, "variant_id", v.ID)
	strField(e, "product_id", v.Product.ID)
	strField(e, "code", v.Product.Code)
	strField(e, "name", v.Product.Name)
	strField(e, "category", v.Product.Category)
	strField(e, "colour", v.Colour)
	strField(e, "size", v.Size)
	field(e, "stock", func() { e.Int(v.Stock) })
	decField(e, "mrp", v.Product.MRP)
	field(e, "tax_rate", func() { jsonutil.WriteNullDecimal(e, v.Product.TaxRate) })
	e.ObjEnd()
}

func encodeCustomer(e *jx.Encoder, c *customer.Customer) {
	e.ObjStart()
	strField(e, "id", c.ID)
	strField(e, "first_name", c.FirstName)
	strField(e, "last_name", c.LastName)
	strField(e, "phone", c.Phone)
	strField(e, "email", c.Email)
	strField(e, "address", c.Address)
	strField(e, "notes", c.Notes)
	timeField(e, "created_at", &c.CreatedAt)
	e.ObjEnd()
}

func encodeDefinition(e *jx.Encoder, def discount.Definition) {
	e.ObjStart()
	strField(e, "code", def.Code)
	strField(e, "kind", string(def.Kind))
	field(e, "value", func() { e.Num(jx.Num(def.Value.String())) })
	field(e, "max_discount", func() { jsonutil.WriteNullDecimal(e, def.MaxDiscount) })
	field(e, "min_total", func() { jsonutil.WriteNullDecimal(e, def.MinTotal) })
	field(e, "rules", func() { def.Rules.Encode(e) })
	field(e, "exclusive", func() { e.Bool(def.Exclusive) })
	field(e, "auto_apply", func() { e.Bool(def.AutoApply) })
	field(e, "active", func() { e.Bool(def.Active) })
	field(e, "once_per_customer", func() { e.Bool(def.OncePerCustomer) })
	strField(e, "category", def.Category)
	timeField(e, "valid_from", def.ValidFrom)
	timeField(e, "valid_until", def.ValidUntil)
	strField(e, "description", discount.Describe(def))
	e.ObjEnd()
}
