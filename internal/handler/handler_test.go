package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/atelier-billing/internal/domain/auth"
	"github.com/xenking/atelier-billing/internal/domain/bill"
	"github.com/xenking/atelier-billing/internal/domain/customer"
	"github.com/xenking/atelier-billing/internal/domain/discount"
	"github.com/xenking/atelier-billing/internal/domain/product"
)

// --- Fakes ---

type fakeProducts struct {
	variants []product.Variant
	query    string
	limit    int
}

func (f *fakeProducts) Search(_ context.Context, query string, limit int) ([]product.Variant, error) {
	f.query, f.limit = query, limit
	return f.variants, nil
}

func (f *fakeProducts) GetVariants(_ context.Context, ids []string) ([]product.Variant, error) {
	var out []product.Variant
	for _, v := range f.variants {
		for _, id := range ids {
			if v.ID == id {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

type fakeDiscounts struct {
	defs map[string]discount.Definition
}

func (f *fakeDiscounts) ListActive(context.Context) ([]discount.Definition, error) {
	var out []discount.Definition
	for _, def := range f.defs {
		if def.Active {
			out = append(out, def)
		}
	}
	return out, nil
}

func (f *fakeDiscounts) List(context.Context) ([]discount.Definition, error) {
	var out []discount.Definition
	for _, def := range f.defs {
		out = append(out, def)
	}
	return out, nil
}

func (f *fakeDiscounts) Upsert(_ context.Context, def *discount.Definition) error {
	f.defs[def.Code] = *def
	return nil
}

func (f *fakeDiscounts) Deactivate(_ context.Context, code string) error {
	def, ok := f.defs[code]
	if !ok {
		return discount.ErrNotFound
	}
	def.Active = false
	f.defs[code] = def
	return nil
}

type fakeCustomers struct {
	byID map[string]*customer.Customer
}

func (f *fakeCustomers) Get(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (f *fakeCustomers) FindByPhone(_ context.Context, fragment string, _ int) ([]customer.Customer, error) {
	var out []customer.Customer
	for _, c := range f.byID {
		if strings.Contains(c.Phone, fragment) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCustomers) Create(_ context.Context, c *customer.Customer) error {
	for _, existing := range f.byID {
		if existing.Phone == c.Phone {
			return customer.ErrDuplicatePhone
		}
	}
	cp := *c
	f.byID[c.ID] = &cp
	return nil
}

type fakeBills struct {
	bills   map[string]*bill.Bill
	saveErr error
}

func (f *fakeBills) CreateDraft(_ context.Context, b *bill.Bill) error {
	cp := *b
	f.bills[b.ID] = &cp
	return nil
}

func (f *fakeBills) Get(_ context.Context, id string) (*bill.Bill, error) {
	b, ok := f.bills[id]
	if !ok {
		return nil, bill.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBills) List(context.Context, bill.ListFilter) ([]bill.Bill, error) {
	var out []bill.Bill
	for _, b := range f.bills {
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeBills) Save(_ context.Context, b *bill.Bill) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	stored, ok := f.bills[b.ID]
	if !ok {
		return bill.ErrNotFound
	}
	if stored.Finalized() {
		return bill.ErrFinalized
	}
	cp := *b
	f.bills[b.ID] = &cp
	return nil
}

func (f *fakeBills) CountFinalizedWithCode(context.Context, string, string, string) (int, error) {
	return 0, nil
}

type fakeAPIKeys struct {
	byHash map[string]*auth.APIKeyInfo
	err    error
}

func (f *fakeAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.byHash[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return info, nil
}

func (f *fakeAPIKeys) Create(_ context.Context, info *auth.APIKeyInfo) error {
	f.byHash[info.KeyHash] = info
	return nil
}

// --- Fixture ---

var pepper = []byte("test-pepper")

const (
	cashierKey = "cashier-key"
	adminKey   = "admin-key"
	viewerKey  = "viewer-key"
)

type fixture struct {
	products  *fakeProducts
	discounts *fakeDiscounts
	customers *fakeCustomers
	bills     *fakeBills
	keys      *fakeAPIKeys
	router    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: &fakeProducts{variants: []product.Variant{{
			ID: "v-lehenga", Colour: "Maroon", Size: "M", Stock: 2,
			Product: product.Product{ID: "p1", Code: "LEH-7", Name: "Bridal Lehenga", Category: "Lehenga", MRP: decimal.NewFromInt(1000)},
		}}},
		discounts: &fakeDiscounts{defs: map[string]discount.Definition{}},
		customers: &fakeCustomers{byID: map[string]*customer.Customer{}},
		bills:     &fakeBills{bills: map[string]*bill.Bill{}},
	}
	keys := &fakeAPIKeys{byHash: map[string]*auth.APIKeyInfo{}}
	for name, scopes := range map[string][]string{
		cashierKey: {auth.ScopeBilling},
		adminKey:   {auth.ScopeBilling, auth.ScopeDiscounts},
		viewerKey:  nil,
	} {
		hash := auth.HashKey(pepper, name)
		keys.byHash[hash] = &auth.APIKeyInfo{ID: name, KeyHash: hash, Name: name, Scopes: scopes}
	}

	bills, err := bill.NewService(bill.Config{}, f.products, f.discounts, f.customers, f.bills,
		noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	h := NewHandler(f.products, f.discounts, customer.NewService(f.customers), bills)
	f.keys = keys

	r := chi.NewRouter()
	r.Mount("/api", h.Routes(NewSecurity(keys, pepper)))
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, key, method, path, body string) (int, map[string]any) {
	t.Helper()
	code, raw := f.doRaw(t, key, method, path, body)
	if raw == "" {
		return code, nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out), raw)
	return code, out
}

func (f *fixture) doList(t *testing.T, key, path string) (int, []map[string]any) {
	t.Helper()
	code, raw := f.doRaw(t, key, http.MethodGet, path, "")
	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out), raw)
	return code, out
}

func (f *fixture) doRaw(t *testing.T, key, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

func totals(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	tt, ok := body["totals"].(map[string]any)
	require.True(t, ok, "totals missing in %v", body)
	return tt
}

// --- Tests ---

func TestAuth(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		key    string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "missing key", method: http.MethodGet, path: "/api/products", want: http.StatusUnauthorized},
		{name: "unknown key", key: "nope", method: http.MethodGet, path: "/api/products", want: http.StatusUnauthorized},
		{name: "any key reads catalog", key: viewerKey, method: http.MethodGet, path: "/api/products", want: http.StatusOK},
		{name: "billing scope required", key: viewerKey, method: http.MethodGet, path: "/api/bills", want: http.StatusForbidden},
		{name: "cashier lists bills", key: cashierKey, method: http.MethodGet, path: "/api/bills", want: http.StatusOK},
		{name: "discount write scope required", key: cashierKey, method: http.MethodDelete, path: "/api/discounts/X", want: http.StatusForbidden},
		{name: "admin writes discounts", key: adminKey, method: http.MethodPut, path: "/api/discounts/FLAT50", body: `{"kind":"flat","value":50}`, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := f.doRaw(t, tt.key, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestAuth_KeyStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.keys.err = errors.New("connection refused")

	code, body := f.do(t, cashierKey, http.MethodGet, "/api/products", "")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "authentication unavailable", body["message"])
}

func TestAuth_LegacyHeader(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("api_key", viewerKey)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSearchProducts(t *testing.T) {
	f := newFixture(t)

	code, list := f.doList(t, viewerKey, "/api/products?q=%20lehenga%20&limit=500")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "lehenga", f.products.query)
	assert.Equal(t, maxSearchLimit, f.products.limit)
	require.Len(t, list, 1)
	assert.Equal(t, "v-lehenga", list[0]["variant_id"])
	assert.Equal(t, "Bridal Lehenga", list[0]["name"])
	assert.EqualValues(t, 1000, list[0]["mrp"])
	assert.Nil(t, list[0]["tax_rate"])
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	f.discounts.defs["FLAT100"] = discount.Definition{
		Code: "FLAT100", Kind: discount.KindFlat, Value: decimal.NewFromInt(100), Active: true, AutoApply: true,
	}

	code, body := f.do(t, cashierKey, http.MethodPost, "/api/quote",
		`{"items":[{"variant_id":"v-lehenga"},{"name":"Fall & pico","mrp":"0","stitching_charge":50.5,"unknown":true}],"discount_codes":null}`)

	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []any{"FLAT100"}, body["discount_codes"])
	tt := totals(t, body)
	assert.EqualValues(t, 1000, tt["items_subtotal"])
	assert.EqualValues(t, 1050.5, tt["pre_overall_taxable"])
	assert.EqualValues(t, 100, tt["overall_discount"])
	assert.EqualValues(t, 950.5, tt["taxable_total"])
	assert.EqualValues(t, 114.06, tt["tax_total"])
	assert.EqualValues(t, 1064.56, tt["grand_total"])

	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "Bridal Lehenga", items[0].(map[string]any)["name"])
}

func TestQuote_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed json", body: `{"items":[`, want: http.StatusBadRequest},
		{name: "wrong type", body: `{"items":[{"quantity":"two"}]}`, want: http.StatusBadRequest},
		{name: "negative mrp", body: `{"items":[{"name":"x","mrp":-1}]}`, want: http.StatusUnprocessableEntity},
		{name: "discount over 100", body: `{"items":[{"name":"x","mrp":10,"discount_percent":101}]}`, want: http.StatusUnprocessableEntity},
		{name: "unknown variant", body: `{"items":[{"variant_id":"ghost"}]}`, want: http.StatusUnprocessableEntity},
		{name: "empty body", body: ``, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.doRaw(t, cashierKey, http.MethodPost, "/api/quote", tt.body)
			assert.Equal(t, tt.want, code, body)
		})
	}
}

func TestBillLifecycle(t *testing.T) {
	f := newFixture(t)

	code, created := f.do(t, cashierKey, http.MethodPost, "/api/bills", `{"notes":"wedding order"}`)
	require.Equal(t, http.StatusCreated, code)
	id := created["id"].(string)
	assert.Equal(t, "draft", created["status"])
	assert.Nil(t, created["customer_id"])
	assert.Equal(t, []any{}, created["items"])

	code, body := f.do(t, cashierKey, http.MethodPost, "/api/bills/"+id+"/finalize", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code, body)

	code, saved := f.do(t, cashierKey, http.MethodPut, "/api/bills/"+id,
		`{"notes":"wedding order","items":[{"variant_id":"v-lehenga","quantity":2,"discount_percent":10}]}`)
	require.Equal(t, http.StatusOK, code, saved)
	assert.EqualValues(t, 2016, totals(t, saved)["grand_total"])

	code, final := f.do(t, cashierKey, http.MethodPost, "/api/bills/"+id+"/finalize", "")
	require.Equal(t, http.StatusOK, code, final)
	assert.Equal(t, "finalized", final["status"])
	assert.NotNil(t, final["finalized_at"])

	code, body = f.do(t, cashierKey, http.MethodPut, "/api/bills/"+id, `{"items":[]}`)
	assert.Equal(t, http.StatusConflict, code, body)

	code, got := f.do(t, cashierKey, http.MethodGet, "/api/bills/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "finalized", got["status"])
	assert.Len(t, got["items"], 1)

	code, list := f.doList(t, cashierKey, "/api/bills")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.NotContains(t, list[0], "items")
}

func TestBill_Errors(t *testing.T) {
	f := newFixture(t)
	code, created := f.do(t, cashierKey, http.MethodPost, "/api/bills", "")
	require.Equal(t, http.StatusCreated, code)
	id := created["id"].(string)

	t.Run("unknown bill", func(t *testing.T) {
		code, body := f.do(t, cashierKey, http.MethodGet, "/api/bills/missing", "")
		assert.Equal(t, http.StatusNotFound, code)
		assert.EqualValues(t, 404, body["code"])
	})

	t.Run("unknown customer", func(t *testing.T) {
		code, _ := f.do(t, cashierKey, http.MethodPost, "/api/bills", `{"customer_id":"ghost"}`)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("bad status filter", func(t *testing.T) {
		code, _ := f.doRaw(t, cashierKey, http.MethodGet, "/api/bills?status=open", "")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("persistence failure", func(t *testing.T) {
		f.bills.saveErr = errors.New("connection reset")
		defer func() { f.bills.saveErr = nil }()

		code, body := f.do(t, cashierKey, http.MethodPut, "/api/bills/"+id, `{"items":[{"name":"x","mrp":10}]}`)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "could not save bill, try saving again", body["message"])
	})

	t.Run("unknown route", func(t *testing.T) {
		code, _ := f.doRaw(t, cashierKey, http.MethodGet, "/api/nope", "")
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestCustomers(t *testing.T) {
	f := newFixture(t)

	code, created := f.do(t, cashierKey, http.MethodPost, "/api/customers",
		`{"first_name":"Meera","phone":"+91 98765 43210","email":"meera@example.com"}`)
	require.Equal(t, http.StatusCreated, code, created)
	assert.Equal(t, "+919876543210", created["phone"])
	id := created["id"].(string)
	assert.Len(t, id, 26)

	code, _ = f.do(t, cashierKey, http.MethodPost, "/api/customers", `{"phone":"+919876543210"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(t, cashierKey, http.MethodPost, "/api/customers", `{"phone":"12345"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, list := f.doList(t, cashierKey, "/api/customers?phone=98765")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])

	code, got := f.do(t, cashierKey, http.MethodGet, "/api/customers/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Meera", got["first_name"])

	code, billBody := f.do(t, cashierKey, http.MethodPost, "/api/bills", `{"customer_id":"`+id+`"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, id, billBody["customer_id"])
}

func TestDiscounts(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, adminKey, http.MethodPut, "/api/discounts/PCT20",
		`{"code":"ignored","kind":"percentage","value":"20","max_discount":500,"valid_until":"2099-12-31"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "PCT20", body["code"])
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "20% off (max ₹500)", body["description"])
	require.Contains(t, f.discounts.defs, "PCT20")

	code, body = f.do(t, adminKey, http.MethodPut, "/api/discounts/BAD", `{"kind":"percentage","value":150}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code, body)

	code, body = f.do(t, adminKey, http.MethodPut, "/api/discounts/BAD", `{"kind":"mystery","value":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code, body)

	code, list := f.doList(t, viewerKey, "/api/discounts")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)

	code, _ = f.doRaw(t, adminKey, http.MethodDelete, "/api/discounts/PCT20", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, list = f.doList(t, viewerKey, "/api/discounts")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, list)

	code, list = f.doList(t, viewerKey, "/api/discounts?all=true")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, false, list[0]["active"])

	code, _ = f.doRaw(t, adminKey, http.MethodDelete, "/api/discounts/GHOST", "")
	assert.Equal(t, http.StatusNotFound, code)
}
