// Package handler serves the billing HTTP API under /api.
package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/atelier-billing/internal/domain/auth"
	"github.com/xenking/atelier-billing/internal/domain/bill"
	"github.com/xenking/atelier-billing/internal/domain/customer"
	"github.com/xenking/atelier-billing/internal/domain/discount"
	"github.com/xenking/atelier-billing/internal/domain/product"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Handler adapts the domain services to HTTP.
type Handler struct {
	products  product.Repository
	discounts discount.Repository
	customers *customer.Service
	bills     *bill.Service
	now       func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	discounts discount.Repository,
	customers *customer.Service,
	bills *bill.Service,
) *Handler {
	return &Handler{
		products:  products,
		discounts: discounts,
		customers: customers,
		bills:     bills,
		now:       time.Now,
	}
}

// Routes returns the /api routes. Every route requires an API key. Customer,
// quote and bill routes require the billing scope; discount writes require
// discounts:write. Extra middlewares
// run inside the router, after route matching.
func (h *Handler) Routes(sec *Security, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Use(sec.Middleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/products", h.SearchProducts)

	r.Route("/discounts", func(r chi.Router) {
		r.Get("/", h.ListDiscounts)
		r.Group(func(r chi.Router) {
			r.Use(RequireScope(auth.ScopeDiscounts))
			r.Put("/{code}", h.PutDiscount)
			r.Delete("/{code}", h.DeleteDiscount)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireScope(auth.ScopeBilling))

		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.SearchCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
		})

		r.Post("/quote", h.Quote)

		r.Route("/bills", func(r chi.Router) {
			r.Post("/", h.CreateBill)
			r.Get("/", h.ListBills)
			r.Get("/{id}", h.GetBill)
			r.Put("/{id}", h.SaveBill)
			r.Post("/{id}/finalize", h.FinalizeBill)
		})
	})
	return r
}

// SearchProducts handles GET /products?q=&limit=.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := min(queryInt(r, "limit", defaultSearchLimit), maxSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	variants, err := h.products.Search(r.Context(), q, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, v := range variants {
			encodeVariant(e, v)
		}
		e.ArrEnd()
	})
}

// ListDiscounts handles GET /discounts. By default only definitions usable
// right now are listed; ?all=true lists every stored definition.
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	var (
		defs []discount.Definition
		err  error
	)
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		defs, err = h.discounts.List(r.Context())
	} else {
		defs, err = h.discounts.ListActive(r.Context())
		defs = discount.Available(defs, h.now())
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, def := range defs {
			encodeDefinition(e, def)
		}
		e.ArrEnd()
	})
}

// PutDiscount handles PUT /discounts/{code}. The path code wins over the body.
func (h *Handler) PutDiscount(w http.ResponseWriter, r *http.Request) {
	def, err := decodeDefinition(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	def.Code = chi.URLParam(r, "code")
	if err := discount.Validate(&def); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.discounts.Upsert(r.Context(), &def); err != nil {
		respondError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Discount saved",
		zap.String("code", def.Code),
		zap.String("kind", string(def.Kind)),
		zap.Bool("active", def.Active),
	)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDefinition(e, def) })
}

// DeleteDiscount handles DELETE /discounts/{code} by deactivating the code.
// Bills that already used it keep their stored totals.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.discounts.Deactivate(r.Context(), code); err != nil {
		respondError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Discount deactivated", zap.String("code", code))
	w.WriteHeader(http.StatusNoContent)
}

// SearchCustomers handles GET /customers?phone=.
func (h *Handler) SearchCustomers(w http.ResponseWriter, r *http.Request) {
	found, err := h.customers.Search(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range found {
			encodeCustomer(e, &found[i])
		}
		e.ArrEnd()
	})
}

// GetCustomer handles GET /customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCustomer(e, c) })
}

// CreateCustomer handles POST /customers.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCustomer(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.customers.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCustomer(e, c) })
}

// Quote handles POST /quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuote(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	q, err := h.bills.Quote(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// CreateBill handles POST /bills.
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateBill(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	b, err := h.bills.CreateDraft(r.Context(), req.CustomerID, req.Notes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/bills/"+b.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeBill(e, b, true) })
}

// ListBills handles GET /bills?limit=&offset=&status=&customer_id=.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := bill.Status(q.Get("status"))
	if status != "" && status != bill.StatusDraft && status != bill.StatusFinalized {
		writeError(w, http.StatusBadRequest, "status must be draft or finalized")
		return
	}
	bills, err := h.bills.List(r.Context(), bill.ListFilter{
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
		Status:     status,
		CustomerID: q.Get("customer_id"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range bills {
			encodeBill(e, &bills[i], false)
		}
		e.ArrEnd()
	})
}

// GetBill handles GET /bills/{id}.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.bills.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeBill(e, b, true) })
}

// SaveBill handles PUT /bills/{id}.
func (h *Handler) SaveBill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSave(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	b, err := h.bills.SaveDraft(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeBill(e, b, true) })
}

// FinalizeBill handles POST /bills/{id}/finalize.
func (h *Handler) FinalizeBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.bills.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeBill(e, b, true) })
}

// queryInt parses an integer query parameter, returning def when it is
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
