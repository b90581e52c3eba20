package bill

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/atelier-billing/internal/domain/customer"
	"github.com/xenking/atelier-billing/internal/domain/discount"
	"github.com/xenking/atelier-billing/internal/domain/pricing"
	"github.com/xenking/atelier-billing/internal/domain/product"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// QuoteRequest holds the input for pricing a cart without persisting it.
type QuoteRequest struct {
	Items         []ItemInput
	DiscountCodes []string
}

// Quote is a priced cart.
type Quote struct {
	Items []Item
	// DiscountCodes are the codes that took part in resolution: the user's
	// selection plus auto-apply codes, limited to currently available ones.
	DiscountCodes []string
	Totals        pricing.Totals
}

// SaveRequest holds the editable content of a draft.
type SaveRequest struct {
	CustomerID    string
	Notes         string
	Items         []ItemInput
	DiscountCodes []string
}

// Config tunes the Service.
type Config struct {
	// DefaultTaxRate applies to items without an explicit or catalog rate.
	// When unset the standard rate is used; zero is a valid rate.
	DefaultTaxRate decimal.NullDecimal
}

// Service encapsulates the bill lifecycle: quoting, draft edits and
// finalization.
type Service struct {
	products       product.Repository
	discounts      discount.Repository
	customers      customer.Repository
	bills          Repository
	metrics        *metrics
	defaultTaxRate decimal.Decimal
	now            func() time.Time
	newID          func() string
}

// NewService creates a bill Service with the required domain dependencies.
func NewService(
	cfg Config,
	products product.Repository,
	discounts discount.Repository,
	customers customer.Repository,
	bills Repository,
	meter metric.Meter,
) (*Service, error) {
	m, err := newMetrics(meter)
	if err != nil {
		return nil, errors.Wrap(err, "init metrics")
	}
	taxRate := pricing.DefaultTaxRate
	if cfg.DefaultTaxRate.Valid {
		taxRate = cfg.DefaultTaxRate.Decimal
	}
	return &Service{
		products:       products,
		discounts:      discounts,
		customers:      customers,
		bills:          bills,
		metrics:        m,
		defaultTaxRate: taxRate,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}, nil
}

// Quote prices the cart against the currently available discounts.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	defs, err := s.availableDiscounts(ctx)
	if err != nil {
		return nil, err
	}
	codes, totals := price(items, req.DiscountCodes, defs)
	return &Quote{Items: items, DiscountCodes: codes, Totals: totals}, nil
}

// CreateDraft opens an empty draft bill, optionally for a customer.
func (s *Service) CreateDraft(ctx context.Context, customerID, notes string) (*Bill, error) {
	if err := s.checkCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	now := s.now()
	b := &Bill{
		ID:         s.newID(),
		CustomerID: customerID,
		Notes:      notes,
		Status:     StatusDraft,
		Totals:     pricing.Aggregate(nil, decimal.Zero),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.bills.CreateDraft(ctx, b); err != nil {
		s.metrics.saveFailed(ctx, "create")
		zctx.From(ctx).Error("Create draft failed", zap.Error(err))
		return nil, &SaveError{BillID: b.ID, Err: err}
	}
	s.metrics.drafts.Add(ctx, 1)
	zctx.From(ctx).Info("Draft created", zap.String("bill_id", b.ID))
	return b, nil
}

// Get returns a bill with its items.
func (s *Service) Get(ctx context.Context, id string) (*Bill, error) {
	return s.bills.Get(ctx, id)
}

// List returns bill headers, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Bill, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)
	f.Offset = max(f.Offset, 0)
	return s.bills.List(ctx, f)
}

// SaveDraft replaces the content of a draft and recomputes its totals.
// Finalized bills are rejected with ErrFinalized.
func (s *Service) SaveDraft(ctx context.Context, id string, req SaveRequest) (*Bill, error) {
	b, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	defs, err := s.availableDiscounts(ctx)
	if err != nil {
		return nil, err
	}

	b.CustomerID = req.CustomerID
	b.Notes = req.Notes
	b.Items = items
	b.DiscountCodes, b.Totals = price(items, req.DiscountCodes, defs)
	b.UpdatedAt = s.now()

	if err := s.save(ctx, b, "save"); err != nil {
		return nil, err
	}
	s.metrics.saves.Add(ctx, 1)
	return b, nil
}

// Finalize re-prices the stored draft against the current discounts and
// freezes it. The bill must have at least one item, and once-per-customer
// codes must not appear on another finalized bill of the same customer.
func (s *Service) Finalize(ctx context.Context, id string) (*Bill, error) {
	b, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(b.Items) == 0 {
		return nil, ErrEmptyItems
	}
	defs, err := s.availableDiscounts(ctx)
	if err != nil {
		return nil, err
	}

	codes, totals := price(b.Items, b.DiscountCodes, defs)
	if err := s.checkOncePerCustomer(ctx, b, discount.Selected(defs, codes)); err != nil {
		return nil, err
	}

	now := s.now()
	b.DiscountCodes = codes
	b.Totals = totals
	b.Status = StatusFinalized
	b.UpdatedAt = now
	b.FinalizedAt = &now

	if err := s.save(ctx, b, "finalize"); err != nil {
		return nil, err
	}

	s.metrics.finalized.Add(ctx, 1)
	s.metrics.grandTotal.Record(ctx, b.Totals.GrandTotal.InexactFloat64())
	zctx.From(ctx).Info("Bill finalized",
		zap.String("bill_id", b.ID),
		zap.String("grand_total", b.Totals.GrandTotal.StringFixed(2)),
		zap.Strings("discount_codes", b.DiscountCodes),
	)
	return b, nil
}

// price merges auto-apply codes into the selection, keeps only available
// codes and computes the totals.
func price(items []Item, selected []string, defs []discount.Definition) ([]string, pricing.Totals) {
	known := lo.SliceToMap(defs, func(d discount.Definition) (string, struct{}) { return d.Code, struct{}{} })
	codes := lo.Filter(discount.MergeAutoApply(selected, defs), func(code string, _ int) bool {
		_, ok := known[code]
		return ok
	})

	lines := lineItems(items)
	overall := discount.Resolve(lines, codes, defs)
	return codes, pricing.Aggregate(lines, overall)
}

func (s *Service) availableDiscounts(ctx context.Context) ([]discount.Definition, error) {
	defs, err := s.discounts.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}
	return discount.Available(defs, s.now()), nil
}

func (s *Service) draft(ctx context.Context, id string) (*Bill, error) {
	b, err := s.bills.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Finalized() {
		return nil, ErrFinalized
	}
	return b, nil
}

func (s *Service) checkCustomer(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.customers.Get(ctx, id); err != nil {
		return errors.Wrap(err, "get customer")
	}
	return nil
}

func (s *Service) checkOncePerCustomer(ctx context.Context, b *Bill, applied []discount.Definition) error {
	if b.CustomerID == "" {
		return nil
	}
	for _, def := range applied {
		if !def.OncePerCustomer {
			continue
		}
		n, err := s.bills.CountFinalizedWithCode(ctx, b.CustomerID, def.Code, b.ID)
		if err != nil {
			return errors.Wrap(err, "count discount usage")
		}
		if n > 0 {
			return &DiscountAlreadyUsedError{Code: def.Code, CustomerID: b.CustomerID}
		}
	}
	return nil
}

func (s *Service) save(ctx context.Context, b *Bill, op string) error {
	err := s.bills.Save(ctx, b)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFinalized) {
		return ErrFinalized
	}
	s.metrics.saveFailed(ctx, op)
	zctx.From(ctx).Error("Save bill failed", zap.String("bill_id", b.ID), zap.String("op", op), zap.Error(err))
	return &SaveError{BillID: b.ID, Err: err}
}
