// Package bill implements the draft and finalize lifecycle of customer bills.
package bill

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/domain/pricing"
)

// Status is the lifecycle state of a bill.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
)

// Sentinel errors for bill operations.
var (
	ErrNotFound   = errors.New("bill not found")
	ErrFinalized  = errors.New("bill is finalized")
	ErrEmptyItems = errors.New("at least one item is required to finalize")
)

// Item is a persisted bill line: the raw inputs plus the computed result.
type Item struct {
	// VariantID is empty for manual items.
	VariantID        string
	Name             string
	Code             string
	Category         string
	Quantity         int
	MRP              decimal.Decimal
	DiscountPercent  decimal.Decimal
	StitchingCharge  decimal.Decimal
	AlterationCharge decimal.Decimal
	TaxRate          decimal.Decimal

	DiscountTotal decimal.Decimal
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
}

// LineItem returns the pricing view of the item.
func (it Item) LineItem() pricing.LineItem {
	return pricing.LineItem{
		Quantity:        it.Quantity,
		UnitPrice:       it.MRP,
		DiscountPercent: it.DiscountPercent,
		Surcharge:       it.StitchingCharge.Add(it.AlterationCharge),
		TaxRate:         it.TaxRate,
		Category:        it.Category,
	}
}

// Bill is a customer bill with its line items and last computed totals.
type Bill struct {
	ID         string
	CustomerID string
	Notes      string
	Status     Status
	// DiscountCodes are the overall discount codes applied to the bill.
	DiscountCodes []string
	Items         []Item
	Totals        pricing.Totals
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinalizedAt   *time.Time
}

// Finalized reports whether the bill can no longer be changed.
func (b *Bill) Finalized() bool {
	return b.Status == StatusFinalized
}

// ListFilter narrows List results.
type ListFilter struct {
	Limit  int
	Offset int
	// Status filters by lifecycle state when non-empty.
	Status     Status
	CustomerID string
}

// Repository defines persistence operations for bills.
type Repository interface {
	CreateDraft(ctx context.Context, b *Bill) error
	Get(ctx context.Context, id string) (*Bill, error)
	// List returns bill headers without items, newest first.
	List(ctx context.Context, f ListFilter) ([]Bill, error)
	// Save replaces every item row of the bill and updates its header in a
	// single transaction. It returns ErrFinalized when the stored bill is
	// already finalized.
	Save(ctx context.Context, b *Bill) error
	// CountFinalizedWithCode counts finalized bills of the customer that
	// applied code, excluding the bill with excludeID.
	CountFinalizedWithCode(ctx context.Context, customerID, code, excludeID string) (int, error)
}

// InvalidItemError indicates a line item carries an out-of-range value.
type InvalidItemError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s %s", e.Index, e.Field, e.Reason)
}

// VariantNotFoundError indicates a line item references an unknown catalog variant.
type VariantNotFoundError struct {
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s not found", e.VariantID)
}

// DiscountAlreadyUsedError indicates a once-per-customer code was already
// applied on another finalized bill of the same customer.
type DiscountAlreadyUsedError struct {
	Code       string
	CustomerID string
}

func (e *DiscountAlreadyUsedError) Error() string {
	return fmt.Sprintf("discount %s already used by customer %s", e.Code, e.CustomerID)
}

// SaveError wraps a persistence failure. Callers should retry the whole save.
type SaveError struct {
	BillID string
	Err    error
}

func (e *SaveError) Error() string {
	return "could not save bill, try saving again"
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
