// Package discount resolves overall bill discounts from configured
// definitions.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported overall discount strategies.
type Kind string

const (
	// KindFlat takes a fixed amount off the bill.
	KindFlat Kind = "flat"
	// KindPercentage takes a percentage of the cart total off the bill.
	KindPercentage Kind = "percentage"
	// KindBuyXGetY makes the cheapest units of every complete buy+get block free.
	KindBuyXGetY Kind = "buy_x_get_y"
	// KindFixedPrice caps the total of a category bundle at a fixed amount.
	KindFixedPrice Kind = "fixed_price"
	// KindConditional takes a fixed amount off once the cart reaches a minimum total.
	KindConditional Kind = "conditional"
)

// Kinds lists every known Kind in display order.
var Kinds = []Kind{KindFlat, KindPercentage, KindBuyXGetY, KindFixedPrice, KindConditional}

const (
	defaultBuyQty = 2
	defaultGetQty = 1
)

var (
	// ErrNotFound is returned when a discount code does not exist.
	ErrNotFound = errors.New("discount not found")
	// ErrInvalidDefinition is returned when a definition fails validation.
	ErrInvalidDefinition = errors.New("invalid discount definition")
)

// Definition is a configured overall discount.
type Definition struct {
	Code  string `validate:"required,max=64"`
	Kind  Kind   `validate:"required"`
	Value decimal.Decimal
	// MaxDiscount caps the computed value. Null means no cap; zero caps at zero.
	MaxDiscount     decimal.NullDecimal
	Rules           Rules
	Exclusive       bool
	AutoApply       bool
	Active          bool
	OncePerCustomer bool
	MinTotal        decimal.NullDecimal
	Category        string `validate:"max=64"`
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	Description     string `validate:"max=255"`
}

// Rules carries the kind-specific parameters of a Definition. Unset fields
// fall back to defaults when the discount is valued.
type Rules struct {
	BuyQty     *int
	GetQty     *int
	Category   string
	FixedTotal decimal.NullDecimal
	MinTotal   decimal.NullDecimal
	Value      decimal.NullDecimal
}

// Buy returns the buy quantity, defaulting to 2.
func (r Rules) Buy() int {
	if r.BuyQty == nil || *r.BuyQty <= 0 {
		return defaultBuyQty
	}
	return *r.BuyQty
}

// Get returns the free quantity per block, defaulting to 1.
func (r Rules) Get() int {
	if r.GetQty == nil || *r.GetQty <= 0 {
		return defaultGetQty
	}
	return *r.GetQty
}

// Repository provides access to configured discount definitions.
type Repository interface {
	// ListActive returns all definitions flagged active, ignoring validity windows.
	ListActive(ctx context.Context) ([]Definition, error)
	List(ctx context.Context) ([]Definition, error)
	Upsert(ctx context.Context, def *Definition) error
	// Deactivate returns ErrNotFound when the code does not exist.
	Deactivate(ctx context.Context, code string) error
}
