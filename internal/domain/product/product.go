package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product or variant does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for billing.
type Product struct {
	ID       string
	Code     string
	Name     string
	Category string
	// MRP is the unit price charged for every variant of the product.
	MRP     decimal.Decimal
	TaxRate decimal.NullDecimal
}

// Variant is a sellable colour and size combination of a product.
type Variant struct {
	ID      string
	Colour  string
	Size    string
	Stock   int
	Product Product
}

// Repository defines read operations for the catalog.
type Repository interface {
	// Search matches query against product name, code and category, case
	// insensitively. An empty query returns the most recent variants.
	Search(ctx context.Context, query string, limit int) ([]Variant, error)
	// GetVariants returns the variants that exist among ids, in no
	// particular order. Missing ids are not an error.
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
}
