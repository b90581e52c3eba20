package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/domain/product"
)

const (
	variantColumns = `v.id, v.colour, v.size, v.stock,
		p.id, p.code, p.name, p.category, p.mrp, p.tax_rate
		FROM variants v JOIN products p ON p.id = v.product_id`

	searchVariantsSQL = `SELECT ` + variantColumns + `
		WHERE $1 = '' OR p.name ILIKE '%' || $1 || '%' OR p.code ILIKE '%' || $1 || '%' OR p.category ILIKE '%' || $1 || '%'
		ORDER BY p.created_at DESC, p.name, v.colour, v.size
		LIMIT $2`

	getVariantsSQL = `SELECT ` + variantColumns + `
		WHERE v.id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (id, code, name, category, mrp, tax_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name,
			category = EXCLUDED.category, mrp = EXCLUDED.mrp, tax_rate = EXCLUDED.tax_rate`

	upsertVariantSQL = `INSERT INTO variants (id, product_id, colour, size, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET colour = EXCLUDED.colour, size = EXCLUDED.size, stock = EXCLUDED.stock`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Search returns variants whose product name, code or category contains query.
func (r *ProductRepository) Search(ctx context.Context, query string, limit int) ([]product.Variant, error) {
	rows, err := r.pool.Query(ctx, searchVariantsSQL, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// GetVariants returns variants matching any of the given IDs.
func (r *ProductRepository) GetVariants(ctx context.Context, ids []string) ([]product.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// Upsert inserts or updates a product together with its variants.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product, variants []product.Variant) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Code, p.Name, p.Category, p.MRP, p.TaxRate); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
		batch := &pgx.Batch{}
		for _, v := range variants {
			batch.Queue(upsertVariantSQL, v.ID, p.ID, v.Colour, v.Size, v.Stock)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting variants of %q: %w", p.ID, err)
		}
		return nil
	})
}

func scanVariant(row pgx.CollectableRow) (product.Variant, error) {
	var (
		v   product.Variant
		mrp decimal.Decimal
	)
	err := row.Scan(
		&v.ID, &v.Colour, &v.Size, &v.Stock,
		&v.Product.ID, &v.Product.Code, &v.Product.Name, &v.Product.Category, &mrp, &v.Product.TaxRate,
	)
	v.Product.MRP = mrp
	return v, err
}
