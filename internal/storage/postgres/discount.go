package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/atelier-billing/internal/domain/discount"
)

const (
	discountColumns = `code, kind, value, max_discount, rules, exclusive, auto_apply, active,
		once_per_customer, min_total, category, valid_from, valid_until, description`

	listActiveDiscountsSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE active ORDER BY code`

	listDiscountsSQL = `SELECT ` + discountColumns + ` FROM discounts ORDER BY code`

	upsertDiscountSQL = `INSERT INTO discounts (` + discountColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind, value = EXCLUDED.value, max_discount = EXCLUDED.max_discount,
			rules = EXCLUDED.rules, exclusive = EXCLUDED.exclusive, auto_apply = EXCLUDED.auto_apply,
			active = EXCLUDED.active, once_per_customer = EXCLUDED.once_per_customer,
			min_total = EXCLUDED.min_total, category = EXCLUDED.category,
			valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until,
			description = EXCLUDED.description, updated_at = now()`

	deactivateDiscountSQL = `UPDATE discounts SET active = FALSE, updated_at = now() WHERE code = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListActive returns every definition flagged active.
func (r *DiscountRepository) ListActive(ctx context.Context) ([]discount.Definition, error) {
	rows, err := r.pool.Query(ctx, listActiveDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

// List returns every definition, active or not.
func (r *DiscountRepository) List(ctx context.Context) ([]discount.Definition, error) {
	rows, err := r.pool.Query(ctx, listDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

// Upsert inserts a definition or replaces the one with the same code.
func (r *DiscountRepository) Upsert(ctx context.Context, def *discount.Definition) error {
	rules, err := def.Rules.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding rules of %q: %w", def.Code, err)
	}
	_, err = r.pool.Exec(ctx, upsertDiscountSQL,
		def.Code, string(def.Kind), def.Value, def.MaxDiscount, rules,
		def.Exclusive, def.AutoApply, def.Active, def.OncePerCustomer,
		def.MinTotal, def.Category, def.ValidFrom, def.ValidUntil, def.Description,
	)
	if err != nil {
		return fmt.Errorf("upserting discount %q: %w", def.Code, err)
	}
	return nil
}

// UpsertMany writes defs in a single transaction. Either all definitions are
// stored or none are.
func (r *DiscountRepository) UpsertMany(ctx context.Context, defs []discount.Definition) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i := range defs {
			def := &defs[i]
			rules, err := def.Rules.MarshalJSON()
			if err != nil {
				return fmt.Errorf("encoding rules of %q: %w", def.Code, err)
			}
			batch.Queue(upsertDiscountSQL,
				def.Code, string(def.Kind), def.Value, def.MaxDiscount, rules,
				def.Exclusive, def.AutoApply, def.Active, def.OncePerCustomer,
				def.MinTotal, def.Category, def.ValidFrom, def.ValidUntil, def.Description,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting %d discounts: %w", len(defs), err)
		}
		return nil
	})
}

// Deactivate marks a definition inactive.
func (r *DiscountRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deactivateDiscountSQL, code)
	if err != nil {
		return fmt.Errorf("deactivating discount %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Definition, error) {
	var (
		def   discount.Definition
		kind  string
		rules []byte
	)
	err := row.Scan(
		&def.Code, &kind, &def.Value, &def.MaxDiscount, &rules,
		&def.Exclusive, &def.AutoApply, &def.Active, &def.OncePerCustomer,
		&def.MinTotal, &def.Category, &def.ValidFrom, &def.ValidUntil, &def.Description,
	)
	if err != nil {
		return def, err
	}
	def.Kind = discount.Kind(kind)
	// Malformed rules fall back to defaults so one bad row cannot block billing.
	if err := def.Rules.UnmarshalJSON(rules); err != nil {
		def.Rules = discount.Rules{}
	}
	return def, nil
}
