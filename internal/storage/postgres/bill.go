package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/domain/bill"
)

const (
	billColumns = `id, customer_id, notes, finalized, discount_codes,
		items_subtotal, item_discount_total, pre_overall_taxable, overall_discount,
		taxable_total, tax_total, grand_total,
		created_at, updated_at, finalized_at`

	createBillSQL = `INSERT INTO bills (id, customer_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`

	getBillSQL = `SELECT ` + billColumns + ` FROM bills WHERE id = $1`

	listBillsSQL = `SELECT ` + billColumns + ` FROM bills
		WHERE ($3::text = '' OR finalized = ($3::text = 'finalized'))
			AND ($4::text = '' OR customer_id = $4::text)
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	getBillItemsSQL = `SELECT variant_id, name, code, category, quantity, mrp, discount_percent,
		stitching_charge, alteration_charge, tax_rate, discount_total, subtotal, tax_amount, total
		FROM bill_items WHERE bill_id = $1 ORDER BY position`

	// The finalized guard makes a concurrent finalize win over a late draft save.
	updateBillSQL = `UPDATE bills SET
			customer_id = $2, notes = $3, finalized = $4, discount_codes = $5,
			items_subtotal = $6, item_discount_total = $7, pre_overall_taxable = $8,
			overall_discount = $9, taxable_total = $10, tax_total = $11, grand_total = $12,
			updated_at = $13, finalized_at = $14
		WHERE id = $1 AND NOT finalized`

	billExistsSQL = `SELECT EXISTS (SELECT 1 FROM bills WHERE id = $1)`

	deleteBillItemsSQL = `DELETE FROM bill_items WHERE bill_id = $1`

	countFinalizedWithCodeSQL = `SELECT count(*) FROM bills
		WHERE customer_id = $1 AND finalized AND $2 = ANY(discount_codes) AND id <> $3`
)

var billItemColumns = []string{
	"bill_id", "position", "variant_id", "name", "code", "category", "quantity", "mrp",
	"discount_percent", "stitching_charge", "alteration_charge", "tax_rate",
	"discount_total", "subtotal", "tax_amount", "total",
}

var _ bill.Repository = (*BillRepository)(nil)

// BillRepository implements bill.Repository backed by PostgreSQL.
type BillRepository struct {
	pool *pgxpool.Pool
}

// NewBillRepository returns a BillRepository that uses the given pool.
func NewBillRepository(pool *pgxpool.Pool) *BillRepository {
	return &BillRepository{pool: pool}
}

// CreateDraft inserts an empty draft header.
func (r *BillRepository) CreateDraft(ctx context.Context, b *bill.Bill) error {
	if _, err := r.pool.Exec(ctx, createBillSQL, b.ID, nullIfEmpty(b.CustomerID), b.Notes, b.CreatedAt); err != nil {
		return fmt.Errorf("creating bill %q: %w", b.ID, err)
	}
	return nil
}

// Get returns a bill with its items in their saved order.
func (r *BillRepository) Get(ctx context.Context, id string) (*bill.Bill, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, bill.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getBillSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting bill %q: %w", id, err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBill)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bill.ErrNotFound
		}
		return nil, fmt.Errorf("getting bill %q: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, getBillItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of bill %q: %w", id, err)
	}
	b.Items, err = pgx.CollectRows(rows, scanBillItem)
	if err != nil {
		return nil, fmt.Errorf("scanning items of bill %q: %w", id, err)
	}
	return &b, nil
}

// List returns bill headers matching f, newest first.
func (r *BillRepository) List(ctx context.Context, f bill.ListFilter) ([]bill.Bill, error) {
	rows, err := r.pool.Query(ctx, listBillsSQL, f.Limit, f.Offset, string(f.Status), f.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return pgx.CollectRows(rows, scanBill)
}

// Save replaces the bill's items and updates its header in one transaction.
func (r *BillRepository) Save(ctx context.Context, b *bill.Bill) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		t := b.Totals
		codes := b.DiscountCodes
		if codes == nil {
			codes = []string{}
		}
		tag, err := tx.Exec(ctx, updateBillSQL,
			b.ID, nullIfEmpty(b.CustomerID), b.Notes, b.Finalized(), codes,
			t.ItemsSubtotal, t.ItemDiscountTotal, t.PreOverallTaxable,
			t.OverallDiscount, t.TaxableTotal, t.TaxTotal, t.GrandTotal,
			b.UpdatedAt, b.FinalizedAt,
		)
		if err != nil {
			return fmt.Errorf("updating bill %q: %w", b.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrFinalized(ctx, tx, b.ID)
		}

		if _, err := tx.Exec(ctx, deleteBillItemsSQL, b.ID); err != nil {
			return fmt.Errorf("deleting items of bill %q: %w", b.ID, err)
		}
		if len(b.Items) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"bill_items"}, billItemColumns,
			pgx.CopyFromSlice(len(b.Items), func(i int) ([]any, error) {
				it := b.Items[i]
				return []any{
					b.ID, i, nullIfEmpty(it.VariantID), it.Name, it.Code, it.Category, it.Quantity, it.MRP,
					it.DiscountPercent, it.StitchingCharge, it.AlterationCharge, it.TaxRate,
					it.DiscountTotal, it.Subtotal, it.TaxAmount, it.Total,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("inserting items of bill %q: %w", b.ID, err)
		}
		return nil
	})
}

// CountFinalizedWithCode counts the customer's other finalized bills that
// applied code.
func (r *BillRepository) CountFinalizedWithCode(ctx context.Context, customerID, code, excludeID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countFinalizedWithCodeSQL, customerID, code, excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of %q: %w", code, err)
	}
	return n, nil
}

func (r *BillRepository) missingOrFinalized(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, billExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking bill %q: %w", id, err)
	}
	if !exists {
		return bill.ErrNotFound
	}
	return bill.ErrFinalized
}

func scanBill(row pgx.CollectableRow) (bill.Bill, error) {
	var (
		b           bill.Bill
		customerID  *string
		finalized   bool
		finalizedAt *time.Time
	)
	err := row.Scan(
		&b.ID, &customerID, &b.Notes, &finalized, &b.DiscountCodes,
		&b.Totals.ItemsSubtotal, &b.Totals.ItemDiscountTotal, &b.Totals.PreOverallTaxable,
		&b.Totals.OverallDiscount, &b.Totals.TaxableTotal, &b.Totals.TaxTotal, &b.Totals.GrandTotal,
		&b.CreatedAt, &b.UpdatedAt, &finalizedAt,
	)
	if err != nil {
		return b, err
	}
	b.CustomerID = emptyIfNull(customerID)
	b.FinalizedAt = finalizedAt
	b.Status = bill.StatusDraft
	if finalized {
		b.Status = bill.StatusFinalized
	}
	return b, nil
}

func scanBillItem(row pgx.CollectableRow) (bill.Item, error) {
	var (
		it        bill.Item
		variantID *string
		mrp       decimal.Decimal
	)
	err := row.Scan(
		&variantID, &it.Name, &it.Code, &it.Category, &it.Quantity, &mrp, &it.DiscountPercent,
		&it.StitchingCharge, &it.AlterationCharge, &it.TaxRate,
		&it.DiscountTotal, &it.Subtotal, &it.TaxAmount, &it.Total,
	)
	it.VariantID = emptyIfNull(variantID)
	it.MRP = mrp
	return it, err
}
