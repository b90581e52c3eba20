package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/atelier-billing/internal/domain/customer"
)

const (
	customerColumns = `id, first_name, last_name, phone, email, address, notes, created_at`

	getCustomerSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	findCustomersByPhoneSQL = `SELECT ` + customerColumns + ` FROM customers
		WHERE phone LIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2`

	createCustomerSQL = `INSERT INTO customers (id, first_name, last_name, phone, email, address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	customersPhoneKey = "customers_phone_key"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Get returns a single customer by ID.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// FindByPhone returns customers whose phone contains fragment.
func (r *CustomerRepository) FindByPhone(ctx context.Context, fragment string, limit int) ([]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, findCustomersByPhoneSQL, fragment, limit)
	if err != nil {
		return nil, fmt.Errorf("finding customers by phone: %w", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

// Create inserts a customer and fills its creation time.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	err := r.pool.QueryRow(ctx, createCustomerSQL,
		c.ID, c.FirstName, c.LastName, c.Phone, c.Email, c.Address, c.Notes,
	).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, customersPhoneKey) {
			return customer.ErrDuplicatePhone
		}
		return fmt.Errorf("creating customer: %w", err)
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.CreatedAt)
	return c, err
}
