package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a customer does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrDuplicatePhone is returned when another customer already uses the phone number.
	ErrDuplicatePhone = errors.New("phone number already registered")
)

// Customer is a boutique client a bill can be issued to.
type Customer struct {
	// ID is a 26-character ULID.
	ID        string
	FirstName string
	LastName  string
	// Phone is stored without whitespace, starting with the country code.
	Phone     string
	Email     string
	Address   string
	Notes     string
	CreatedAt time.Time
}

// Repository defines persistence operations for customers.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	// FindByPhone returns up to limit customers whose phone contains fragment.
	FindByPhone(ctx context.Context, fragment string, limit int) ([]Customer, error)
	// Create returns ErrDuplicatePhone when the phone is already registered.
	Create(ctx context.Context, c *Customer) error
}
