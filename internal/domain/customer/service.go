package customer

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultFirstName   = "Customer"
	defaultSearchLimit = 15
)

var phonePattern = regexp.MustCompile(`^\+\d[\d\s]{9,20}$`)

// InvalidInputError describes a rejected customer field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// CreateRequest holds the input for registering a customer.
type CreateRequest struct {
	FirstName string `validate:"max=100"`
	LastName  string `validate:"max=100"`
	Phone     string `validate:"required,phone"`
	Email     string `validate:"omitempty,email,max=254"`
	Address   string `validate:"max=500"`
	Notes     string `validate:"max=2000"`
}

// Service encapsulates customer directory operations.
type Service struct {
	repo     Repository
	validate *validator.Validate
	newID    func() string
}

// NewService creates a customer Service backed by repo.
func NewService(repo Repository) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &Service{
		repo:     repo,
		validate: v,
		newID:    func() string { return ulid.Make().String() },
	}
}

// Get returns the customer with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// Search returns customers whose phone contains the given fragment.
// Whitespace in the fragment is ignored; an empty fragment matches nobody.
func (s *Service) Search(ctx context.Context, phone string) ([]Customer, error) {
	fragment := NormalizePhone(phone)
	if fragment == "" {
		return nil, nil
	}
	found, err := s.repo.FindByPhone(ctx, fragment, defaultSearchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "find by phone")
	}
	return found, nil
}

// Create validates req and registers a new customer with a fresh ULID.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Customer, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)

	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return nil, &InvalidInputError{Field: fe.Field(), Reason: fe.Tag()}
		}
		return nil, errors.Wrap(err, "validate")
	}

	if req.FirstName == "" {
		req.FirstName = defaultFirstName
	}

	c := &Customer{
		ID:        s.newID(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     NormalizePhone(req.Phone),
		Email:     req.Email,
		Address:   strings.TrimSpace(req.Address),
		Notes:     strings.TrimSpace(req.Notes),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicatePhone) {
			return nil, ErrDuplicatePhone
		}
		return nil, errors.Wrap(err, "create customer")
	}

	zctx.From(ctx).Info("Customer created", zap.String("customer_id", c.ID))
	return c, nil
}

// NormalizePhone strips all whitespace from a phone number.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, phone)
}
