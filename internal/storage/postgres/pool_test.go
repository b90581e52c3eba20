package postgres

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{
			name:       "MatchingConstraint",
			err:        &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: customersPhoneKey},
			constraint: customersPhoneKey,
			want:       true,
		},
		{
			name:       "Wrapped",
			err:        errors.Wrap(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: customersPhoneKey}, "insert"),
			constraint: customersPhoneKey,
			want:       true,
		},
		{
			name:       "AnyConstraint",
			err:        &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "other"},
			constraint: "",
			want:       true,
		},
		{
			name:       "OtherConstraint",
			err:        &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "other"},
			constraint: customersPhoneKey,
		},
		{
			name:       "OtherCode",
			err:        &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: customersPhoneKey},
			constraint: customersPhoneKey,
		},
		{
			name: "NotPgError",
			err:  errors.New("boom"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err, tt.constraint))
		})
	}
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	if p := nullIfEmpty("c1"); assert.NotNil(t, p) {
		assert.Equal(t, "c1", *p)
	}

	assert.Equal(t, "", emptyIfNull(nil))
	s := "c2"
	assert.Equal(t, "c2", emptyIfNull(&s))
}
