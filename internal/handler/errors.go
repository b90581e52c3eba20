package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/atelier-billing/internal/domain/bill"
	"github.com/xenking/atelier-billing/internal/domain/customer"
	"github.com/xenking/atelier-billing/internal/domain/discount"
)

// respondError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidItem  *bill.InvalidItemError
		noVariant    *bill.VariantNotFoundError
		alreadyUsed  *bill.DiscountAlreadyUsedError
		saveErr      *bill.SaveError
		invalidInput *customer.InvalidInputError
	)
	switch {
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidItem), errors.As(err, &noVariant), errors.As(err, &invalidInput),
		errors.Is(err, bill.ErrEmptyItems), errors.Is(err, discount.ErrInvalidDefinition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, bill.ErrNotFound), errors.Is(err, customer.ErrNotFound), errors.Is(err, discount.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, bill.ErrFinalized), errors.As(err, &alreadyUsed), errors.Is(err, customer.ErrDuplicatePhone):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &saveErr):
		writeError(w, http.StatusServiceUnavailable, saveErr.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
