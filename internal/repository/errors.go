package repository

import (
	"errors"

	"tarkostock/internal/apierror"
	"tarkostock/internal/model"
)

// mapErr classifies a store error, including the model write guards.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrCreatorImmutable):
		return &apierror.Error{Kind: apierror.KindImmutability, Op: op, Message: err.Error(), Err: err}
	case errors.Is(err, model.ErrPieceCount), errors.Is(err, model.ErrMissingCreator):
		return &apierror.Error{Kind: apierror.KindValidation, Op: op, Message: err.Error(), Err: err}
	}
	return apierror.Map(op, err)
}
