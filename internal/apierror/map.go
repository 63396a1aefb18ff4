package apierror

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Map converts store/infrastructure failures into typed errors.
// Errors that are already typed pass through unchanged.
func Map(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Op: op, Message: "record not found", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Storage(op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505", "40001", "40P01", "55P03": // unique, serialization, deadlock, lock not available
			return &Error{Kind: KindConflict, Op: op, Message: pgErr.Message, Err: err}
		case "23514": // check_violation
			return &Error{Kind: KindValidation, Op: op, Message: pgErr.Message, Err: err}
		case "P0001": // raise_exception from the piece guard trigger
			if strings.Contains(pgErr.Message, "immutable") {
				return &Error{Kind: KindImmutability, Op: op, Message: pgErr.Message, Err: err}
			}
		}
	}
	return Storage(op, err)
}
