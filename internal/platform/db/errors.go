package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/refdata/refdata/internal/platform/apierr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// Translate maps driver errors onto the service error vocabulary. Errors it
// does not recognise are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apierr.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, apierr.ErrDuplicate)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, apierr.ErrReference)
		case checkViolation:
			return fmt.Errorf("%w: %s", apierr.ErrValidation, pgErr.ConstraintName)
		}
	}
	return err
}

// IsUniqueViolation reports whether err was raised by a unique index.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
