package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Common errors returned by referential services.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("already exists")
	ErrReference     = errors.New("referenced entity does not exist")
	ErrConflict      = errors.New("version conflict")
	ErrInUse         = errors.New("still referenced by active records")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("cannot be processed")
)

func NotFound(entity string, key any) error {
	return fmt.Errorf("%s %v: %w", entity, key, ErrNotFound)
}

func Duplicate(entity, code string) error {
	return fmt.Errorf("%s %s: %w", entity, code, ErrDuplicate)
}

func MissingReference(field string, key any) error {
	return fmt.Errorf("%s %v: %w", field, key, ErrReference)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Status returns the HTTP status code that corresponds to err.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict), errors.Is(err, ErrInUse):
		return http.StatusConflict
	case errors.Is(err, ErrReference), errors.Is(err, ErrUnprocessable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HTTP converts a service error into an echo HTTP error. Unknown errors are
// reported as a generic 500 so that driver details never leak to clients.
func HTTP(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status := Status(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}
