package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-ticket-checkout/internal/repository"
)

// Error taxonomy of the booking flow.  Every error returned by Service
// wraps exactly one of these; the HTTP layer maps them to status codes.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrPaymentGateway     = errors.New("payment gateway error")
	ErrTransientStore     = errors.New("datastore unavailable")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrAuthentication     = errors.New("authentication required")
	ErrSeatUnavailable    = errors.New("seat unavailable")
	ErrConflict           = errors.New("conflict")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr maps a repository error onto the taxonomy.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrTransientStore, op, err)
	}
}
