package usecase

import (
	"errors"
	"fmt"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

// StorageError is a failure of the backing store. It is retryable by the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// notFound keeps every specific not-found error matchable as ErrNotFound.
type notFound struct{ what string }

func (e *notFound) Error() string { return e.what + " not found" }
func (e *notFound) Is(target error) bool {
	return target == ErrNotFound
}

var ErrNotFound = errors.New("not found")

var (
	ErrBuyerNotFound        error = &notFound{"buyer"}
	ErrProductNotFound      error = &notFound{"product"}
	ErrOrderNotFound        error = &notFound{"order"}
	ErrUserNotFound         error = &notFound{"user"}
	ErrClientNotFound       error = &notFound{"client"}
	ErrEmployeeNotFound     error = &notFound{"employee"}
	ErrRatingNotFound       error = &notFound{"rating"}
	ErrRecoveryCodeNotFound error = &notFound{"recovery code"}
)

var (
	ErrOrderNotMutable     = errors.New("order is not pending")
	ErrEmptyOrder          = errors.New("order has no lines")
	ErrInsufficientPayment = errors.New("tendered amount is below the order total")
)

var (
	ErrInvalidQuantity      = errors.New("quantity must be between 0 and 9999")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidAmount        = domain.ErrInvalidAmount
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidScore         = errors.New("score must be between 1 and 5")
	ErrWeakPassword         = errors.New("password must have at least 8 characters")
)

var (
	ErrDuplicate       = errors.New("duplicate idempotency key")
	ErrEmailTaken      = errors.New("email already registered")
	ErrAlreadyRated    = errors.New("product already rated by this user")
	ErrAlreadyClient   = errors.New("user is already a client")
	ErrAlreadyEmployee = errors.New("user is already an employee")
	ErrProductInUse    = errors.New("product is referenced by orders")
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
	ErrNotConsumed        = errors.New("product was not bought by this user")
)

var (
	ErrRecoveryCodeExpired     = errors.New("recovery code expired")
	ErrRecoveryCodeInvalid     = errors.New("recovery code does not match")
	ErrRecoveryTooManyAttempts = errors.New("too many recovery attempts")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}
