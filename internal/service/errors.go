package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"smartmart/internal/payment"
	"smartmart/internal/repository"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrDuplicateRequest    = errors.New("a request of this type is already open")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidCoupon       = errors.New("invalid coupon")
	ErrCircularCategory    = errors.New("category cannot be its own ancestor")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailTaken          = errors.New("email already registered")
	ErrIdempotencyConflict = errors.New("idempotency key already used")
)

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// translate maps repository errors onto service sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrInsufficientStock):
		return ErrInsufficientStock
	case errors.Is(err, repository.ErrCouponExhausted):
		return ErrInvalidCoupon
	case errors.Is(err, repository.ErrStatusChanged):
		return ErrInvalidTransition
	}
	return err
}

// paymentError surfaces a gateway's buyer-facing message under ErrPaymentFailed.
func paymentError(err error) error {
	return fmt.Errorf("%w: %s", ErrPaymentFailed, strings.TrimPrefix(err.Error(), payment.ErrDeclined.Error()+": "))
}
