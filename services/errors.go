// services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Typed outcomes surfaced to callers. The benign rejections (duplicate
// unlock, repeated claim) belong here too — they carry no state change and
// must not be treated as failures by the caller.
var (
	ErrDuplicateUnlock  = errors.New("achievement already unlocked")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("username already taken")
	ErrAlreadyClaimed   = errors.New("prize already claimed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ConstraintError rejects malformed input (empty flag key, negative points)
// before any write happens.
type ConstraintError struct {
	Field  string
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %s", e.Field, e.Reason)
}

func constraintErr(field, reason string) error {
	return &ConstraintError{Field: field, Reason: reason}
}

// storeErr wraps an unexpected database error as a retryable failure.
// Callers should back off and retry; nothing was committed.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// HTTPStatus maps a service error to the status code a handler should send.
func HTTPStatus(err error) int {
	var ce *ConstraintError
	switch {
	case errors.Is(err, ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrDuplicateUnlock),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrUserExists):
		return fiber.StatusConflict
	case errors.As(err, &ce):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
