// Package apperr defines the error kinds returned by the inventory and order
// core. Callers match kinds with errors.Is and pull details with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrContention        = errors.New("lock contention")
	ErrConflict          = errors.New("conflict")
	ErrInvalid           = errors.New("invalid input")
)

// NotFoundError names the missing entity and every missing id.
type NotFoundError struct {
	Entity string // "product" | "order"
	IDs    []int64
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("%s not found: %d", e.Entity, e.IDs[0])
	}
	ids := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("%ss not found: [%s]", e.Entity, strings.Join(ids, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError identifies the product whose stock cannot cover the request.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidTransitionError names the current and requested status.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func NotFound(entity string, ids ...int64) error {
	return &NotFoundError{Entity: entity, IDs: ids}
}

// Contention marks cause as a lock-wait failure. Callers may retry.
func Contention(cause error) error {
	return fmt.Errorf("%w: %w", ErrContention, cause)
}

// Conflict marks cause as a storage constraint violation.
func Conflict(cause error) error {
	return fmt.Errorf("%w: %w", ErrConflict, cause)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Retryable reports whether the operation failed only because a lock could
// not be acquired in time.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention)
}
