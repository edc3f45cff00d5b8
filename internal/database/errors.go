package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassDeadlock:
		return "deadlock"
	case ErrorClassSerialization:
		return "serialization"
	default:
		return "permanent"
	}
}

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514", "22003", "22P02":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsCheckViolation reports whether err is a CHECK constraint failure, e.g.
// the products.stock >= 0 guard.
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23514"
}

// IsInvalidValue reports whether postgres rejected a value itself: a number
// outside its column's precision or text that does not parse as the type.
func IsInvalidValue(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && (pqErr.Code == "22003" || pqErr.Code == "22P02")
}

// Sentinels for the error kinds surfaced to callers. Every typed error below
// matches exactly one of them through errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrStorage           = errors.New("storage failure")

	ErrProductNotFound      = &NotFoundError{Entity: "product"}
	ErrSaleNotFound         = &NotFoundError{Entity: "sale"}
	ErrSaleAlreadyCancelled = &ConflictError{Reason: "sale already cancelled"}
	ErrOptimisticLockFailed = &ConflictError{Reason: "optimistic lock failed"}
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError names the missing entity and, when known, its identifier.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	t, ok := target.(*NotFoundError)
	return ok && t.Entity == e.Entity && (t.ID == "" || t.ID == e.ID)
}

func ProductNotFound(id string) *NotFoundError { return &NotFoundError{Entity: "product", ID: id} }

func SaleNotFound(id string) *NotFoundError { return &NotFoundError{Entity: "sale", ID: id} }

// InsufficientStockError carries the requested and available quantities so
// the cashier can adjust the ticket.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConflictError reports an illegal state transition.
type ConflictError struct {
	Reason string
	ID     string
}

func (e *ConflictError) Error() string {
	if e.ID == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.ID)
}

func (e *ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	t, ok := target.(*ConflictError)
	return ok && t.Reason == e.Reason && (t.ID == "" || t.ID == e.ID)
}

// StorageError wraps a failure of the database itself. Nothing was
// committed, so the whole operation may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// IsDomainError reports whether err already belongs to the caller-facing
// taxonomy and must be passed through untouched.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStorage)
}

// AsStorageError wraps anything outside the taxonomy as a StorageError.
// Values postgres refuses to store are the caller's fault and become a
// ValidationError instead, since retrying them cannot succeed.
func AsStorageError(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	if IsInvalidValue(err) {
		var pqErr *pq.Error
		errors.As(err, &pqErr)
		return NewValidationError(pqErr.Column, "value out of range or malformed: "+pqErr.Message)
	}
	return &StorageError{Op: op, Err: err}
}
