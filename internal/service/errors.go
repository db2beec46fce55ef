package service

import "fmt"

// ValidationError reports a malformed request. It is raised before any storage call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError reports a missing customer, seller, product or other entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// InsufficientStockError reports a line asking for more units than are on hand.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s): available %d, requested %d",
		e.ProductID, e.ProductName, e.Available, e.Requested)
}

// PersistenceError reports a storage failure at a named workflow step.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure at %s: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StockUpdateError reports a failed or rejected stock decrement after lines were written.
type StockUpdateError struct {
	ProductID int64
	Err       error
}

func (e *StockUpdateError) Error() string {
	return fmt.Sprintf("stock update failed for product %d: %v", e.ProductID, e.Err)
}

func (e *StockUpdateError) Unwrap() error { return e.Err }

// ConflictError reports an idempotency key held by a request still in flight.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a request with idempotency key %q is already being processed", e.Key)
}

// InUseError reports a delete blocked by records that reference the target.
type InUseError struct {
	Entity string
	ID     int64
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s %d is referenced by other records", e.Entity, e.ID)
}

// KeyReuseError reports an idempotency key already bound to a different sale.
type KeyReuseError struct {
	Key       string
	InvoiceID int64
}

func (e *KeyReuseError) Error() string {
	return fmt.Sprintf("idempotency key %q was already used for a different sale (invoice %d)", e.Key, e.InvoiceID)
}
