package repository

import (
	"context"
	"errors"
	"time"

	"github.com/libreria-tm/backend/internal/entity"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a unique constraint rejects an insert.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInUse is returned when a delete is blocked by rows referencing the record.
	ErrInUse = errors.New("record is referenced by other records")
	// ErrStockConflict is returned by the atomic decrement when stock would go negative.
	ErrStockConflict = errors.New("stock would go negative")
)

// CustomerRepository handles persistence for Customers.
type CustomerRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Customer, error)
	FindAll(ctx context.Context) ([]entity.Customer, error)
	// Search matches term against first and last name, case-insensitively.
	Search(ctx context.Context, term string) ([]entity.Customer, error)
	Create(ctx context.Context, c *entity.Customer) error
	Update(ctx context.Context, c *entity.Customer) error
	Delete(ctx context.Context, id int64) error
}

// SellerRepository handles persistence for Sellers.
type SellerRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Seller, error)
	FindByAuthID(ctx context.Context, authID string) (*entity.Seller, error)
	FindAll(ctx context.Context) ([]entity.Seller, error)
	Create(ctx context.Context, s *entity.Seller) error
}

// SupplierRepository handles persistence for Suppliers.
type SupplierRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Supplier, error)
	FindAll(ctx context.Context) ([]entity.Supplier, error)
	SearchByContact(ctx context.Context, name string) ([]entity.Supplier, error)
	Create(ctx context.Context, s *entity.Supplier) error
	Update(ctx context.Context, s *entity.Supplier) error
	Delete(ctx context.Context, id int64) error
}

// ProductRepository handles persistence for Products.
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Product, error)
	FindAll(ctx context.Context) ([]entity.Product, error)
	FindByCategory(ctx context.Context, category string) ([]entity.Product, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, p *entity.Product) error
	Update(ctx context.Context, p *entity.Product) error
	Delete(ctx context.Context, id int64) error

	// DecrementStock subtracts qty in a single conditional update and
	// returns ErrStockConflict instead of letting stock go negative.
	DecrementStock(ctx context.Context, id int64, qty int) error
	// IncrementStock adds qty back; used by compensation.
	IncrementStock(ctx context.Context, id int64, qty int) error
}

// InvoiceFilter narrows FindRecords. Zero values are unbounded.
type InvoiceFilter struct {
	From       time.Time
	To         time.Time
	CustomerID int64
	SellerID   int64
}

// InvoiceRepository handles persistence for Invoices and their lines.
type InvoiceRepository interface {
	// CreateHeader inserts the header and fills ID and Code. A repeated
	// non-empty idempotency key yields ErrDuplicateKey.
	CreateHeader(ctx context.Context, inv *entity.Invoice) error
	// InsertLines writes the whole batch or nothing.
	InsertLines(ctx context.Context, lines []entity.InvoiceLine) error
	// Delete removes a header together with its lines.
	Delete(ctx context.Context, id int64) error
	FindByIdempotencyKey(ctx context.Context, key string) (*entity.Invoice, error)
	FindRecord(ctx context.Context, id int64) (*entity.InvoiceRecord, error)
	// FindRecords returns matching invoices newest first.
	FindRecords(ctx context.Context, filter InvoiceFilter) ([]entity.InvoiceRecord, error)
	// DeleteOrphans removes headers without lines created before the cutoff.
	DeleteOrphans(ctx context.Context, before time.Time) (int64, error)
}

// Repositories bundles the ports a storage driver provides.
type Repositories struct {
	Customers CustomerRepository
	Sellers   SellerRepository
	Suppliers SupplierRepository
	Products  ProductRepository
	Invoices  InvoiceRepository
}
