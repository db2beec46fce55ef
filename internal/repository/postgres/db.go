package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"github.com/libreria-tm/backend/internal/repository"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// InitDB opens the pool, checks connectivity and migrates the schema.
func InitDB(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLife)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	zap.L().Info("database connected and migrated")
	return db, nil
}

// NewRepositories binds every repository port to db.
func NewRepositories(db *sql.DB) repository.Repositories {
	return repository.Repositories{
		Customers: NewCustomerRepository(db),
		Sellers:   NewSellerRepository(db),
		Suppliers: NewSupplierRepository(db),
		Products:  NewProductRepository(db),
		Invoices:  NewInvoiceRepository(db),
	}
}

// Migrate creates the schema when missing. Invoice codes come from a
// sequence so storage, not the application, assigns them.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id BIGSERIAL PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	ci TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sellers (
	id BIGSERIAL PRIMARY KEY,
	auth_id TEXT UNIQUE,
	code TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS suppliers (
	id BIGSERIAL PRIMARY KEY,
	company TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	contact_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	cost_price NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (cost_price >= 0),
	sell_price NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (sell_price >= 0),
	stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
	image_url TEXT NOT NULL DEFAULT '',
	supplier_id BIGINT REFERENCES suppliers(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE SEQUENCE IF NOT EXISTS invoice_code_seq;

CREATE TABLE IF NOT EXISTS invoices (
	id BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE DEFAULT 'F-' || LPAD(nextval('invoice_code_seq')::TEXT, 6, '0'),
	customer_id BIGINT NOT NULL REFERENCES customers(id),
	seller_id BIGINT NOT NULL REFERENCES sellers(id),
	idempotency_key TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS invoices_created_at_idx ON invoices (created_at);

CREATE TABLE IF NOT EXISTS invoice_lines (
	id BIGSERIAL PRIMARY KEY,
	invoice_id BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	product_id BIGINT NOT NULL REFERENCES products(id),
	quantity INT NOT NULL CHECK (quantity > 0),
	unit_price_at_sale NUMERIC(12,2) NOT NULL CHECK (unit_price_at_sale >= 0)
);

CREATE INDEX IF NOT EXISTS invoice_lines_invoice_id_idx ON invoice_lines (invoice_id);
`
