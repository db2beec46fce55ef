package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

const customerColumns = "id, first_name, last_name, ci, phone, created_at"

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a CustomerRepository backed by Postgres.
func NewCustomerRepository(db *sql.DB) repository.CustomerRepository {
	return &customerRepository{db: db}
}

func scanCustomer(row interface{ Scan(...any) error }) (entity.Customer, error) {
	var c entity.Customer
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.CI, &c.Phone, &c.CreatedAt)
	return c, err
}

func (r *customerRepository) list(ctx context.Context, query string, args ...any) ([]entity.Customer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query customers")
	}
	defer rows.Close()

	var out []entity.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan customer")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate customers")
}

func (r *customerRepository) FindByID(ctx context.Context, id int64) (*entity.Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE id = $1", id))
	if err != nil {
		return nil, translate(err, "find customer", false)
	}
	return &c, nil
}

func (r *customerRepository) FindAll(ctx context.Context) ([]entity.Customer, error) {
	return r.list(ctx, "SELECT "+customerColumns+" FROM customers ORDER BY id")
}

func (r *customerRepository) Search(ctx context.Context, term string) ([]entity.Customer, error) {
	return r.list(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE first_name ILIKE $1 OR last_name ILIKE $1 ORDER BY id",
		"%"+term+"%")
}

func (r *customerRepository) Create(ctx context.Context, c *entity.Customer) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO customers (first_name, last_name, ci, phone) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		c.FirstName, c.LastName, c.CI, c.Phone,
	).Scan(&c.ID, &c.CreatedAt)
	return translate(err, "insert customer", false)
}

func (r *customerRepository) Update(ctx context.Context, c *entity.Customer) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE customers SET first_name = $1, last_name = $2, ci = $3, phone = $4 WHERE id = $5",
		c.FirstName, c.LastName, c.CI, c.Phone, c.ID)
	return affected(res, err, "update customer", false)
}

func (r *customerRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM customers WHERE id = $1", id)
	return affected(res, err, "delete customer", true)
}
