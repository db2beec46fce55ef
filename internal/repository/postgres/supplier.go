package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

const supplierColumns = "id, company, phone, contact_name, created_at"

type supplierRepository struct {
	db *sql.DB
}

// NewSupplierRepository creates a SupplierRepository backed by Postgres.
func NewSupplierRepository(db *sql.DB) repository.SupplierRepository {
	return &supplierRepository{db: db}
}

func (r *supplierRepository) list(ctx context.Context, query string, args ...any) ([]entity.Supplier, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query suppliers")
	}
	defer rows.Close()

	var out []entity.Supplier
	for rows.Next() {
		var s entity.Supplier
		if err := rows.Scan(&s.ID, &s.Company, &s.Phone, &s.ContactName, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan supplier")
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate suppliers")
}

func (r *supplierRepository) FindByID(ctx context.Context, id int64) (*entity.Supplier, error) {
	var s entity.Supplier
	err := r.db.QueryRowContext(ctx, "SELECT "+supplierColumns+" FROM suppliers WHERE id = $1", id).
		Scan(&s.ID, &s.Company, &s.Phone, &s.ContactName, &s.CreatedAt)
	if err != nil {
		return nil, translate(err, "find supplier", false)
	}
	return &s, nil
}

func (r *supplierRepository) FindAll(ctx context.Context) ([]entity.Supplier, error) {
	return r.list(ctx, "SELECT "+supplierColumns+" FROM suppliers ORDER BY id")
}

func (r *supplierRepository) SearchByContact(ctx context.Context, name string) ([]entity.Supplier, error) {
	return r.list(ctx, "SELECT "+supplierColumns+" FROM suppliers WHERE contact_name ILIKE $1 ORDER BY id", "%"+name+"%")
}

func (r *supplierRepository) Create(ctx context.Context, s *entity.Supplier) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO suppliers (company, phone, contact_name) VALUES ($1, $2, $3) RETURNING id, created_at",
		s.Company, s.Phone, s.ContactName,
	).Scan(&s.ID, &s.CreatedAt)
	return translate(err, "insert supplier", false)
}

func (r *supplierRepository) Update(ctx context.Context, s *entity.Supplier) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE suppliers SET company = $1, phone = $2, contact_name = $3 WHERE id = $4",
		s.Company, s.Phone, s.ContactName, s.ID)
	return affected(res, err, "update supplier", false)
}

func (r *supplierRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM suppliers WHERE id = $1", id)
	return affected(res, err, "delete supplier", true)
}
