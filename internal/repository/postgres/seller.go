package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

const sellerColumns = "id, COALESCE(auth_id, ''), code, first_name, last_name, email, created_at"

type sellerRepository struct {
	db *sql.DB
}

// NewSellerRepository creates a SellerRepository backed by Postgres.
func NewSellerRepository(db *sql.DB) repository.SellerRepository {
	return &sellerRepository{db: db}
}

func scanSeller(row interface{ Scan(...any) error }) (entity.Seller, error) {
	var s entity.Seller
	err := row.Scan(&s.ID, &s.AuthID, &s.Code, &s.FirstName, &s.LastName, &s.Email, &s.CreatedAt)
	return s, err
}

func (r *sellerRepository) FindByID(ctx context.Context, id int64) (*entity.Seller, error) {
	s, err := scanSeller(r.db.QueryRowContext(ctx, "SELECT "+sellerColumns+" FROM sellers WHERE id = $1", id))
	if err != nil {
		return nil, translate(err, "find seller", false)
	}
	return &s, nil
}

func (r *sellerRepository) FindByAuthID(ctx context.Context, authID string) (*entity.Seller, error) {
	s, err := scanSeller(r.db.QueryRowContext(ctx, "SELECT "+sellerColumns+" FROM sellers WHERE auth_id = $1", authID))
	if err != nil {
		return nil, translate(err, "find seller by auth id", false)
	}
	return &s, nil
}

func (r *sellerRepository) FindAll(ctx context.Context) ([]entity.Seller, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+sellerColumns+" FROM sellers ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "query sellers")
	}
	defer rows.Close()

	var out []entity.Seller
	for rows.Next() {
		s, err := scanSeller(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan seller")
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate sellers")
}

func (r *sellerRepository) Create(ctx context.Context, s *entity.Seller) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sellers (auth_id, code, first_name, last_name, email)
		 VALUES (NULLIF($1, ''), $2, $3, $4, $5) RETURNING id, created_at`,
		s.AuthID, s.Code, s.FirstName, s.LastName, s.Email,
	).Scan(&s.ID, &s.CreatedAt)
	return translate(err, "insert seller", false)
}
