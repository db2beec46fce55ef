package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

const productColumns = "id, name, description, category, cost_price, sell_price, stock, image_url, supplier_id, created_at, updated_at"

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new ProductRepository backed by Postgres.
func NewProductRepository(db *sql.DB) repository.ProductRepository {
	return &productRepository{db: db}
}

func scanProduct(row interface{ Scan(...any) error }) (entity.Product, error) {
	var p entity.Product
	var supplierID sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CostPrice, &p.SellPrice,
		&p.Stock, &p.ImageURL, &supplierID, &p.CreatedAt, &p.UpdatedAt)
	if supplierID.Valid {
		p.SupplierID = &supplierID.Int64
	}
	return p, err
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (r *productRepository) list(ctx context.Context, query string, args ...any) ([]entity.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query products")
	}
	defer rows.Close()

	var products []entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		products = append(products, p)
	}
	return products, errors.Wrap(rows.Err(), "iterate products")
}

func (r *productRepository) FindByID(ctx context.Context, id int64) (*entity.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		return nil, translate(err, "find product", false)
	}
	return &p, nil
}

func (r *productRepository) FindAll(ctx context.Context) ([]entity.Product, error) {
	return r.list(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
}

func (r *productRepository) FindByCategory(ctx context.Context, category string) ([]entity.Product, error) {
	return r.list(ctx, "SELECT "+productColumns+" FROM products WHERE LOWER(category) = LOWER($1) ORDER BY id", category)
}

func (r *productRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n)
	return n, errors.Wrap(err, "count products")
}

func (r *productRepository) Create(ctx context.Context, p *entity.Product) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO products (name, description, category, cost_price, sell_price, stock, image_url, supplier_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.Category, p.CostPrice, p.SellPrice, p.Stock, p.ImageURL, nullableID(p.SupplierID),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return translate(err, "insert product", false)
}

func (r *productRepository) Update(ctx context.Context, p *entity.Product) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE products SET name = $1, description = $2, category = $3, cost_price = $4, sell_price = $5,
		 stock = $6, image_url = $7, supplier_id = $8, updated_at = NOW()
		 WHERE id = $9 RETURNING created_at, updated_at`,
		p.Name, p.Description, p.Category, p.CostPrice, p.SellPrice, p.Stock, p.ImageURL, nullableID(p.SupplierID), p.ID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err, "update product", false)
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	return affected(res, err, "delete product", true)
}

// DecrementStock relies on the WHERE clause so concurrent sales cannot
// both pass the check and drive stock negative.
func (r *productRepository) DecrementStock(ctx context.Context, id int64, qty int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		qty, id)
	if err != nil {
		return errors.Wrap(err, "failed to update product stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to update product stock")
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)", id).Scan(&exists); err != nil {
		return errors.Wrap(err, "check product")
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStockConflict
}

func (r *productRepository) IncrementStock(ctx context.Context, id int64, qty int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2", qty, id)
	return affected(res, err, "restore product stock", false)
}
